package protocol

import "encoding/json"

// WorkDoneProgressParams is embedded by any request params that support
// work-done progress reporting: the caller supplies a token the callee
// reports `$/progress` notifications against.
type WorkDoneProgressParams struct {
	WorkDoneToken json.RawMessage `json:"workDoneToken,omitempty"`
}

// PartialResultParams is embedded by any request params that support
// streaming partial results (a different token than work-done progress,
// per the LSP spec, since a single request can report coarse progress and
// stream fine-grained partials independently).
type PartialResultParams struct {
	PartialResultToken json.RawMessage `json:"partialResultToken,omitempty"`
}
