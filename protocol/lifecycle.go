package protocol

import "encoding/json"

// Additional method names for dynamic registration and tracing, not
// present in the teacher's truncated method list.
const (
	MethodClientRegisterCapability   = "client/registerCapability"
	MethodClientUnregisterCapability = "client/unregisterCapability"
	MethodSetTrace                   = "$/setTrace"
	MethodLogTrace                   = "$/logTrace"
)

// CancelParams parameters for the "$/cancelRequest" notification.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

// ProgressParams parameters for the "$/progress" notification.
type ProgressParams struct {
	Token json.RawMessage `json:"token"`
	Value json.RawMessage `json:"value"`
}

// Registration describes one dynamic capability registration, sent by the
// server inside a client/registerCapability request.
type Registration struct {
	ID             string          `json:"id"`
	Method         string          `json:"method"`
	RegisterOptions json.RawMessage `json:"registerOptions,omitempty"`
}

// RegistrationParams parameters for the client/registerCapability request.
type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

// Unregistration identifies a previously registered capability to remove.
type Unregistration struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// UnregistrationParams parameters for the client/unregisterCapability request.
type UnregistrationParams struct {
	Unregisterations []Unregistration `json:"unregisterations"` // matches the LSP spec's (misspelled) field name
}

// TraceValue is the verbosity of $/logTrace notifications a client asked
// the server to emit.
type TraceValue string

const (
	TraceOff      TraceValue = "off"
	TraceMessages TraceValue = "messages"
	TraceVerbose  TraceValue = "verbose"
)

// SetTraceParams parameters for the "$/setTrace" notification.
type SetTraceParams struct {
	Value TraceValue `json:"value"`
}

// LogTraceParams parameters for the "$/logTrace" notification.
type LogTraceParams struct {
	Message string `json:"message"`
	Verbose string `json:"verbose,omitempty"`
}

// WorkDoneProgressCreateParams parameters for the window/workDoneProgress/create
// request a server sends to ask the client to open a progress reporting UI.
type WorkDoneProgressCreateParams struct {
	Token json.RawMessage `json:"token"`
}

// DynamicRegistrationClientCapabilities is the shared shape of the
// dynamicRegistration flag. Completion and hover declare their own copy in
// general.go, and no type in this package embeds this one.
type DynamicRegistrationClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}
