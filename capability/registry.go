// Package capability tracks the static and dynamically registered
// capabilities of a peer: what the other side has declared it can handle,
// consulted before routing a request and mutated by
// client/registerCapability and client/unregisterCapability.
package capability

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Registration is one dynamically-registered capability, keyed by an
// id the registering side chooses (normally a uuid) so it can later be
// targeted by an unregister request.
type Registration struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Options json.RawMessage `json:"registerOptions,omitempty"`
}

// Unregistration identifies a previously registered capability to remove.
type Unregistration struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// RegistrationError reports an unregister request naming ids the registry
// doesn't know, wrapping an InvalidParams wire error per the unregister
// contract.
type RegistrationError struct {
	UnknownIDs []string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("capability: unknown registration ids %v", e.UnknownIDs)
}

// ToWire converts the error into the wire ErrorObject callers send back.
func (e *RegistrationError) ToWire() *jsonrpc2.ErrorObject {
	return jsonrpc2.NewError(jsonrpc2.InvalidParams, e.Error()).
		WithData(map[string]any{"unknownRegistrationIds": e.UnknownIDs})
}

// Registry tracks a set of static capabilities (declared once, at
// initialize time, and never removed) plus a set of dynamic registrations
// (added/removed over the life of the connection).
type Registry struct {
	mu     sync.RWMutex
	static map[string]bool
	byID   map[string]Registration
	byMeth map[string][]string // method -> registration ids, for Supports fast path

	// strict, when true, makes Register reject a dynamic registration for
	// a method that was not recorded via DeclareStatic.
	strict bool
}

// New creates an empty Registry. strict governs whether Register enforces
// that a method was already statically declared — a dynamic registration
// naming an undeclared method is rejected when strict.
func New(strict bool) *Registry {
	return &Registry{
		static: make(map[string]bool),
		byID:   make(map[string]Registration),
		byMeth: make(map[string][]string),
		strict: strict,
	}
}

// DeclareStatic records a capability announced in the initialize
// handshake. Static capabilities are never removed by Unregister.
func (r *Registry) DeclareStatic(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static[method] = true
}

// Register adds a dynamic registration. Returns an error if this id
// duplicates an existing one, or if strict and the method wasn't declared
// in the peer's static capabilities (a dynamic registration for a method
// the peer never said it supports is almost always a bug on the
// registering side, not a capability the peer should suddenly grow).
func (r *Registry) Register(reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[reg.ID]; dup {
		return fmt.Errorf("capability: duplicate registration id %q", reg.ID)
	}
	if r.strict && !r.static[reg.Method] {
		return fmt.Errorf("capability: method %q not declared in static capabilities", reg.Method)
	}
	r.byID[reg.ID] = reg
	r.byMeth[reg.Method] = append(r.byMeth[reg.Method], reg.ID)
	return nil
}

// Unregister removes the named registrations. All named ids must be known
// or none are removed; unknown ids are reported together in a
// RegistrationError so the caller can answer with one InvalidParams error
// naming every offender.
func (r *Registry) Unregister(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unknown []string
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return &RegistrationError{UnknownIDs: unknown}
	}

	for _, id := range ids {
		reg := r.byID[id]
		delete(r.byID, id)
		r.byMeth[reg.Method] = removeString(r.byMeth[reg.Method], id)
		if len(r.byMeth[reg.Method]) == 0 {
			delete(r.byMeth, reg.Method)
		}
	}
	return nil
}

// Supports reports whether method is handled, either statically or via an
// active dynamic registration.
func (r *Registry) Supports(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.static[method] {
		return true
	}
	return len(r.byMeth[method]) > 0
}

// Registrations returns a snapshot of all active dynamic registrations for
// method, in registration order.
func (r *Registry) Registrations(method string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byMeth[method]
	out := make([]Registration, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
