// Package backend defines the adapter contract every concrete execution
// environment implements. Any component satisfying this interface can be
// registered with the capability registry without modifying the router.
package backend

import (
	"context"

	"github.com/hanzoai/aci/internal/operation"
)

// Backend is the interface for one concrete execution environment.
// All adapter implementations must satisfy this interface.
type Backend interface {
	// Name returns the unique adapter name used in configuration and
	// result attribution.
	Name() string

	// Capabilities returns the set of operations this adapter declares
	// support for. The declaration is a claim; Probe confirms the
	// environment is actually usable.
	Capabilities() []operation.Capability

	// Probe performs a liveness check. A nil return means the adapter
	// is currently reachable and usable. Probing may be expensive
	// (spawning a subprocess, opening a connection); the registry
	// coalesces concurrent probes and caches the result.
	Probe(ctx context.Context) error

	// Invoke executes one operation. Infrastructure failures that a
	// different backend might service are wrapped with
	// operation.Transient; everything else is semantic and is returned
	// to the caller unchanged.
	//
	// Cancellation is cooperative: an adapter that cannot interrupt an
	// in-flight operation runs it to completion even after ctx is
	// cancelled, and the router reports Cancelled to the caller.
	Invoke(ctx context.Context, req *operation.Request) (*operation.Result, error)
}

// Supports reports whether b declares the named capability.
func Supports(b Backend, name string) bool {
	for _, c := range b.Capabilities() {
		if c.Name == name {
			return true
		}
	}
	return false
}
