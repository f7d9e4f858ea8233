// Package router implements the core dispatcher: given an operation name
// and arguments it selects the best available backend per a deterministic
// priority policy, invokes it, and normalizes the result. The router is
// stateless across calls except for the registry's cached probe results.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/hanzoai/aci/internal/capability"
	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
	"github.com/hanzoai/aci/internal/permission"
)

// Router dispatches operation requests to registered backends.
// Constructed explicitly with its collaborators; there is no hidden
// process-wide instance.
type Router struct {
	registry *capability.Registry
	gate     *permission.Gate
}

// New creates a router over the given registry and permission gate.
func New(registry *capability.Registry, gate *permission.Gate) *Router {
	return &Router{registry: registry, gate: gate}
}

// Registry exposes the capability registry for probing and inspection.
func (r *Router) Registry() *capability.Registry { return r.registry }

// Dispatch routes one request:
//
//  1. Resolve the capability; unknown operations fail immediately.
//  2. Authorize; denials short-circuit before any backend is touched.
//  3. Find available backends, sorted by priority.
//  4. Invoke the preferred backend. A transient failure is retried
//     exactly once against the next-priority backend; semantic failures
//     are returned as-is, since switching backends cannot fix them and
//     could double a partial side effect.
//
// Dispatch never panics across its boundary: an unexpected fault inside
// a backend is converted to a BackendSemanticFailure result.
func (r *Router) Dispatch(ctx context.Context, req *operation.Request) *operation.Result {
	start := time.Now()

	result := r.dispatch(ctx, req)
	result.WithDuration(time.Since(start))

	logging.Router("Dispatch %s [%s]: success=%v backend=%s kind=%s (%dms)",
		req.Name, req.ID, result.Success, result.Backend, result.Kind, result.DurationMs)
	return result
}

func (r *Router) dispatch(ctx context.Context, req *operation.Request) *operation.Result {
	cap, ok := operation.Lookup(req.Name)
	if !ok {
		return operation.Fail(operation.KindUnknownOperation, "unknown operation: %s", req.Name)
	}

	if decision := r.gate.Authorize(cap, req.Resource); !decision.Allowed {
		return operation.Fail(operation.KindPermissionDenied, "%s", decision.Reason)
	}

	candidates := r.registry.Find(cap.Name)
	if len(candidates) == 0 {
		return operation.Fail(operation.KindNoBackendAvailable,
			"no backend available for %s", cap.Name)
	}

	result, err := r.invoke(ctx, candidates[0], req)
	if err == nil {
		return result.WithBackend(candidates[0].Name())
	}

	if ctx.Err() != nil {
		return operation.Fail(operation.KindCancelled, "dispatch cancelled: %v", ctx.Err()).
			WithBackend(candidates[0].Name())
	}

	// Transient failures get exactly one retry against the next
	// priority. Anything else is semantic and final.
	if operation.IsTransient(err) && len(candidates) > 1 {
		next := candidates[1]
		logging.RouterWarn("Backend %s transient failure on %s, retrying on %s: %v",
			candidates[0].Name(), req.Name, next.Name(), err)

		result, retryErr := r.invoke(ctx, next, req)
		if retryErr == nil {
			return result.WithBackend(next.Name())
		}
		if ctx.Err() != nil {
			return operation.Fail(operation.KindCancelled, "dispatch cancelled: %v", ctx.Err()).
				WithBackend(next.Name())
		}
		return operation.FailErr(retryErr).WithBackend(next.Name())
	}

	return operation.FailErr(err).WithBackend(candidates[0].Name())
}

// invoke calls one backend, containing panics so the "always returns a
// structured result" contract holds.
func (r *Router) invoke(ctx context.Context, d *capability.Descriptor, req *operation.Request) (result *operation.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("backend %s panicked handling %s: %v", d.Name(), req.Name, rec)
		}
	}()

	logging.RouterDebug("Invoking %s on backend %s [%s]", req.Name, d.Name(), req.ID)
	result, err = d.Backend().Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("backend %s returned no result for %s", d.Name(), req.Name)
	}
	return result, nil
}
