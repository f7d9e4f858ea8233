// Package dispatch implements the uniform contract shared by the
// specialized operation dispatchers (semantic search, symbolic
// reasoning): a named operation plus a parameter map, validated against
// a per-operation required-key set before the provider is touched.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

// Provider is implemented by the embedding-store and syntax-tree
// collaborators. Providers hold their own state (collections, parsers);
// the dispatcher owns validation and error normalization.
type Provider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Available reports whether the underlying dependency is usable.
	// When false, every Execute call fails with ProviderUnavailable
	// without touching the provider.
	Available() bool

	// Operations maps each supported operation name to its required
	// parameter keys.
	Operations() map[string][]string

	// Execute runs one validated operation.
	Execute(ctx context.Context, name string, params map[string]any) (*operation.Result, error)
}

// Dispatcher routes named operations to one provider. Two instances
// exist in a standard deployment: semantic search and symbolic
// reasoning. Safe for concurrent use if the provider is.
type Dispatcher struct {
	provider Provider
	category logging.Category
}

// New creates a dispatcher over the given provider.
func New(provider Provider, category logging.Category) *Dispatcher {
	return &Dispatcher{provider: provider, category: category}
}

// Available reports whether the underlying provider is usable.
func (d *Dispatcher) Available() bool { return d.provider.Available() }

// Operations returns the provider's operation catalog.
func (d *Dispatcher) Operations() map[string][]string { return d.provider.Operations() }

// Execute validates and runs one operation. Failures always come back as
// structured results; provider panics are contained at this boundary.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]any) *operation.Result {
	start := time.Now()
	result := d.execute(ctx, name, params)
	result.WithDuration(time.Since(start))

	logging.Get(d.category).Info("execute %s: success=%v kind=%s (%dms)",
		name, result.Success, result.Kind, result.DurationMs)
	return result
}

func (d *Dispatcher) execute(ctx context.Context, name string, params map[string]any) *operation.Result {
	if !d.provider.Available() {
		return operation.Fail(operation.KindProviderUnavailable,
			"%s provider is not available", d.provider.Name())
	}

	required, ok := d.provider.Operations()[name]
	if !ok {
		return operation.Fail(operation.KindUnknownOperation,
			"unsupported operation: %s", name)
	}

	if params == nil {
		params = map[string]any{}
	}
	for _, key := range required {
		if _, present := params[key]; !present {
			return operation.Fail(operation.KindInvalidParameters,
				"missing required parameter %q for %s", key, name)
		}
	}

	result, err := d.invoke(ctx, name, params)
	if err != nil {
		if ctx.Err() != nil {
			return operation.Fail(operation.KindCancelled, "%s cancelled: %v", name, ctx.Err())
		}
		return operation.FailErr(err)
	}
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, name string, params map[string]any) (result *operation.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%s provider panicked handling %s: %v", d.provider.Name(), name, rec)
		}
	}()

	result, err = d.provider.Execute(ctx, name, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%s provider returned no result for %s", d.provider.Name(), name)
	}
	return result, nil
}
