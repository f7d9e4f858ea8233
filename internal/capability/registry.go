// Package capability tracks, per backend, which operations it declares
// support for and whether a runtime probe confirmed it is currently
// usable. Probing is explicit: Find never probes implicitly, so stale
// results are accepted by design on hot paths.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanzoai/aci/internal/backend"
	"github.com/hanzoai/aci/internal/logging"
)

// ProbeResult is the cached outcome of one liveness probe.
type ProbeResult struct {
	Available bool
	CheckedAt time.Time
	Err       error
}

// Descriptor pairs a registered backend with its routing metadata.
// Owned by the Registry; the probe cache is mutated only by re-probing.
type Descriptor struct {
	backend  backend.Backend
	priority int
	seq      int // registration order, tie-break for equal priority

	// probe holds the last ProbeResult. Replaced atomically so
	// concurrent dispatches never observe a torn read.
	probe atomic.Pointer[ProbeResult]
}

// Backend returns the underlying adapter.
func (d *Descriptor) Backend() backend.Backend { return d.backend }

// Name returns the adapter name.
func (d *Descriptor) Name() string { return d.backend.Name() }

// Priority returns the configured selection priority (lower = preferred).
func (d *Descriptor) Priority() int { return d.priority }

// LastProbe returns the cached probe result, or nil if never probed.
func (d *Descriptor) LastProbe() *ProbeResult { return d.probe.Load() }

// Available reports whether the last probe succeeded. Unprobed
// descriptors are unavailable: a backend must be confirmed before it
// receives traffic.
func (d *Descriptor) Available() bool {
	p := d.probe.Load()
	return p != nil && p.Available
}

// Registry is the capability registry. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	order  []*Descriptor // registration order

	// group collapses concurrent probes of the same descriptor into a
	// single in-flight liveness check.
	group singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a backend with the given priority (lower = preferred).
// Returns an error if a backend with the same name already exists.
func (r *Registry) Register(b backend.Backend, priority int) error {
	if b == nil {
		return fmt.Errorf("backend cannot be nil")
	}
	name := b.Name()
	if name == "" {
		return fmt.Errorf("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("backend already registered: %s", name)
	}

	d := &Descriptor{backend: b, priority: priority, seq: len(r.order)}
	r.byName[name] = d
	r.order = append(r.order, d)

	logging.RegistryDebug("Registered backend: %s (priority=%d, capabilities=%d)",
		name, priority, len(b.Capabilities()))
	return nil
}

// Get returns the descriptor for a backend name, or nil if not registered.
func (r *Registry) Get(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Probe runs the named backend's liveness check and atomically replaces
// the cached result. A probe that returns an error (or panics) caches
// available=false; the error is recorded, never propagated as a probe
// failure. Concurrent probes of the same backend collapse to a single
// underlying check.
func (r *Registry) Probe(ctx context.Context, name string) (ProbeResult, error) {
	d := r.Get(name)
	if d == nil {
		return ProbeResult{}, fmt.Errorf("backend not registered: %s", name)
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.runProbe(ctx, d), nil
	})
	if err != nil {
		// Unreachable: runProbe never returns an error, but keep the
		// contract honest.
		return ProbeResult{}, err
	}
	return v.(ProbeResult), nil
}

// runProbe executes one liveness check and stores the result.
func (r *Registry) runProbe(ctx context.Context, d *Descriptor) ProbeResult {
	timer := logging.StartTimer(logging.CategoryRegistry, "probe "+d.Name())
	defer timer.Stop()

	result := ProbeResult{CheckedAt: time.Now()}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				result.Available = false
				result.Err = fmt.Errorf("probe panicked: %v", rec)
			}
		}()
		if err := d.backend.Probe(ctx); err != nil {
			result.Err = err
		} else {
			result.Available = true
		}
	}()

	d.probe.Store(&result)
	logging.Registry("Probe %s: available=%v err=%v", d.Name(), result.Available, result.Err)
	return result
}

// ProbeAll probes every registered backend sequentially in registration
// order. Used at startup and by the CLI probe command.
func (r *Registry) ProbeAll(ctx context.Context) {
	for _, d := range r.snapshot() {
		r.Probe(ctx, d.Name())
	}
}

// Find returns descriptors whose last probe succeeded and that declare
// the named capability, sorted by priority ascending with registration
// order as tie-break. Find never probes; callers needing freshness call
// Probe first.
func (r *Registry) Find(capabilityName string) []*Descriptor {
	var matches []*Descriptor
	for _, d := range r.snapshot() {
		if !d.Available() {
			continue
		}
		if backend.Supports(d.backend, capabilityName) {
			matches = append(matches, d)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].priority != matches[j].priority {
			return matches[i].priority < matches[j].priority
		}
		return matches[i].seq < matches[j].seq
	})
	return matches
}

// All returns every descriptor in registration order.
func (r *Registry) All() []*Descriptor {
	return r.snapshot()
}

func (r *Registry) snapshot() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.order))
	copy(out, r.order)
	return out
}
