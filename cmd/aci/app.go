package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hanzoai/aci/internal/backend"
	"github.com/hanzoai/aci/internal/backend/native"
	"github.com/hanzoai/aci/internal/backend/remote"
	"github.com/hanzoai/aci/internal/backend/session"
	"github.com/hanzoai/aci/internal/capability"
	"github.com/hanzoai/aci/internal/config"
	"github.com/hanzoai/aci/internal/dispatch"
	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/permission"
	"github.com/hanzoai/aci/internal/router"
	"github.com/hanzoai/aci/internal/symbolic"
	"github.com/hanzoai/aci/internal/vecsearch"
)

// app holds everything a command needs, wired once per process.
type app struct {
	cfg      *config.Config
	router   *router.Router
	registry *capability.Registry
	semantic *dispatch.Dispatcher
	symbolic *dispatch.Dispatcher

	vecStore *vecsearch.Store
	watcher  *vecsearch.Watcher
	parser   *symbolic.Parser
}

// buildApp loads config, initializes logging and wires the router,
// registry, gate, backends and both specialized dispatchers.
func buildApp(ctx context.Context) (*app, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine workspace: %w", err)
	}

	cfg, err := config.Load(configPath, workspace)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.DebugMode = true
	}
	if err := logging.Initialize(workspace, cfg.Logging); err != nil {
		return nil, fmt.Errorf("cannot initialize logging: %w", err)
	}

	// Permission gate.
	policy := permission.Policy{
		Allow: cfg.Permissions.Allow,
		Deny:  cfg.Permissions.Deny,
	}
	switch {
	case autoConfirm || cfg.Permissions.AutoConfirm:
		policy.Confirm = func(op, resource string) bool { return true }
	default:
		policy.Confirm = promptConfirm
	}
	gate := permission.NewGate(policy)

	// Backends per config, with an optional explicit override hoisted to
	// the front. An overridden backend that fails its probe falls back
	// to the remaining order, native last.
	registry := capability.NewRegistry()
	for _, bc := range cfg.Backends {
		if !bc.Enabled {
			continue
		}
		b, err := buildBackend(bc, workspace)
		if err != nil {
			return nil, err
		}

		priority := bc.Priority
		if backendOverride != "" {
			if bc.Name == backendOverride {
				priority = 0
			} else {
				priority += 1000
			}
		}
		if err := registry.Register(b, priority); err != nil {
			return nil, err
		}
	}
	if backendOverride != "" && registry.Get(backendOverride) == nil {
		logger.Warn("requested backend not configured, falling back to priority order",
			zap.String("backend", backendOverride))
	}
	registry.ProbeAll(ctx)

	a := &app{
		cfg:      cfg,
		registry: registry,
		router:   router.New(registry, gate),
	}

	// Semantic search dispatcher.
	engine, err := vecsearch.NewEngine(cfg.Semantic.Embedding)
	if err != nil {
		return nil, err
	}
	store, err := vecsearch.OpenStore(cfg.Semantic.DatabasePath, engine)
	if err != nil {
		return nil, err
	}
	a.vecStore = store

	vp := vecsearch.NewProvider(store)
	if cfg.Semantic.WatchRoots {
		if w, err := vecsearch.NewWatcher([]string{workspace}); err == nil {
			vp.SetWatcher(w)
			a.watcher = w
		} else {
			logger.Warn("staleness watcher unavailable", zap.Error(err))
		}
	}
	a.semantic = dispatch.New(vp, logging.CategoryVector)

	// Symbolic reasoning dispatcher.
	a.parser = symbolic.NewParser()
	a.symbolic = dispatch.New(symbolic.NewProvider(a.parser), logging.CategorySymbolic)

	return a, nil
}

// buildBackend constructs one adapter from its config entry.
func buildBackend(bc config.BackendConfig, workspace string) (backend.Backend, error) {
	switch bc.Name {
	case "native":
		return native.New(workspace, native.WithShellTimeout(bc.Timeout)), nil
	case "session":
		return session.New(bc.Command, bc.Timeout), nil
	case "remote":
		return remote.New(bc.Command), nil
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", bc.Name)
	}
}

func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.parser != nil {
		a.parser.Close()
	}
	if a.vecStore != nil {
		a.vecStore.Close()
	}
	logging.CloseAll()
}

// promptConfirm asks on the terminal before an elevated operation runs.
func promptConfirm(op, resource string) bool {
	fmt.Fprintf(os.Stderr, "Allow %s on %q? [y/N] ", op, resource)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
