// Package deploy routes successfully built components to deployment
// backends selected by their declared deploy type.
package deploy

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/internal/graph"
	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Backend takes one successfully built component live. Backends own their
// idempotency and failure reporting.
type Backend interface {
	// Name returns the deploy type this backend serves.
	Name() string

	// Deploy deploys one component from its config and build result.
	Deploy(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error
}

// ErrBackendNotImplemented is returned when a declared deploy type has no
// working backend behind it.
type ErrBackendNotImplemented struct {
	Type string
}

func (e ErrBackendNotImplemented) Error() string {
	return "deployment backend not implemented: " + e.Type
}

// Dispatcher routes components to deployment backends. Backend failures are
// logged and never alter the stored build result.
type Dispatcher struct {
	graph    *graph.Graph
	backends map[string]Backend
	logger   zerolog.Logger

	mu       sync.Mutex
	deployed []string
}

// NewDispatcher creates a dispatcher over the given graph and backends.
func NewDispatcher(g *graph.Graph, logger zerolog.Logger, backends ...Backend) *Dispatcher {
	d := &Dispatcher{
		graph:    g,
		backends: make(map[string]Backend, len(backends)),
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, b := range backends {
		d.backends[b.Name()] = b
	}
	return d
}

// Register adds or replaces a backend.
func (d *Dispatcher) Register(b Backend) {
	d.backends[b.Name()] = b
}

// DeployComponent deploys one component immediately. It is the pipelined
// entry point called by the scheduler on build success.
func (d *Dispatcher) DeployComponent(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error {
	if res.Status != models.StatusSuccess || cfg.Deploy == nil {
		return nil
	}

	backend, ok := d.backends[cfg.Deploy.Type]
	if !ok {
		err := ErrBackendNotImplemented{Type: cfg.Deploy.Type}
		d.logger.Error().
			Str("name", cfg.Name).
			Str("deploy_type", cfg.Deploy.Type).
			Msg(err.Error())
		return err
	}

	d.logger.Info().
		Str("name", cfg.Name).
		Str("deploy_type", cfg.Deploy.Type).
		Msg("Dispatching component to deployment backend")

	if err := backend.Deploy(ctx, cfg, res); err != nil {
		d.logger.Error().
			Err(err).
			Str("name", cfg.Name).
			Str("deploy_type", cfg.Deploy.Type).
			Msg("Deployment failed")
		return err
	}

	d.mu.Lock()
	d.deployed = append(d.deployed, cfg.Name)
	d.mu.Unlock()

	d.logger.Info().
		Str("name", cfg.Name).
		Str("deploy_type", cfg.Deploy.Type).
		Msg("Component deployed")

	return nil
}

// Deploy is the explicit deploy phase: it walks a collected result set and
// dispatches every successful component that declares deployment
// configuration. Per-component failures do not stop the iteration.
func (d *Dispatcher) Deploy(ctx context.Context, results map[string]*models.BuildResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results[name]
		cfg, ok := d.graph.Lookup(name)
		if !ok || res.Status != models.StatusSuccess || cfg.Deploy == nil {
			continue
		}
		// Errors are already logged; a failed deployment of one component
		// must not block the rest.
		_ = d.DeployComponent(ctx, cfg, res)
	}
}

// Deployed returns the names of components deployed so far, in dispatch
// order.
func (d *Dispatcher) Deployed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.deployed))
	copy(out, d.deployed)
	return out
}
