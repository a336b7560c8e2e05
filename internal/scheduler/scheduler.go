// Package scheduler resolves the component dependency graph and drives each
// component through the build backend, in sequential or parallel mode.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sparesparrow/build-orchestrator/internal/artifacts"
	"github.com/sparesparrow/build-orchestrator/internal/backend"
	"github.com/sparesparrow/build-orchestrator/internal/graph"
	"github.com/sparesparrow/build-orchestrator/internal/report"
	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Mode selects how top-level component resolutions are driven.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Deployer receives successfully built components that carry deployment
// configuration. Dispatch is pipelined into the build flow; failures are the
// deployer's to report and never alter the build result.
type Deployer interface {
	DeployComponent(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error
}

// task is the memoized promise for one component. done is closed exactly
// once, after result is set, by whichever caller created the task.
type task struct {
	done   chan struct{}
	result *models.BuildResult
}

// Scheduler owns the task graph for one orchestration run. Each component is
// built at most once regardless of how many dependents resolve it
// concurrently: task creation is the single check-and-mark step and happens
// under the mutex.
type Scheduler struct {
	graph    *graph.Graph
	backend  backend.Backend
	deployer Deployer
	logger   zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDeployer enables pipelined deployment of successful builds.
func WithDeployer(d Deployer) Option {
	return func(s *Scheduler) { s.deployer = d }
}

// New creates a scheduler over a validated graph.
func New(g *graph.Graph, b backend.Backend, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:   g,
		backend: b,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run builds every component in the graph and returns one result per
// declared component name. Per-component failures are captured as Failed
// results and never abort sibling builds.
func (s *Scheduler) Run(ctx context.Context, mode Mode) (map[string]*models.BuildResult, error) {
	if mode != ModeSequential && mode != ModeParallel {
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}

	runID := uuid.New().String()
	names := s.graph.Names()
	s.logger.Info().
		Str("run_id", runID).
		Str("mode", string(mode)).
		Int("components", len(names)).
		Msg("Starting orchestration run")

	s.mu.Lock()
	s.tasks = make(map[string]*task, len(names))
	s.mu.Unlock()

	if mode == ModeSequential {
		for _, name := range names {
			s.resolve(ctx, name)
		}
	} else {
		var eg errgroup.Group
		for _, name := range names {
			eg.Go(func() error {
				s.resolve(ctx, name)
				return nil
			})
		}
		// Resolutions never surface errors; the group is a collective join.
		_ = eg.Wait()
	}

	results := make(map[string]*models.BuildResult, len(names))
	s.mu.Lock()
	for name, t := range s.tasks {
		results[name] = t.result
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("run_id", runID).
		Int("results", len(results)).
		Msg("Orchestration run finished")

	return results, nil
}

// resolve returns the memoized result for a component, building it first if
// this caller wins the task creation race.
func (s *Scheduler) resolve(ctx context.Context, name string) *models.BuildResult {
	s.mu.Lock()
	if t, ok := s.tasks[name]; ok {
		s.mu.Unlock()
		<-t.done
		return t.result
	}
	t := &task{done: make(chan struct{})}
	s.tasks[name] = t
	s.mu.Unlock()

	t.result = s.build(ctx, name)
	close(t.done)
	return t.result
}

// build resolves all declared dependencies depth-first, then invokes the
// backend for the component and finalizes its result. Any panic inside the
// chain is converted to a Failed result at this boundary.
func (s *Scheduler) build(ctx context.Context, name string) (res *models.BuildResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.NewBuildResult(name)
			res.Fail(fmt.Sprintf("build aborted: %v", r))
			s.logger.Error().Str("name", name).Msgf("Recovered panic in build chain: %v", r)
		}
	}()

	cfg, ok := s.graph.Lookup(name)
	if !ok {
		res = models.NewBuildResult(name)
		res.Fail(fmt.Sprintf("component %q not in graph", name))
		return res
	}

	for _, dep := range cfg.Dependencies {
		depRes := s.resolve(ctx, dep)
		if depRes.Status != models.StatusSuccess {
			// Policy: the dependent still gets its build attempt and is
			// expected to fail naturally downstream. The warning names the
			// root cause for the operator.
			s.logger.Warn().
				Str("name", name).
				Str("dependency", dep).
				Str("dependency_status", string(depRes.Status)).
				Msg("Dependency did not succeed, building anyway")
		}
	}

	s.logger.Info().Str("name", name).Msg("Dependencies resolved, invoking build backend")

	res = s.backend.Execute(ctx, cfg)
	if res == nil {
		res = models.NewBuildResult(name)
		res.Fail("backend returned no result")
	}

	// The backend records where the build ran, which differs from cfg.Path
	// for remote sources materialized into the work directory.
	buildRoot := res.SourceDir
	if buildRoot == "" {
		buildRoot = cfg.Path
	}
	found := artifacts.Collect(filepath.Join(buildRoot, "build"))
	res.Artifacts = append(res.Artifacts, found...)

	res.Metrics[models.MetricBuildTime] = res.Duration
	res.Metrics[models.MetricArtifactCount] = len(res.Artifacts)
	res.Metrics[models.MetricCacheHits] = report.CacheHits(res.Logs)

	if res.Status == models.StatusSuccess && cfg.Deploy != nil && s.deployer != nil {
		if err := s.deployer.DeployComponent(ctx, cfg, res); err != nil {
			// Deployment failure is reported separately from build success.
			s.logger.Error().
				Err(err).
				Str("name", name).
				Str("deploy_type", cfg.Deploy.Type).
				Msg("Pipelined deployment failed")
		}
	}

	return res
}
