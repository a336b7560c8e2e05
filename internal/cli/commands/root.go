package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sparesparrow/build-orchestrator/internal/backend"
	"github.com/sparesparrow/build-orchestrator/internal/deploy"
	"github.com/sparesparrow/build-orchestrator/internal/graph"
	"github.com/sparesparrow/build-orchestrator/internal/manifest"
	"github.com/sparesparrow/build-orchestrator/internal/report"
	"github.com/sparesparrow/build-orchestrator/internal/scheduler"
	"github.com/sparesparrow/build-orchestrator/internal/services"
	"github.com/sparesparrow/build-orchestrator/internal/source"
	"github.com/sparesparrow/build-orchestrator/pkg/config"
	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

var (
	flagParallel bool
	flagDeploy   bool
	flagReport   string
)

var rootCmd = &cobra.Command{
	Use:   "orchestrate <config-path>",
	Short: "orchestrate - dependency-aware build and deploy orchestration",
	Long: `orchestrate builds a set of interdependent components described in a
configuration graph, resolving dependency order, collecting artifacts, and
optionally deploying successful builds.

Core Flow:
  Manifest → Graph → Scheduler → Build Backend → Artifacts/Metrics → Deploy → Report`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOrchestration,
}

// Execute runs the root command. The exit code reflects aggregate build
// success only; deployment failures are reported but do not change it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&flagParallel, "parallel", false, "build independent components concurrently")
	rootCmd.Flags().BoolVar(&flagDeploy, "deploy", false, "deploy successful builds that declare deployment configuration")
	rootCmd.Flags().StringVar(&flagReport, "report", "", "write the build report to a file instead of stdout")
}

func runOrchestration(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(cfg.Log.Level)

	components, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	g, err := graph.Load(components)
	if err != nil {
		return err
	}

	logger.Info().
		Str("manifest", args[0]).
		Int("components", g.Len()).
		Bool("parallel", flagParallel).
		Bool("deploy", flagDeploy).
		Msg("Configuration loaded")

	fetcher := source.NewFetcher(cfg.Build.WorkDir, logger)
	be := backend.NewConan(cfg.Build.ConanBinary, cfg.Build.TestTimeout, fetcher, logger)

	var opts []scheduler.Option
	var dispatcher *deploy.Dispatcher
	if flagDeploy {
		dispatcher = newDispatcher(cfg, g, logger)
		opts = append(opts, scheduler.WithDeployer(dispatcher))
	}

	sched := scheduler.New(g, be, logger, opts...)
	mode := scheduler.ModeSequential
	if flagParallel {
		mode = scheduler.ModeParallel
	}

	results, err := sched.Run(ctx, mode)
	if err != nil {
		return err
	}

	text := report.Generate(results)
	if flagReport != "" {
		if err := os.WriteFile(flagReport, []byte(text), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logger.Info().Str("path", flagReport).Msg("Report written")
	} else {
		fmt.Fprint(cmd.OutOrStdout(), text)
	}

	if dispatcher != nil {
		serveTools(ctx, cfg, g, dispatcher, logger)
	}

	for _, res := range results {
		if res.Status != models.StatusSuccess {
			return fmt.Errorf("orchestration finished with failed components")
		}
	}
	return nil
}

// newDispatcher wires every deployment backend that can be constructed in
// this environment; construction failures degrade that type to
// not-implemented instead of aborting the run.
func newDispatcher(cfg *config.Config, g *graph.Graph, logger zerolog.Logger) *deploy.Dispatcher {
	dispatcher := deploy.NewDispatcher(g, logger, deploy.NewSystemdBackend(logger))

	if docker, err := deploy.NewDockerBackend(logger); err != nil {
		logger.Warn().Err(err).Msg("Docker deployment backend unavailable")
	} else {
		dispatcher.Register(docker)
	}

	if kube, err := deploy.NewKubernetesBackend(cfg.Deploy.KubeConfig, cfg.Deploy.KubeNamespace, logger); err != nil {
		logger.Warn().Err(err).Msg("Kubernetes deployment backend unavailable")
	} else {
		dispatcher.Register(kube)
	}

	return dispatcher
}

// serveTools registers tools declared by deployed components with the
// auxiliary host and listens until interrupted. The capability is resolved
// once from configuration; when absent, tool declarations are skipped.
func serveTools(ctx context.Context, cfg *config.Config, g *graph.Graph, dispatcher *deploy.Dispatcher, logger zerolog.Logger) {
	host := services.NewHost(cfg.Aux.ListenAddr, logger)
	if !host.Available() {
		return
	}

	for _, name := range dispatcher.Deployed() {
		comp, ok := g.Lookup(name)
		if !ok || comp.Deploy == nil {
			continue
		}
		for _, tool := range comp.Deploy.Tools {
			host.RegisterTool(tool)
		}
	}

	if host.ToolCount() == 0 {
		return
	}

	if err := host.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("Tool host stopped")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
