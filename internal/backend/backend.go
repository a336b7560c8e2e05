// Package backend invokes the external build tool for one component and
// folds every failure into the returned result. The Execute contract never
// surfaces an error to the scheduler.
package backend

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/internal/source"
	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Backend executes the install/compile/test steps for one component.
// Implementations never return a partial nil; all failures are captured in
// the result's error field and Failed status.
type Backend interface {
	Execute(ctx context.Context, cfg *models.BuildConfig) *models.BuildResult
}

// DefaultTestTimeout bounds the optional test step when no timeout is
// configured. Install and compile are bounded only by the run context.
const DefaultTestTimeout = 10 * time.Minute

// Conan drives a conan-style build tool through its install and build
// subcommands, plus the component's declared test command.
type Conan struct {
	runner      CommandRunner
	binary      string
	testTimeout time.Duration
	fetcher     *source.Fetcher
	logger      zerolog.Logger
}

// NewConan creates a build backend shelling out to the given conan binary.
// fetcher may be nil when remote component paths are not in play.
func NewConan(binary string, testTimeout time.Duration, fetcher *source.Fetcher, logger zerolog.Logger) *Conan {
	if binary == "" {
		binary = "conan"
	}
	if testTimeout <= 0 {
		testTimeout = DefaultTestTimeout
	}
	return &Conan{
		runner:      &execRunner{},
		binary:      binary,
		testTimeout: testTimeout,
		fetcher:     fetcher,
		logger:      logger.With().Str("component", "backend").Logger(),
	}
}

// WithRunner replaces the process runner. Used by tests.
func (b *Conan) WithRunner(r CommandRunner) *Conan {
	b.runner = r
	return b
}

// Execute runs install, build, and the optional test command for one
// component. A non-zero install or build exit is a hard failure; a non-zero
// test exit is recorded as a metric only.
func (b *Conan) Execute(ctx context.Context, cfg *models.BuildConfig) (res *models.BuildResult) {
	res = models.NewBuildResult(cfg.Name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Fail(fmt.Sprintf("backend panic: %v", r))
		}
		res.Duration = time.Since(start).Seconds()
	}()

	b.logger.Info().
		Str("name", cfg.Name).
		Str("path", cfg.Path).
		Str("build_type", cfg.BuildType).
		Msg("Starting component build")

	dir := cfg.Path
	if b.fetcher != nil {
		local, err := b.fetcher.Ensure(ctx, cfg.Name, cfg.Path)
		if err != nil {
			res.Fail(fmt.Sprintf("fetch source: %v", err))
			return res
		}
		dir = local
	}
	// Remote paths resolve to a checkout under the work directory; record
	// where the build actually ran so artifact collection scans that tree.
	res.SourceDir = dir

	env := buildEnv(cfg.Environment)
	res.Advance(models.StatusBuilding)

	out, code := b.runner.Run(ctx, dir, env, b.binary, b.installArgs(cfg)...)
	res.Logs += out
	if code != 0 {
		res.Fail(fmt.Sprintf("install failed with exit code %d", code))
		return res
	}

	out, code = b.runner.Run(ctx, dir, env, b.binary, b.buildArgs(cfg)...)
	res.Logs += out
	if code != 0 {
		res.Fail(fmt.Sprintf("build failed with exit code %d", code))
		return res
	}

	if cfg.TestCommand != "" {
		res.Advance(models.StatusTesting)
		testCtx, cancel := context.WithTimeout(ctx, b.testTimeout)
		out, code = b.runner.Run(testCtx, dir, env, "sh", "-c", cfg.TestCommand)
		cancel()
		res.Logs += out
		if code != 0 {
			// Failing tests do not flip the build outcome; they are
			// surfaced through the metrics mapping and the report.
			res.Metrics[models.MetricTestFailed] = true
			b.logger.Warn().
				Str("name", cfg.Name).
				Int("exit_code", code).
				Msg("Test command failed")
		} else {
			res.Metrics[models.MetricTestPassed] = true
		}
	}

	res.Advance(models.StatusPackaging)
	res.Advance(models.StatusSuccess)

	b.logger.Info().
		Str("name", cfg.Name).
		Str("status", string(res.Status)).
		Msg("Component build finished")

	return res
}

func (b *Conan) installArgs(cfg *models.BuildConfig) []string {
	target := cfg.ConanFile
	if target == "" {
		target = "."
	}
	args := []string{"install", target, "--build=missing"}
	if cfg.BuildType != "" {
		args = append(args, "-s", "build_type="+cfg.BuildType)
	}
	if cfg.Profile != "" {
		args = append(args, "-pr", cfg.Profile)
	}
	for _, k := range sortedKeys(cfg.Options) {
		args = append(args, "-o", k+"="+cfg.Options[k])
	}
	return args
}

func (b *Conan) buildArgs(cfg *models.BuildConfig) []string {
	target := cfg.ConanFile
	if target == "" {
		target = "."
	}
	args := []string{"build", target}
	if cfg.BuildType != "" {
		args = append(args, "-s", "build_type="+cfg.BuildType)
	}
	return args
}

func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for _, k := range sortedKeys(extra) {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
