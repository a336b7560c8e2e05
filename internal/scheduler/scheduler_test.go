package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/internal/graph"
	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// fakeBackend records build invocations in order and can fail or delay
// selected components.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	fail      map[string]bool
	delay     map[string]time.Duration
	sourceDir map[string]string
	panicOn   string
}

func (f *fakeBackend) Execute(ctx context.Context, cfg *models.BuildConfig) *models.BuildResult {
	if cfg.Name == f.panicOn {
		panic("backend blew up on " + cfg.Name)
	}
	if d := f.delay[cfg.Name]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.calls = append(f.calls, cfg.Name)
	f.mu.Unlock()

	res := models.NewBuildResult(cfg.Name)
	res.SourceDir = cfg.Path
	if d, ok := f.sourceDir[cfg.Name]; ok {
		res.SourceDir = d
	}
	res.Advance(models.StatusBuilding)
	if f.fail[cfg.Name] {
		res.Fail("install failed")
		return res
	}
	res.Advance(models.StatusPackaging)
	res.Advance(models.StatusSuccess)
	res.Logs = "zlib/1.3: Already installed!\n"
	return res
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) indexOf(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == name {
			return i
		}
	}
	return -1
}

// fakeDeployer records pipelined dispatch calls.
type fakeDeployer struct {
	mu       sync.Mutex
	deployed []string
	err      error
}

func (f *fakeDeployer) DeployComponent(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error {
	f.mu.Lock()
	f.deployed = append(f.deployed, cfg.Name)
	f.mu.Unlock()
	return f.err
}

func mustGraph(t *testing.T, components ...models.BuildConfig) *graph.Graph {
	t.Helper()
	g, err := graph.Load(components)
	if err != nil {
		t.Fatalf("Failed to load graph: %v", err)
	}
	return g
}

func TestRun_Sequential_DependencyBeforeDependent(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "A"},
		models.BuildConfig{Name: "B", Dependencies: []string{"A"}},
	)
	be := &fakeBackend{}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeSequential)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, name := range []string{"A", "B"} {
		if results[name].Status != models.StatusSuccess {
			t.Errorf("Expected %s SUCCESS, got %s", name, results[name].Status)
		}
	}
	if be.indexOf("A") >= be.indexOf("B") {
		t.Errorf("Expected A built before B, call order %v", be.calls)
	}
}

func TestRun_OneResultPerComponent(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "core"},
		models.BuildConfig{Name: "audio", Dependencies: []string{"core"}},
		models.BuildConfig{Name: "bridge", Dependencies: []string{"core"}},
		models.BuildConfig{Name: "app", Dependencies: []string{"audio", "bridge"}},
	)
	be := &fakeBackend{}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeSequential)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != g.Len() {
		t.Fatalf("Expected %d results, got %d", g.Len(), len(results))
	}
	for _, name := range g.Names() {
		if _, ok := results[name]; !ok {
			t.Errorf("Missing result for %s", name)
		}
	}
}

func TestRun_Parallel_SharedDependencyBuiltOnce(t *testing.T) {
	// Diamond: audio and bridge race to resolve core. The delay widens the
	// window in which a duplicate build could slip through.
	g := mustGraph(t,
		models.BuildConfig{Name: "core"},
		models.BuildConfig{Name: "audio", Dependencies: []string{"core"}},
		models.BuildConfig{Name: "bridge", Dependencies: []string{"core"}},
		models.BuildConfig{Name: "app", Dependencies: []string{"audio", "bridge"}},
	)
	be := &fakeBackend{delay: map[string]time.Duration{"core": 30 * time.Millisecond}}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeParallel)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
	if n := be.callCount("core"); n != 1 {
		t.Errorf("Expected core built exactly once, got %d", n)
	}
	if be.indexOf("core") >= be.indexOf("audio") || be.indexOf("core") >= be.indexOf("bridge") {
		t.Errorf("Expected core built before its dependents, call order %v", be.calls)
	}
}

func TestRun_Parallel_FailureDoesNotAbortSiblings(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "good"},
		models.BuildConfig{Name: "bad"},
		models.BuildConfig{Name: "alsoGood"},
	)
	be := &fakeBackend{fail: map[string]bool{"bad": true}}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeParallel)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if results["bad"].Status != models.StatusFailed {
		t.Errorf("Expected bad FAILED, got %s", results["bad"].Status)
	}
	if results["good"].Status != models.StatusSuccess || results["alsoGood"].Status != models.StatusSuccess {
		t.Error("Expected sibling builds to succeed despite failure")
	}
}

func TestRun_DependencyFailureDoesNotSkipDependent(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "core"},
		models.BuildConfig{Name: "app", Dependencies: []string{"core"}},
	)
	be := &fakeBackend{fail: map[string]bool{"core": true}}
	s := New(g, be, zerolog.Nop())

	results, _ := s.Run(context.Background(), ModeSequential)

	if results["core"].Status != models.StatusFailed {
		t.Fatalf("Expected core FAILED, got %s", results["core"].Status)
	}
	// The dependent still gets its backend invocation.
	if be.callCount("app") != 1 {
		t.Errorf("Expected app backend call despite failed dependency, calls %v", be.calls)
	}
}

func TestRun_PanicConvertedToFailedResult(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "boom"},
		models.BuildConfig{Name: "ok"},
	)
	be := &fakeBackend{panicOn: "boom"}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeParallel)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if results["boom"].Status != models.StatusFailed {
		t.Errorf("Expected panicking component FAILED, got %s", results["boom"].Status)
	}
	if results["boom"].Error == "" {
		t.Error("Expected panic text in result error")
	}
	if results["ok"].Status != models.StatusSuccess {
		t.Errorf("Expected sibling SUCCESS, got %s", results["ok"].Status)
	}
}

func TestRun_PipelinedDeploy(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "plain"},
		models.BuildConfig{Name: "svc", Deploy: &models.DeployConfig{Type: "docker"}},
		models.BuildConfig{Name: "failedSvc", Deploy: &models.DeployConfig{Type: "docker"}},
	)
	be := &fakeBackend{fail: map[string]bool{"failedSvc": true}}
	dep := &fakeDeployer{}
	s := New(g, be, zerolog.Nop(), WithDeployer(dep))

	_, err := s.Run(context.Background(), ModeSequential)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(dep.deployed) != 1 || dep.deployed[0] != "svc" {
		t.Errorf("Expected only svc dispatched, got %v", dep.deployed)
	}
}

func TestRun_DeployFailureDoesNotChangeResult(t *testing.T) {
	g := mustGraph(t,
		models.BuildConfig{Name: "svc", Deploy: &models.DeployConfig{Type: "docker"}},
	)
	be := &fakeBackend{}
	dep := &fakeDeployer{err: context.DeadlineExceeded}
	s := New(g, be, zerolog.Nop(), WithDeployer(dep))

	results, _ := s.Run(context.Background(), ModeSequential)

	if results["svc"].Status != models.StatusSuccess {
		t.Errorf("Expected build status untouched by deploy failure, got %s", results["svc"].Status)
	}
}

func TestRun_MetricsPopulated(t *testing.T) {
	g := mustGraph(t, models.BuildConfig{Name: "core"})
	be := &fakeBackend{}
	s := New(g, be, zerolog.Nop())

	results, _ := s.Run(context.Background(), ModeSequential)

	m := results["core"].Metrics
	if _, ok := m[models.MetricBuildTime]; !ok {
		t.Error("Expected build_time metric")
	}
	if m[models.MetricArtifactCount] != 0 {
		t.Errorf("Expected artifact_count 0, got %v", m[models.MetricArtifactCount])
	}
	if m[models.MetricCacheHits] != 1 {
		t.Errorf("Expected cache_hits 1 from log marker, got %v", m[models.MetricCacheHits])
	}
}

func TestRun_ArtifactsCollectedFromResolvedSourceDir(t *testing.T) {
	// A remote component path is materialized into a local checkout by the
	// backend; artifacts must be collected from that checkout, not from the
	// URL-shaped declared path.
	checkout := t.TempDir()
	buildDir := filepath.Join(checkout, "build")
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "libcore.so"), []byte("elf"), 0644); err != nil {
		t.Fatal(err)
	}

	g := mustGraph(t,
		models.BuildConfig{Name: "core", Path: "https://example.com/core.git"},
	)
	be := &fakeBackend{sourceDir: map[string]string{"core": checkout}}
	s := New(g, be, zerolog.Nop())

	results, err := s.Run(context.Background(), ModeSequential)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res := results["core"]
	if len(res.Artifacts) != 1 || filepath.Base(res.Artifacts[0]) != "libcore.so" {
		t.Fatalf("Expected libcore.so from the checkout, got %v", res.Artifacts)
	}
	if res.Metrics[models.MetricArtifactCount] != 1 {
		t.Errorf("Expected artifact_count 1, got %v", res.Metrics[models.MetricArtifactCount])
	}
}

func TestRun_UnknownMode(t *testing.T) {
	g := mustGraph(t, models.BuildConfig{Name: "core"})
	s := New(g, &fakeBackend{}, zerolog.Nop())

	if _, err := s.Run(context.Background(), Mode("bogus")); err == nil {
		t.Fatal("Expected error for unknown mode")
	}
}
