package models

// BuildStatus represents the current state of a component build
type BuildStatus string

const (
	StatusPending   BuildStatus = "PENDING"
	StatusBuilding  BuildStatus = "BUILDING"
	StatusTesting   BuildStatus = "TESTING"
	StatusPackaging BuildStatus = "PACKAGING"
	StatusSuccess   BuildStatus = "SUCCESS"
	StatusFailed    BuildStatus = "FAILED"
	StatusCancelled BuildStatus = "CANCELLED"
)

// Metric keys recorded on every BuildResult. TestPassed/TestFailed are only
// present when the component declares a test command.
const (
	MetricBuildTime     = "build_time"
	MetricArtifactCount = "artifact_count"
	MetricCacheHits     = "cache_hits"
	MetricTestPassed    = "test_passed"
	MetricTestFailed    = "test_failed"
)

// transitions defines the one-directional status machine. No state is
// revisited within a single build attempt.
var transitions = map[BuildStatus][]BuildStatus{
	StatusPending:   {StatusBuilding, StatusCancelled},
	StatusBuilding:  {StatusTesting, StatusPackaging, StatusFailed, StatusCancelled},
	StatusTesting:   {StatusPackaging, StatusFailed},
	StatusPackaging: {StatusSuccess, StatusFailed},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s BuildStatus) CanTransition(next BuildStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state.
func (s BuildStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// ToolSpec describes a named tool a deployed component exposes through the
// auxiliary service host.
type ToolSpec struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	InputSchema map[string]interface{} `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
}

// DeployConfig holds the deployment parameters of a component. Type selects
// the deployment backend.
type DeployConfig struct {
	Type    string            `yaml:"type" json:"type"`
	Version string            `yaml:"version,omitempty" json:"version,omitempty"`
	Tools   []ToolSpec        `yaml:"tools,omitempty" json:"tools,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Ports   []string          `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// BuildConfig is the immutable per-component specification. It is created
// once at manifest load and never mutated afterward.
type BuildConfig struct {
	Name         string            `yaml:"name" json:"name"`
	Path         string            `yaml:"path" json:"path"`
	ConanFile    string            `yaml:"conan_file,omitempty" json:"conan_file,omitempty"`
	Dockerfile   string            `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`
	Dependencies []string          `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	BuildType    string            `yaml:"build_type,omitempty" json:"build_type,omitempty"`
	Profile      string            `yaml:"profile,omitempty" json:"profile,omitempty"`
	Options      map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	TestCommand  string            `yaml:"test_command,omitempty" json:"test_command,omitempty"`
	Deploy       *DeployConfig     `yaml:"deploy,omitempty" json:"deploy,omitempty"`
}

// BuildResult records the outcome of one build attempt for one component.
// Exactly one exists per component per orchestration run; the scheduler owns
// it exclusively until the run returns.
type BuildResult struct {
	Component string                 `json:"component"`
	Status    BuildStatus            `json:"status"`
	Duration  float64                `json:"duration"` // wall-clock seconds
	SourceDir string                 `json:"source_dir,omitempty"`
	Artifacts []string               `json:"artifacts,omitempty"`
	Logs      string                 `json:"logs,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// NewBuildResult creates a pending result for a component.
func NewBuildResult(component string) *BuildResult {
	return &BuildResult{
		Component: component,
		Status:    StatusPending,
		Metrics:   make(map[string]interface{}),
	}
}

// Advance moves the result to the next status if the transition is legal.
// Illegal transitions are ignored so a result already marked Failed cannot be
// resurrected by a later pipeline step.
func (r *BuildResult) Advance(next BuildStatus) bool {
	if !r.Status.CanTransition(next) {
		return false
	}
	r.Status = next
	return true
}

// Fail marks the result as failed with the given error text.
func (r *BuildResult) Fail(msg string) {
	r.Status = StatusFailed
	r.Error = msg
}
