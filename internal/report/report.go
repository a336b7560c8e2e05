// Package report derives per-component metrics and renders the run summary.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Cache-reuse markers emitted by the build tool. Cache hits are a heuristic
// derived from the log text, not a backend-reported number.
const (
	markerAlreadyInstalled = "Already installed!"
	markerCacheHit         = "Cache hit"
)

// CacheHits counts cache-reuse markers in a combined backend log.
func CacheHits(log string) int {
	return strings.Count(log, markerAlreadyInstalled) + strings.Count(log, markerCacheHit)
}

// Generate renders a deterministic, human-readable summary of a result set.
// Components are ordered by name so repeated calls over the same results are
// byte-identical.
func Generate(results map[string]*models.BuildResult) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	success := 0
	failed := 0
	for _, name := range names {
		switch results[name].Status {
		case models.StatusSuccess:
			success++
		case models.StatusFailed:
			failed++
		}
	}

	var b strings.Builder
	b.WriteString("=== Build Report ===\n")
	fmt.Fprintf(&b, "Total Components: %d\n", len(names))
	fmt.Fprintf(&b, "Successful: %d\n", success)
	fmt.Fprintf(&b, "Failed: %d\n", failed)

	for _, name := range names {
		r := results[name]
		b.WriteString("\n")
		fmt.Fprintf(&b, "Component: %s\n", r.Component)
		fmt.Fprintf(&b, "  Status: %s\n", r.Status)
		fmt.Fprintf(&b, "  Duration: %.2fs\n", r.Duration)
		fmt.Fprintf(&b, "  Artifacts: %d\n", len(r.Artifacts))
		if r.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", r.Error)
		}
		if len(r.Metrics) > 0 {
			b.WriteString("  Metrics:\n")
			keys := make([]string, 0, len(r.Metrics))
			for k := range r.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "    %s: %v\n", k, r.Metrics[k])
			}
		}
	}

	return b.String()
}
