package graph

import (
	"fmt"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// ConfigError reports malformed or inconsistent component configuration. It
// is fatal; the scheduler is never started on an invalid graph.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid component configuration: " + e.Reason
}

// Graph maps component names to their configuration and preserves the
// declaration order of the manifest.
type Graph struct {
	byName map[string]*models.BuildConfig
	order  []string
}

// Load validates the component list and builds the graph. It fails with a
// ConfigError on duplicate names, references to unknown components, and
// dependency cycles.
func Load(components []models.BuildConfig) (*Graph, error) {
	if len(components) == 0 {
		return nil, &ConfigError{Reason: "no components declared"}
	}

	g := &Graph{
		byName: make(map[string]*models.BuildConfig, len(components)),
		order:  make([]string, 0, len(components)),
	}

	for i := range components {
		c := &components[i]
		if c.Name == "" {
			return nil, &ConfigError{Reason: "component with empty name"}
		}
		if _, exists := g.byName[c.Name]; exists {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate component name %q", c.Name)}
		}
		g.byName[c.Name] = c
		g.order = append(g.order, c.Name)
	}

	for _, name := range g.order {
		for _, dep := range g.byName[name].Dependencies {
			if _, ok := g.byName[dep]; !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("component %q depends on unknown component %q", name, dep)}
			}
		}
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkCycles runs a DFS with an in-progress set so the scheduler never has
// to guard against infinite recursion.
func (g *Graph) checkCycles() error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(g.order))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return &ConfigError{Reason: fmt.Sprintf("dependency cycle detected involving %q", name)}
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range g.byName[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the configuration for a component by name.
func (g *Graph) Lookup(name string) (*models.BuildConfig, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// Names returns all component names in declaration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of components in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}
