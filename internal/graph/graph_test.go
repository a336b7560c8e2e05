package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

func TestLoad_DeclarationOrder(t *testing.T) {
	g, err := Load([]models.BuildConfig{
		{Name: "web", Dependencies: []string{"core"}},
		{Name: "core"},
		{Name: "tools", Dependencies: []string{"core", "web"}},
	})
	if err != nil {
		t.Fatalf("Failed to load graph: %v", err)
	}

	names := g.Names()
	expected := []string{"web", "core", "tools"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d names, got %d", len(expected), len(names))
	}
	for i, n := range expected {
		if names[i] != n {
			t.Errorf("Expected names[%d]=%s, got %s", i, n, names[i])
		}
	}

	if g.Len() != 3 {
		t.Errorf("Expected Len 3, got %d", g.Len())
	}

	core, ok := g.Lookup("core")
	if !ok || core.Name != "core" {
		t.Error("Expected Lookup(core) to return the core component")
	}
	if _, ok := g.Lookup("missing"); ok {
		t.Error("Expected Lookup(missing) to report absence")
	}
}

func TestLoad_DuplicateName(t *testing.T) {
	_, err := Load([]models.BuildConfig{
		{Name: "core"},
		{Name: "core"},
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "duplicate") {
		t.Errorf("Expected duplicate-name error, got %q", cfgErr.Error())
	}
}

func TestLoad_UnknownDependency(t *testing.T) {
	_, err := Load([]models.BuildConfig{
		{Name: "web", Dependencies: []string{"nope"}},
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "unknown component") {
		t.Errorf("Expected unknown-dependency error, got %q", cfgErr.Error())
	}
}

func TestLoad_Cycle(t *testing.T) {
	_, err := Load([]models.BuildConfig{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"c"}},
		{Name: "c", Dependencies: []string{"a"}},
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError for cycle, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "cycle") {
		t.Errorf("Expected cycle error, got %q", cfgErr.Error())
	}
}

func TestLoad_SelfCycle(t *testing.T) {
	_, err := Load([]models.BuildConfig{
		{Name: "a", Dependencies: []string{"a"}},
	})
	if err == nil {
		t.Fatal("Expected error for self-dependency")
	}
}

func TestLoad_Empty(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Fatal("Expected error for empty component list")
	}
}
