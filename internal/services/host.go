// Package services hosts the auxiliary tool registry for deployed
// components. The capability is resolved once at startup: a host exists only
// when a listen address is configured, and every caller must tolerate its
// absence.
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Host registers named tools on behalf of deployed components and serves
// them over HTTP. A nil *Host is valid and reports the capability as
// unavailable.
type Host struct {
	addr   string
	logger zerolog.Logger

	mu    sync.RWMutex
	tools map[string]models.ToolSpec
}

// NewHost creates a tool host bound to addr. Returns nil when addr is empty,
// which is the "capability unavailable" state.
func NewHost(addr string, logger zerolog.Logger) *Host {
	if addr == "" {
		return nil
	}
	return &Host{
		addr:   addr,
		logger: logger.With().Str("component", "services").Logger(),
		tools:  make(map[string]models.ToolSpec),
	}
}

// Available reports whether the tool-hosting capability is present.
func (h *Host) Available() bool {
	return h != nil
}

// RegisterTool adds a tool to the registry. Re-registering a name replaces
// the previous definition. On a nil host the registration is dropped.
func (h *Host) RegisterTool(tool models.ToolSpec) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.tools[tool.Name] = tool
	h.mu.Unlock()
	h.logger.Info().Str("tool", tool.Name).Msg("Tool registered")
}

// ToolCount returns the number of registered tools.
func (h *Host) ToolCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tools)
}

// Router builds the HTTP surface of the host. A nil host has no surface.
func (h *Host) Router() http.Handler {
	if h == nil {
		return http.NotFoundHandler()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/tools", h.handleListTools)
	r.Get("/tools/{name}", h.handleGetTool)
	return r
}

// Serve listens until ctx is cancelled. On a nil host it returns immediately.
func (h *Host) Serve(ctx context.Context) error {
	if h == nil {
		return nil
	}
	server := &http.Server{
		Addr:         h.addr,
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info().Str("addr", h.addr).Int("tools", h.ToolCount()).Msg("Tool host listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (h *Host) handleListTools(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	list := make([]models.ToolSpec, 0, len(h.tools))
	for _, t := range h.tools {
		list = append(list, t)
	}
	h.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"tools": list})
}

func (h *Host) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	tool, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, "tool not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tool)
}
