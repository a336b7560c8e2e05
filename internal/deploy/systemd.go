package deploy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// SystemdBackend satisfies the Backend interface for the systemd deploy
// type. Unit generation is not implemented; the backend reports this rather
// than crashing the dispatcher.
type SystemdBackend struct {
	logger zerolog.Logger
}

// NewSystemdBackend creates the systemd placeholder backend.
func NewSystemdBackend(logger zerolog.Logger) *SystemdBackend {
	return &SystemdBackend{
		logger: logger.With().Str("component", "deploy-systemd").Logger(),
	}
}

// Name returns the deploy type served by this backend.
func (b *SystemdBackend) Name() string {
	return "systemd"
}

// Deploy reports that systemd deployment is not implemented.
func (b *SystemdBackend) Deploy(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error {
	b.logger.Warn().Str("name", cfg.Name).Msg("systemd deployment requested but not implemented")
	return ErrBackendNotImplemented{Type: "systemd"}
}
