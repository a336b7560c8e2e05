package deploy

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// DockerBackend builds an image from the component's dockerfile and runs a
// container with the declared environment and ports.
type DockerBackend struct {
	client *client.Client
	logger zerolog.Logger
}

// NewDockerBackend creates a docker deployment backend from the environment.
func NewDockerBackend(logger zerolog.Logger) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerBackend{
		client: cli,
		logger: logger.With().Str("component", "deploy-docker").Logger(),
	}, nil
}

// Name returns the deploy type served by this backend.
func (b *DockerBackend) Name() string {
	return "docker"
}

// Deploy builds the component image and starts a container for it. An
// existing container with the same name is replaced.
func (b *DockerBackend) Deploy(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error {
	if _, err := b.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	if cfg.Dockerfile == "" {
		return fmt.Errorf("component %s declares docker deployment without a dockerfile", cfg.Name)
	}

	version := cfg.Deploy.Version
	if version == "" {
		version = "latest"
	}
	imageTag := fmt.Sprintf("%s:%s", strings.ToLower(cfg.Name), version)

	dockerfilePath := cfg.Dockerfile
	if !filepath.IsAbs(dockerfilePath) {
		dockerfilePath = filepath.Join(cfg.Path, cfg.Dockerfile)
	}
	contextDir := filepath.Dir(dockerfilePath)
	dockerfileName := filepath.Base(dockerfilePath)

	b.logger.Info().
		Str("name", cfg.Name).
		Str("image", imageTag).
		Str("dockerfile", dockerfilePath).
		Msg("Building deployment image")

	buildContext, err := b.createBuildContext(contextDir)
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildContext.Close()

	buildResponse, err := b.client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{imageTag},
		Dockerfile:  dockerfileName,
		Remove:      true,
		ForceRemove: true,
		Labels: map[string]string{
			"orchestrator.component": cfg.Name,
			"orchestrator.version":   version,
		},
	})
	if err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}
	defer buildResponse.Body.Close()

	if err := b.streamBuildOutput(ctx, buildResponse.Body); err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}

	return b.runContainer(ctx, cfg, imageTag)
}

func (b *DockerBackend) runContainer(ctx context.Context, cfg *models.BuildConfig, imageTag string) error {
	containerName := strings.ToLower(cfg.Name)

	// Replace a previous deployment of the same component.
	if err := b.client.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true}); err == nil {
		b.logger.Info().Str("container", containerName).Msg("Removed previous container")
	}

	env := make([]string, 0, len(cfg.Deploy.Env))
	for k, v := range cfg.Deploy.Env {
		env = append(env, k+"="+v)
	}

	exposed, bindings, err := nat.ParsePortSpecs(cfg.Deploy.Ports)
	if err != nil {
		return fmt.Errorf("parse port specs: %w", err)
	}

	created, err := b.client.ContainerCreate(ctx,
		&container.Config{
			Image:        imageTag,
			Env:          env,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			PortBindings:  bindings,
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, containerName)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	if err := b.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	b.logger.Info().
		Str("name", cfg.Name).
		Str("container", containerName).
		Str("image", imageTag).
		Msg("Container started")

	return nil
}

// createBuildContext creates a tar archive of the docker build context.
func (b *DockerBackend) createBuildContext(contextDir string) (io.ReadCloser, error) {
	excludePatterns := map[string]bool{
		".git":         true,
		"node_modules": true,
		"vendor":       true,
		".env":         true,
	}

	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	defer tw.Close()

	err := filepath.Walk(contextDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(contextDir, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		for pattern := range excludePatterns {
			if strings.Contains(relPath, pattern) {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !fi.IsDir() {
			data, err := os.Open(file)
			if err != nil {
				return err
			}
			defer data.Close()
			if _, err := io.Copy(tw, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tar build context: %w", err)
	}

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// streamBuildOutput decodes the docker build JSON stream, logging progress
// and surfacing build errors.
func (b *DockerBackend) streamBuildOutput(ctx context.Context, reader io.Reader) error {
	decoder := json.NewDecoder(reader)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg struct {
			Stream      string `json:"stream"`
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("build error: %s", msg.ErrorDetail.Message)
		}
		if msg.Stream != "" {
			b.logger.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("Image build output")
		}
	}
}

// Close closes the underlying docker client.
func (b *DockerBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
