package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all orchestrator settings
type Config struct {
	Log    LogConfig
	Build  BuildConfig
	Deploy DeployConfig
	Aux    AuxConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// BuildConfig holds build backend configuration
type BuildConfig struct {
	ConanBinary string
	TestTimeout time.Duration
	WorkDir     string
}

// DeployConfig holds deployment backend configuration
type DeployConfig struct {
	KubeConfig    string
	KubeNamespace string
}

// AuxConfig holds auxiliary tool-host configuration. An empty listen address
// disables the capability.
type AuxConfig struct {
	ListenAddr string
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("orchestrator")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars only
	}

	// Override with environment variables
	viper.AutomaticEnv()

	return &Config{
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Build: BuildConfig{
			ConanBinary: viper.GetString("build.conan_binary"),
			TestTimeout: viper.GetDuration("build.test_timeout"),
			WorkDir:     viper.GetString("build.work_dir"),
		},
		Deploy: DeployConfig{
			KubeConfig:    viper.GetString("deploy.kube_config"),
			KubeNamespace: viper.GetString("deploy.kube_namespace"),
		},
		Aux: AuxConfig{
			ListenAddr: viper.GetString("aux.listen_addr"),
		},
	}, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("build.conan_binary", "conan")
	viper.SetDefault("build.test_timeout", 10*time.Minute)
	viper.SetDefault("build.work_dir", ".orchestrator/sources")

	viper.SetDefault("deploy.kube_config", "")
	viper.SetDefault("deploy.kube_namespace", "default")

	viper.SetDefault("aux.listen_addr", "")
}
