package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/javelin-dev/javelin/internal/ssh"
)

// Config holds every tunable the deployment pipeline reads. Values merge in
// precedence order: flags over environment over file over defaults.
type Config struct {
	Defaults DefaultsConfig `yaml:"defaults"`
	SSH      SSHConfig      `yaml:"ssh"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

type DefaultsConfig struct {
	Port           int    `yaml:"port"`
	Branch         string `yaml:"branch"`
	MonitorSeconds int    `yaml:"monitor_seconds"`
}

type SSHConfig struct {
	KeyPath   string `yaml:"key_path"`
	ProbeHost string `yaml:"probe_host"`
}

type ArtifactConfig struct {
	Path string `yaml:"path"`
	Ext  string `yaml:"ext"`
}

type HealthConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

// TimeoutsConfig carries per-phase deadlines in seconds.
type TimeoutsConfig struct {
	ToolProbeSeconds       int `yaml:"tool_probe_seconds"`
	AuthProbeSeconds       int `yaml:"auth_probe_seconds"`
	CloneSeconds           int `yaml:"clone_seconds"`
	ArtifactProbeSeconds   int `yaml:"artifact_probe_seconds"`
	ReclaimSeconds         int `yaml:"reclaim_seconds"`
	LaunchGraceSeconds     int `yaml:"launch_grace_seconds"`
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`
	TeardownSeconds        int `yaml:"teardown_seconds"`
	HealthHTTPSeconds      int `yaml:"health_http_seconds"`
	HealthTCPSeconds       int `yaml:"health_tcp_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Port:           9000,
			Branch:         "main",
			MonitorSeconds: 300,
		},
		SSH: SSHConfig{
			KeyPath:   ssh.DefaultKeyPath(),
			ProbeHost: "git@github.com",
		},
		Artifact: ArtifactConfig{
			Path: filepath.Join("build", "libs", "project.jar"),
			Ext:  ".jar",
		},
		Health: HealthConfig{
			Path: "/health",
		},
		Log: LogConfig{
			File: "deployment.log",
		},
		Timeouts: TimeoutsConfig{
			ToolProbeSeconds:       10,
			AuthProbeSeconds:       10,
			CloneSeconds:           300,
			ArtifactProbeSeconds:   30,
			ReclaimSeconds:         10,
			LaunchGraceSeconds:     5,
			MonitorIntervalSeconds: 30,
			TeardownSeconds:        10,
			HealthHTTPSeconds:      10,
			HealthTCPSeconds:       5,
		},
	}
}

func defaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "javelin", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "javelin", "config.yaml")
	}
	return filepath.Join(home, ".config", "javelin", "config.yaml")
}

// Load reads configuration from path, falling back to the default location
// when path is empty. A missing file at the default location is not an
// error; an explicitly named file must exist. Environment overrides apply
// after the file is merged.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("JAVELIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.Port = port
		}
	}
	if v := os.Getenv("JAVELIN_SSH_KEY"); v != "" {
		cfg.SSH.KeyPath = v
	}
	if v := os.Getenv("JAVELIN_PROBE_HOST"); v != "" {
		cfg.SSH.ProbeHost = v
	}
	if v := os.Getenv("JAVELIN_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
