package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader layers configuration sources. From lowest to highest priority:
//  1. Default values
//  2. <dir>/base.yaml
//  3. <dir>/<environment>.yaml
//  4. .env (development only; never overrides variables already set)
//  5. Environment variables
type Loader struct {
	dir         string
	environment Environment
	dotEnv      string
}

// NewLoader creates a loader reading YAML files from dir
func NewLoader(dir string, environment Environment) *Loader {
	if dir == "" {
		dir = "config"
	}
	return &Loader{dir: dir, environment: environment, dotEnv: ".env"}
}

// Dir returns the directory holding the YAML files
func (l *Loader) Dir() string { return l.dir }

// Load builds and validates the configuration
func (l *Loader) Load() (*Config, error) {
	cfg := Default(l.environment)
	cfg.LoadedFrom = []string{"defaults"}

	for _, name := range []string{"base", strings.ToLower(string(l.environment))} {
		path, err := l.loadFile(name, cfg)
		if err != nil {
			return nil, err
		}
		if path != "" {
			cfg.LoadedFrom = append(cfg.LoadedFrom, path)
		}
	}

	if l.environment == Development && l.dotEnv != "" {
		if err := godotenv.Load(l.dotEnv); err == nil {
			cfg.LoadedFrom = append(cfg.LoadedFrom, l.dotEnv)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", l.dotEnv, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes <dir>/<name>.yaml or .yml into cfg; a missing file is not an error
func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.dir, name+"."+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

// EnvironmentFromEnv reads ENVIRONMENT, defaulting to development
func EnvironmentFromEnv() Environment {
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// LoadConfig loads configuration from CONFIG_DIR (default ./config)
func LoadConfig() (*Config, error) {
	return NewLoader(os.Getenv("CONFIG_DIR"), EnvironmentFromEnv()).Load()
}
