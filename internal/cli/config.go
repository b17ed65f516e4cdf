package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fleet-dashboard/internal/models"
)

const defaultDir = ".fleetctl"

// Config is ~/.fleetctl/config.yaml. Device and SealKey are generated on
// first use and kept so later runs find the stored session.
type Config struct {
	BackendURL  string        `yaml:"backend_url"`
	Role        string        `yaml:"role"`
	RefreshLead time.Duration `yaml:"refresh_lead"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Device      string        `yaml:"device,omitempty"`
	SealKey     string        `yaml:"seal_key,omitempty"`

	path string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultDir, "config.yaml")
	}
	return filepath.Join(home, defaultDir, "config.yaml")
}

// LoadConfig reads path, filling defaults for a missing file or fields.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if env := os.Getenv("FLEETCTL_BACKEND_URL"); env != "" {
		cfg.BackendURL = env
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if cfg.Role == "" {
		cfg.Role = string(models.RoleUser)
	}
	if cfg.RefreshLead <= 0 {
		cfg.RefreshLead = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	dirty := false
	if cfg.Device == "" {
		cfg.Device = uuid.NewString()
		dirty = true
	}
	if cfg.SealKey == "" {
		cfg.SealKey = uuid.NewString()
		dirty = true
	}
	if dirty {
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// StorageDir is where session records are kept, next to the config file.
func (c *Config) StorageDir() string {
	return filepath.Join(filepath.Dir(c.path), "storage")
}

func (c *Config) UserRole() (models.UserRole, error) {
	return models.ParseRole(c.Role)
}
