package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lyubomir-popov/maas/internal/datastore"
)

// Config holds all configuration for the region service.
type Config struct {
	DBPath       string   `yaml:"db_path"`
	ListenAddr   string   `yaml:"listen_addr"`
	NATSURL      string   `yaml:"nats_url"`
	MAASURL      string   `yaml:"maas_url"` // region base URL handed to machines
	TemplateDirs []string `yaml:"template_dirs"`
	DriversPath  string   `yaml:"drivers_path"` // third-party driver database
	Debug        bool     `yaml:"debug"`

	// Capabilities of the curtin shipped in the install images.
	CurtinWebhookEvents bool `yaml:"curtin_webhook_events"`
	CurtinCustomStorage bool `yaml:"curtin_custom_storage"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		DBPath:              "~/maas/data/region.db",
		ListenAddr:          ":5240",
		NATSURL:             "nats://127.0.0.1:4222",
		MAASURL:             "http://127.0.0.1:5240",
		TemplateDirs:        []string{"templates"},
		DriversPath:         "~/maas/etc/drivers.yaml",
		CurtinWebhookEvents: true,
		CurtinCustomStorage: true,
	}
}

// Load reads a YAML config file over the defaults. A missing path is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// InitializeDatabase opens the datastore, creating the directory and
// running migrations.
func (c *Config) InitializeDatabase() (*datastore.Datastore, error) {
	dbPath := c.expandPath(c.DBPath)

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	ds, err := datastore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	OptimizeDatabaseConnection(ds.DB)
	if err := ApplyPragmaOptimizations(ds.DB); err != nil {
		return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
	}
	return ds, nil
}

// DriverDBPath returns the driver database path with ~ expanded, or ""
// when driver detection is disabled.
func (c *Config) DriverDBPath() string {
	if c.DriversPath == "" {
		return ""
	}
	return c.expandPath(c.DriversPath)
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}
	return filepath.Join(homeDir, path[2:])
}
