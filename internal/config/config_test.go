package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "~/maas/data/region.db", cfg.DBPath)
	assert.Equal(t, ":5240", cfg.ListenAddr)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "http://127.0.0.1:5240", cfg.MAASURL)
	assert.Equal(t, []string{"templates"}, cfg.TemplateDirs)
	assert.Equal(t, "~/maas/etc/drivers.yaml", cfg.DriversPath)
	assert.True(t, cfg.CurtinWebhookEvents)
	assert.True(t, cfg.CurtinCustomStorage)
	assert.False(t, cfg.Debug)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":5240", cfg.ListenAddr)
}

func TestLoadEmptyPathKeepsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5240", cfg.MAASURL)
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.yaml")
	body := `
listen_addr: ":8080"
maas_url: "http://10.0.0.1:5240"
template_dirs:
  - /etc/maas/preseeds
  - templates
curtin_webhook_events: false
debug: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://10.0.0.1:5240", cfg.MAASURL)
	assert.Equal(t, []string{"/etc/maas/preseeds", "templates"}, cfg.TemplateDirs)
	assert.False(t, cfg.CurtinWebhookEvents)
	assert.True(t, cfg.Debug)
	// Untouched keys keep their defaults.
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	cfg := NewConfig()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "maas/data/region.db"), cfg.expandPath("~/maas/data/region.db"))
	assert.Equal(t, "/var/lib/maas/region.db", cfg.expandPath("/var/lib/maas/region.db"))
}

func TestDriverDBPath(t *testing.T) {
	cfg := NewConfig()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "maas/etc/drivers.yaml"), cfg.DriverDBPath())

	cfg.DriversPath = ""
	assert.Equal(t, "", cfg.DriverDBPath())
}
