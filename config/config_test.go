package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "i10-target.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesPortsAndDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[global]
log_level = debug

[port "primary"]
address = 0.0.0.0:4420
queue_depth = 64
num_cpus = 4

[port "secondary"]
address = 0.0.0.0:4421
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Ports, 2)

	assert.Equal(t, "primary", cfg.Ports[0].Name)
	assert.Equal(t, "0.0.0.0:4420", cfg.Ports[0].Address)
	assert.Equal(t, 64, cfg.Ports[0].QueueDepth)
	assert.Equal(t, 4, cfg.Ports[0].NumCPUs)

	assert.Equal(t, "secondary", cfg.Ports[1].Name)
	assert.Equal(t, defaultQueueDepth, cfg.Ports[1].QueueDepth)
	assert.Equal(t, defaultInlineDataSize, cfg.Ports[1].InlineDataSize)
}

func TestLoadRequiresAtLeastOnePort(t *testing.T) {
	path := writeTempConfig(t, `
[global]
log_level = info
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsPortMissingAddress(t *testing.T) {
	path := writeTempConfig(t, `
[port "broken"]
queue_depth = 8
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.ini")
	assert.Error(t, err)
}
