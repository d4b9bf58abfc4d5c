package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smaligraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path: /data/graph.db
class_denylist:
  - Lkotlin/
  - Landroidx/
source_denylist:
  - com.vendor.bloat
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/graph.db", cfg.DatabasePath)
	// unset fields keep their defaults
	assert.Equal(t, Default().DisassemblyRoot, cfg.DisassemblyRoot)
	assert.Equal(t, Default().IngestWorkers, cfg.IngestWorkers)

	assert.True(t, cfg.Denied("Lkotlin/jvm/internal/X;"))
	assert.False(t, cfg.Denied("Lcom/example/Main;"))
	assert.True(t, cfg.SkipSource("com.vendor.bloat"))
	assert.False(t, cfg.SkipSource("com.example.app"))
	assert.Equal(t, filepath.Join("disassembly", "app1"), cfg.SourceDir("app1"))
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smaligraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_path: [\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
