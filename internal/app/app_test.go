package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/collector/platforms"
	"github.com/JakeFAU/proxyharvest/internal/config"
	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/storage/memory"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Export.Path = filepath.Join(dir, "sub.txt")
	cfg.Export.Base64Path = filepath.Join(dir, "sub_base64.txt")
	return cfg
}

func TestNewWithMemoryStore(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.RunID())
	assert.IsType(t, &memory.NodeStore{}, a.Store())
	require.NotNil(t, a.Exporter())
	require.NotNil(t, a.Runner())
	assert.NotNil(t, a.Logger())
}

func TestRunWithPhasesDisabledWritesEmptyExport(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Harvest.RunGitHub = false
	cfg.Harvest.RunPlatforms = false

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	summary := a.Runner().Run(context.Background())
	assert.Equal(t, a.RunID(), summary.RunID)
	assert.Equal(t, 0, summary.Export.Total)
	assert.Len(t, summary.Export.Files, 9)

	data, err := os.ReadFile(cfg.Export.Path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExporterSeesSavedNodes(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	tx, err := a.Store().Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Insert(context.Background(), &harvest.ProxyNode{
		Protocol: "ss", Link: "ss://x", UniqueHash: "h1", Source: "org/repo",
	}))
	require.NoError(t, tx.Commit(context.Background()))

	report, err := a.Exporter().Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.GitHub)

	data, err := os.ReadFile(cfg.Export.Path)
	require.NoError(t, err)
	assert.Equal(t, "ss://x\n", string(data))
}

func TestPlatformSearchersDependOnKeys(t *testing.T) {
	cfg := memoryConfig(t)
	a := &App{cfg: cfg, logger: zap.NewNop()}

	names := func() []string {
		var out []string
		for _, s := range a.platformSearchers(nil, nil) {
			out = append(out, s.Name())
		}
		return out
	}
	assert.Equal(t, []string{platforms.DDGName}, names())

	a.cfg.Platforms.HunterAPIKey = "h"
	a.cfg.Platforms.QuakeAPIKey = "q"
	assert.Equal(t, []string{platforms.HunterName, platforms.QuakeName, platforms.DDGName}, names())
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := openStore(context.Background(), config.DBConfig{Driver: "sqlite"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown db driver")
}
