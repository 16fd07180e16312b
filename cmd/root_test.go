package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/config"
	"github.com/JakeFAU/proxyharvest/internal/export"
	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/pipeline"
)

type fakeServices struct {
	cfg       config.Config
	runs      int
	exports   int
	closes    int
	exportErr error
}

func (f *fakeServices) Run(context.Context) pipeline.Summary {
	f.runs++
	return pipeline.Summary{
		RunID: "run-42",
		Phases: []pipeline.PhaseSummary{
			{Name: pipeline.PhaseGitHub, Enabled: f.cfg.Harvest.RunGitHub, Saved: harvest.SaveSummary{Saved: 3}},
			{Name: pipeline.PhasePlatforms, Enabled: f.cfg.Harvest.RunPlatforms},
		},
	}
}

func (f *fakeServices) Export(context.Context) (export.Report, error) {
	f.exports++
	return export.Report{Total: 2, GitHub: 1, Platform: 1, Files: []string{"file:///tmp/sub.txt"}}, f.exportErr
}

func (f *fakeServices) ExportPaths(time.Time) []string {
	return []string{"data/sub.txt", "data/sub_base64.txt"}
}

func (f *fakeServices) Close() { f.closes++ }

// withFakeServices swaps the service factory for the duration of a test.
func withFakeServices(t *testing.T, fake *fakeServices) {
	t.Helper()
	original := newServices
	newServices = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Services, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newServices = original })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := executeCommand(context.Background(), root)
	return out.String(), err
}

func TestRunCommandPrintsSummary(t *testing.T) {
	fake := &fakeServices{}
	withFakeServices(t, fake)

	out, err := execute(t, "run", "--skip-platforms", "--workers", "3")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.runs)
	assert.Equal(t, 1, fake.closes)
	assert.True(t, fake.cfg.Harvest.RunGitHub)
	assert.False(t, fake.cfg.Harvest.RunPlatforms)
	assert.Equal(t, 3, fake.cfg.Workers())
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "disabled")
}

func TestExportDryRunListsPaths(t *testing.T) {
	fake := &fakeServices{}
	withFakeServices(t, fake)

	out, err := execute(t, "export", "--dry-run")
	require.NoError(t, err)

	assert.Equal(t, 0, fake.exports)
	assert.Equal(t, "data/sub.txt\ndata/sub_base64.txt\n", out)
}

func TestExportReportsCounts(t *testing.T) {
	fake := &fakeServices{}
	withFakeServices(t, fake)

	out, err := execute(t, "export", "--limit", "10")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.exports)
	assert.Equal(t, 10, fake.cfg.Export.Limit)
	assert.Contains(t, out, "exported 2 nodes (1 github, 1 platform) to 1 files")
}

func TestExportFailureIsReturned(t *testing.T) {
	fake := &fakeServices{exportErr: errors.New("disk full")}
	withFakeServices(t, fake)

	_, err := execute(t, "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, fake.closes, "services must be closed when the command fails")
}

func TestKeywordsSkipsServices(t *testing.T) {
	original := newServices
	newServices = func(context.Context, config.Config, *zap.Logger) (Services, error) {
		return nil, errors.New("services must not be built")
	}
	t.Cleanup(func() { newServices = original })

	out, err := execute(t, "keywords", "--source", "github", "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "free v2ray\nfree proxy\n", out)

	_, err = execute(t, "keywords", "--source", "usenet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestServiceInitFailureAbortsCommand(t *testing.T) {
	original := newServices
	newServices = func(context.Context, config.Config, *zap.Logger) (Services, error) {
		return nil, errors.New("connect postgres: refused")
	}
	t.Cleanup(func() { newServices = original })

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to initialize application services"))
}
