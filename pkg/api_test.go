package pkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/paramux/pkg/config"
	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/install"
	"github.com/provide-io/paramux/pkg/mux/value"
)

const manifest = `name = "avatar"

[[value]]
name = "Hat"
kind = "bool"
synced = true

[[value]]
name = "Glasses"
kind = "bool"
synced = true

[[value]]
name = "Scarf"
kind = "bool"
synced = true

[[value]]
name = "Boots"
kind = "bool"
synced = true

[[value]]
name = "Hue"
kind = "float"
synced = true
live = 0.5

[[value]]
name = "Brightness"
kind = "float"
synced = true
`

func workspace(t *testing.T) (manifestPath, artifactPath string, cfg *config.Config) {
	t.Helper()
	t.Setenv("PARAMUX_STATE_DIR", t.TempDir())
	dir := t.TempDir()
	manifestPath = filepath.Join(dir, "values.toml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))
	c := config.Default()
	c.Budget.MaxTotalCost = 16
	return manifestPath, filepath.Join(dir, "avatar.cbor"), &c
}

func syncedFlags(t *testing.T, path string) []bool {
	t.Helper()
	m, err := value.LoadManifest(path)
	require.NoError(t, err)
	var out []bool
	for _, v := range m.Values {
		out = append(out, v.Synced)
	}
	return out
}

func TestPlanManifest(t *testing.T) {
	manifestPath, _, cfg := workspace(t)

	report, err := PlanManifest(manifestPath, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, report.Err)
	assert.Equal(t, 20, report.Plan.CurrentCost)
	assert.Equal(t, 11, report.Plan.NewCost())

	cfg.Budget.MaxTotalCost = 10
	report, err = PlanManifest(manifestPath, cfg, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Err, muxerrors.ErrBudgetExceeded)
}

func TestInstallVerifyUninstall(t *testing.T) {
	manifestPath, artifactPath, cfg := workspace(t)
	cfg.ChangeDetection.Enabled = true
	ctx := context.Background()

	summary, err := InstallArtifact(ctx, InstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath, Config: cfg})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.InstallID)
	assert.Equal(t, []bool{false, false, false, false, false, false}, syncedFlags(t, manifestPath))
	_, err = os.Stat(summary.ProfilePath)
	require.NoError(t, err)

	st, err := ArtifactStatus(artifactPath)
	require.NoError(t, err)
	assert.True(t, st.Installed)
	assert.Equal(t, summary.InstallID, st.InstallID)
	require.NotNil(t, st.Program)
	assert.Equal(t, 2, st.Program.SlotCount)
	assert.True(t, st.Program.ChangeDetection())

	vr, err := VerifyArtifactWithLogger(artifactPath, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.True(t, vr.Installed)
	assert.Empty(t, vr.Failures)
	assert.Positive(t, vr.Deliveries)

	_, err = InstallArtifact(ctx, InstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath, Config: cfg})
	assert.ErrorIs(t, err, muxerrors.ErrAlreadyInstalled)

	report, err := UninstallArtifact(ctx, UninstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath})
	require.NoError(t, err)
	assert.Equal(t, install.OutcomeCompleted, report.Outcome)
	assert.Equal(t, []bool{true, true, true, true, true, true}, syncedFlags(t, manifestPath))

	st, err = ArtifactStatus(artifactPath)
	require.NoError(t, err)
	assert.False(t, st.Installed)
	assert.Empty(t, st.InstallID)
	assert.Zero(t, st.Parameters)

	// replay the saved selection
	summary, err = InstallArtifact(ctx, InstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath, Config: cfg, FromProfile: true})
	require.NoError(t, err)
	assert.Equal(t, install.SkipNone, summary.Skip)
	require.NotNil(t, summary.Program)
	assert.True(t, summary.Program.ChangeDetection())
}

func TestUninstallAbortLeavesFilesAlone(t *testing.T) {
	manifestPath, artifactPath, cfg := workspace(t)
	ctx := context.Background()
	_, err := InstallArtifact(ctx, InstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath, Config: cfg})
	require.NoError(t, err)

	a, err := host.ReadFile(artifactPath)
	require.NoError(t, err)
	require.NoError(t, a.Graph.AddLayer(host.Layer{Name: "Extra"}))
	require.NoError(t, a.Graph.AddMarker("Extra", "PMux_Syncing"))
	require.NoError(t, host.WriteFile(artifactPath, a))
	before, err := os.ReadFile(artifactPath)
	require.NoError(t, err)

	report, err := UninstallArtifact(ctx, UninstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath})
	require.NoError(t, err)
	assert.Equal(t, install.OutcomeAborted, report.Outcome)

	after, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []bool{false, false, false, false, false, false}, syncedFlags(t, manifestPath))

	report, err = UninstallArtifact(ctx, UninstallOptions{
		ManifestPath: manifestPath,
		ArtifactPath: artifactPath,
		Decider:      install.Always(install.DecisionProceed),
	})
	require.NoError(t, err)
	assert.Equal(t, install.OutcomeCompleted, report.Outcome)

	vr, err := VerifyArtifactWithLogger(artifactPath, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.False(t, vr.Installed)
}

func TestMissingArtifact(t *testing.T) {
	manifestPath, artifactPath, _ := workspace(t)

	_, err := ArtifactStatus(artifactPath)
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = UninstallArtifact(context.Background(), UninstallOptions{ManifestPath: manifestPath, ArtifactPath: artifactPath})
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = VerifyArtifactWithLogger(artifactPath, hclog.NewNullLogger())
	assert.ErrorIs(t, err, ErrVerificationFailed)
}
