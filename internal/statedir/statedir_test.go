package statedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

func TestRootHonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvStateDir, dir)
	assert.Equal(t, dir, Root())

	require.NoError(t, Ensure())
	info, err := os.Stat(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestProfilePath(t *testing.T) {
	t.Setenv(EnvStateDir, "/state")
	a := ProfilePath("avatar.cbor")
	assert.Equal(t, a, ProfilePath("avatar.cbor"))
	assert.NotEqual(t, a, ProfilePath("other.cbor"))
	assert.Equal(t, filepath.Join("/state", "profiles"), filepath.Dir(a))
	assert.Len(t, ArtifactID("avatar.cbor"), 8)
}

func TestLockIsExclusive(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "avatar.cbor")

	lock, err := Acquire(artifact, nil)
	require.NoError(t, err)

	_, err = Acquire(artifact, nil)
	assert.ErrorIs(t, err, muxerrors.ErrLocked)

	lock.Release()
	_, err = os.Stat(LockPath(artifact))
	assert.True(t, os.IsNotExist(err))

	again, err := Acquire(artifact, nil)
	require.NoError(t, err)
	again.Release()
}

func TestLockReplacesGarbage(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "avatar.cbor")
	require.NoError(t, os.WriteFile(LockPath(artifact), []byte("not a pid"), 0o644))

	lock, err := Acquire(artifact, nil)
	require.NoError(t, err)
	defer lock.Release()

	data, err := os.ReadFile(LockPath(artifact))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n")
}
