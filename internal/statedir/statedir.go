// Package statedir manages paramux's per-user state: saved profiles and
// artifact locks.
package statedir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const EnvStateDir = "PARAMUX_STATE_DIR"

// Root returns the state directory.
func Root() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir
	}

	switch runtime.GOOS {
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Application Support", "paramux")
		}
	case "linux":
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			return filepath.Join(xdg, "paramux")
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".local", "state", "paramux")
		}
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "paramux", "state")
		}
	}

	return filepath.Join(os.TempDir(), "paramux", "state")
}

// ArtifactID is a short stable identifier for an artifact path.
func ArtifactID(artifactPath string) string {
	abs, err := filepath.Abs(artifactPath)
	if err != nil {
		abs = artifactPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:8]
}

// ProfilePath is where the selection for artifactPath is saved.
func ProfilePath(artifactPath string) string {
	return filepath.Join(Root(), "profiles", ArtifactID(artifactPath)+".toml")
}

// Ensure creates the state directory layout.
func Ensure() error {
	for _, dir := range []string{Root(), filepath.Join(Root(), "profiles")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory %s: %w", dir, err)
		}
	}
	return nil
}
