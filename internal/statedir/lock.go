package statedir

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

// Lock is an exclusive PID lock file next to an artifact.
type Lock struct {
	path   string
	logger hclog.Logger
}

// LockPath is the lock file guarding artifactPath.
func LockPath(artifactPath string) string {
	return artifactPath + ".lock"
}

// IsProcessRunning checks if a process with given PID is still running
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Acquire takes the lock for artifactPath. A lock left by a dead process or
// holding garbage is removed first; a live holder yields ErrLocked.
func Acquire(artifactPath string, logger hclog.Logger) (*Lock, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	lockPath := LockPath(artifactPath)

	if data, err := os.ReadFile(lockPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err != nil {
			logger.Info("🧹 Removing invalid lock file (couldn't parse PID)", "path", lockPath)
			os.Remove(lockPath)
		} else if !IsProcessRunning(pid) {
			logger.Info("🧹 Removing stale lock from dead process", "pid", pid)
			os.Remove(lockPath)
		} else {
			logger.Debug("🔒 Lock held by active process", "pid", pid)
			return nil, fmt.Errorf("%w: %s held by pid %d", muxerrors.ErrLocked, artifactPath, pid)
		}
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", muxerrors.ErrLocked, artifactPath)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	logger.Debug("🔒 Acquired artifact lock", "path", lockPath)
	return &Lock{path: lockPath, logger: logger}, nil
}

func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil {
		l.logger.Debug("⚠️ Failed to remove lock file", "error", err)
		return
	}
	l.logger.Debug("🔓 Released artifact lock")
}
