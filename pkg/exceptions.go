package pkg

import (
	"errors"
	"os"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

var (
	// Artifact errors 📦
	ErrVerificationFailed = errors.New("❌ artifact verification failed")
	ErrNoArtifact         = errors.New("❌ artifact not found")
)

// Exit codes shared by the paramux tools
const (
	ExitPanic           = 101
	ExitArtifactError   = 102
	ExitBudgetError     = 103
	ExitSimulationError = 104
	ExitInvalidArgs     = 105
	ExitIOError         = 106
	ExitNeedsDecision   = 107
)

// ExitCode maps an error to the exit code a tool reports for it.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, muxerrors.ErrBudgetExceeded),
		errors.Is(err, muxerrors.ErrNothingToOptimize),
		errors.Is(err, muxerrors.ErrDegenerateSlotCount),
		errors.Is(err, muxerrors.ErrSlotCountLimit):
		return ExitBudgetError
	case errors.Is(err, muxerrors.ErrUninstallAborted):
		return ExitNeedsDecision
	case errors.Is(err, ErrVerificationFailed),
		errors.Is(err, ErrNoArtifact),
		errors.Is(err, muxerrors.ErrInvalidFormat),
		errors.Is(err, muxerrors.ErrChecksumMismatch),
		errors.Is(err, muxerrors.ErrAlreadyInstalled),
		errors.Is(err, muxerrors.ErrNotInstalled):
		return ExitArtifactError
	case errors.Is(err, muxerrors.ErrLocked), errors.Is(err, os.ErrPermission):
		return ExitIOError
	default:
		return 1
	}
}
