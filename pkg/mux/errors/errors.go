package errors

import (
	"errors"
	"fmt"
)

var (
	// Plan errors 🧮
	ErrBudgetExceeded      = errors.New("❌ channel budget exceeded")
	ErrDegenerateSlotCount = errors.New("❌ slot count must be at least 2")
	ErrSlotCountLimit      = errors.New("❌ slot count above allowed maximum")
	ErrInvalidStepDelay    = errors.New("❌ step delay must be positive")
	ErrInvalidSensitivity  = errors.New("❌ change sensitivity must be positive")
	ErrUnknownKind         = errors.New("❌ unknown value kind")
	ErrDuplicateValue      = errors.New("❌ duplicate value")
	ErrNothingToOptimize   = errors.New("❌ no values to optimize")

	// Runtime reconciliation errors 🔁
	ErrClassCountMismatch = errors.New("⚠️ class count mismatch against saved profile")

	// Installation errors 🧷
	ErrAlreadyInstalled      = errors.New("❌ multiplexer already installed")
	ErrNotInstalled          = errors.New("❌ multiplexer not installed")
	ErrStructuralAmbiguity   = errors.New("❌ ambiguous generated structure")
	ErrInsufficientArtifacts = errors.New("❌ insufficient generated artifacts")
	ErrUninstallAborted      = errors.New("❌ uninstall aborted")
	ErrLocked                = errors.New("❌ artifact locked by another process")

	// Artifact errors 📦
	ErrInvalidFormat    = errors.New("❌ invalid artifact format")
	ErrChecksumMismatch = errors.New("❌ artifact checksum mismatch")
	ErrUnknownTransfer  = errors.New("❌ unknown transfer")
	ErrUnknownParameter = errors.New("❌ unknown parameter")
	ErrUnknownState     = errors.New("❌ unknown state")
)

// BudgetExceededError reports by how much a plan overshoots the channel budget.
// It matches ErrBudgetExceeded with errors.Is.
type BudgetExceededError struct {
	NewCost     int
	MaxCost     int
	ExcessCost  int
	NewCount    int
	MaxCount    int
	ExcessCount int
}

func (e *BudgetExceededError) Error() string {
	switch {
	case e.ExcessCost > 0 && e.ExcessCount > 0:
		return fmt.Sprintf("%s: cost %d/%d (+%d), count %d/%d (+%d)",
			ErrBudgetExceeded, e.NewCost, e.MaxCost, e.ExcessCost, e.NewCount, e.MaxCount, e.ExcessCount)
	case e.ExcessCount > 0:
		return fmt.Sprintf("%s: count %d/%d (+%d)", ErrBudgetExceeded, e.NewCount, e.MaxCount, e.ExcessCount)
	default:
		return fmt.Sprintf("%s: cost %d/%d (+%d)", ErrBudgetExceeded, e.NewCost, e.MaxCost, e.ExcessCost)
	}
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// ClassCountMismatch records how a saved selection drifted from the live values.
type ClassCountMismatch struct {
	Class    string
	Expected int
	Found    int
	Kept     int
}

func (m ClassCountMismatch) Error() string {
	return fmt.Sprintf("%s: %s expected %d, found %d, keeping %d",
		ErrClassCountMismatch, m.Class, m.Expected, m.Found, m.Kept)
}

func (m ClassCountMismatch) Is(target error) bool {
	return target == ErrClassCountMismatch
}
