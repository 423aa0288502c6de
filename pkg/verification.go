package pkg

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/paramux/pkg/logging"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/install"
	"github.com/provide-io/paramux/pkg/mux/runtime"
	"github.com/provide-io/paramux/pkg/mux/schedule"
)

// VerifyReport lists every failed check of an artifact.
type VerifyReport struct {
	Installed  bool
	Slots      int
	Deliveries int
	Failures   []string
}

// VerifyArtifactWithLogger checks the artifact checksum, the install markers,
// and that the installed program runs one full cycle delivering every slot.
func VerifyArtifactWithLogger(path string, logger hclog.Logger) (*VerifyReport, error) {
	report := &VerifyReport{}
	fail := func(msg string, err error) {
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", msg, err))
		logger.Error(msg, "error", err)
	}

	logger.Info("Verifying artifact integrity", "path", path)
	artifact, err := host.ReadFile(path)
	if err != nil {
		fail("Checksum verification failed", err)
		return report, errors.Join(ErrVerificationFailed, err)
	}
	logger.Info("✓ Checksum valid", "install_id", artifact.InstallID)

	g := artifact.Graph
	m := schedule.DefaultMarker()
	if !install.AnyMarkers(g, m) {
		logger.Info("✓ No multiplexer installed")
		return report, nil
	}
	if !install.IsInstalled(g, m) {
		fail("Marker verification failed", fmt.Errorf("%d syncing and %d lowering markers",
			install.CountMarkers(g, m, install.MarkerSyncing), install.CountMarkers(g, m, install.MarkerLowering)))
	} else {
		report.Installed = true
		logger.Info("✓ Markers consistent")
	}

	prog, err := host.Raise(g, m)
	if err != nil {
		fail("Program recovery failed", err)
	} else {
		report.Slots = prog.SlotCount
		sim, err := runtime.NewSimulator(prog, runtime.SimOptions{Logger: logger})
		if err != nil {
			fail("Machine verification failed", err)
		} else if err := sim.RunCycle(); err != nil {
			fail("Cycle simulation failed", err)
		} else {
			report.Deliveries = len(sim.Deliveries())
			delivered := make(map[int]bool)
			for _, d := range sim.Deliveries() {
				delivered[d.Slot] = true
			}
			for i := 0; i < prog.SlotCount; i++ {
				if !delivered[i] {
					fail("Slot verification failed", fmt.Errorf("slot %d never delivered", i))
				} else {
					logger.Info("✓ Slot delivered", "index", i)
				}
			}
		}
	}

	if len(report.Failures) == 0 {
		logger.Info("✓ Artifact verification passed")
		return report, nil
	}
	logger.Error("✗ Artifact verification failed", "error_count", len(report.Failures))
	return report, ErrVerificationFailed
}

// VerifyArtifact verifies an artifact using default logger settings
func VerifyArtifact(path string) (*VerifyReport, error) {
	logger := logging.NewLogger("paramux-verify", logging.GetLogLevel(), nil)
	return VerifyArtifactWithLogger(path, logger)
}
