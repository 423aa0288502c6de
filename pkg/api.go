package pkg

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/paramux/internal/statedir"
	"github.com/provide-io/paramux/pkg/config"
	"github.com/provide-io/paramux/pkg/logging"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/install"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// PlanReport is a dry run of an install.
type PlanReport struct {
	Plan    schedule.Plan
	Program *schedule.Program
	// Err is the compile error, typically a budget overshoot.
	Err error
}

// PlanManifest classifies and compiles the manifest's values without touching
// any artifact.
func PlanManifest(manifestPath string, cfg *config.Config, logger hclog.Logger) (*PlanReport, error) {
	m, err := value.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	src, _, err := m.Source()
	if err != nil {
		return nil, err
	}
	if err := schedule.CheckSlotCount(cfg.Schedule.SlotCount, cfg.Schedule.UnlockSlotCount); err != nil {
		return nil, err
	}
	plan, err := schedule.Classify(src.Candidates(), cfg.Schedule.SlotCount)
	if err != nil {
		return nil, err
	}
	report := &PlanReport{Plan: plan}
	report.Program, report.Err = schedule.Compile(plan, cfg.Budget, cfg.CompileOptions(logger))
	if report.Err == nil {
		cd, err := cfg.ChangeDetectionOptions()
		if err != nil {
			return nil, err
		}
		if cd != nil {
			report.Err = schedule.PlanChangeDetection(report.Program, *cd)
		}
	}
	return report, nil
}

type InstallOptions struct {
	ManifestPath string
	ArtifactPath string
	Config       *config.Config
	// FromProfile replays the selection saved by a previous install.
	FromProfile bool
	Logger      hclog.Logger
}

type InstallSummary struct {
	InstallID   string
	Program     *schedule.Program
	Skip        install.SkipReason
	Warnings    []error
	ProfilePath string
}

// InstallArtifact installs a multiplexer into the artifact at ArtifactPath,
// creating an empty artifact when none exists, and writes the updated sync
// flags back to the manifest.
func InstallArtifact(ctx context.Context, opts InstallOptions) (*InstallSummary, error) {
	logger := logging.OrNull(opts.Logger)
	cfg := opts.Config

	lock, err := statedir.Acquire(opts.ArtifactPath, logger)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	m, err := value.LoadManifest(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	src, static, err := m.Source()
	if err != nil {
		return nil, err
	}
	artifact, err := readOrCreate(opts.ArtifactPath, m.Name)
	if err != nil {
		return nil, err
	}

	cd, err := cfg.ChangeDetectionOptions()
	if err != nil {
		return nil, err
	}
	before := src.Candidates()
	profilePath := statedir.ProfilePath(opts.ArtifactPath)
	summary := &InstallSummary{ProfilePath: profilePath}

	var res *install.Result
	if opts.FromProfile {
		profile, err := install.LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		built, err := install.Build(ctx, install.BuildRequest{
			Profile:         profile,
			Source:          src,
			Host:            artifact.Graph,
			Budget:          cfg.Budget,
			UnlockSlotCount: cfg.Schedule.UnlockSlotCount,
			SignedFloats:    cfg.Schedule.SignedFloats,
			Smoothing:       cfg.ChangeDetection.Smoothing,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		for _, w := range built.Warnings {
			summary.Warnings = append(summary.Warnings, w)
		}
		if built.Skip != install.SkipNone {
			summary.Skip = built.Skip
			return summary, nil
		}
		res = built.Install
	} else {
		res, err = install.Install(ctx, install.Request{
			Host:            artifact.Graph,
			Source:          src,
			Budget:          cfg.Budget,
			SlotCount:       cfg.Schedule.SlotCount,
			UnlockSlotCount: cfg.Schedule.UnlockSlotCount,
			Compile:         cfg.CompileOptions(logger),
			ChangeDetection: cd,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
	}

	artifact.InstallID = res.InstallID
	if err := host.WriteFile(opts.ArtifactPath, artifact); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	m.Update(static)
	if err := value.SaveManifest(opts.ManifestPath, m); err != nil {
		return nil, err
	}

	if !opts.FromProfile {
		saveProfile(profilePath, install.ProfileFromPlan(src, before, res.Plan, res.Program.StepDelay), cd, logger)
	}

	summary.InstallID = res.InstallID
	summary.Program = res.Program
	return summary, nil
}

type UninstallOptions struct {
	ManifestPath string
	ArtifactPath string
	Decider      install.Decider
	Logger       hclog.Logger
}

// UninstallArtifact removes the multiplexer from the artifact. The artifact
// and manifest are only rewritten when the uninstall completes.
func UninstallArtifact(ctx context.Context, opts UninstallOptions) (*install.UninstallReport, error) {
	logger := logging.OrNull(opts.Logger)
	lock, err := statedir.Acquire(opts.ArtifactPath, logger)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	m, err := value.LoadManifest(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	src, static, err := m.Source()
	if err != nil {
		return nil, err
	}
	artifact, err := host.ReadFile(opts.ArtifactPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoArtifact, opts.ArtifactPath)
		}
		return nil, err
	}

	report, err := install.Uninstall(ctx, install.UninstallRequest{
		Host:    artifact.Graph,
		Source:  src,
		Decider: opts.Decider,
		Logger:  logger,
	})
	if err != nil && report == nil {
		return nil, err
	}
	if report.Outcome != install.OutcomeCompleted {
		return report, nil
	}

	artifact.InstallID = ""
	if werr := host.WriteFile(opts.ArtifactPath, artifact); werr != nil {
		return report, fmt.Errorf("failed to write artifact: %w", werr)
	}
	m.Update(static)
	if serr := value.SaveManifest(opts.ManifestPath, m); serr != nil {
		return report, serr
	}
	return report, err
}

// Status describes what an artifact currently carries.
type Status struct {
	Name            string
	InstallID       string
	Installed       bool
	SyncingMarkers  int
	LoweringMarkers int
	Parameters      int
	Program         *schedule.Program
}

func ArtifactStatus(path string) (*Status, error) {
	artifact, err := host.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoArtifact, path)
		}
		return nil, err
	}
	g := artifact.Graph
	m := schedule.DefaultMarker()
	st := &Status{
		Name:            g.Name,
		InstallID:       artifact.InstallID,
		Installed:       install.IsInstalled(g, m),
		SyncingMarkers:  install.CountMarkers(g, m, install.MarkerSyncing),
		LoweringMarkers: install.CountMarkers(g, m, install.MarkerLowering),
		Parameters:      len(g.Parameters()),
	}
	if st.Installed {
		if prog, err := host.Raise(g, m); err == nil {
			st.Program = prog
		}
	}
	return st, nil
}

func saveProfile(path string, profile install.Profile, cd *schedule.ChangeDetectionOptions, logger hclog.Logger) {
	if cd != nil {
		profile.ChangeDetection = true
		profile.Sensitivity = cd.Sensitivity
		profile.Scope = cd.Scope.String()
	}
	if err := statedir.Ensure(); err != nil {
		logger.Warn("⚠️ Could not save profile", "error", err)
		return
	}
	if err := install.SaveProfile(path, profile); err != nil {
		logger.Warn("⚠️ Could not save profile", "error", err)
		return
	}
	logger.Debug("💾 Saved profile", "path", path)
}

func readOrCreate(path, name string) (host.Artifact, error) {
	artifact, err := host.ReadFile(path)
	if err == nil {
		return artifact, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return host.Artifact{}, err
	}
	if name == "" {
		name = "artifact"
	}
	return host.Artifact{Graph: host.NewGraph(name)}, nil
}
