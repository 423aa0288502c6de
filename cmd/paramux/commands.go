package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/provide-io/paramux/pkg"
	"github.com/provide-io/paramux/pkg/mux/install"
	"github.com/provide-io/paramux/pkg/mux/value"
)

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	report, err := pkg.PlanManifest(manifestPath, cfg, logger)
	if err != nil {
		return err
	}

	p := report.Plan
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "slots\t%d\t(indexer bits %d)\n", p.SlotCount, p.IndexerBits())
	fmt.Fprintf(w, "optimized\t%d bool, %d wide\n", len(p.OptimizedBools), len(p.OptimizedWide))
	fmt.Fprintf(w, "left alone\t%d bool, %d wide\n", len(p.RemainderBools), len(p.RemainderWide))
	fmt.Fprintf(w, "cost\t%d -> %d\t(saved %d, overhead %d, budget %d)\n",
		p.CurrentCost, p.NewCost(), p.SavedCost(), p.OverheadCost(), cfg.Budget.MaxTotalCost)
	fmt.Fprintf(w, "values\t%d -> %d\t(budget %d)\n", p.CurrentCount, p.NewCount(), cfg.Budget.MaxValueCount)
	if report.Program != nil {
		fmt.Fprintf(w, "cycle\t%s\n", report.Program.CycleDuration())
		for _, s := range report.Program.Slots {
			fmt.Fprintf(w, "slot %d [%s]\t%s\n", s.Index, s.IndexBits, names(s.Values()))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return report.Err
}

func names(specs []value.ValueSpec) string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return strings.Join(out, ", ")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	summary, err := pkg.InstallArtifact(cmd.Context(), pkg.InstallOptions{
		ManifestPath: manifestPath,
		ArtifactPath: artifactPath,
		Config:       cfg,
		FromProfile:  fromProfile,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}
	if summary.Skip != install.SkipNone {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped: %s\n", summary.Skip)
		return nil
	}
	prog := summary.Program
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s: %d values over %d slots, channel cost %d\n",
		summary.InstallID, len(prog.Optimized()), prog.SlotCount, prog.NewCost)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	decision, err := install.ParseDecision(onAmbiguity)
	if err != nil {
		return err
	}
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	report, err := pkg.UninstallArtifact(cmd.Context(), pkg.UninstallOptions{
		ManifestPath: manifestPath,
		ArtifactPath: artifactPath,
		Decider:      install.Always(decision),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	for _, p := range report.Problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "problem: %v\n", p)
	}
	if report.Outcome == install.OutcomeNeedsHelp {
		fmt.Fprintln(cmd.ErrOrStderr(), "the artifact looks hand-edited; inspect it with `paramux status` before retrying with --on-ambiguity proceed")
	}
	if err := report.Err(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uninstalled: restored %d values, removed %d layers and %d parameters\n",
		len(report.Restored), len(report.RemovedLayers), len(report.RemovedParameters))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := pkg.ArtifactStatus(artifactPath)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "artifact\t%s\n", st.Name)
	fmt.Fprintf(w, "installed\t%v\n", st.Installed)
	if st.InstallID != "" {
		fmt.Fprintf(w, "install id\t%s\n", st.InstallID)
	}
	fmt.Fprintf(w, "markers\t%d syncing, %d lowering\n", st.SyncingMarkers, st.LoweringMarkers)
	fmt.Fprintf(w, "parameters\t%d\n", st.Parameters)
	if prog := st.Program; prog != nil {
		fmt.Fprintf(w, "slots\t%d x %s\n", prog.SlotCount, prog.StepDelay)
		fmt.Fprintf(w, "change detection\t%v\n", prog.ChangeDetection())
		for _, s := range prog.Slots {
			fmt.Fprintf(w, "slot %d [%s]\t%s\n", s.Index, s.IndexBits, names(s.Values()))
		}
	}
	return w.Flush()
}

func runVerify(cmd *cobra.Command, args []string) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	report, err := pkg.VerifyArtifactWithLogger(artifactPath, logger.Named("verify"))
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", f)
	}
	if err != nil {
		return err
	}
	if report.Installed {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d slots, %d deliveries in one cycle\n", report.Slots, report.Deliveries)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ no multiplexer installed")
	}
	return nil
}
