package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/paramux/pkg"
	"github.com/provide-io/paramux/pkg/config"
	"github.com/provide-io/paramux/pkg/logging"
)

const version = "0.1.0"

var (
	configPath   string
	logLevel     string
	manifestPath string
	artifactPath string
	versionFlag  bool

	slotCount       int
	stepDelay       time.Duration
	unlockSlots     bool
	signedFloats    bool
	changeDetection bool
	sensitivity     float64
	scope           string
	budgetCost      int
	budgetCount     int

	fromProfile bool
	onAmbiguity string

	rootCmd *cobra.Command
)

func getBuildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func printVersion() {
	fmt.Printf("paramux %s\n", version)
	fmt.Printf("Built: %s\n", getBuildTimestamp())
}

func init() {
	rootCmd = &cobra.Command{
		Use:           "paramux",
		Short:         "Multiplex replicated values onto few synchronized slots",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				printVersion()
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (defaults to ~/.config/paramux/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what an install would multiplex and what it would cost",
		RunE:  runPlan,
	}
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install a multiplexer into an artifact",
		RunE:  runInstall,
	}
	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove an installed multiplexer and restore sync flags",
		RunE:  runUninstall,
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether an artifact carries a multiplexer",
		RunE:  runStatus,
	}
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an artifact's checksum, markers and schedule",
		RunE:  runVerify,
	}

	for _, c := range []*cobra.Command{planCmd, installCmd, uninstallCmd} {
		c.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to the value manifest (required)")
		mustRequire(c, "manifest")
	}
	for _, c := range []*cobra.Command{installCmd, uninstallCmd, statusCmd, verifyCmd} {
		c.Flags().StringVarP(&artifactPath, "artifact", "a", "", "Path to the artifact (.cbor or .json, required)")
		mustRequire(c, "artifact")
	}
	for _, c := range []*cobra.Command{planCmd, installCmd} {
		f := c.Flags()
		f.IntVar(&slotCount, "slots", 0, "Number of time-division slots")
		f.DurationVar(&stepDelay, "step-delay", 0, "Dwell time per slot")
		f.BoolVar(&unlockSlots, "unlock-slots", false, "Allow slot counts above the default ceiling")
		f.BoolVar(&signedFloats, "signed-floats", false, "Carry floats in [-1,1] instead of [0,1]")
		f.BoolVar(&changeDetection, "change-detection", false, "Re-send a slot when its values change")
		f.Float64Var(&sensitivity, "sensitivity", 0, "Change detection threshold")
		f.StringVar(&scope, "scope", "", "Change detection scope (slot or any)")
		f.IntVar(&budgetCost, "budget-cost", 0, "Maximum total channel cost")
		f.IntVar(&budgetCount, "budget-count", 0, "Maximum number of values")
	}
	installCmd.Flags().BoolVar(&fromProfile, "from-profile", false, "Replay the selection saved by the previous install")
	uninstallCmd.Flags().StringVar(&onAmbiguity, "on-ambiguity", "abort", "What to do when problems are found (proceed, abort, help)")

	rootCmd.AddCommand(planCmd, installCmd, uninstallCmd, statusCmd, verifyCmd)
}

func mustRequire(c *cobra.Command, name string) {
	if err := c.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}

// setup loads config, applies changed flags on top and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, hclog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	f := cmd.Flags()
	if f.Changed("slots") {
		cfg.Schedule.SlotCount = slotCount
	}
	if f.Changed("step-delay") {
		cfg.Schedule.StepDelay = stepDelay
	}
	if f.Changed("unlock-slots") {
		cfg.Schedule.UnlockSlotCount = unlockSlots
	}
	if f.Changed("signed-floats") {
		cfg.Schedule.SignedFloats = signedFloats
	}
	if f.Changed("change-detection") {
		cfg.ChangeDetection.Enabled = changeDetection
	}
	if f.Changed("sensitivity") {
		cfg.ChangeDetection.Sensitivity = sensitivity
	}
	if f.Changed("scope") {
		cfg.ChangeDetection.Scope = scope
	}
	if f.Changed("budget-cost") {
		cfg.Budget.MaxTotalCost = budgetCost
	}
	if f.Changed("budget-count") {
		cfg.Budget.MaxValueCount = budgetCount
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, source := logging.ResolveLevel(logLevel, cfg.Log.Level)
	logger := logging.NewLogger("paramux", level, logging.Output())
	logger.Debug("🔧 Configuration loaded", "log_level", level, "source", source)
	return cfg, logger, nil
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		printVersion()
		os.Exit(0)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pkg.ExitCode(err))
	}
}
