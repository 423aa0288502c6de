package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/provide-io/paramux/pkg"
	"github.com/provide-io/paramux/pkg/logging"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/runtime"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

const version = "0.1.0"

var (
	manifestPath string
	artifactPath string
	logLevel     string
	cycles       int
	senderTick   time.Duration
	receiverTick time.Duration
	receiverJoin time.Duration
	realtime     time.Duration
	metricsAddr  string
)

// exitError carries the exit code main reports.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "paramux-sim",
		Short:         "Run both peers of an installed multiplexer and print what the receiver sees",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          simulate,
	}
	f := cmd.Flags()
	f.StringVarP(&manifestPath, "manifest", "m", "", "Path to the value manifest; live values feed the sender (required)")
	f.StringVarP(&artifactPath, "artifact", "a", "", "Path to the installed artifact (required)")
	f.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	f.IntVar(&cycles, "cycles", 2, "Number of schedule cycles to simulate")
	f.DurationVar(&senderTick, "sender-tick", runtime.DefaultTick, "Sender clock period")
	f.DurationVar(&receiverTick, "receiver-tick", runtime.DefaultTick, "Receiver clock period")
	f.DurationVar(&receiverJoin, "join", 0, "When the receiver joins, in virtual time")
	f.DurationVar(&realtime, "realtime", 0, "Run on wall-clock tickers for this long instead of virtual time")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	for _, name := range []string{"manifest", "artifact"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(pkg.ExitPanic)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(pkg.ExitInvalidArgs)
	}
}

func simulate(cmd *cobra.Command, args []string) error {
	if cycles < 1 {
		return fail(pkg.ExitInvalidArgs, fmt.Errorf("--cycles must be at least 1"))
	}
	level, _ := logging.ResolveLevel(logLevel, "")
	logger := logging.NewLogger("paramux-sim", level, logging.Output())

	m, err := value.LoadManifest(manifestPath)
	if err != nil {
		return fail(pkg.ExitIOError, err)
	}
	src, _, err := m.Source()
	if err != nil {
		return fail(pkg.ExitInvalidArgs, err)
	}
	inputs, _ := src.(value.LiveReader)

	artifact, err := host.ReadFile(artifactPath)
	if err != nil {
		return fail(pkg.ExitArtifactError, err)
	}
	prog, err := host.Raise(artifact.Graph, schedule.DefaultMarker())
	if err != nil {
		return fail(pkg.ExitArtifactError, err)
	}
	logger.Info("📦 Loaded program", "install_id", artifact.InstallID, "slots", prog.SlotCount,
		"step_delay", prog.StepDelay, "change_detection", prog.ChangeDetection())

	reg := prometheus.NewRegistry()
	metrics := runtime.NewMetrics(reg)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("❌ Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("📈 Serving metrics", "addr", metricsAddr)
	}

	outputs, err := value.NewStaticSource()
	if err != nil {
		return fail(pkg.ExitSimulationError, err)
	}

	if realtime > 0 {
		return runRealtime(cmd, prog, inputs, outputs, metrics, logger)
	}

	sim, err := runtime.NewSimulator(prog, runtime.SimOptions{
		SenderTick:   senderTick,
		ReceiverTick: receiverTick,
		ReceiverJoin: receiverJoin,
		Inputs:       inputs,
		Outputs:      outputs,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return fail(pkg.ExitSimulationError, err)
	}
	if err := sim.RunFor(receiverJoin + time.Duration(cycles)*prog.CycleDuration()); err != nil {
		return fail(pkg.ExitSimulationError, err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "at\tslot\tvalue\treceived")
	for _, d := range sim.Deliveries() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.4g\n", d.At, d.Slot, d.Name, d.Value)
	}
	if err := w.Flush(); err != nil {
		return fail(pkg.ExitIOError, err)
	}
	return printFinal(cmd.OutOrStdout(), outputs)
}

func runRealtime(cmd *cobra.Command, prog *schedule.Program, inputs value.LiveReader, outputs *value.StaticSource, metrics *runtime.Metrics, logger hclog.Logger) error {
	ch := runtime.NewChannel(prog.Parameters)
	sender, err := runtime.NewPeer(schedule.RoleSender, prog, ch, runtime.PeerOptions{Logger: logger, Metrics: metrics, Inputs: inputs})
	if err != nil {
		return fail(pkg.ExitSimulationError, err)
	}
	receiver, err := runtime.NewPeer(schedule.RoleReceiver, prog, ch, runtime.PeerOptions{Logger: logger, Metrics: metrics, Outputs: outputs})
	if err != nil {
		return fail(pkg.ExitSimulationError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, realtime)
	defer cancel()

	logger.Info("⏱️ Running peers", "for", realtime)
	if err := runtime.Run(ctx, sender, receiver, senderTick, receiverTick); err != nil {
		return fail(pkg.ExitSimulationError, err)
	}
	return printFinal(cmd.OutOrStdout(), outputs)
}

func printFinal(out io.Writer, outputs *value.StaticSource) error {
	names := outputs.LiveNames()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nvalue\tfinal")
	for _, n := range names {
		v, _ := outputs.Live(n)
		fmt.Fprintf(w, "%s\t%.4g\n", n, v)
	}
	if err := w.Flush(); err != nil {
		return fail(pkg.ExitIOError, err)
	}
	return nil
}
