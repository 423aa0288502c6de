package install

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Decision is the caller's answer to an uninstall problem.
type Decision uint8

const (
	DecisionAbort Decision = iota
	DecisionProceed
	DecisionSeekHelp
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionSeekHelp:
		return "help"
	default:
		return "abort"
	}
}

func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proceed", "yes":
		return DecisionProceed, nil
	case "abort", "no", "":
		return DecisionAbort, nil
	case "help", "seek-help":
		return DecisionSeekHelp, nil
	default:
		return DecisionAbort, fmt.Errorf("unknown decision %q (want proceed, abort or help)", s)
	}
}

// Problem is something found before uninstall mutates anything.
type Problem struct {
	Err    error
	Detail string
}

func (p Problem) Error() string {
	return fmt.Sprintf("%v: %s", p.Err, p.Detail)
}

func (p Problem) Unwrap() error { return p.Err }

// Decider resolves problems. A nil Decider aborts on the first one.
type Decider interface {
	Decide(p Problem) Decision
}

type DeciderFunc func(p Problem) Decision

func (f DeciderFunc) Decide(p Problem) Decision { return f(p) }

// Always answers every problem with d.
func Always(d Decision) Decider {
	return DeciderFunc(func(Problem) Decision { return d })
}

// Outcome is how an uninstall ended.
type Outcome uint8

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted
	OutcomeNeedsHelp
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAborted:
		return "aborted"
	case OutcomeNeedsHelp:
		return "needs-help"
	default:
		return "completed"
	}
}

type UninstallRequest struct {
	Host    host.Host
	Source  value.Source
	Marker  schedule.Marker
	Decider Decider
	Logger  hclog.Logger
}

type UninstallReport struct {
	Outcome           Outcome
	Problems          []Problem
	Restored          []value.Key
	RemovedLayers     []string
	RemovedParameters []string
}

// Err is nil for a completed uninstall and otherwise wraps
// ErrUninstallAborted with the problems found.
func (r *UninstallReport) Err() error {
	if r.Outcome == OutcomeCompleted {
		return nil
	}
	errs := []error{fmt.Errorf("%w (%s)", muxerrors.ErrUninstallAborted, r.Outcome)}
	for _, p := range r.Problems {
		errs = append(errs, p)
	}
	return errors.Join(errs...)
}

// Uninstall validates the host, hands every problem to the decider and only
// then removes the generated structures and restores sync flags. Nothing is
// mutated unless every problem is answered with proceed.
func Uninstall(ctx context.Context, req UninstallRequest) (*UninstallReport, error) {
	logger := req.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("uninstall")
	m := req.Marker
	if m == (schedule.Marker{}) {
		m = schedule.DefaultMarker()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	syncing := CountMarkers(req.Host, m, MarkerSyncing)
	lowering := CountMarkers(req.Host, m, MarkerLowering)
	channel := generatedChannelParameters(req.Host, m)
	if syncing == 0 && lowering == 0 && len(channel) == 0 {
		return nil, muxerrors.ErrNotInstalled
	}

	report := &UninstallReport{}
	if syncing != 1 || lowering > 1 {
		report.Problems = append(report.Problems, Problem{
			Err:    muxerrors.ErrStructuralAmbiguity,
			Detail: fmt.Sprintf("found %d syncing and %d lowering markers", syncing, lowering),
		})
	}

	recovered := recoverValues(req.Host, req.Source, m)
	if len(recovered) < 2 || len(channel) == 0 {
		report.Problems = append(report.Problems, Problem{
			Err:    muxerrors.ErrInsufficientArtifacts,
			Detail: fmt.Sprintf("recovered %d values and %d channel parameters", len(recovered), len(channel)),
		})
	}

	for _, p := range report.Problems {
		d := DecisionAbort
		if req.Decider != nil {
			d = req.Decider.Decide(p)
		}
		logger.Warn("⚠️ Uninstall problem", "problem", p.Error(), "decision", d.String())
		switch d {
		case DecisionAbort:
			report.Outcome = OutcomeAborted
			return report, nil
		case DecisionSeekHelp:
			report.Outcome = OutcomeNeedsHelp
			return report, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.RemovedLayers, report.RemovedParameters = removeGenerated(req.Host, m)
	var errs []error
	for _, k := range recovered {
		if err := req.Source.SetSynced(k, true); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", k, err))
			continue
		}
		report.Restored = append(report.Restored, k)
	}

	report.Outcome = OutcomeCompleted
	logger.Info("✅ Uninstalled multiplexer",
		"restored", len(report.Restored),
		"layers", len(report.RemovedLayers),
		"parameters", len(report.RemovedParameters))
	return report, errors.Join(errs...)
}

// recoverValues correlates the copy drivers of every marked sender with the
// source by name and kind.
func recoverValues(h host.Host, src value.Source, m schedule.Marker) []value.Key {
	known := make(map[value.Key]bool)
	byName := make(map[string][]value.Key)
	for _, c := range src.Candidates() {
		known[c.Spec.Key()] = true
		byName[c.Spec.Name] = append(byName[c.Spec.Name], c.Spec.Key())
	}

	seen := make(map[value.Key]bool)
	var out []value.Key
	layers := h.Markers(m.SyncingTag)
	if len(layers) == 0 {
		layers = []string{m.SyncingLayer()}
	}
	for _, name := range layers {
		l, ok := h.Layer(name)
		if !ok {
			continue
		}
		sender, ok := l.Machine(schedule.RoleSender)
		if !ok {
			continue
		}
		for _, slot := range host.RecoverSlots(sender, m) {
			for _, v := range slot.Values() {
				k := v.Key()
				if !known[k] {
					// wide kinds cannot always be told apart from the driver;
					// fall back to the only wide value of that name
					k, ok = wideByName(byName[v.Name], v.Kind)
					if !ok {
						continue
					}
				}
				if !seen[k] {
					seen[k] = true
					out = append(out, k)
				}
			}
		}
	}
	return out
}

func wideByName(keys []value.Key, kind value.Kind) (value.Key, bool) {
	if kind == value.KindBool {
		return value.Key{}, false
	}
	var found []value.Key
	for _, k := range keys {
		if k.Kind != value.KindBool {
			found = append(found, k)
		}
	}
	if len(found) != 1 {
		return value.Key{}, false
	}
	return found[0], true
}
