package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Selection is one value recorded in a saved profile.
type Selection struct {
	Name         string     `toml:"name"`
	Kind         value.Kind `toml:"kind"`
	Selected     bool       `toml:"selected"`
	WillOptimize bool       `toml:"will_optimize"`
}

func (s Selection) Key() value.Key { return value.Key{Name: s.Name, Kind: s.Kind} }

// Profile is a saved selection replayed on a later build.
type Profile struct {
	SlotCount       int         `toml:"slot_count"`
	StepDelay       string      `toml:"step_delay,omitempty"`
	ChangeDetection bool        `toml:"change_detection"`
	Sensitivity     float64     `toml:"sensitivity,omitempty"`
	Scope           string      `toml:"scope,omitempty"`
	Selections      []Selection `toml:"selection"`
}

// Delay parses StepDelay, defaulting when empty.
func (p Profile) Delay() (time.Duration, error) {
	if p.StepDelay == "" {
		return schedule.DefaultStepDelay, nil
	}
	d, err := time.ParseDuration(p.StepDelay)
	if err != nil {
		return 0, fmt.Errorf("profile step_delay: %w", err)
	}
	return d, nil
}

// ProfileFromPlan records what a plan selected and what it will optimize.
// candidates are src's candidates as they were before install; names are saved
// in their stable form.
func ProfileFromPlan(src value.Source, candidates []value.Candidate, plan schedule.Plan, delay time.Duration) Profile {
	optimized := make(map[value.Key]bool)
	for _, v := range plan.OptimizedBools {
		optimized[v.Key()] = true
	}
	for _, v := range plan.OptimizedWide {
		optimized[v.Key()] = true
	}
	p := Profile{SlotCount: plan.SlotCount, StepDelay: delay.String()}
	for _, c := range candidates {
		p.Selections = append(p.Selections, Selection{
			Name:         value.StableKey(src, c.Spec.Key()).Name,
			Kind:         c.Spec.Kind,
			Selected:     c.Selected,
			WillOptimize: optimized[c.Spec.Key()],
		})
	}
	return p
}

func LoadProfile(path string) (Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	return p, nil
}

func SaveProfile(path string, p Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create profile %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", path, err)
	}
	return nil
}

// SkipReason explains why a build left the host untouched.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNoValues        SkipReason = "no values"
	SkipWithinBudget    SkipReason = "already within budget"
	SkipInstalled       SkipReason = "already installed"
	SkipNothingSelected SkipReason = "nothing selected"
)

// Reconciled is a profile matched against the live values.
type Reconciled struct {
	Candidates []value.Candidate
	Warnings   []muxerrors.ClassCountMismatch
	Skip       SkipReason
}

// Reconcile applies a saved profile to src's candidates, matching on stable
// names. When a class has fewer live matches than the profile expected, the
// selection for that class is truncated to a multiple of the slot count and a
// warning is recorded.
func Reconcile(profile Profile, src value.Source, h host.Host, budget value.ChannelBudget, m schedule.Marker, logger hclog.Logger) Reconciled {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	candidates := src.Candidates()
	switch {
	case len(candidates) == 0:
		return Reconciled{Skip: SkipNoValues}
	case AnyMarkers(h, m):
		return Reconciled{Skip: SkipInstalled}
	case budget.Allows(value.TotalCost(value.Specs(candidates)), len(candidates)):
		return Reconciled{Skip: SkipWithinBudget}
	}

	wanted := make(map[value.Key]bool)
	expected := map[value.CostClass]int{}
	for _, s := range profile.Selections {
		if s.Selected && s.WillOptimize {
			wanted[s.Key()] = true
			expected[value.ClassOf(s.Kind)]++
		}
	}

	out := make([]value.Candidate, len(candidates))
	found := map[value.CostClass]int{}
	for i, c := range candidates {
		c.Selected = wanted[value.StableKey(src, c.Spec.Key())] && c.Spec.Synced
		if c.Selected {
			found[c.Spec.Class()]++
		}
		out[i] = c
	}
	if len(found) == 0 {
		return Reconciled{Candidates: out, Skip: SkipNothingSelected}
	}

	res := Reconciled{Candidates: out}
	slots := max(profile.SlotCount, 2)
	for _, class := range []value.CostClass{value.ClassBool, value.ClassWide} {
		if found[class] >= expected[class] {
			continue
		}
		keep := found[class] - found[class]%slots
		mismatch := muxerrors.ClassCountMismatch{
			Class:    class.String(),
			Expected: expected[class],
			Found:    found[class],
			Kept:     keep,
		}
		logger.Warn("⚠️ Saved selection drifted", "class", mismatch.Class,
			"expected", mismatch.Expected, "found", mismatch.Found, "kept", mismatch.Kept)
		res.Warnings = append(res.Warnings, mismatch)

		seen := 0
		for i := range out {
			if !out[i].Selected || out[i].Spec.Class() != class {
				continue
			}
			if seen >= keep {
				out[i].Selected = false
			}
			seen++
		}
	}
	return res
}

// BuildRequest drives a profile-based install.
type BuildRequest struct {
	Profile Profile
	Source  value.Source
	Host    host.Host
	Budget  value.ChannelBudget

	UnlockSlotCount bool
	SignedFloats    bool
	Marker          schedule.Marker
	Smoothing       float64
	Logger          hclog.Logger
}

type BuildResult struct {
	Skip     SkipReason
	Warnings []muxerrors.ClassCountMismatch
	Install  *Result
}

// selectionSource overlays a reconciled selection on a source.
type selectionSource struct {
	value.Source
	candidates []value.Candidate
}

func (s selectionSource) Candidates() []value.Candidate { return s.candidates }

// Build reconciles the profile, installs and validates the result against the
// budget.
func Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	logger := req.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("build")
	m := req.Marker
	if m == (schedule.Marker{}) {
		m = schedule.DefaultMarker()
	}

	rec := Reconcile(req.Profile, req.Source, req.Host, req.Budget, m, logger)
	if rec.Skip != SkipNone {
		logger.Info("⏭️ Skipping multiplexer build", "reason", string(rec.Skip))
		return &BuildResult{Skip: rec.Skip, Warnings: rec.Warnings}, nil
	}

	delay, err := req.Profile.Delay()
	if err != nil {
		return nil, err
	}
	ireq := Request{
		Host:            req.Host,
		Source:          selectionSource{Source: req.Source, candidates: rec.Candidates},
		Budget:          req.Budget,
		SlotCount:       req.Profile.SlotCount,
		UnlockSlotCount: req.UnlockSlotCount,
		Compile:         schedule.Options{StepDelay: delay, Marker: m, SignedFloats: req.SignedFloats},
		Logger:          logger,
	}
	if req.Profile.ChangeDetection {
		cd := schedule.DefaultChangeDetection()
		if req.Profile.Sensitivity != 0 {
			cd.Sensitivity = req.Profile.Sensitivity
		}
		if req.Profile.Scope != "" {
			if cd.Scope, err = schedule.ParseScope(req.Profile.Scope); err != nil {
				return nil, err
			}
		}
		if req.Smoothing != 0 {
			cd.Smoothing = req.Smoothing
		}
		ireq.ChangeDetection = &cd
	}

	res, err := Install(ctx, ireq)
	if err != nil {
		return nil, err
	}
	if err := Validate(req.Host, req.Source, req.Budget, m); err != nil {
		logger.Error("❌ Built multiplexer exceeds budget, rolling back", "error", err)
		var cleared []value.Key
		for _, v := range res.Program.Optimized() {
			cleared = append(cleared, v.Key())
		}
		return nil, errors.Join(err, rollback(req.Host, req.Source, m, cleared))
	}
	return &BuildResult{Warnings: rec.Warnings, Install: res}, nil
}

// Validate checks the host's synced generated parameters plus the source's
// synced values against the budget.
func Validate(h host.Host, src value.Source, budget value.ChannelBudget, m schedule.Marker) error {
	specs := value.Specs(src.Candidates())
	cost := value.TotalCost(specs)
	count := len(specs)
	for _, p := range h.Parameters() {
		if !m.Generated(p.Name) || !p.Synced {
			continue
		}
		cost += value.ClassOf(p.Kind).Cost()
		count++
	}
	if budget.Allows(cost, count) {
		return nil
	}
	return &muxerrors.BudgetExceededError{
		NewCost:     cost,
		MaxCost:     budget.MaxTotalCost,
		ExcessCost:  max(0, cost-budget.MaxTotalCost),
		NewCount:    count,
		MaxCount:    budget.MaxValueCount,
		ExcessCount: max(0, count-budget.MaxValueCount),
	}
}
