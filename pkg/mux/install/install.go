package install

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Request is everything Install needs.
type Request struct {
	Host   host.Host
	Source value.Source
	Budget value.ChannelBudget

	SlotCount       int
	UnlockSlotCount bool
	Compile         schedule.Options

	// ChangeDetection is nil when disabled.
	ChangeDetection *schedule.ChangeDetectionOptions

	Logger hclog.Logger
}

// Result describes a completed install.
type Result struct {
	InstallID string
	Plan      schedule.Plan
	Program   *schedule.Program
}

// Install classifies the source's candidates, compiles them, lowers the program
// into the host and clears the sync flag of every multiplexed value. A host
// that already carries any marker is rejected.
func Install(ctx context.Context, req Request) (*Result, error) {
	logger := req.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("install")
	if req.Compile.Marker == (schedule.Marker{}) {
		req.Compile.Marker = schedule.DefaultMarker()
	}
	if req.Compile.StepDelay == 0 {
		req.Compile.StepDelay = schedule.DefaultStepDelay
	}
	req.Compile.Logger = logger
	m := req.Compile.Marker

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if AnyMarkers(req.Host, m) {
		logger.Warn("⚠️ Install rejected, markers present",
			"syncing", CountMarkers(req.Host, m, MarkerSyncing),
			"lowering", CountMarkers(req.Host, m, MarkerLowering))
		return nil, muxerrors.ErrAlreadyInstalled
	}
	if err := schedule.CheckSlotCount(req.SlotCount, req.UnlockSlotCount); err != nil {
		return nil, err
	}

	plan, err := schedule.Classify(req.Source.Candidates(), req.SlotCount)
	if err != nil {
		return nil, err
	}
	logger.Debug("🧮 Classified candidates",
		"bools", len(plan.OptimizedBools),
		"wide", len(plan.OptimizedWide),
		"remainder_bools", len(plan.RemainderBools),
		"remainder_wide", len(plan.RemainderWide))

	prog, err := schedule.Compile(plan, req.Budget, req.Compile)
	if err != nil {
		return nil, err
	}
	if req.ChangeDetection != nil {
		cd := *req.ChangeDetection
		cd.Logger = logger
		if err := schedule.PlanChangeDetection(prog, cd); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	layersBefore, paramsBefore := snapshot(req.Host)
	if err := host.Lower(req.Host, prog); err != nil {
		logger.Error("❌ Lowering failed, rolling back", "error", err)
		removeAdded(req.Host, layersBefore, paramsBefore)
		return nil, err
	}

	var cleared []value.Key
	for _, v := range prog.Optimized() {
		if err := req.Source.SetSynced(v.Key(), false); err != nil {
			logger.Error("❌ Clearing sync flag failed, rolling back", "value", v.Key().String(), "error", err)
			rollbackErr := rollback(req.Host, req.Source, m, cleared)
			return nil, errors.Join(fmt.Errorf("clearing sync flag of %s: %w", v.Key(), err), rollbackErr)
		}
		cleared = append(cleared, v.Key())
	}

	res := &Result{InstallID: uuid.NewString(), Plan: plan, Program: prog}
	logger.Info("✅ Installed multiplexer",
		"install_id", res.InstallID,
		"optimized", len(cleared),
		"slots", prog.SlotCount,
		"new_cost", prog.NewCost,
		"change_detection", prog.ChangeDetection())
	return res, nil
}

func rollback(h host.Host, src value.Source, m schedule.Marker, cleared []value.Key) error {
	removeGenerated(h, m)
	var errs []error
	for _, k := range cleared {
		if err := src.SetSynced(k, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func snapshot(h host.Host) (layers, params map[string]bool) {
	layers = make(map[string]bool)
	params = make(map[string]bool)
	for _, l := range h.LayerNames() {
		layers[l] = true
	}
	for _, p := range h.Parameters() {
		params[p.Name] = true
	}
	return layers, params
}

// removeAdded drops layers and parameters that are not in the before sets.
func removeAdded(h host.Host, layers, params map[string]bool) {
	for _, l := range h.LayerNames() {
		if !layers[l] {
			h.RemoveLayer(l)
		}
	}
	for _, p := range h.Parameters() {
		if !params[p.Name] {
			h.RemoveParameter(p.Name)
		}
	}
}

// removeGenerated drops every marked or generated layer and parameter.
func removeGenerated(h host.Host, m schedule.Marker) (layers, params []string) {
	doomed := map[string]bool{m.SyncingLayer(): true, m.ChangeTreeLayer(): true}
	for _, tag := range []string{m.SyncingTag, m.LoweringTag} {
		for _, l := range h.Markers(tag) {
			doomed[l] = true
		}
	}
	for _, name := range h.LayerNames() {
		if doomed[name] && h.RemoveLayer(name) {
			layers = append(layers, name)
		}
	}
	for _, p := range h.Parameters() {
		if m.Generated(p.Name) && h.RemoveParameter(p.Name) {
			params = append(params, p.Name)
		}
	}
	return layers, params
}
