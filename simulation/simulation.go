// Package simulation wires the solver, store, diagnostics, orchestrator,
// recorder, and monitor into one ready-to-use object.
package simulation

import (
	"github.com/spingrid/quanta/datarecording"
	"github.com/spingrid/quanta/monitoring"
	"github.com/spingrid/quanta/patch"
	"github.com/spingrid/quanta/region"
	"github.com/spingrid/quanta/spin"
)

// A Simulation provides the services required to manage one region of
// discrete volume patches.
type Simulation struct {
	id string

	solver       *spin.Solver
	store        *patch.Store
	orchestrator *region.Orchestrator
	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
}

// ID returns the unique run ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// GetSolver returns the volume solver used in the simulation.
func (s *Simulation) GetSolver() *spin.Solver {
	return s.solver
}

// GetStore returns the patch store used in the simulation.
func (s *Simulation) GetStore() *patch.Store {
	return s.store
}

// GetOrchestrator returns the region orchestrator.
func (s *Simulation) GetOrchestrator() *region.Orchestrator {
	return s.orchestrator
}

// GetDataRecorder returns the data recorder used in the simulation.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, or nil when monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// CreatePatch creates one patch with an optimized polymer scale.
func (s *Simulation) CreatePatch(
	targetVolume float64,
	coords [3]float64,
) (patch.Patch, error) {
	return s.store.Create(targetVolume, coords)
}

// CreatePatchWithScale creates one patch with a caller-supplied polymer
// scale.
func (s *Simulation) CreatePatchWithScale(
	targetVolume float64,
	coords [3]float64,
	polymerScale float64,
) (patch.Patch, error) {
	return s.store.CreateWithPolymerScale(targetVolume, coords, polymerScale)
}

// UpdatePatch mutates one patch.
func (s *Simulation) UpdatePatch(id int, u patch.PatchUpdate) (patch.Patch, error) {
	return s.store.Update(id, u)
}

// PatchStatus reports the health and state of one patch.
func (s *Simulation) PatchStatus(id int) (patch.Status, error) {
	return s.store.Status(id)
}

// SystemSummary aggregates the whole patch collection.
func (s *Simulation) SystemSummary() patch.Summary {
	return s.store.Summary()
}

// PopulateRegion fills the region from a volume density function.
func (s *Simulation) PopulateRegion(
	density region.DensityFunc,
	bounds region.Bounds,
	resolution int,
) ([]patch.Patch, error) {
	return s.orchestrator.Populate(density, bounds, resolution)
}

// Advance evolves all patches through the given number of time steps.
func (s *Simulation) Advance(timeStep float64, steps int) (region.AdvanceResult, error) {
	return s.orchestrator.Advance(timeStep, steps)
}

// Terminate flushes the data recorder. It should be called at the end of
// the run.
func (s *Simulation) Terminate() {
	s.dataRecorder.Flush()
}
