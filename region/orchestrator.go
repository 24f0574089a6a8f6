// Package region composes the solver, the patch store, and the diagnostic
// pipeline into the top-level facade that populates a spatial grid of
// patches and advances them through simulated time.
package region

import (
	"fmt"
	"log"
	"math"

	"github.com/spingrid/quanta/datarecording"
	"github.com/spingrid/quanta/diagnostics"
	"github.com/spingrid/quanta/patch"
)

// noiseScale converts a time step into a coordinate perturbation scale.
const noiseScale = 1e-12

// A DensityFunc maps grid coordinates to a volume density. Grid points
// with non-positive density produce no patch.
type DensityFunc func(coords [3]float64) float64

// A NoiseSource provides the Gaussian noise that perturbs patch
// coordinates during time evolution. *math/rand.Rand satisfies it; tests
// inject a seeded source for reproducibility.
type NoiseSource interface {
	NormFloat64() float64
}

// Bounds is an axis-aligned box in coordinate space.
type Bounds struct {
	Min [3]float64
	Max [3]float64
}

// An AdvanceResult reports one Advance call.
type AdvanceResult struct {
	PatchesUpdated     int `json:"patches_updated"`
	ViolationsDetected int `json:"violations_detected"`
}

// An Orchestrator manages the patch collection of one spatial region.
type Orchestrator struct {
	store      *patch.Store
	noise      NoiseSource
	maxPatches int
	recorder   datarecording.DataRecorder
	step       int
}

// NewOrchestrator creates an orchestrator over a store. maxPatches bounds
// region population; it is a soft limit, enforced only by Populate.
func NewOrchestrator(store *patch.Store, noise NoiseSource, maxPatches int) *Orchestrator {
	if store == nil {
		panic("region: nil store")
	}

	if noise == nil {
		panic("region: nil noise source")
	}

	if maxPatches <= 0 {
		panic(fmt.Sprintf("region: non-positive patch limit %d", maxPatches))
	}

	return &Orchestrator{
		store:      store,
		noise:      noise,
		maxPatches: maxPatches,
	}
}

// WithRecorder attaches a data recorder. Populate then records a snapshot
// per created patch and Advance records per-step statistics.
func (o *Orchestrator) WithRecorder(r datarecording.DataRecorder) *Orchestrator {
	o.recorder = r

	r.CreateTable(datarecording.PatchSnapshotTable, datarecording.PatchSnapshot{})
	r.CreateTable(datarecording.StepStatsTable, datarecording.StepStats{})

	return o
}

// Store returns the underlying patch store.
func (o *Orchestrator) Store() *patch.Store {
	return o.store
}

// Populate builds a uniform grid over the bounds with resolution points
// per axis and creates a patch wherever the density is strictly positive.
// The target volume of each patch is the density times the grid cell
// volume. Population stops early, with a logged warning, once the patch
// limit is reached.
func (o *Orchestrator) Populate(
	density DensityFunc,
	bounds Bounds,
	resolution int,
) ([]patch.Patch, error) {
	if density == nil {
		return nil, fmt.Errorf("populate: nil density function")
	}

	if resolution < 1 {
		return nil, fmt.Errorf("populate: resolution %d below 1", resolution)
	}

	cellVolume := 1.0
	for axis := 0; axis < 3; axis++ {
		cellVolume *= (bounds.Max[axis] - bounds.Min[axis]) /
			float64(resolution)
	}
	cellVolume = math.Abs(cellVolume)

	created := make([]patch.Patch, 0, resolution*resolution*resolution)

	for i := 0; i < resolution; i++ {
		for j := 0; j < resolution; j++ {
			for k := 0; k < resolution; k++ {
				coords := [3]float64{
					gridPoint(bounds.Min[0], bounds.Max[0], i, resolution),
					gridPoint(bounds.Min[1], bounds.Max[1], j, resolution),
					gridPoint(bounds.Min[2], bounds.Max[2], k, resolution),
				}

				d := density(coords)
				if d <= 0 {
					continue
				}

				if o.store.Count() >= o.maxPatches {
					log.Printf("warning: patch limit %d reached, "+
						"stopping region population early", o.maxPatches)
					return created, nil
				}

				p, err := o.store.Create(d*cellVolume, coords)
				if err != nil {
					return created, fmt.Errorf(
						"populate at %v: %w", coords, err)
				}

				o.recordSnapshot(p)
				created = append(created, p)
			}
		}
	}

	return created, nil
}

// Advance evolves every stored patch through the given number of time
// steps. Each step perturbs every coordinate by independent Gaussian
// noise scaled by 1e-12·timeStep and re-runs the diagnostic pipeline via
// a coordinate-only update. Violation events count patches whose
// post-update worst violation exceeds the threshold.
func (o *Orchestrator) Advance(timeStep float64, steps int) (AdvanceResult, error) {
	if timeStep <= 0 {
		return AdvanceResult{}, fmt.Errorf(
			"advance: non-positive time step %v", timeStep)
	}

	if steps < 1 {
		return AdvanceResult{}, fmt.Errorf("advance: steps %d below 1", steps)
	}

	result := AdvanceResult{}
	threshold := o.store.Threshold()

	for step := 0; step < steps; step++ {
		stepResult := AdvanceResult{}

		for _, id := range o.store.IDs() {
			p, err := o.store.Get(id)
			if err != nil {
				return result, fmt.Errorf("advance: %w", err)
			}

			coords := p.Coordinates
			for axis := range coords {
				coords[axis] += o.noise.NormFloat64() * noiseScale * timeStep
			}

			updated, err := o.store.Update(id,
				patch.PatchUpdate{Coordinates: &coords})
			if err != nil {
				return result, fmt.Errorf("advance: %w", err)
			}

			stepResult.PatchesUpdated++
			if updated.MaxViolation() > threshold {
				stepResult.ViolationsDetected++
			}
		}

		o.step++
		o.recordStep(timeStep, stepResult)

		result.PatchesUpdated += stepResult.PatchesUpdated
		result.ViolationsDetected += stepResult.ViolationsDetected
	}

	return result, nil
}

// gridPoint places index i of n evenly over [min, max] with both
// endpoints included. A single-point axis collapses to min.
func gridPoint(min, max float64, i, n int) float64 {
	if n == 1 {
		return min
	}

	return min + (max-min)*float64(i)/float64(n-1)
}

func (o *Orchestrator) recordSnapshot(p patch.Patch) {
	if o.recorder == nil {
		return
	}

	o.recorder.InsertData(datarecording.PatchSnapshotTable,
		datarecording.PatchSnapshot{
			PatchID:      p.ID,
			J:            p.J,
			Volume:       p.Volume,
			PolymerScale: p.PolymerScale,
			X:            p.Coordinates[0],
			Y:            p.Coordinates[1],
			Z:            p.Coordinates[2],
			MaxViolation: p.MaxViolation(),
			Health: diagnostics.Classify(
				p.MaxViolation(), o.store.Threshold()).String(),
			Step: o.step,
		})
}

func (o *Orchestrator) recordStep(timeStep float64, r AdvanceResult) {
	if o.recorder == nil {
		return
	}

	o.recorder.InsertData(datarecording.StepStatsTable,
		datarecording.StepStats{
			Step:               o.step,
			TimeStep:           timeStep,
			PatchesUpdated:     r.PatchesUpdated,
			ViolationsDetected: r.ViolationsDetected,
		})
}
