package patch

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spingrid/quanta/diagnostics"
	"github.com/spingrid/quanta/spin"
)

// A VolumeSolver solves the inverse volume problem. It is satisfied by
// *spin.Solver.
type VolumeSolver interface {
	OptimalJ(targetVolume float64) (spin.Solution, error)
}

// A Store owns the mutable patch collection. A single mutex guards the ID
// counter and the map together, so two overlapping creates can never
// observe the same next ID.
//
// There is no deletion path: patches live for the lifetime of the store,
// and growth is bounded only by the region-population limit. This mirrors
// the lifecycle of the underlying model.
type Store struct {
	mu       sync.Mutex
	nextID   int
	patches  map[int]*Patch
	solver   VolumeSolver
	analyzer *diagnostics.Analyzer
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore(solver VolumeSolver, analyzer *diagnostics.Analyzer) *Store {
	if solver == nil || analyzer == nil {
		panic("patch: nil solver or analyzer")
	}

	return &Store{
		patches:  make(map[int]*Patch),
		solver:   solver,
		analyzer: analyzer,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Tests use it to make timestamps
// deterministic.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create solves for the optimal label of the target volume, runs the full
// diagnostic pipeline, and registers a new patch. A solver failure leaves
// the store unmodified.
func (s *Store) Create(targetVolume float64, coords [3]float64) (Patch, error) {
	return s.create(targetVolume, coords, math.NaN())
}

// CreateWithPolymerScale is Create with a caller-supplied polymer scale,
// skipping the scale optimization.
func (s *Store) CreateWithPolymerScale(
	targetVolume float64,
	coords [3]float64,
	polymerScale float64,
) (Patch, error) {
	return s.create(targetVolume, coords, polymerScale)
}

func (s *Store) create(
	targetVolume float64,
	coords [3]float64,
	polymerScale float64,
) (Patch, error) {
	sol, err := s.solver.OptimalJ(targetVolume)
	if err != nil {
		return Patch{}, fmt.Errorf("create patch: %w", err)
	}

	s.warnSolution(sol, targetVolume)

	if math.IsNaN(polymerScale) {
		polymerScale = s.analyzer.OptimizePolymerScale(sol.J, coords)
	}

	lower, upper := s.analyzer.UncertaintyBounds(sol.J, targetVolume, coords)
	violations := s.analyzer.Violations(sol.J, sol.Volume, polymerScale, coords)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := &Patch{
		ID:                s.nextID,
		J:                 sol.J,
		Volume:            sol.Volume,
		Coordinates:       coords,
		PolymerScale:      polymerScale,
		UncertaintyBounds: [2]float64{lower, upper},
		Violations:        violations,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.nextID++
	s.patches[p.ID] = p

	return p.clone(), nil
}

// Update mutates a patch in place. The label, volume, and uncertainty
// bounds are re-derived only when a new target volume is supplied; the
// polymer scale and violations are always recomputed. A failed solve
// leaves the patch untouched.
func (s *Store) Update(id int, u PatchUpdate) (Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patches[id]
	if !ok {
		return Patch{}, fmt.Errorf("update patch %d: %w", id, ErrPatchNotFound)
	}

	coords := p.Coordinates
	if u.Coordinates != nil {
		coords = *u.Coordinates
	}

	j, volume, bounds := p.J, p.Volume, p.UncertaintyBounds
	if u.TargetVolume != nil {
		sol, err := s.solver.OptimalJ(*u.TargetVolume)
		if err != nil {
			return Patch{}, fmt.Errorf("update patch %d: %w", id, err)
		}

		s.warnSolution(sol, *u.TargetVolume)

		j, volume = sol.J, sol.Volume
		lower, upper := s.analyzer.UncertaintyBounds(j, *u.TargetVolume, coords)
		bounds = [2]float64{lower, upper}
	}

	scale := s.analyzer.OptimizePolymerScale(j, coords)

	p.J = j
	p.Volume = volume
	p.Coordinates = coords
	p.PolymerScale = scale
	p.UncertaintyBounds = bounds
	p.Violations = s.analyzer.Violations(j, volume, scale, coords)
	p.UpdatedAt = s.now()

	return p.clone(), nil
}

// Get returns a copy of the patch with the given ID.
func (s *Store) Get(id int) (Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patches[id]
	if !ok {
		return Patch{}, fmt.Errorf("get patch %d: %w", id, ErrPatchNotFound)
	}

	return p.clone(), nil
}

// Threshold returns the violation threshold the store classifies health
// with.
func (s *Store) Threshold() float64 {
	return s.analyzer.Threshold()
}

// Count returns the number of stored patches.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.patches)
}

// IDs returns all patch IDs in increasing order.
func (s *Store) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.patches))
	for id := range s.patches {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

// Status reports the externally visible state of one patch.
func (s *Store) Status(id int) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patches[id]
	if !ok {
		return Status{}, fmt.Errorf("patch status %d: %w", id, ErrPatchNotFound)
	}

	c := p.clone()
	maxViolation := c.MaxViolation()

	return Status{
		Health: diagnostics.Classify(
			maxViolation, s.analyzer.Threshold()).String(),
		J:                 c.J,
		Volume:            c.Volume,
		Coordinates:       c.Coordinates,
		PolymerScale:      c.PolymerScale,
		UncertaintyBounds: c.UncertaintyBounds,
		Violations:        c.Violations,
		MaxViolation:      maxViolation,
		Age:               s.now().Sub(c.CreatedAt),
	}, nil
}

// Summary aggregates the whole store. The system health is the worst
// health of any individual patch.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		TotalPatches: len(s.patches),
		SystemHealth: diagnostics.Healthy.String(),
		HealthCounts: map[string]int{
			diagnostics.Healthy.String():  0,
			diagnostics.Warning.String():  0,
			diagnostics.Critical.String(): 0,
		},
	}

	if len(s.patches) == 0 {
		return summary
	}

	threshold := s.analyzer.Threshold()
	worst := diagnostics.Healthy
	minJ, maxJ, sumJ := math.Inf(1), math.Inf(-1), 0.0

	for _, p := range s.patches {
		v := diagnostics.MaxViolation(p.Violations)
		if v > summary.MaxViolation {
			summary.MaxViolation = v
		}

		h := diagnostics.Classify(v, threshold)
		summary.HealthCounts[h.String()]++
		worst = diagnostics.Worse(worst, h)

		summary.TotalVolume += p.Volume
		sumJ += p.J
		minJ = math.Min(minJ, p.J)
		maxJ = math.Max(maxJ, p.J)
	}

	summary.SystemHealth = worst.String()
	summary.MeanJ = sumJ / float64(len(s.patches))
	summary.MinJ = minJ
	summary.MaxJ = maxJ

	return summary
}

func (s *Store) warnSolution(sol spin.Solution, targetVolume float64) {
	if !sol.Converged {
		log.Printf("warning: volume solve for target %.3e did not converge "+
			"(abs error %.3e)", targetVolume, sol.AbsError)
	}

	if sol.Extrapolated {
		log.Printf("warning: target volume %.3e beyond the representation "+
			"table, extrapolating to j=%.3f", targetVolume, sol.J)
	}
}
