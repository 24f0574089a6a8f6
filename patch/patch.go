// Package patch defines the discrete volume patch entity and the store
// that owns the mutable patch collection.
package patch

import (
	"errors"
	"time"

	"github.com/spingrid/quanta/diagnostics"
)

// ErrPatchNotFound indicates a lookup with an unknown patch ID.
var ErrPatchNotFound = errors.New("patch not found")

// A Patch is one independently addressable discrete volume element. IDs
// are assigned sequentially from 0 and never reused. Coordinates and
// violations are owned by the patch; they are copied in and out, never
// aliased with caller memory.
type Patch struct {
	ID                int                `json:"id"`
	J                 float64            `json:"j"`
	Volume            float64            `json:"volume"`
	Coordinates       [3]float64         `json:"coordinates"`
	PolymerScale      float64            `json:"polymer_scale"`
	UncertaintyBounds [2]float64         `json:"uncertainty_bounds"`
	Violations        map[string]float64 `json:"violations"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// MaxViolation returns the worst violation magnitude of the patch.
func (p Patch) MaxViolation() float64 {
	return diagnostics.MaxViolation(p.Violations)
}

func (p Patch) clone() Patch {
	out := p
	out.Violations = make(map[string]float64, len(p.Violations))
	for k, v := range p.Violations {
		out.Violations[k] = v
	}
	return out
}

// A PatchUpdate carries the optional fields of an update operation. Nil
// fields keep the current value. The polymer scale and the violations are
// recomputed on every update regardless of which fields are set; the
// label, volume, and uncertainty bounds are re-derived only when
// TargetVolume is set.
type PatchUpdate struct {
	Coordinates  *[3]float64
	TargetVolume *float64
}

// A Status is the externally reported view of one patch.
type Status struct {
	Health            string             `json:"health"`
	J                 float64            `json:"j"`
	Volume            float64            `json:"volume"`
	Coordinates       [3]float64         `json:"coordinates"`
	PolymerScale      float64            `json:"polymer_scale"`
	UncertaintyBounds [2]float64         `json:"uncertainty_bounds"`
	Violations        map[string]float64 `json:"violations"`
	MaxViolation      float64            `json:"max_violation"`
	Age               time.Duration      `json:"age"`
}

// A Summary aggregates the whole store.
type Summary struct {
	TotalPatches int            `json:"total_patches"`
	SystemHealth string         `json:"system_status"`
	HealthCounts map[string]int `json:"health_counts"`
	TotalVolume  float64        `json:"total_volume"`
	MeanJ        float64        `json:"mean_j"`
	MinJ         float64        `json:"min_j"`
	MaxJ         float64        `json:"max_j"`
	MaxViolation float64        `json:"max_violation"`
}
