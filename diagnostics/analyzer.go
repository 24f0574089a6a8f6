// Package diagnostics implements the per-patch diagnostic pipeline:
// polymer-scale optimization, scale-adaptive uncertainty bounds, and
// constraint-violation detection. All functions are pure given their
// inputs.
package diagnostics

import (
	"fmt"
	"log"
	"math"

	"github.com/spingrid/quanta/numeric"
	"github.com/spingrid/quanta/spin"
)

// Names of the four constraint checks. Every violation map produced by
// Violations contains exactly these keys.
const (
	CheckVolumeConsistency  = "volume_consistency"
	CheckSU2Eigenvalue      = "su2_eigenvalue"
	CheckPolymerScaleBounds = "polymer_scale_bounds"
	CheckCoordinateBounds   = "coordinate_bounds"
)

// CheckNames lists the four constraint checks in a fixed order.
var CheckNames = []string{
	CheckVolumeConsistency,
	CheckSU2Eigenvalue,
	CheckPolymerScaleBounds,
	CheckCoordinateBounds,
}

// A VolumeFunc computes the volume eigenvalue for a label. It is used by
// the volume-consistency check to detect drift between a patch's stored
// volume and a fresh recomputation.
type VolumeFunc func(j float64) (float64, error)

// Config holds the constants of the diagnostic pipeline.
type Config struct {
	// PlanckLength is the fundamental length ℓ.
	PlanckLength float64

	// UncertaintyBase scales the j-dependent part of the uncertainty.
	UncertaintyBase float64

	// ScaleCoeff weights the coordinate-magnitude contribution to the
	// uncertainty.
	ScaleCoeff float64

	// ViolationThreshold separates healthy patches from warning and
	// critical ones. Violations above it are logged, never fatal.
	ViolationThreshold float64

	// CoordinateCeiling is the largest coordinate norm considered
	// physical (the observable-universe bound).
	CoordinateCeiling float64
}

// DefaultConfig derives the diagnostic constants from a solver
// configuration. The uncertainty base defaults to 1% of the natural
// volume unit γ·ℓ³.
func DefaultConfig(base spin.Config) Config {
	return Config{
		PlanckLength:       base.PlanckLength,
		UncertaintyBase:    0.01 * base.UnitVolume(),
		ScaleCoeff:         0.1,
		ViolationThreshold: 1e-6,
		CoordinateCeiling:  1e26,
	}
}

// An Analyzer runs the diagnostic pipeline with a fixed configuration.
type Analyzer struct {
	cfg      Config
	volumeOf VolumeFunc
}

// NewAnalyzer creates an Analyzer. volumeOf must not be nil.
func NewAnalyzer(cfg Config, volumeOf VolumeFunc) *Analyzer {
	if volumeOf == nil {
		panic("diagnostics: nil volume function")
	}

	if cfg.PlanckLength <= 0 {
		panic(fmt.Sprintf(
			"diagnostics: non-positive Planck length %v", cfg.PlanckLength))
	}

	if cfg.ViolationThreshold <= 0 {
		cfg.ViolationThreshold = 1e-6
	}

	if cfg.CoordinateCeiling <= 0 {
		cfg.CoordinateCeiling = 1e26
	}

	return &Analyzer{cfg: cfg, volumeOf: volumeOf}
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Threshold returns the violation threshold.
func (a *Analyzer) Threshold() float64 {
	return a.cfg.ViolationThreshold
}

// OptimizePolymerScale picks the polymer scale μ for a patch. The penalty
// combines the deviation of π·μ/ℓ from π (weight 1.0, avoiding a known
// oscillatory instability point) and the deviation of μ from j·ℓ/10
// (weight 0.1). The search interval is [0.1ℓ, min(obsScale, 10ℓ)], where
// obsScale is the coordinate norm divided by 1000; patches at the origin
// use the full [0.1ℓ, 10ℓ] interval. A degenerate interval collapses to
// its lower bound.
func (a *Analyzer) OptimizePolymerScale(j float64, coords [3]float64) float64 {
	l := a.cfg.PlanckLength
	lower := 0.1 * l
	upper := 10 * l

	if n := norm(coords); n > 0 {
		upper = math.Min(n/1000, upper)
	}

	if upper <= lower {
		return lower
	}

	penalty := func(mu float64) float64 {
		oscillation := math.Pi*mu/l - math.Pi
		coupling := mu - j*l/10
		return oscillation*oscillation + 0.1*coupling*coupling
	}

	res := numeric.MinimizeBounded(penalty, lower, upper, l*1e-12, 200)

	return res.X
}

// UncertaintyBounds computes the scale-adaptive bounds around a target
// volume:
//
//	total = UncertaintyBase·√(j(j+1)) · scaleFactor(coords) · volumeFactor(target)
//
// The lower bound is deliberately not clamped at zero; large
// uncertainties can push it negative (see the store documentation).
func (a *Analyzer) UncertaintyBounds(
	j, targetVolume float64,
	coords [3]float64,
) (lower, upper float64) {
	base := a.cfg.UncertaintyBase * math.Sqrt(spin.Eigenvalue(j))

	scaleFactor := 1 + a.cfg.ScaleCoeff*
		math.Log10(math.Max(norm(coords)/1e-9, 1))

	volumeFactor := 1.0
	if targetVolume > 0 {
		l := a.cfg.PlanckLength
		volumeFactor = 1 + 0.01*math.Abs(math.Log10(targetVolume/(l*l*l)))
	}

	total := base * scaleFactor * volumeFactor

	return targetVolume - total, targetVolume + total
}

// Violations evaluates the four constraint checks. The returned map
// always contains all four keys; magnitudes above the threshold are
// logged as warnings and never abort the calling operation.
//
// The su2_eigenvalue check is a structural placeholder for a future
// algebraic consistency check and currently always reports 0.
func (a *Analyzer) Violations(
	j, volume, polymerScale float64,
	coords [3]float64,
) map[string]float64 {
	v := map[string]float64{
		CheckVolumeConsistency:  a.volumeConsistency(j, volume),
		CheckSU2Eigenvalue:      0,
		CheckPolymerScaleBounds: a.polymerScaleBounds(polymerScale),
		CheckCoordinateBounds:   a.coordinateBounds(coords),
	}

	for _, name := range CheckNames {
		if v[name] > a.cfg.ViolationThreshold {
			log.Printf("warning: %s violation %.3e exceeds threshold %.3e",
				name, v[name], a.cfg.ViolationThreshold)
		}
	}

	return v
}

func (a *Analyzer) volumeConsistency(j, stored float64) float64 {
	fresh, err := a.volumeOf(j)
	if err != nil || fresh <= 0 {
		return 0
	}

	return math.Abs(stored-fresh) / fresh
}

func (a *Analyzer) polymerScaleBounds(mu float64) float64 {
	if mu <= 0 {
		return math.Inf(1)
	}

	l := a.cfg.PlanckLength
	if mu >= 0.01*l && mu <= 100*l {
		return 0
	}

	return math.Abs(math.Log10(mu / l))
}

func (a *Analyzer) coordinateBounds(coords [3]float64) float64 {
	n := norm(coords)
	if n <= a.cfg.CoordinateCeiling {
		return 0
	}

	return math.Log10(n / a.cfg.CoordinateCeiling)
}

func norm(coords [3]float64) float64 {
	return math.Sqrt(coords[0]*coords[0] +
		coords[1]*coords[1] +
		coords[2]*coords[2])
}
