package spin

import (
	"fmt"
	"math"

	"github.com/spingrid/quanta/numeric"
)

// maxRefineIter bounds the golden-section refinement in OptimalJ.
const maxRefineIter = 200

// A Solution is the result of an inverse volume solve.
type Solution struct {
	// J is the optimal representation label.
	J float64

	// Volume is the volume eigenvalue achieved at J.
	Volume float64

	// AbsError is |Volume - target|.
	AbsError float64

	// Converged reports whether the refinement narrowed the search
	// bracket below the configured tolerance.
	Converged bool

	// Extrapolated reports that the target lies beyond the volume of
	// the configured MaxJ. Non-fatal; the solution is still valid.
	Extrapolated bool
}

// A Solver computes volume eigenvalues and solves the inverse problem of
// finding the label that best matches a target volume.
type Solver struct {
	cfg   Config
	table *Table
}

// NewSolver creates a Solver and precomputes its representation table.
func NewSolver(cfg Config) *Solver {
	cfg.mustBeValid()

	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}

	return &Solver{
		cfg:   cfg,
		table: NewTable(cfg.MaxJ),
	}
}

// Config returns the solver configuration.
func (s *Solver) Config() Config {
	return s.cfg
}

// Table returns the precomputed representation table.
func (s *Solver) Table() *Table {
	return s.table
}

// VolumeOf returns the volume eigenvalue γ·ℓ³·√(j(j+1)). It returns
// ErrInvalidRepresentation when j is below 0.5. The function is strictly
// increasing in j, which is what makes the inverse problem well-posed.
func (s *Solver) VolumeOf(j float64) (float64, error) {
	if j < MinJ {
		return 0, fmt.Errorf("j=%v: %w", j, ErrInvalidRepresentation)
	}

	eigen := Eigenvalue(j)
	if rep, ok := s.table.Rep(j); ok {
		eigen = rep.Eigenvalue
	}

	return s.cfg.UnitVolume() * math.Sqrt(eigen), nil
}

// OptimalJ finds the label whose volume eigenvalue best matches the
// target. The closed-form guess inverts the formula through the positive
// root of x²+x-k=0 with k=(target/γℓ³)², then golden-section refinement
// minimizes |VolumeOf(j)-target| over [0.5, max(2·guess, MaxJ)].
//
// A non-positive target is not an error; it degrades to the j=0.5
// boundary solution. Targets beyond the MaxJ volume are solved anyway
// with Extrapolated set in the returned Solution.
func (s *Solver) OptimalJ(target float64) (Solution, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return Solution{}, fmt.Errorf("target volume %v is not finite", target)
	}

	minVolume, _ := s.VolumeOf(MinJ)
	if target <= 0 {
		return Solution{
			J:         MinJ,
			Volume:    minVolume,
			AbsError:  math.Abs(minVolume - target),
			Converged: true,
		}, nil
	}

	unit := s.cfg.UnitVolume()
	k := (target / unit) * (target / unit)
	guess := (-1 + math.Sqrt(1+4*k)) / 2
	if guess < MinJ {
		guess = MinJ
	}

	hi := math.Max(2*guess, s.cfg.MaxJ)

	res := numeric.MinimizeBounded(func(j float64) float64 {
		v, _ := s.VolumeOf(j)
		return math.Abs(v - target)
	}, MinJ, hi, s.cfg.Tolerance, maxRefineIter)

	volume, err := s.VolumeOf(res.X)
	if err != nil {
		return Solution{}, err
	}

	maxVolume, _ := s.VolumeOf(s.cfg.MaxJ)

	return Solution{
		J:            res.X,
		Volume:       volume,
		AbsError:     math.Abs(volume - target),
		Converged:    res.Converged,
		Extrapolated: target > maxVolume,
	}, nil
}
