// Package numeric provides the small numerical routines shared by the
// solver and diagnostic packages.
package numeric

import "math"

// invPhi is 1/φ, the golden-section step ratio.
var invPhi = (math.Sqrt(5) - 1) / 2

// MinimizeResult reports the outcome of a bounded scalar minimization.
type MinimizeResult struct {
	X          float64
	Value      float64
	Iterations int
	Converged  bool
}

// MinimizeBounded finds a minimizer of f on [lo, hi] using golden-section
// search. It stops when the bracket shrinks below tol or after maxIter
// iterations, whichever comes first. The function must be unimodal on the
// interval for the result to be the global minimum; otherwise a local
// minimum is returned.
func MinimizeBounded(
	f func(float64) float64,
	lo, hi, tol float64,
	maxIter int,
) MinimizeResult {
	if hi < lo {
		lo, hi = hi, lo
	}

	if tol <= 0 {
		tol = 1e-12
	}

	a, b := lo, hi
	c := b - (b-a)*invPhi
	d := a + (b-a)*invPhi
	fc := f(c)
	fd := f(d)

	iter := 0
	for ; iter < maxIter && (b-a) > tol; iter++ {
		if fc < fd {
			b, d, fd = d, c, fc
			c = b - (b-a)*invPhi
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + (b-a)*invPhi
			fd = f(d)
		}
	}

	x := (a + b) / 2

	return MinimizeResult{
		X:          x,
		Value:      f(x),
		Iterations: iter,
		Converged:  (b - a) <= tol,
	}
}
