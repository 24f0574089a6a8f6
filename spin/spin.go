// Package spin implements the SU(2) representation table and the volume
// eigenvalue solver. A representation label j determines the volume of a
// discrete patch through V = γ·ℓ³·√(j(j+1)), where γ is the Immirzi
// parameter and ℓ the fundamental length.
package spin

import (
	"errors"
	"fmt"
)

// MinJ is the smallest physical representation label.
const MinJ = 0.5

// ErrInvalidRepresentation indicates a representation label below the
// physical minimum of 0.5.
var ErrInvalidRepresentation = errors.New("representation label below physical minimum")

// Config holds the physical constants and solver parameters. The zero
// value is not usable; start from DefaultConfig and override fields as
// needed. Tests typically use Gamma=1, PlanckLength=1 to keep magnitudes
// tractable.
type Config struct {
	// Gamma is the Immirzi parameter γ.
	Gamma float64

	// PlanckLength is the fundamental length ℓ.
	PlanckLength float64

	// MaxJ is the largest label covered by the representation table.
	// Solving beyond MaxJ is permitted but flagged as extrapolation.
	MaxJ float64

	// Tolerance is the absolute-error target of the inverse solve,
	// in units of γ·ℓ³.
	Tolerance float64
}

// DefaultConfig returns the reference constants.
func DefaultConfig() Config {
	return Config{
		Gamma:        0.2375,
		PlanckLength: 1.616e-35,
		MaxJ:         100,
		Tolerance:    1e-9,
	}
}

// UnitVolume returns γ·ℓ³, the natural volume unit of the configuration.
func (c Config) UnitVolume() float64 {
	l := c.PlanckLength
	return c.Gamma * l * l * l
}

// Eigenvalue returns the SU(2) Casimir eigenvalue j(j+1).
func Eigenvalue(j float64) float64 {
	return j * (j + 1)
}

// Dimension returns the multiplicity 2j+1 of the representation.
func Dimension(j float64) float64 {
	return 2*j + 1
}

func (c Config) mustBeValid() {
	if c.Gamma <= 0 || c.PlanckLength <= 0 {
		panic(fmt.Sprintf(
			"spin: non-positive constants gamma=%v length=%v",
			c.Gamma, c.PlanckLength))
	}

	if c.MaxJ < MinJ {
		panic(fmt.Sprintf("spin: MaxJ %v below minimum label", c.MaxJ))
	}
}
