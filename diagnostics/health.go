package diagnostics

// Health classifies a patch by its worst current violation magnitude.
type Health int

const (
	// Healthy means every violation is below the threshold.
	Healthy Health = iota

	// Warning means the worst violation is within 10x the threshold.
	Warning

	// Critical means the worst violation is at least 10x the threshold.
	Critical
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "HEALTHY"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Classify maps the worst violation magnitude to a health level.
func Classify(maxViolation, threshold float64) Health {
	switch {
	case maxViolation < threshold:
		return Healthy
	case maxViolation < 10*threshold:
		return Warning
	default:
		return Critical
	}
}

// Worse returns the worse of two health levels.
func Worse(a, b Health) Health {
	if a > b {
		return a
	}
	return b
}

// MaxViolation returns the largest magnitude in a violation map, or 0 for
// an empty map.
func MaxViolation(violations map[string]float64) float64 {
	max := 0.0
	for _, v := range violations {
		if v > max {
			max = v
		}
	}
	return max
}
