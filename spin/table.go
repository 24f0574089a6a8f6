package spin

import "math"

// A Rep is one precomputed SU(2) representation.
type Rep struct {
	J          float64
	Eigenvalue float64
	Dimension  float64
}

// A Table precomputes the representations for half-integer labels in
// [0.5, MaxJ]. It is immutable after construction.
type Table struct {
	reps []Rep
	maxJ float64
}

// NewTable builds the representation table. maxJ is rounded down to the
// nearest half-integer; values below 0.5 yield a single-entry table.
func NewTable(maxJ float64) *Table {
	if maxJ < MinJ {
		maxJ = MinJ
	}

	n := int(math.Floor(maxJ*2)) - int(MinJ*2) + 1
	reps := make([]Rep, 0, n)

	for i := 0; i < n; i++ {
		j := MinJ + float64(i)*0.5
		reps = append(reps, Rep{
			J:          j,
			Eigenvalue: Eigenvalue(j),
			Dimension:  Dimension(j),
		})
	}

	return &Table{
		reps: reps,
		maxJ: reps[len(reps)-1].J,
	}
}

// Rep looks up the representation with the given label. The second return
// value is false if j is not a half-integer in range.
func (t *Table) Rep(j float64) (Rep, bool) {
	idx := int(math.Round(j*2)) - int(MinJ*2)
	if idx < 0 || idx >= len(t.reps) {
		return Rep{}, false
	}

	r := t.reps[idx]
	if math.Abs(r.J-j) > 1e-9 {
		return Rep{}, false
	}

	return r, true
}

// Len returns the number of representations in the table.
func (t *Table) Len() int {
	return len(t.reps)
}

// MaxJ returns the largest label covered by the table.
func (t *Table) MaxJ() float64 {
	return t.maxJ
}

// Reps returns a copy of all representations in increasing-j order.
func (t *Table) Reps() []Rep {
	out := make([]Rep, len(t.reps))
	copy(out, t.reps)
	return out
}
