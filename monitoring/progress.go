package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tracks the progress of a long-running population or
// evolution pass.
type ProgressBar struct {
	sync.Mutex
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
}

// IncrementFinished adds a certain amount to the finished count.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// Fraction returns the completed fraction in [0, 1].
func (b *ProgressBar) Fraction() float64 {
	b.Lock()
	defer b.Unlock()

	if b.Total == 0 {
		return 0
	}

	return float64(b.Finished) / float64(b.Total)
}
