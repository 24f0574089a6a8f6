package datarecording

// Table names used by the region orchestrator.
const (
	PatchSnapshotTable = "patch_snapshots"
	StepStatsTable     = "step_stats"
)

// A PatchSnapshot is one recorded patch state. Populate records a
// snapshot at creation (step 0); tooling can record more along the run.
type PatchSnapshot struct {
	PatchID      int
	J            float64
	Volume       float64
	PolymerScale float64
	X            float64
	Y            float64
	Z            float64
	MaxViolation float64
	Health       string
	Step         int
}

// StepStats is the per-step outcome of an Advance call.
type StepStats struct {
	Step               int
	TimeStep           float64
	PatchesUpdated     int
	ViolationsDetected int
}
