package simulation_test

import (
	"database/sql"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spingrid/quanta/datarecording"
	"github.com/spingrid/quanta/patch"
	"github.com/spingrid/quanta/region"
	"github.com/spingrid/quanta/simulation"
)

func buildTestSimulation() *simulation.Simulation {
	db, err := sql.Open("sqlite3", ":memory:")
	Expect(err).ToNot(HaveOccurred())

	return simulation.MakeBuilder().
		WithGamma(1).
		WithPlanckLength(1).
		WithMaxJ(100).
		WithSeed(42).
		WithMaxPatches(100).
		WithoutMonitoring().
		WithDataRecorder(datarecording.NewRecorderWithDB(db)).
		Build()
}

var _ = Describe("Simulation", func() {
	var s *simulation.Simulation

	BeforeEach(func() {
		s = buildTestSimulation()
	})

	It("should assign a run ID", func() {
		Expect(s.ID()).ToNot(BeEmpty())
	})

	It("should create, update, and report patches end to end", func() {
		p, err := s.CreatePatch(math.Sqrt(30), [3]float64{1, 2, 3})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.ID).To(Equal(0))
		Expect(p.J).To(BeNumerically("~", 5, 1e-3))

		coords := [3]float64{4, 5, 6}
		updated, err := s.UpdatePatch(p.ID,
			patch.PatchUpdate{Coordinates: &coords})
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.ID).To(Equal(p.ID))

		status, err := s.PatchStatus(p.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(status.Health).To(Equal("HEALTHY"))

		summary := s.SystemSummary()
		Expect(summary.TotalPatches).To(Equal(1))
		Expect(summary.SystemHealth).To(Equal("HEALTHY"))
	})

	It("should populate and advance a region", func() {
		created, err := s.PopulateRegion(
			func([3]float64) float64 { return 1 },
			region.Bounds{Max: [3]float64{1, 1, 1}},
			3)
		Expect(err).ToNot(HaveOccurred())
		Expect(created).To(HaveLen(27))

		result, err := s.Advance(1.0, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.PatchesUpdated).To(Equal(54))

		s.Terminate()
	})

	It("should honor the patch limit", func() {
		db, err := sql.Open("sqlite3", ":memory:")
		Expect(err).ToNot(HaveOccurred())

		limited := simulation.MakeBuilder().
			WithGamma(1).
			WithPlanckLength(1).
			WithSeed(1).
			WithMaxPatches(10).
			WithoutMonitoring().
			WithDataRecorder(datarecording.NewRecorderWithDB(db)).
			Build()

		created, err := limited.PopulateRegion(
			func([3]float64) float64 { return 1 },
			region.Bounds{Max: [3]float64{1, 1, 1}},
			3)
		Expect(err).ToNot(HaveOccurred())
		Expect(created).To(HaveLen(10))
	})

	It("should panic when a monitor port is set without monitoring", func() {
		Expect(func() {
			simulation.MakeBuilder().
				WithoutMonitoring().
				WithMonitorPort(8080).
				Build()
		}).To(Panic())
	})

	It("should expose its components", func() {
		Expect(s.GetStore()).ToNot(BeNil())
		Expect(s.GetSolver()).ToNot(BeNil())
		Expect(s.GetOrchestrator()).ToNot(BeNil())
		Expect(s.GetDataRecorder()).ToNot(BeNil())
		Expect(s.GetMonitor()).To(BeNil())
	})
})
