package patch

import (
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/spingrid/quanta/diagnostics"
	"github.com/spingrid/quanta/spin"
)

func unitSolver() *spin.Solver {
	return spin.NewSolver(spin.Config{
		Gamma:        1,
		PlanckLength: 1,
		MaxJ:         100,
		Tolerance:    1e-9,
	})
}

func unitStore() *Store {
	solver := unitSolver()
	analyzer := diagnostics.NewAnalyzer(diagnostics.Config{
		PlanckLength:       1,
		UncertaintyBase:    0.01,
		ScaleCoeff:         0.1,
		ViolationThreshold: 1e-6,
		CoordinateCeiling:  1e26,
	}, solver.VolumeOf)

	return NewStore(solver, analyzer)
}

var _ = Describe("Store", func() {
	var (
		store  *Store
		target float64
	)

	BeforeEach(func() {
		store = unitStore()
		target = math.Sqrt(30) // volume eigenvalue of j=5
	})

	It("should assign strictly increasing IDs starting at 0", func() {
		for want := 0; want < 5; want++ {
			p, err := store.Create(target, [3]float64{0, 0, 0})

			Expect(err).ToNot(HaveOccurred())
			Expect(p.ID).To(Equal(want))
		}
	})

	It("should fill all derived fields on create", func() {
		p, err := store.Create(target, [3]float64{1e6, 0, 0})

		Expect(err).ToNot(HaveOccurred())
		Expect(p.J).To(BeNumerically("~", 5, 1e-3))
		Expect(p.Volume).To(BeNumerically("~", target, 1e-6))
		Expect(p.PolymerScale).To(BeNumerically(">=", 0.1))
		Expect(p.PolymerScale).To(BeNumerically("<=", 10))
		Expect(p.Violations).To(HaveLen(4))
		for _, name := range diagnostics.CheckNames {
			Expect(p.Violations).To(HaveKey(name))
		}
	})

	It("should bracket the achieved volume with the uncertainty bounds", func() {
		p, err := store.Create(target, [3]float64{1, 2, 3})

		Expect(err).ToNot(HaveOccurred())
		Expect(p.UncertaintyBounds[0]).To(BeNumerically("<=", p.Volume))
		Expect(p.UncertaintyBounds[1]).To(BeNumerically(">=", p.Volume))
	})

	It("should keep a caller-supplied polymer scale", func() {
		p, err := store.CreateWithPolymerScale(target, [3]float64{}, 2.5)

		Expect(err).ToNot(HaveOccurred())
		Expect(p.PolymerScale).To(BeNumerically("==", 2.5))
	})

	It("should not alias caller coordinates", func() {
		coords := [3]float64{1, 2, 3}
		p, err := store.Create(target, coords)
		Expect(err).ToNot(HaveOccurred())

		coords[0] = 99
		got, err := store.Get(p.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Coordinates[0]).To(BeNumerically("==", 1))
	})

	It("should not alias the violations map across lookups", func() {
		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		p.Violations[diagnostics.CheckSU2Eigenvalue] = 42

		got, err := store.Get(p.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Violations[diagnostics.CheckSU2Eigenvalue]).To(BeZero())
	})

	It("should preserve identity across updates", func() {
		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		coords := [3]float64{4, 5, 6}
		updated, err := store.Update(p.ID, PatchUpdate{Coordinates: &coords})

		Expect(err).ToNot(HaveOccurred())
		Expect(updated.ID).To(Equal(p.ID))
		Expect(updated.Coordinates).To(Equal(coords))
	})

	It("should keep label, volume, and bounds on coordinate-only updates", func() {
		p, err := store.Create(target, [3]float64{1, 0, 0})
		Expect(err).ToNot(HaveOccurred())

		coords := [3]float64{2, 0, 0}
		updated, err := store.Update(p.ID, PatchUpdate{Coordinates: &coords})

		Expect(err).ToNot(HaveOccurred())
		Expect(updated.J).To(BeNumerically("==", p.J))
		Expect(updated.Volume).To(BeNumerically("==", p.Volume))
		Expect(updated.UncertaintyBounds).To(Equal(p.UncertaintyBounds))
	})

	It("should re-derive label, volume, and bounds on a new target", func() {
		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		newTarget := math.Sqrt(0.75) // j=0.5
		updated, err := store.Update(p.ID, PatchUpdate{TargetVolume: &newTarget})

		Expect(err).ToNot(HaveOccurred())
		Expect(updated.J).To(BeNumerically("~", 0.5, 1e-3))
		Expect(updated.UncertaintyBounds).ToNot(Equal(p.UncertaintyBounds))
	})

	It("should always recompute violations on update", func() {
		p, err := store.CreateWithPolymerScale(target, [3]float64{}, 1e6)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Violations[diagnostics.CheckPolymerScaleBounds]).To(
			BeNumerically(">", 0))

		coords := [3]float64{1e6, 0, 0}
		updated, err := store.Update(p.ID, PatchUpdate{Coordinates: &coords})

		// The scale re-optimization pulls the patch back in bounds.
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Violations[diagnostics.CheckPolymerScaleBounds]).To(
			BeZero())
	})

	It("should carry all checks on the patch returned by update", func() {
		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		coords := [3]float64{4, 5, 6}
		updated, err := store.Update(p.ID, PatchUpdate{Coordinates: &coords})

		Expect(err).ToNot(HaveOccurred())
		Expect(updated.Violations).To(HaveLen(4))
		for _, name := range diagnostics.CheckNames {
			Expect(updated.Violations).To(HaveKey(name))
		}
	})

	It("should fail update for unknown IDs without touching the store", func() {
		_, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		before := store.Count()
		coords := [3]float64{1, 1, 1}
		_, err = store.Update(99, PatchUpdate{Coordinates: &coords})

		Expect(err).To(MatchError(ErrPatchNotFound))
		Expect(store.Count()).To(Equal(before))
	})

	It("should fail get for unknown IDs", func() {
		_, err := store.Get(0)

		Expect(err).To(MatchError(ErrPatchNotFound))
	})

	It("should advance UpdatedAt monotonically", func() {
		t := time.Unix(1000, 0)
		store.WithClock(func() time.Time { return t })

		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		t = t.Add(time.Second)
		coords := [3]float64{1, 0, 0}
		updated, err := store.Update(p.ID, PatchUpdate{Coordinates: &coords})

		Expect(err).ToNot(HaveOccurred())
		Expect(updated.UpdatedAt).To(Equal(p.UpdatedAt.Add(time.Second)))
		Expect(updated.CreatedAt).To(Equal(p.CreatedAt))
	})

	It("should report status with health and age", func() {
		t := time.Unix(1000, 0)
		store.WithClock(func() time.Time { return t })

		p, err := store.Create(target, [3]float64{})
		Expect(err).ToNot(HaveOccurred())

		t = t.Add(3 * time.Second)
		status, err := store.Status(p.ID)

		Expect(err).ToNot(HaveOccurred())
		Expect(status.Health).To(Equal("HEALTHY"))
		Expect(status.MaxViolation).To(BeNumerically("<", 1e-6))
		Expect(status.Age).To(Equal(3 * time.Second))
	})

	It("should classify health consistently with the violations", func() {
		p, err := store.CreateWithPolymerScale(target, [3]float64{}, 1e6)
		Expect(err).ToNot(HaveOccurred())

		status, err := store.Status(p.ID)

		Expect(err).ToNot(HaveOccurred())
		Expect(status.MaxViolation).To(BeNumerically(">=", 1e-5))
		Expect(status.Health).To(Equal("CRITICAL"))
	})

	It("should list IDs in increasing order", func() {
		for i := 0; i < 4; i++ {
			_, err := store.Create(target, [3]float64{})
			Expect(err).ToNot(HaveOccurred())
		}

		Expect(store.IDs()).To(Equal([]int{0, 1, 2, 3}))
	})

	Context("summarize", func() {
		It("should aggregate an empty store", func() {
			s := store.Summary()

			Expect(s.TotalPatches).To(Equal(0))
			Expect(s.SystemHealth).To(Equal("HEALTHY"))
			Expect(s.TotalVolume).To(BeZero())
		})

		It("should aggregate volumes and labels", func() {
			v1, err := store.Create(math.Sqrt(0.75), [3]float64{})
			Expect(err).ToNot(HaveOccurred())
			v2, err := store.Create(math.Sqrt(30), [3]float64{})
			Expect(err).ToNot(HaveOccurred())

			s := store.Summary()

			Expect(s.TotalPatches).To(Equal(2))
			Expect(s.MinJ).To(BeNumerically("~", 0.5, 1e-3))
			Expect(s.MaxJ).To(BeNumerically("~", 5, 1e-3))
			Expect(s.MeanJ).To(BeNumerically("~", 2.75, 1e-3))
			Expect(s.TotalVolume).To(BeNumerically("~", v1.Volume+v2.Volume, 1e-9))
		})

		It("should report the worst patch health as system health", func() {
			_, err := store.Create(target, [3]float64{})
			Expect(err).ToNot(HaveOccurred())
			_, err = store.CreateWithPolymerScale(target, [3]float64{}, 1e6)
			Expect(err).ToNot(HaveOccurred())

			s := store.Summary()

			Expect(s.SystemHealth).To(Equal("CRITICAL"))
			Expect(s.HealthCounts["HEALTHY"]).To(Equal(1))
			Expect(s.HealthCounts["CRITICAL"]).To(Equal(1))
			Expect(s.MaxViolation).To(BeNumerically("~", 6, 1e-9))
		})
	})

	Context("with a failing solver", func() {
		var (
			ctrl    *gomock.Controller
			solver  *MockVolumeSolver
			failing *Store
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			solver = NewMockVolumeSolver(ctrl)

			analyzer := diagnostics.NewAnalyzer(diagnostics.Config{
				PlanckLength:       1,
				UncertaintyBase:    0.01,
				ViolationThreshold: 1e-6,
			}, unitSolver().VolumeOf)

			failing = NewStore(solver, analyzer)
		})

		It("should not register a patch when the solve fails", func() {
			solver.EXPECT().
				OptimalJ(gomock.Any()).
				Return(spin.Solution{}, errors.New("solver exploded"))

			_, err := failing.Create(1, [3]float64{})

			Expect(err).To(HaveOccurred())
			Expect(failing.Count()).To(Equal(0))
		})

		It("should leave a patch untouched when a re-solve fails", func() {
			solver.EXPECT().
				OptimalJ(gomock.Any()).
				Return(spin.Solution{J: 5, Volume: math.Sqrt(30),
					Converged: true}, nil)

			p, err := failing.Create(math.Sqrt(30), [3]float64{})
			Expect(err).ToNot(HaveOccurred())

			solver.EXPECT().
				OptimalJ(gomock.Any()).
				Return(spin.Solution{}, errors.New("solver exploded"))

			badTarget := 2.0
			_, err = failing.Update(p.ID, PatchUpdate{TargetVolume: &badTarget})
			Expect(err).To(HaveOccurred())

			got, err := failing.Get(p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.J).To(BeNumerically("==", 5))
			Expect(got.Volume).To(BeNumerically("==", p.Volume))
		})
	})
})
