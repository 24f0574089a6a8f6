package spin

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// unitConfig keeps magnitudes tractable in tests.
func unitConfig() Config {
	return Config{
		Gamma:        1,
		PlanckLength: 1,
		MaxJ:         100,
		Tolerance:    1e-9,
	}
}

var _ = Describe("Solver", func() {
	var s *Solver

	BeforeEach(func() {
		s = NewSolver(unitConfig())
	})

	It("should compute the volume eigenvalue", func() {
		v, err := s.VolumeOf(5)

		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(BeNumerically("~", math.Sqrt(30), 1e-12))
	})

	It("should reject labels below 0.5", func() {
		_, err := s.VolumeOf(0.4)

		Expect(err).To(MatchError(ErrInvalidRepresentation))
	})

	It("should precompute a table consistent with the volume eigenvalue", func() {
		table := s.Table()

		Expect(table.MaxJ()).To(BeNumerically("==", unitConfig().MaxJ))
		for _, rep := range table.Reps() {
			v, err := s.VolumeOf(rep.J)

			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(BeNumerically("~", math.Sqrt(rep.Eigenvalue), 1e-12))
		}
	})

	It("should be strictly increasing in j", func() {
		prev := -1.0
		for j := 0.5; j <= 50; j += 0.5 {
			v, err := s.VolumeOf(j)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(BeNumerically(">", prev))
			prev = v
		}
	})

	It("should scale with the configured constants", func() {
		big := NewSolver(Config{
			Gamma:        2,
			PlanckLength: 3,
			MaxJ:         100,
		})

		v, err := big.VolumeOf(0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(BeNumerically("~", 2*27*math.Sqrt(0.75), 1e-9))
	})

	It("should recover j=0.5 for the minimal volume eigenvalue", func() {
		target := math.Sqrt(0.75)

		sol, err := s.OptimalJ(target)

		Expect(err).ToNot(HaveOccurred())
		Expect(sol.J).To(BeNumerically("~", 0.5, 1e-6))
		Expect(sol.Converged).To(BeTrue())
	})

	It("should recover j=5 from its volume eigenvalue", func() {
		target := math.Sqrt(30)

		sol, err := s.OptimalJ(target)

		Expect(err).ToNot(HaveOccurred())
		Expect(sol.J).To(BeNumerically(">=", 4.999))
		Expect(sol.J).To(BeNumerically("<=", 5.001))
		Expect(sol.Converged).To(BeTrue())
		Expect(sol.Extrapolated).To(BeFalse())
	})

	It("should round-trip targets across the representable range", func() {
		for j := 0.5; j <= 90; j += 7.25 {
			target, err := s.VolumeOf(j)
			Expect(err).ToNot(HaveOccurred())

			sol, err := s.OptimalJ(target)
			Expect(err).ToNot(HaveOccurred())
			Expect(sol.AbsError).To(BeNumerically("<=", 1e-6))
		}
	})

	It("should degrade to the boundary solution for non-positive targets", func() {
		for _, target := range []float64{0, -1, -1e10} {
			sol, err := s.OptimalJ(target)

			Expect(err).ToNot(HaveOccurred())
			Expect(sol.J).To(BeNumerically("==", 0.5))
			Expect(sol.Volume).To(BeNumerically("~", math.Sqrt(0.75), 1e-12))
		}
	})

	It("should flag extrapolation beyond MaxJ without failing", func() {
		target, err := s.VolumeOf(200)
		Expect(err).ToNot(HaveOccurred())

		sol, err := s.OptimalJ(target)

		Expect(err).ToNot(HaveOccurred())
		Expect(sol.Extrapolated).To(BeTrue())
		Expect(sol.J).To(BeNumerically("~", 200, 0.01))
	})

	It("should reject non-finite targets", func() {
		_, err := s.OptimalJ(math.NaN())
		Expect(err).To(HaveOccurred())

		_, err = s.OptimalJ(math.Inf(1))
		Expect(err).To(HaveOccurred())
	})

	It("should solve with the reference constants", func() {
		ref := NewSolver(DefaultConfig())

		target := ref.Config().UnitVolume() * math.Sqrt(30)
		sol, err := ref.OptimalJ(target)

		Expect(err).ToNot(HaveOccurred())
		Expect(sol.J).To(BeNumerically(">=", 4.999))
		Expect(sol.J).To(BeNumerically("<=", 5.001))
	})
})
