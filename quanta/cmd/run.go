package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spingrid/quanta/region"
	"github.com/spingrid/quanta/simulation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Populate a demo region and evolve it through time.",
	Long: `run populates a region with a Gaussian-blob volume density, ` +
		`advances it through the requested number of time steps, and prints ` +
		`the final system summary as JSON. Physical constants can be set ` +
		`through QUANTA_GAMMA and QUANTA_PLANCK_LENGTH (a .env file is ` +
		`honored).`,
	Run: runRegion,
}

func init() {
	runCmd.Flags().Int("resolution", 8, "grid points per axis")
	runCmd.Flags().Int("steps", 10, "number of time steps")
	runCmd.Flags().Float64("time-step", 1.0, "simulated time per step")
	runCmd.Flags().Int64("seed", 0, "noise seed (0 uses the clock)")
	runCmd.Flags().Int("max-patches", 10000, "patch limit at population")
	runCmd.Flags().Float64("box-half-width", 100,
		"half-width of the region box, in Planck lengths")
	runCmd.Flags().Bool("monitor", false, "start the monitoring server")
	runCmd.Flags().Int("monitor-port", 0, "monitoring server port")
	runCmd.Flags().Bool("open-dashboard", false,
		"open the monitor in a browser")
	runCmd.Flags().String("output", "", "output file name for run data")

	rootCmd.AddCommand(runCmd)
}

func runRegion(cmd *cobra.Command, _ []string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	builder := simulation.MakeBuilder()

	if gamma, ok := envFloat("QUANTA_GAMMA"); ok {
		builder = builder.WithGamma(gamma)
	}

	if l, ok := envFloat("QUANTA_PLANCK_LENGTH"); ok {
		builder = builder.WithPlanckLength(l)
	}

	maxPatches, _ := cmd.Flags().GetInt("max-patches")
	builder = builder.WithMaxPatches(maxPatches)

	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		builder = builder.WithSeed(seed)
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		builder = builder.WithOutputFileName(output)
	}

	monitorOn, _ := cmd.Flags().GetBool("monitor")
	if monitorOn {
		if port, _ := cmd.Flags().GetInt("monitor-port"); port > 0 {
			builder = builder.WithMonitorPort(port)
		}
	} else {
		builder = builder.WithoutMonitoring()
	}

	s := builder.Build()

	if open, _ := cmd.Flags().GetBool("open-dashboard"); open && monitorOn {
		if err := s.GetMonitor().OpenDashboard(); err != nil {
			log.Printf("warning: could not open dashboard: %v", err)
		}
	}

	halfWidth, _ := cmd.Flags().GetFloat64("box-half-width")
	halfWidth *= s.GetSolver().Config().PlanckLength

	bounds := region.Bounds{
		Min: [3]float64{-halfWidth, -halfWidth, -halfWidth},
		Max: [3]float64{halfWidth, halfWidth, halfWidth},
	}

	resolution, _ := cmd.Flags().GetInt("resolution")

	created, err := s.PopulateRegion(gaussianBlob(halfWidth), bounds, resolution)
	if err != nil {
		log.Fatalf("population failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Created %d patches\n", len(created))

	steps, _ := cmd.Flags().GetInt("steps")
	timeStep, _ := cmd.Flags().GetFloat64("time-step")

	total := region.AdvanceResult{}

	var bar func(int)
	if monitorOn {
		pb := s.GetMonitor().CreateProgressBar("advance", uint64(steps))
		defer s.GetMonitor().CompleteProgressBar(pb)
		bar = func(int) { pb.IncrementFinished(1) }
	} else {
		bar = func(int) {}
	}

	for step := 0; step < steps; step++ {
		result, err := s.Advance(timeStep, 1)
		if err != nil {
			log.Fatalf("advance failed at step %d: %v", step, err)
		}

		total.PatchesUpdated += result.PatchesUpdated
		total.ViolationsDetected += result.ViolationsDetected
		bar(step)
	}

	fmt.Fprintf(os.Stderr, "Updated %d patches, %d violation events\n",
		total.PatchesUpdated, total.ViolationsDetected)

	s.Terminate()

	summary, err := json.MarshalIndent(s.SystemSummary(), "", "  ")
	if err != nil {
		log.Fatalf("could not marshal summary: %v", err)
	}

	fmt.Println(string(summary))
}

// gaussianBlob builds a density peaked at the region center, fading to
// (strictly positive) tails at the box boundary.
func gaussianBlob(halfWidth float64) region.DensityFunc {
	sigma := halfWidth / 2

	return func(coords [3]float64) float64 {
		r2 := coords[0]*coords[0] + coords[1]*coords[1] + coords[2]*coords[2]
		return math.Exp(-r2 / (2 * sigma * sigma))
	}
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("warning: ignoring %s=%q: %v", name, raw, err)
		return 0, false
	}

	return v, true
}
