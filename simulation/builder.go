package simulation

import (
	"math/rand"
	"time"

	"github.com/rs/xid"

	"github.com/spingrid/quanta/datarecording"
	"github.com/spingrid/quanta/diagnostics"
	"github.com/spingrid/quanta/monitoring"
	"github.com/spingrid/quanta/patch"
	"github.com/spingrid/quanta/region"
	"github.com/spingrid/quanta/spin"
)

// clickHouseOptions carries the connection parameters of the optional
// ClickHouse recording backend.
type clickHouseOptions struct {
	host     string
	port     int
	database string
	username string
	password string
}

// Builder can be used to build a simulation.
type Builder struct {
	spinCfg        spin.Config
	threshold      float64
	maxPatches     int
	seed           int64
	seedSet        bool
	monitorOn      bool
	monitorPort    int
	outputFileName string
	recorder       datarecording.DataRecorder
	clickHouse     *clickHouseOptions
}

// MakeBuilder creates a builder with the reference constants.
func MakeBuilder() Builder {
	return Builder{
		spinCfg:    spin.DefaultConfig(),
		threshold:  1e-6,
		maxPatches: 10000,
		monitorOn:  true,
	}
}

// WithGamma sets the Immirzi parameter γ.
func (b Builder) WithGamma(gamma float64) Builder {
	b.spinCfg.Gamma = gamma
	return b
}

// WithPlanckLength sets the fundamental length ℓ.
func (b Builder) WithPlanckLength(l float64) Builder {
	b.spinCfg.PlanckLength = l
	return b
}

// WithMaxJ sets the representation-table ceiling.
func (b Builder) WithMaxJ(maxJ float64) Builder {
	b.spinCfg.MaxJ = maxJ
	return b
}

// WithTolerance sets the inverse-solve tolerance.
func (b Builder) WithTolerance(tol float64) Builder {
	b.spinCfg.Tolerance = tol
	return b
}

// WithViolationThreshold sets the health-classification threshold.
func (b Builder) WithViolationThreshold(threshold float64) Builder {
	b.threshold = threshold
	return b
}

// WithMaxPatches sets the soft patch limit enforced at region population.
func (b Builder) WithMaxPatches(n int) Builder {
	b.maxPatches = n
	return b
}

// WithSeed fixes the noise-source seed, making time evolution
// reproducible.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	b.seedSet = true
	return b
}

// WithoutMonitoring disables the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number of the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOutputFileName sets a custom output file name for the SQLite data
// recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithDataRecorder replaces the recording backend entirely. Tests use it
// with in-memory databases.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithClickHouse records to a ClickHouse server instead of a local SQLite
// file.
func (b Builder) WithClickHouse(
	host string, port int,
	database, username, password string,
) Builder {
	b.clickHouse = &clickHouseOptions{
		host:     host,
		port:     port,
		database: database,
		username: username,
		password: password,
	}
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.recorder != nil && b.clickHouse != nil {
		panic("a custom data recorder and ClickHouse cannot both be set")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{id: xid.New().String()}

	solver := spin.NewSolver(b.spinCfg)

	diagCfg := diagnostics.DefaultConfig(b.spinCfg)
	diagCfg.ViolationThreshold = b.threshold
	analyzer := diagnostics.NewAnalyzer(diagCfg, solver.VolumeOf)

	s.solver = solver
	s.store = patch.NewStore(solver, analyzer)

	seed := b.seed
	if !b.seedSet {
		seed = time.Now().UnixNano()
	}
	noise := rand.New(rand.NewSource(seed))

	s.dataRecorder = b.buildRecorder(s.id)

	s.orchestrator = region.NewOrchestrator(s.store, noise, b.maxPatches).
		WithRecorder(s.dataRecorder)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterPatchSource(s.store)
		s.monitor.StartServer()
	}

	return s
}

func (b Builder) buildRecorder(id string) datarecording.DataRecorder {
	if b.recorder != nil {
		return b.recorder
	}

	if b.clickHouse != nil {
		return datarecording.NewClickHouseRecorder(
			b.clickHouse.host, b.clickHouse.port,
			b.clickHouse.database, b.clickHouse.username,
			b.clickHouse.password, 0)
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "quanta_run_" + id
	}

	return datarecording.NewRecorder(outputPath)
}
