// Package monitoring turns a running region into a small web server so
// the patch collection can be inspected while a simulation is in flight.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/spingrid/quanta/patch"
)

// A PatchSource exposes the patch collection being monitored. It is
// satisfied by *patch.Store.
type PatchSource interface {
	IDs() []int
	Get(id int) (patch.Patch, error)
	Status(id int) (patch.Status, error)
	Summary() patch.Summary
}

// Monitor serves the state of a patch collection over HTTP.
type Monitor struct {
	source     PatchSource
	portNumber int
	url        string

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000
// are rejected and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server. "+
				"Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterPatchSource registers the patch collection to monitor.
func (m *Monitor) RegisterPatchSource(s PatchSource) {
	m.source = s
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a finished bar from the listing.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router builds the API routes.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/summary", m.summary)
	r.HandleFunc("/api/patches", m.listPatches)
	r.HandleFunc("/api/patch/{id}", m.patchStatus)
	r.HandleFunc("/api/patch/{id}/inspect", m.inspectPatch)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server, on a random port unless
// one is configured.
func (m *Monitor) StartServer() {
	if m.source == nil {
		panic("monitoring: no patch source registered")
	}

	http.Handle("/", m.Router())

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.url = fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring region with %s\n", m.url)

	go func() {
		err := http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

// OpenDashboard opens the monitor URL in the default browser. The server
// must have been started.
func (m *Monitor) OpenDashboard() error {
	if m.url == "" {
		return errors.New("monitoring server is not running")
	}

	return browser.OpenURL(m.url + "/api/summary")
}

func (m *Monitor) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.source.Summary())
}

func (m *Monitor) listPatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.source.IDs())
}

func (m *Monitor) patchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := m.patchIDOr404(w, r)
	if !ok {
		return
	}

	status, err := m.source.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, status)
}

func (m *Monitor) inspectPatch(w http.ResponseWriter, r *http.Request) {
	id, ok := m.patchIDOr404(w, r)
	if !ok {
		return
	}

	p, err := m.source.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p)
	serializer.SetMaxDepth(2)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) patchIDOr404(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patch id", http.StatusNotFound)
		return 0, false
	}

	return id, true
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memory, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

type profileRsp struct {
	DurationNanos int64 `json:"duration_nanos"`
	SampleCount   int   `json:"sample_count"`
	FunctionCount int   `json:"function_count"`
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, profileRsp{
		DurationNanos: prof.DurationNanos,
		SampleCount:   len(prof.Sample),
		FunctionCount: len(prof.Function),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
