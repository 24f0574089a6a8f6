package datarecording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/tebeka/atexit"
)

// ClickHouseRecorder is a typed-batch DataRecorder backed by ClickHouse,
// intended for long runs where a local SQLite file becomes unwieldy. It
// avoids reflection by keeping one typed buffer per table.
type ClickHouseRecorder struct {
	conn      clickhouse.Conn
	mu        sync.Mutex
	batchSize int

	snapshotBatch []PatchSnapshot
	stepBatch     []StepStats

	tables map[string]struct{}

	entryCount int
}

// NewClickHouseRecorder connects to a ClickHouse server with the native
// protocol. batchSize 0 picks the default.
func NewClickHouseRecorder(
	host string, port int,
	database, username, password string,
	batchSize int,
) *ClickHouseRecorder {
	if batchSize == 0 {
		batchSize = 100000
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		panic(fmt.Errorf("failed to connect to ClickHouse: %w", err))
	}

	if err := conn.Ping(context.Background()); err != nil {
		panic(fmt.Errorf("failed to ping ClickHouse: %w", err))
	}

	r := &ClickHouseRecorder{
		conn:      conn,
		batchSize: batchSize,
		tables:    make(map[string]struct{}),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

// CreateTable creates one of the two recording tables. Only the patch
// snapshot and step statistics tables are supported; the sample entry is
// accepted for interface compatibility with the SQLite backend.
func (r *ClickHouseRecorder) CreateTable(tableName string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var createSQL string
	switch tableName {
	case PatchSnapshotTable:
		createSQL = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			PatchID Int64,
			J Float64,
			Volume Float64,
			PolymerScale Float64,
			X Float64,
			Y Float64,
			Z Float64,
			MaxViolation Float64,
			Health String,
			Step Int64
		) ENGINE = MergeTree() ORDER BY (Step, PatchID)`
	case StepStatsTable:
		createSQL = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			Step Int64,
			TimeStep Float64,
			PatchesUpdated Int64,
			ViolationsDetected Int64
		) ENGINE = MergeTree() ORDER BY Step`
	default:
		panic(fmt.Sprintf("unsupported ClickHouse table %s", tableName))
	}

	if err := r.conn.Exec(context.Background(), createSQL); err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}

	r.tables[tableName] = struct{}{}
}

// InsertData buffers one entry, flushing once the batch size is reached.
func (r *ClickHouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()

	if _, ok := r.tables[tableName]; !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	switch e := entry.(type) {
	case PatchSnapshot:
		r.snapshotBatch = append(r.snapshotBatch, e)
	case StepStats:
		r.stepBatch = append(r.stepBatch, e)
	default:
		r.mu.Unlock()
		panic(fmt.Sprintf("entry type %T does not match table %s",
			entry, tableName))
	}

	r.entryCount++
	full := r.entryCount >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// ListTables returns the names of all created tables.
func (r *ClickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	return names
}

// Flush sends all buffered batches.
func (r *ClickHouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()

	if len(r.snapshotBatch) > 0 {
		batch, err := r.conn.PrepareBatch(ctx,
			"INSERT INTO "+PatchSnapshotTable)
		if err != nil {
			panic(err)
		}

		for _, e := range r.snapshotBatch {
			err = batch.Append(int64(e.PatchID), e.J, e.Volume,
				e.PolymerScale, e.X, e.Y, e.Z,
				e.MaxViolation, e.Health, int64(e.Step))
			if err != nil {
				panic(err)
			}
		}

		if err := batch.Send(); err != nil {
			panic(err)
		}

		r.snapshotBatch = nil
	}

	if len(r.stepBatch) > 0 {
		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+StepStatsTable)
		if err != nil {
			panic(err)
		}

		for _, e := range r.stepBatch {
			err = batch.Append(int64(e.Step), e.TimeStep,
				int64(e.PatchesUpdated), int64(e.ViolationsDetected))
			if err != nil {
				panic(err)
			}
		}

		if err := batch.Send(); err != nil {
			panic(err)
		}

		r.stepBatch = nil
	}

	r.entryCount = 0
}
