// Package datarecording persists patch snapshots and time-evolution
// statistics for offline inspection. The default backend batches rows
// into a local SQLite database; a ClickHouse backend is available for
// long runs.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Recording uses SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store run data.
type DataRecorder interface {
	// CreateTable creates a table shaped like the sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all created tables.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush()
}

// NewRecorder creates a SQLite-backed DataRecorder writing to
// path+".sqlite3". An empty path picks a unique run name. Buffered data
// is flushed at exit.
func NewRecorder(path string) DataRecorder {
	w := &sqliteWriter{
		dbName:    path,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	w.open()

	atexit.Register(func() { w.Flush() })

	return w
}

// NewRecorderWithDB creates a DataRecorder over an existing database
// connection. Tests use it with in-memory databases.
func NewRecorderWithDB(db *sql.DB) DataRecorder {
	w := &sqliteWriter{
		DB:        db,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { w.Flush() })

	return w
}

type table struct {
	structType reflect.Type
	entries    []any
}

// sqliteWriter batches entries in memory and writes them to SQLite in
// transactions.
type sqliteWriter struct {
	*sql.DB

	dbName     string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

func (w *sqliteWriter) open() {
	if w.dbName == "" {
		w.dbName = "quanta_run_" + xid.New().String()
	}

	filename := w.dbName + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("recording file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Recording run data to: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	w.DB = db
}

// CreateTable creates a table whose columns are the flat scalar fields of
// the sample entry. Nested or reference-typed fields are rejected.
func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	mustBeFlatStruct(sampleEntry)

	fields := strings.Join(structs.Names(sampleEntry), ", \n\t")
	w.mustExecute(`CREATE TABLE ` + tableName + ` (` + "\n\t" + fields + "\n);")

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
	}
}

// InsertData buffers one entry. The buffer is flushed once it reaches the
// batch size.
func (w *sqliteWriter) InsertData(tableName string, entry any) {
	t, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("entry type %T does not match table %s",
			entry, tableName))
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.Flush()
	}
}

// ListTables returns the names of all created tables.
func (w *sqliteWriter) ListTables() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	return names
}

// Flush writes all buffered entries in one transaction.
func (w *sqliteWriter) Flush() {
	if w.entryCount == 0 {
		return
	}

	w.mustExecute("BEGIN TRANSACTION")
	defer w.mustExecute("COMMIT TRANSACTION")

	for tableName, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}

		stmt := w.prepareInsert(tableName, t.entries[0])

		for _, entry := range t.entries {
			v := reflect.ValueOf(entry)

			args := make([]any, 0, v.NumField())
			for i := 0; i < v.NumField(); i++ {
				args = append(args, v.Field(i).Interface())
			}

			if _, err := stmt.Exec(args...); err != nil {
				panic(err)
			}
		}

		t.entries = nil
		stmt.Close()
	}

	w.entryCount = 0
}

func (w *sqliteWriter) prepareInsert(tableName string, sample any) *sql.Stmt {
	placeholders := structs.Names(sample)
	for i := range placeholders {
		placeholders[i] = "?"
	}

	stmt, err := w.Prepare("INSERT INTO " + tableName +
		" VALUES (" + strings.Join(placeholders, ", ") + ")")
	if err != nil {
		panic(err)
	}

	return stmt
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}

	return res
}

func mustBeFlatStruct(entry any) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("entry %T is not a struct", entry))
	}

	for i := 0; i < t.NumField(); i++ {
		switch t.Field(i).Type.Kind() {
		case reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16,
			reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16,
			reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64,
			reflect.String:
		default:
			panic(fmt.Sprintf("field %s of %T is not a flat scalar",
				t.Field(i).Name, entry))
		}
	}
}
