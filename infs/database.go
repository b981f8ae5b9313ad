// Package infs wires the file system stores of a data root into per type data managers.
package infs

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"

	"github.com/packdb/packdb"
	"github.com/packdb/packdb/common"
	"github.com/packdb/packdb/encoding"
	"github.com/packdb/packdb/fs"
)

// Config is the configuration of a data root together with its storage plumbing.
type Config struct {
	packdb.Options
	// FileIO overrides the OS file provider, e.g. to inject faults in tests.
	FileIO fs.FileIO
	// Marshaler overrides the file codec. Defaults to encoding.DefaultMarshaler.
	Marshaler encoding.Marshaler
}

// Database is an open data root. Every type registered on it shares one lock table.
type Database struct {
	options packdb.Options
	files   *fs.StagedFileStore

	mu    sync.Mutex
	types map[string]struct{}
}

// Open validates cfg, creates the data folder if needed and returns the database over it.
func Open(cfg Config) (*Database, error) {
	opts := cfg.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, packdb.Error{Code: packdb.FileIOError, Err: err, UserData: opts.DataDir}
	}
	log.Debug("data root opened", "dir", opts.DataDir, "lock_timeout", opts.LockTimeout)
	return &Database{
		options: opts,
		files:   fs.NewStagedFileStore(cfg.FileIO, cfg.Marshaler, opts.LockTimeout),
		types:   make(map[string]struct{}),
	}, nil
}

// Options returns the validated options of the database.
func (db *Database) Options() packdb.Options {
	return db.options
}

// Types lists the registered type names.
func (db *Database) Types() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.types))
	for n := range db.types {
		names = append(names, n)
	}
	return names
}

func (db *Database) register(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.types[name]; ok {
		return fmt.Errorf("type %s is already registered", name)
	}
	db.types[name] = struct{}{}
	return nil
}

// NewDataManager registers schema's type on db and returns its data manager.
func NewDataManager[T packdb.Record](db *Database, schema *packdb.Schema[T]) (*common.DataManager[T], error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := db.register(schema.Name); err != nil {
		return nil, err
	}
	root := db.options.DataDir
	records := fs.NewRecordStore(db.files, root, schema, db.options.Rollback, db.options.OnPoison)
	indexes := fs.NewIndexStore(db.files, root, schema)
	var audit common.AuditWorker[T]
	if schema.Audited {
		audit = fs.NewAuditStore(db.files, root, schema, packdb.NewAuditGenerator(schema))
	}
	return common.NewDataManager(schema, records, indexes, audit)
}
