package filesdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/calvinalkan/filesdb/pkg/fs"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// indexFileName is the per-table identifier list. It cannot collide with
	// a record file because file identifiers are never empty.
	indexFileName = ".json"
	recordExt     = ".json"
)

// Record is one stored row: column name to value. Values read back from disk
// are int64 for integral numbers, float64 for other numbers, string, bool,
// nil, []any or map[string]any.
type Record map[string]any

// Match is one query result: the record and the identifier of its file.
type Match struct {
	ID     string
	Record Record
}

// TableSchema describes a registered table.
type TableSchema struct {
	// Name is the table name as passed to CreateTable.
	Name string

	// Qualified is the prefixed name used on disk and in the meta document.
	Qualified string

	Columns map[string]ColumnType
	Key     KeyPolicy

	// NextID is the next auto-increment identifier. Unused for natural keys.
	NextID int64
}

// DB is a handle on one storage root.
//
// All methods are safe for concurrent use. In [ModeBlocking] operations are
// serialized. In [ModeSuspending] they interleave at filesystem calls and
// concurrent writers to the same table may lose index updates.
type DB struct {
	cfg      Config
	fs       fs.FS
	log      *slog.Logger
	exec     executor
	metaPath string
	lock     *fs.Lock

	// opMu is held for a whole operation in ModeBlocking.
	opMu sync.Mutex

	// mu guards meta and closed. It is never held across a filesystem call
	// made through exec.
	mu     sync.Mutex
	meta   *metaDoc
	closed bool
}

// Open prepares the storage root and loads (or creates) the meta document.
//
// A missing root directory is created. A root that exists but is not a
// directory, or a meta document that cannot be read or decoded, yields
// [ErrStorageUnavailable].
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}

	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fsys := cfg.FS

	if err := prepareRoot(fsys, cfg.Root); err != nil {
		return nil, withContext(err, "", "")
	}

	var lock *fs.Lock

	if cfg.Exclusive {
		var err error

		lock, err = fs.NewLocker(fsys).TryLock(filepath.Join(cfg.Root, lockFileName))
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", cfg.Root, err)
		}
	}

	metaPath := filepath.Join(cfg.Root, cfg.MetaFile)

	meta, err := loadOrCreateMeta(fsys, metaPath, cfg.Meta)
	if err != nil {
		if lock != nil {
			err = errors.Join(err, lock.Close())
		}

		return nil, withContext(err, "", "")
	}

	db := &DB{
		cfg:      cfg,
		fs:       fsys,
		log:      cfg.Logger,
		exec:     newExecutor(cfg.Mode),
		metaPath: metaPath,
		lock:     lock,
		meta:     meta,
	}

	db.log.Debug("opened storage",
		"root", cfg.Root,
		"mode", cfg.Mode.String(),
		"tables", len(meta.tables))

	return db, nil
}

func prepareRoot(fsys fs.FS, root string) error {
	info, err := fsys.Stat(root)

	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrStorageUnavailable, root)
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := fsys.MkdirAll(root, dirPerm); err != nil {
			return fmt.Errorf("%w: creating root: %w", ErrStorageUnavailable, err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}

func loadOrCreateMeta(fsys fs.FS, path string, override map[string]any) (*metaDoc, error) {
	data, err := fsys.ReadFile(path)
	if err == nil {
		meta, err := decodeMeta(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, path, err)
		}

		return meta, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading meta: %w", ErrStorageUnavailable, err)
	}

	meta, err := metaFromOverride(override)
	if err != nil {
		return nil, fmt.Errorf("invalid Config.Meta: %w", err)
	}

	data, err = meta.encode()
	if err != nil {
		return nil, fmt.Errorf("encoding meta: %w", err)
	}

	if err := fsys.WriteFileAtomic(path, data, filePerm); err != nil {
		return nil, fmt.Errorf("%w: creating meta: %w", ErrStorageUnavailable, err)
	}

	return meta, nil
}

// Close stops the handle. It waits for the operation or filesystem call in
// flight and releases the exclusive lock. Close is idempotent.
func (db *DB) Close() error {
	if db.cfg.Mode == ModeBlocking {
		db.opMu.Lock()
		defer db.opMu.Unlock()
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()

		return nil
	}

	db.closed = true
	db.mu.Unlock()

	db.exec.close()

	if db.lock != nil {
		if err := db.lock.Close(); err != nil {
			return fmt.Errorf("releasing lock: %w", err)
		}
	}

	db.log.Debug("closed storage", "root", db.cfg.Root)

	return nil
}

// Root returns the storage directory.
func (db *DB) Root() string {
	return db.cfg.Root
}

// Mode returns the execution mode the handle was opened with.
func (db *DB) Mode() Mode {
	return db.cfg.Mode
}

// Tables returns the registered table names, without prefix, in creation order.
func (db *DB) Tables() ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, withContext(ErrClosed, "", "")
	}

	names := make([]string, 0, len(db.meta.tables))
	for _, q := range db.meta.tables {
		names = append(names, strings.TrimPrefix(q, db.meta.prefix))
	}

	return names, nil
}

// Schema returns the registered definition of table.
func (db *DB) Schema(table string) (TableSchema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	qualified := db.meta.prefix + table

	if db.closed {
		return TableSchema{}, withContext(ErrClosed, qualified, "")
	}

	entry, ok := db.meta.entries[qualified]
	if !ok {
		return TableSchema{}, withContext(ErrTableNotFound, qualified, "")
	}

	return TableSchema{
		Name:      table,
		Qualified: qualified,
		Columns:   maps.Clone(entry.columns),
		Key:       entry.key,
		NextID:    entry.next,
	}, nil
}

// begin checks the handle is open and, in blocking mode, takes the operation
// lock. The returned func releases it.
func (db *DB) begin(ctx context.Context) (func(), error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release := func() {}

	if db.cfg.Mode == ModeBlocking {
		db.opMu.Lock()
		release = db.opMu.Unlock
	}

	db.mu.Lock()
	closed := db.closed
	db.mu.Unlock()

	if closed {
		release()

		return nil, ErrClosed
	}

	return release, nil
}

func (db *DB) qualify(table string) string {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.meta.prefix + table
}

// lookup returns a snapshot of a table entry.
func (db *DB) lookup(qualified string) (tableEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, ok := db.meta.entries[qualified]
	if !ok {
		return tableEntry{}, ErrTableNotFound
	}

	return *entry, nil
}

func (db *DB) tableDir(qualified string) string {
	return filepath.Join(db.cfg.Root, qualified)
}

func (db *DB) indexPath(qualified string) string {
	return filepath.Join(db.cfg.Root, qualified, indexFileName)
}

func (db *DB) recordPath(qualified, id string) string {
	return filepath.Join(db.cfg.Root, qualified, id+recordExt)
}

// --- suspension points ---

// persistMeta encodes the document on the I/O side of the executor, so the
// last write always carries the newest state.
func (db *DB) persistMeta(ctx context.Context) error {
	err := db.exec.do(ctx, func() error {
		db.mu.Lock()
		data, err := db.meta.encode()
		db.mu.Unlock()

		if err != nil {
			return fmt.Errorf("encoding meta: %w", err)
		}

		return db.fs.WriteFileAtomic(db.metaPath, data, filePerm)
	})
	if err != nil {
		return storageError(ctx, "writing meta", err)
	}

	return nil
}

// storageError tags err as ErrStorageUnavailable unless it is the caller's
// cancellation or the handle closing underneath it.
func storageError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, ErrClosed) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func (db *DB) readFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte

	err := db.exec.do(ctx, func() error {
		var err error

		data, err = db.fs.ReadFile(path)

		return err
	})

	return data, err
}

func (db *DB) writeFile(ctx context.Context, path string, data []byte) error {
	return db.exec.do(ctx, func() error {
		return db.fs.WriteFileAtomic(path, data, filePerm)
	})
}

func (db *DB) removeFile(ctx context.Context, path string) error {
	return db.exec.do(ctx, func() error {
		return db.fs.Remove(path)
	})
}

func (db *DB) mkdir(ctx context.Context, path string) error {
	return db.exec.do(ctx, func() error {
		return db.fs.MkdirAll(path, dirPerm)
	})
}

func (db *DB) exists(ctx context.Context, path string) (bool, error) {
	var ok bool

	err := db.exec.do(ctx, func() error {
		var err error

		ok, err = db.fs.Exists(path)

		return err
	})

	return ok, err
}

func (db *DB) readDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	var entries []os.DirEntry

	err := db.exec.do(ctx, func() error {
		var err error

		entries, err = db.fs.ReadDir(path)

		return err
	})

	return entries, err
}
