package filesdb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CreateTable registers a table, creates its directory with an empty index,
// and persists the meta document.
//
// The table is stored under the configured prefix plus name. columns maps
// each column to its type tag; tags are checked here, so a typo fails with
// [ErrUnknownColumnType] before any record is written. A natural key must
// name one of columns.
func (db *DB) CreateTable(ctx context.Context, name string, columns map[string]ColumnType, key KeyPolicy) (err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return withContext(err, "", "")
	}
	defer release()

	qualified := db.qualify(name)

	defer func() { err = withContext(err, qualified, "") }()

	if err := validateTableName(name); err != nil {
		return err
	}

	if _, err := db.lookup(qualified); err == nil {
		return ErrTableAlreadyExists
	}

	entry, err := newTableEntry(columns, key)
	if err != nil {
		return err
	}

	if err := db.register(qualified, entry); err != nil {
		return err
	}

	if err := db.initTableDir(ctx, qualified); err != nil {
		db.unregister(qualified)

		return err
	}

	if err := db.persistMeta(ctx); err != nil {
		db.unregister(qualified)

		return err
	}

	db.log.Debug("created table",
		"table", qualified,
		"columns", len(entry.columns),
		"key", entry.key.String())

	return nil
}

func validateTableName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: table name %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: table name %q contains a path separator", ErrInvalidName, name)
	}

	return nil
}

func newTableEntry(columns map[string]ColumnType, key KeyPolicy) (*tableEntry, error) {
	for _, col := range slices.Sorted(maps.Keys(columns)) {
		if col == "" {
			return nil, fmt.Errorf("%w: empty column name", ErrInvalidName)
		}

		if err := columns[col].validate(); err != nil {
			return nil, columnError(col, err)
		}
	}

	if col, ok := key.Column(); ok {
		if _, known := columns[col]; !known {
			return nil, columnError(col, fmt.Errorf("%w: natural key column", ErrColumnNotFound))
		}
	}

	return &tableEntry{
		columns: maps.Clone(columns),
		key:     key,
		next:    key.Start(),
	}, nil
}

// register claims the qualified name in memory. Concurrent creators of the
// same table see ErrTableAlreadyExists from here on.
func (db *DB) register(qualified string, entry *tableEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.meta.entries[qualified]; ok {
		return ErrTableAlreadyExists
	}

	if db.meta.isReserved(qualified) || qualified == db.cfg.MetaFile || qualified == lockFileName {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, qualified)
	}

	db.meta.entries[qualified] = entry
	db.meta.tables = append(db.meta.tables, qualified)

	return nil
}

func (db *DB) unregister(qualified string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.meta.entries, qualified)
	db.meta.tables = slices.DeleteFunc(db.meta.tables, func(t string) bool { return t == qualified })
}

// initTableDir creates the table directory and, unless one is already there,
// an empty index.
func (db *DB) initTableDir(ctx context.Context, qualified string) error {
	if err := db.mkdir(ctx, db.tableDir(qualified)); err != nil {
		return storageError(ctx, "creating table dir", err)
	}

	ok, err := db.exists(ctx, db.indexPath(qualified))
	if err != nil {
		return storageError(ctx, "checking index", err)
	}

	if ok {
		return nil
	}

	return db.writeIndex(ctx, qualified, nil)
}
