package filesdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

type indexDoc struct {
	FileIDs []string `json:"file_ids"`
}

// Insert validates record against the table schema, assigns its identifier,
// writes the record file and appends the identifier to the table index.
//
// Every field must name a column and hold a value of that column's type.
// INT accepts Go integers and integral floats; TEXT accepts strings only.
// Auto-increment tables persist the advanced counter before the record is
// written, so a failure leaves a gap rather than a reused identifier.
//
// The record write and the index write are separate: a failure between them
// leaves a record file the index does not list (see [DB.Verify]).
func (db *DB) Insert(ctx context.Context, table string, record Record) (id string, err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return "", withContext(err, "", "")
	}
	defer release()

	qualified := db.qualify(table)

	defer func() { err = withContext(err, qualified, id) }()

	snapshot, err := db.lookup(qualified)
	if err != nil {
		return "", err
	}

	normalized, err := normalizeRecord(snapshot.columns, record)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: encoding record: %w", ErrRecordTypeMismatch, err)
	}

	id, err = db.allocateID(qualified, normalized)
	if err != nil {
		return "", err
	}

	if _, natural := snapshot.key.Column(); !natural {
		if err := db.persistMeta(ctx); err != nil {
			return id, err
		}
	}

	if err := db.writeFile(ctx, db.recordPath(qualified, id), data); err != nil {
		return id, storageError(ctx, "writing record", err)
	}

	ids, err := db.readIndex(ctx, qualified)
	if err != nil {
		return id, err
	}

	if !slices.Contains(ids, id) {
		ids = append(ids, id)

		if err := db.writeIndex(ctx, qualified, ids); err != nil {
			return id, err
		}
	}

	db.log.Debug("inserted record", "table", qualified, "file_id", id)

	return id, nil
}

// allocateID draws the identifier under the meta lock so concurrent inserts
// never share an auto-increment value.
func (db *DB) allocateID(qualified string, record Record) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, ok := db.meta.entries[qualified]
	if !ok {
		return "", ErrTableNotFound
	}

	return nextID(entry, record)
}

// normalizeRecord coerces every field to its column type. Fields are checked
// in name order so the reported column is stable.
func normalizeRecord(columns map[string]ColumnType, record Record) (Record, error) {
	out := make(Record, len(record))

	for _, field := range slices.Sorted(maps.Keys(record)) {
		typ, ok := columns[field]
		if !ok {
			return nil, columnError(field, ErrColumnNotFound)
		}

		v, err := typ.coerce(record[field])
		if err != nil {
			return nil, columnError(field, err)
		}

		out[field] = v
	}

	return out, nil
}

// Update replaces the record file for fileID with record. It does not check
// the schema or touch the index, and creates the file if it does not exist.
func (db *DB) Update(ctx context.Context, table string, fileID string, record Record) (err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return withContext(err, "", fileID)
	}
	defer release()

	qualified := db.qualify(table)

	defer func() { err = withContext(err, qualified, fileID) }()

	if _, err := db.lookup(qualified); err != nil {
		return err
	}

	if err := validateFileID(fileID); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", ErrRecordTypeMismatch, err)
	}

	if err := db.writeFile(ctx, db.recordPath(qualified, fileID), data); err != nil {
		return storageError(ctx, "writing record", err)
	}

	db.log.Debug("updated record", "table", qualified, "file_id", fileID)

	return nil
}

// Delete removes the record file for fileID and every index entry equal to it.
// A missing file yields [ErrRecordNotFound] and leaves the index untouched.
func (db *DB) Delete(ctx context.Context, table string, fileID string) (err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return withContext(err, "", fileID)
	}
	defer release()

	qualified := db.qualify(table)

	defer func() { err = withContext(err, qualified, fileID) }()

	if _, err := db.lookup(qualified); err != nil {
		return err
	}

	if err := validateFileID(fileID); err != nil {
		return err
	}

	err = db.removeFile(ctx, db.recordPath(qualified, fileID))
	if errors.Is(err, os.ErrNotExist) {
		return ErrRecordNotFound
	}

	if err != nil {
		return storageError(ctx, "removing record", err)
	}

	ids, err := db.readIndex(ctx, qualified)
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(slices.Clone(ids), func(s string) bool { return s == fileID })
	if len(kept) == len(ids) {
		db.log.Warn("deleted record was not in index", "table", qualified, "file_id", fileID)

		return nil
	}

	if err := db.writeIndex(ctx, qualified, kept); err != nil {
		return err
	}

	db.log.Debug("deleted record", "table", qualified, "file_id", fileID)

	return nil
}

// readIndex returns the table's identifiers in insertion order. A missing
// index reads as empty.
func (db *DB) readIndex(ctx context.Context, qualified string) ([]string, error) {
	data, err := db.readFile(ctx, db.indexPath(qualified))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, storageError(ctx, "reading index", err)
	}

	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding index: %w", ErrStorageUnavailable, err)
	}

	return doc.FileIDs, nil
}

func (db *DB) writeIndex(ctx context.Context, qualified string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}

	data, err := json.Marshal(indexDoc{FileIDs: ids})
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := db.writeFile(ctx, db.indexPath(qualified), data); err != nil {
		return storageError(ctx, "writing index", err)
	}

	return nil
}

// readRecord loads one record file. ok is false when the file holds valid
// JSON that is not an object.
func (db *DB) readRecord(ctx context.Context, qualified, id string) (Record, bool, error) {
	data, err := db.readFile(ctx, db.recordPath(qualified, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	if err != nil {
		return nil, false, storageError(ctx, "reading record", err)
	}

	return decodeRecord(data)
}

func decodeRecord(data []byte) (Record, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("%w: trailing data after JSON value", ErrCorruptRecord)
	}

	obj, ok := normalizeJSON(v).(map[string]any)
	if !ok {
		return nil, false, nil
	}

	return Record(obj), true, nil
}

// normalizeJSON turns json.Number into int64 when integral, float64 otherwise.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}

		if f, err := x.Float64(); err == nil {
			return f
		}

		return x.String()
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeJSON(item)
		}

		return x
	case []any:
		for i, item := range x {
			x[i] = normalizeJSON(item)
		}

		return x
	default:
		return v
	}
}
