package filesdb

import (
	"fmt"
	"strings"
)

// KeyPolicy decides how a table names its record files.
//
// The zero value is AutoIncrement(0).
type KeyPolicy struct {
	natural bool
	column  string
	start   int64
}

// AutoIncrement numbers records start, start+1, ... The counter is part of
// the meta document and survives reconnects.
func AutoIncrement(start int64) KeyPolicy {
	return KeyPolicy{start: start}
}

// NaturalKey names each record file after the value of column. No uniqueness
// is enforced: inserting a record with an existing key overwrites it.
func NaturalKey(column string) KeyPolicy {
	return KeyPolicy{natural: true, column: column}
}

// Column returns the natural key column and true, or "" and false for
// auto-increment tables.
func (k KeyPolicy) Column() (string, bool) {
	return k.column, k.natural
}

// Start returns the first auto-increment value.
func (k KeyPolicy) Start() int64 {
	return k.start
}

func (k KeyPolicy) String() string {
	if k.natural {
		return "natural(" + k.column + ")"
	}

	return fmt.Sprintf("auto(%d)", k.start)
}

// nextID draws the next identifier for a normalized record. Auto-increment
// advances entry.next; the caller persists meta before writing the record.
func nextID(entry *tableEntry, record Record) (string, error) {
	if !entry.key.natural {
		id := entry.next
		entry.next++

		return keyString(id), nil
	}

	v, ok := record[entry.key.column]
	if !ok {
		return "", columnError(entry.key.column,
			fmt.Errorf("%w: natural key field is missing", ErrRecordTypeMismatch))
	}

	id := keyString(v)
	if err := validateFileID(id); err != nil {
		return "", err
	}

	return id, nil
}

// validateFileID rejects identifiers that are not a single path component.
func validateFileID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: file id %q", ErrInvalidName, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: file id %q contains a path separator", ErrInvalidName, id)
	}

	return nil
}
