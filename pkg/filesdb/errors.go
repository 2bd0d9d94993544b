package filesdb

import (
	"errors"
	"strings"
)

// Sentinel errors. Match them with [errors.Is]; every public method wraps
// them in [*Error].
var (
	// ErrStorageUnavailable means the storage root, the meta document or an
	// index document cannot be read, created, or decoded.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTableAlreadyExists is returned by CreateTable for a registered name.
	ErrTableAlreadyExists = errors.New("table already exists")

	// ErrTableNotFound means the qualified table name is not registered.
	ErrTableNotFound = errors.New("table not found")

	// ErrColumnNotFound means a record field, query column or natural key
	// column is not part of the table schema.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRecordTypeMismatch means a record value does not fit its column type,
	// or a natural-key record lacks the key field.
	ErrRecordTypeMismatch = errors.New("record type mismatch")

	// ErrUnknownColumnType means a column tag is not one of INT, TEXT.
	ErrUnknownColumnType = errors.New("unknown column type")

	// ErrTypeCoercion means a query literal cannot be coerced to the column type.
	ErrTypeCoercion = errors.New("type coercion failed")

	// ErrRecordNotFound means the record file for an identifier does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidCondition means a condition is not of the form "column==literal".
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrInvalidName means a table name or file identifier cannot be used as a
	// path component, or collides with a reserved meta key.
	ErrInvalidName = errors.New("invalid name")

	// ErrCorruptRecord means a record file does not hold valid JSON.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrClosed is returned by every method after [DB.Close].
	ErrClosed = errors.New("filesdb closed")
)

// Error is the error type returned by all public filesdb methods.
//
// The cause comes first, followed by whatever context is known:
//
//	record not found (table=TABLE_users file_id=42)
//
// Use [errors.As] to get at the fields and [errors.Is] for the sentinel.
type Error struct {
	// Table is the qualified table name.
	Table string

	// FileID is the record identifier, when the operation targeted one.
	FileID string

	// Column is the offending column, for schema and query errors.
	Column string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (table=X file_id=Y column=Z)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}

	var parts []string

	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}

	if e.FileID != "" {
		parts = append(parts, "file_id="+e.FileID)
	}

	if e.Column != "" {
		parts = append(parts, "column="+e.Column)
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func columnError(column string, err error) error {
	return &Error{Column: column, Err: err}
}

// withContext attaches table and file context at API boundaries.
// If err is already *Error, missing fields are filled in place.
func withContext(err error, table string, fileID string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Table == "" {
			existing.Table = table
		}

		if existing.FileID == "" {
			existing.FileID = fileID
		}

		return existing
	}

	return &Error{Table: table, FileID: fileID, Err: err}
}
