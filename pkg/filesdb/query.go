package filesdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Find returns the records of table whose column equals a literal.
//
// condition has the form "column == literal". All whitespace is removed
// before it is split, so "name == John Smith" compares against "JohnSmith".
// The literal is coerced to the column type; an INT column with a
// non-integer literal fails with [ErrTypeCoercion].
//
// When column is the table's natural key the matching file is read directly
// and the index is not consulted; an absent file gives an empty result.
// Otherwise every record is read in index order. Records that lack the
// column, or hold a value of another type, do not match. An index entry
// without a record file fails with [ErrRecordNotFound].
func (db *DB) Find(ctx context.Context, table string, condition string) (matches []Match, err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return nil, withContext(err, "", "")
	}
	defer release()

	qualified := db.qualify(table)

	defer func() { err = withContext(err, qualified, "") }()

	column, literal, err := parseCondition(condition)
	if err != nil {
		return nil, err
	}

	snapshot, err := db.lookup(qualified)
	if err != nil {
		return nil, err
	}

	typ, ok := snapshot.columns[column]
	if !ok {
		return nil, columnError(column, ErrColumnNotFound)
	}

	want, err := typ.parseLiteral(literal)
	if err != nil {
		return nil, columnError(column, err)
	}

	if key, natural := snapshot.key.Column(); natural && key == column {
		return db.findByKey(ctx, qualified, keyString(want))
	}

	return db.scan(ctx, qualified, column, typ, want)
}

// parseCondition splits "column==literal" after stripping all whitespace.
func parseCondition(condition string) (string, string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, condition)

	parts := strings.Split(compact, "==")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q: want exactly one ==", ErrInvalidCondition, condition)
	}

	if parts[0] == "" {
		return "", "", fmt.Errorf("%w: %q: missing column", ErrInvalidCondition, condition)
	}

	return parts[0], parts[1], nil
}

func (db *DB) findByKey(ctx context.Context, qualified, id string) ([]Match, error) {
	if validateFileID(id) != nil {
		return []Match{}, nil
	}

	record, ok, err := db.readRecord(ctx, qualified, id)
	if errors.Is(err, os.ErrNotExist) {
		return []Match{}, nil
	}

	if err != nil {
		return nil, withContext(err, qualified, id)
	}

	if !ok {
		return []Match{}, nil
	}

	return []Match{{ID: id, Record: record}}, nil
}

func (db *DB) scan(ctx context.Context, qualified, column string, typ ColumnType, want any) ([]Match, error) {
	ids, err := db.readIndex(ctx, qualified)
	if err != nil {
		return nil, err
	}

	matches := []Match{}

	for _, id := range ids {
		record, ok, err := db.readRecord(ctx, qualified, id)
		if errors.Is(err, os.ErrNotExist) {
			return nil, withContext(fmt.Errorf("%w: listed in index", ErrRecordNotFound), qualified, id)
		}

		if err != nil {
			return nil, withContext(err, qualified, id)
		}

		if !ok {
			continue
		}

		got, present := record[column]
		if present && typ.matches(got, want) {
			matches = append(matches, Match{ID: id, Record: record})
		}
	}

	return matches, nil
}
