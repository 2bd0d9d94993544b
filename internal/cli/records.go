package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// InsertCmd returns the insert command.
func InsertCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("insert", flag.ContinueOnError),
		Usage: "insert <table> [json]",
		Short: "Insert a record and print its id",
		Long: `Insert a JSON object into a table and print the record's file id.

The record is read from stdin when no JSON argument is given.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execInsert(ctx, o, s, args)
		},
	}
}

func execInsert(ctx context.Context, o *IO, s *session, args []string) error {
	if err := requireArgs(args, 1, -1, "table"); err != nil {
		return err
	}

	record, err := readRecordArg(s.stdin, args[1:])
	if err != nil {
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	id, err := db.Insert(ctx, args[0], record)
	if err != nil {
		return describeError(err)
	}

	o.Println(id)

	return nil
}

// UpdateCmd returns the update command.
func UpdateCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("update", flag.ContinueOnError),
		Usage: "update <table> <id> [json]",
		Short: "Replace a record",
		Long: `Replace the record stored under <id> with a JSON object.

The record is not checked against the table's columns and the index is not
touched. The record is read from stdin when no JSON argument is given.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execUpdate(ctx, o, s, args)
		},
	}
}

func execUpdate(ctx context.Context, o *IO, s *session, args []string) error {
	if err := requireArgs(args, 2, -1, "table and id"); err != nil {
		return err
	}

	record, err := readRecordArg(s.stdin, args[2:])
	if err != nil {
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	err = db.Update(ctx, args[0], args[1], record)
	if err != nil {
		return describeError(err)
	}

	o.Println("updated", args[1])

	return nil
}

// DeleteCmd returns the delete command.
func DeleteCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <table> <id>",
		Short: "Delete a record",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := requireArgs(args, 2, 2, "table and id"); err != nil {
				return err
			}

			db, err := s.open(ctx)
			if err != nil {
				return err
			}

			err = db.Delete(ctx, args[0], args[1])
			if err != nil {
				return describeError(err)
			}

			o.Println("deleted", args[1])

			return nil
		},
	}
}

// readRecordArg decodes a JSON object from the joined arguments, or from
// stdin when there are none. Numbers keep their literal form so integers of
// any size reach the column check intact.
func readRecordArg(stdin io.Reader, args []string) (filesdb.Record, error) {
	var data []byte

	if len(args) > 0 {
		data = []byte(strings.Join(args, " "))
	} else {
		if stdin == nil {
			return nil, fmt.Errorf("%w: record JSON", ErrMissingArgs)
		}

		var err error

		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: record JSON", ErrMissingArgs)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var record filesdb.Record

	err := dec.Decode(&record)
	if err != nil || record == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecordJSON, strings.TrimSpace(string(data)))
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidRecordJSON)
	}

	return record, nil
}
