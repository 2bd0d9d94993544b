package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// CheckCmd returns the check command.
func CheckCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("check", flag.ContinueOnError),
		Usage: "check [table]",
		Short: "Compare table indexes with record files",
		Long: `Compare each table's index with the record files on disk and report
index entries without a file, files the index does not list, and ids listed
twice. Nothing is repaired. Exits 1 when any table has drift.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execCheck(ctx, o, s, args)
		},
	}
}

func execCheck(ctx context.Context, o *IO, s *session, args []string) error {
	if err := requireArgs(args, 0, 1, ""); err != nil {
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	tables := args
	if len(tables) == 0 {
		tables, err = db.Tables()
		if err != nil {
			return err
		}
	}

	for _, table := range tables {
		drift, err := db.Verify(ctx, table)
		if err != nil {
			return describeError(err)
		}

		if drift.Clean() {
			o.Println(table + ": ok")

			continue
		}

		o.Println(table + ": drift")
		printIDs(o, "missing", drift.MissingFiles)
		printIDs(o, "orphan", drift.OrphanFiles)
		printIDs(o, "duplicate", drift.Duplicates)

		o.Warn(
			fmt.Sprintf("table %s: index and record files disagree", table),
			"inspect the listed ids and rewrite the index or records",
		)
	}

	return nil
}

func printIDs(o *IO, label string, ids []string) {
	if len(ids) == 0 {
		return
	}

	o.Printf("  %s: %s\n", label, strings.Join(ids, " "))
}
