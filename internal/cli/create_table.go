package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// CreateTableCmd returns the create-table command.
func CreateTableCmd(s *session) *Command {
	flags := flag.NewFlagSet("create-table", flag.ContinueOnError)
	key := flags.String("key", "", "Name record files after this column's value")
	start := flags.Int64("start", 0, "First auto-increment identifier")

	return &Command{
		Flags: flags,
		Usage: "create-table <name> <col:TYPE>... [flags]",
		Short: "Create a table",
		Long: `Create a table with the given columns. TYPE is INT or TEXT.

Records are numbered from --start unless --key names a column whose value
becomes the record's file name.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if flags.Changed("key") && flags.Changed("start") {
				return ErrKeyConflict
			}

			policy := filesdb.AutoIncrement(*start)
			if *key != "" {
				policy = filesdb.NaturalKey(*key)
			}

			return execCreateTable(ctx, o, s, args, policy)
		},
	}
}

func execCreateTable(ctx context.Context, o *IO, s *session, args []string, policy filesdb.KeyPolicy) error {
	if err := requireArgs(args, 1, -1, "table name"); err != nil {
		return err
	}

	columns, err := parseColumnSpecs(args[1:])
	if err != nil {
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	err = db.CreateTable(ctx, args[0], columns, policy)
	if err != nil {
		return describeError(err)
	}

	o.Println("created", args[0], policy.String())

	return nil
}

// parseColumnSpecs parses "name:TYPE" arguments. The type tag is matched
// case-insensitively.
func parseColumnSpecs(specs []string) (map[string]filesdb.ColumnType, error) {
	columns := make(map[string]filesdb.ColumnType, len(specs))

	for _, spec := range specs {
		name, tag, ok := strings.Cut(spec, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColumnSpec, spec)
		}

		typ, err := filesdb.ParseColumnType(strings.ToUpper(tag))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}

		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("%w: column %s given twice", ErrInvalidColumnSpec, name)
		}

		columns[name] = typ
	}

	return columns, nil
}
