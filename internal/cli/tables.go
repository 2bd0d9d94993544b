package cli

import (
	"context"
	"slices"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// TablesCmd returns the tables command.
func TablesCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("tables", flag.ContinueOnError),
		Usage: "tables",
		Short: "List tables in creation order",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := requireArgs(args, 0, 0, ""); err != nil {
				return err
			}

			db, err := s.open(ctx)
			if err != nil {
				return err
			}

			names, err := db.Tables()
			if err != nil {
				return err
			}

			for _, name := range names {
				o.Println(name)
			}

			return nil
		},
	}
}

// DescribeCmd returns the describe command.
func DescribeCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("describe", flag.ContinueOnError),
		Usage: "describe <table>",
		Short: "Show a table's columns and key policy",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := requireArgs(args, 1, 1, "table"); err != nil {
				return err
			}

			db, err := s.open(ctx)
			if err != nil {
				return err
			}

			schema, err := db.Schema(args[0])
			if err != nil {
				return describeError(err)
			}

			printSchema(o, schema)

			return nil
		},
	}
}

func printSchema(o *IO, schema filesdb.TableSchema) {
	o.Println("table=" + schema.Name)
	o.Println("qualified=" + schema.Qualified)
	o.Println("key=" + schema.Key.String())

	if _, natural := schema.Key.Column(); !natural {
		o.Printf("next_id=%d\n", schema.NextID)
	}

	names := make([]string, 0, len(schema.Columns))
	for name := range schema.Columns {
		names = append(names, name)
	}

	slices.Sort(names)

	o.Println("")
	o.Println("# columns")

	for _, name := range names {
		o.Printf("%s %s\n", name, schema.Columns[name])
	}
}
