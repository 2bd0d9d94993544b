package cli

import (
	"context"
	"encoding/json"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// FindCmd returns the find command.
func FindCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("find", flag.ContinueOnError),
		Usage: "find <table> <condition>",
		Short: "Print records matching '<column> == <value>'",
		Long: `Print the records of a table whose column equals a value, one JSON
object per line: {"id": "<file id>", "record": {...}}.

All whitespace in the condition is ignored, so "name == Jo Ann" matches the
value "JoAnn". Matches are printed in index order.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execFind(ctx, o, s, args)
		},
	}
}

type matchLine struct {
	ID     string         `json:"id"`
	Record filesdb.Record `json:"record"`
}

func execFind(ctx context.Context, o *IO, s *session, args []string) error {
	if err := requireArgs(args, 2, -1, "table and condition"); err != nil {
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	matches, err := db.Find(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return describeError(err)
	}

	for _, m := range matches {
		line, err := json.Marshal(matchLine{ID: m.ID, Record: m.Record})
		if err != nil {
			return err
		}

		o.Println(string(line))
	}

	return nil
}
