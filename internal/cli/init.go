package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/fs"
)

// InitCmd returns the init command.
func InitCmd(s *session) *Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	prefix := flags.String("prefix", "", "Table name prefix stored in the meta document (default \"TABLE_\")")
	encrypt := flags.Bool("encrypt", false, "Set the encrypt flag in the meta document")

	return &Command{
		Flags: flags,
		Usage: "init [--prefix P] [--encrypt]",
		Short: "Create the storage root and meta document",
		Long: `Create the storage root and its meta document.

Every other command creates the meta document with defaults when it is
missing. init lets the table prefix and encrypt flag be chosen first and
stamps the document with a random storage_id. It fails when the meta
document already exists.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := requireArgs(args, 0, 0, ""); err != nil {
				return err
			}

			return execInit(ctx, o, s, *prefix, *encrypt)
		},
	}
}

func execInit(ctx context.Context, o *IO, s *session, prefix string, encrypt bool) error {
	metaPath := filepath.Join(s.cfg.RootAbs, s.cfg.MetaFile)

	exists, err := fs.NewReal().Exists(metaPath)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, metaPath)
	}

	storageID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating storage id: %w", err)
	}

	s.meta = map[string]any{"encrypt_flag": encrypt, "storage_id": storageID.String()}
	if prefix != "" {
		s.meta["table_prefix"] = prefix
	}

	if _, err := s.open(ctx); err != nil {
		return err
	}

	o.Println("initialized", s.cfg.RootAbs)

	return nil
}
