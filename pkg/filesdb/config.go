package filesdb

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/filesdb/pkg/fs"
)

// Mode selects how a [DB] executes filesystem calls.
type Mode int

const (
	// ModeBlocking runs each operation to completion on the caller goroutine
	// while holding the handle's operation lock.
	ModeBlocking Mode = iota

	// ModeSuspending hands every filesystem call to the handle's single I/O
	// goroutine and parks the caller until it completes. Operations from
	// several goroutines interleave at those points.
	ModeSuspending
)

func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return "blocking"
	case ModeSuspending:
		return "suspending"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "blocking" or "suspending".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking":
		return ModeBlocking, nil
	case "suspending":
		return ModeSuspending, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want blocking or suspending)", s)
	}
}

// DefaultMetaFile is the meta document name used when [Config.MetaFile] is empty.
const DefaultMetaFile = "meta.json"

// lockFileName is the flock target for [Config.Exclusive].
const lockFileName = ".filesdb.lock"

// Config holds the settings for [Open].
type Config struct {
	// Root is the storage directory. Created if it does not exist.
	Root string

	// MetaFile is the meta document's file name inside Root.
	// Optional. Defaults to [DefaultMetaFile].
	MetaFile string

	// Mode selects blocking or suspending execution. Defaults to [ModeBlocking].
	Mode Mode

	// Meta overrides the document written when the meta file does not exist
	// yet. It is ignored once the file exists.
	//
	// "tables" must be a list of strings, "encrypt_flag" a bool and
	// "table_prefix" a string. Other keys are stored verbatim. The encrypt
	// flag is recorded only.
	Meta map[string]any

	// Logger receives debug and warning logs. Defaults to discarding.
	Logger *slog.Logger

	// FS is the filesystem implementation. Defaults to [fs.NewReal].
	FS fs.FS

	// Exclusive holds an flock on Root for the lifetime of the handle so a
	// second exclusive handle, in this or another process, fails to open.
	Exclusive bool
}

func (c *Config) withDefaults() error {
	if c.Root == "" {
		return errors.New("Config.Root is required")
	}

	if c.MetaFile == "" {
		c.MetaFile = DefaultMetaFile
	}

	if c.MetaFile != filepath.Base(c.MetaFile) || c.MetaFile == "." || c.MetaFile == ".." {
		return fmt.Errorf("Config.MetaFile must be a file name, got %q", c.MetaFile)
	}

	if c.MetaFile == lockFileName {
		return fmt.Errorf("Config.MetaFile %q is reserved", c.MetaFile)
	}

	if c.Mode != ModeBlocking && c.Mode != ModeSuspending {
		return fmt.Errorf("Config.Mode: invalid %s", c.Mode)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	if c.FS == nil {
		c.FS = fs.NewReal()
	}

	c.Root = filepath.Clean(c.Root)

	return nil
}
