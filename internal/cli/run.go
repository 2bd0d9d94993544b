package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// Run is the main entry point. Returns exit code.
// sigCh may be nil; a signal on it cancels the running command.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("filesdb", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	var (
		workDir    = globals.StringP("cwd", "C", "", "Run as if started in `dir`")
		configPath = globals.StringP("config", "c", "", "Use specified config `file`")
		root       = globals.String("root", "", "Storage root `dir`")
		metaFile   = globals.String("meta-file", "", "Meta document file `name` inside the root")
		mode       = globals.String("mode", "", "Execution mode: blocking or suspending")
		logLevel   = globals.String("log-level", "", "Log level: debug, info, warn or error")
		exclusive  = globals.Bool("exclusive", false, "Fail if another exclusive handle holds the root")
		help       = globals.BoolP("help", "h", false, "Show help")
	)

	if len(args) == 0 {
		args = []string{"filesdb"}
	}

	err := globals.Parse(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides: Config{
			Root:      *root,
			MetaFile:  *metaFile,
			Mode:      *mode,
			LogLevel:  *logLevel,
			Exclusive: *exclusive,
		},
		Env: env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	s := &session{
		cfg:    &cfg,
		log:    newLogger(errOut, level),
		env:    env,
		stdin:  stdin,
		out:    out,
		errOut: errOut,
	}

	cmds := s.commands()

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, cmds)

		return 0
	}

	code := s.dispatch(ctx, NewIO(out, errOut), rest)

	if closeErr := s.close(); closeErr != nil {
		fprintln(errOut, "error:", closeErr)

		return 1
	}

	return code
}

// session is the state shared by the commands of one invocation. The
// database handle is opened on first use and reused by the shell.
type session struct {
	cfg    *Config
	log    *slog.Logger
	env    map[string]string
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer

	// meta is merged into the override used when the meta document is
	// created. Set by init.
	meta map[string]any

	db *filesdb.DB
}

func (s *session) open(ctx context.Context) (*filesdb.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	dbCfg, err := s.cfg.dbConfig(s.log)
	if err != nil {
		return nil, err
	}

	if len(s.meta) > 0 {
		if dbCfg.Meta == nil {
			dbCfg.Meta = map[string]any{}
		}

		for k, v := range s.meta {
			dbCfg.Meta[k] = v
		}
	}

	db, err := filesdb.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	s.db = db

	return db, nil
}

func (s *session) close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// commands returns every command reachable from the command line.
func (s *session) commands() []*Command {
	return append(s.shellCommands(), ShellCmd(s))
}

// shellCommands returns the commands available inside the shell.
func (s *session) shellCommands() []*Command {
	return []*Command{
		InitCmd(s),
		CreateTableCmd(s),
		InsertCmd(s),
		FindCmd(s),
		UpdateCmd(s),
		DeleteCmd(s),
		TablesCmd(s),
		DescribeCmd(s),
		CheckCmd(s),
		PrintConfigCmd(s.cfg),
	}
}

func (s *session) dispatch(ctx context.Context, o *IO, args []string) int {
	return dispatch(ctx, o, s.commands(), args)
}

func dispatch(ctx context.Context, o *IO, cmds []*Command, args []string) int {
	name := args[0]

	for _, cmd := range cmds {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, args[1:])
		}
	}

	o.ErrPrintln("error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))

	return 1
}

// requireArgs checks the positional argument count. max < 0 means unbounded.
func requireArgs(args []string, minArgs, maxArgs int, what string) error {
	if len(args) < minArgs {
		return fmt.Errorf("%w: %s", ErrMissingArgs, what)
	}

	if maxArgs >= 0 && len(args) > maxArgs {
		return fmt.Errorf("%w: %s", ErrTooManyArgs, strings.Join(args[maxArgs:], " "))
	}

	return nil
}

// describeError adds a hint for errors a user can act on.
func describeError(err error) error {
	switch {
	case errors.Is(err, filesdb.ErrTableNotFound):
		return fmt.Errorf("%w (see 'filesdb tables')", err)
	case errors.Is(err, filesdb.ErrInvalidCondition):
		return fmt.Errorf("%w (want '<column> == <value>')", err)
	default:
		return err
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, cmds []*Command) {
	fprintln(w, `filesdb - JSON file record store

Usage: filesdb [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	_, _ = fmt.Fprint(w, buf.String())

	if len(cmds) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range cmds {
		fprintln(w, cmd.HelpLine())
	}
}
