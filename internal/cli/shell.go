package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// ShellCmd returns the shell command.
func ShellCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands interactively",
		Long: `Read commands line by line and run them against one open database.

Arguments may be quoted with '...' or "...", so a record can be given as
insert users '{"id": 1, "name": "Jo Ann"}'. Records are never read from
stdin inside the shell. Type 'help' for commands and 'exit' to leave.

When stdin is not a terminal no prompt is shown, and the shell exits 1 if
any command failed.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := requireArgs(args, 0, 0, ""); err != nil {
				return err
			}

			return execShell(ctx, o, s)
		},
	}
}

// lineReader is the part of *liner.State the shell uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// scanReader reads lines without editing or history when stdin is not a
// terminal.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*scanReader) AppendHistory(string) {}

func execShell(ctx context.Context, o *IO, s *session) error {
	interactive := false

	if f, ok := s.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		interactive = true
	}

	var reader lineReader

	if interactive {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(s.complete)

		historyPath := s.historyFile()
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}

		defer func() {
			s.saveHistory(state, historyPath)
			_ = state.Close()
		}()

		reader = state
	} else {
		if s.stdin == nil {
			return fmt.Errorf("%w: shell needs stdin", ErrMissingArgs)
		}

		reader = &scanReader{sc: bufio.NewScanner(s.stdin)}
	}

	// Inside the shell stdin carries commands, not records.
	s.stdin = nil

	if interactive {
		o.Println("filesdb shell on", s.cfg.RootAbs, "- type 'help' for commands.")
	}

	failed := 0

	for ctx.Err() == nil {
		prompt := ""
		if interactive {
			prompt = "filesdb> "
		}

		line, err := reader.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		reader.AppendHistory(line)

		words, err := splitLine(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			failed++

			continue
		}

		switch words[0] {
		case "exit", "quit":
			return shellResult(o, interactive, failed)
		case "help", "?":
			for _, cmd := range s.shellCommands() {
				o.Println(cmd.HelpLine())
			}

			continue
		}

		lineIO := NewIO(o.out, o.errOut)
		if dispatch(ctx, lineIO, s.shellCommands(), words) != 0 {
			failed++
		}
	}

	return shellResult(o, interactive, failed)
}

func shellResult(o *IO, interactive bool, failed int) error {
	if !interactive && failed > 0 {
		o.Warn(fmt.Sprintf("%d command(s) failed", failed), "see the errors above")
	}

	return nil
}

// complete suggests command names for the first word and table names after.
func (s *session) complete(line string) []string {
	words := strings.Fields(line)
	trailingSpace := strings.HasSuffix(line, " ")

	if len(words) == 0 || (len(words) == 1 && !trailingSpace) {
		var out []string

		for _, cmd := range s.shellCommands() {
			if strings.HasPrefix(cmd.Name(), line) {
				out = append(out, cmd.Name()+" ")
			}
		}

		return out
	}

	if s.db == nil || len(words) > 2 || (len(words) == 2 && trailingSpace) {
		return nil
	}

	tables, err := s.db.Tables()
	if err != nil {
		return nil
	}

	partial := ""
	if len(words) == 2 {
		partial = words[1]
	}

	var out []string

	for _, table := range tables {
		if strings.HasPrefix(table, partial) {
			out = append(out, words[0]+" "+table+" ")
		}
	}

	return out
}

func (s *session) historyFile() string {
	if s.cfg.HistoryFile != "" {
		return s.cfg.HistoryFile
	}

	if home := s.env["HOME"]; home != "" {
		return filepath.Join(home, ".filesdb_history")
	}

	return ""
}

func (s *session) saveHistory(state *liner.State, path string) {
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		s.log.Warn("cannot save shell history", "path", path, "error", err)

		return
	}

	_, _ = state.WriteHistory(f)
	_ = f.Close()
}

// splitLine splits a shell line into words. Single quotes keep their content
// verbatim; double quotes allow \" and \\ escapes.
func splitLine(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)

			escaped = false
		case quote == '"' && r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()

				inWord = false
			}
		default:
			current.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}

	if inWord {
		words = append(words, current.String())
	}

	return words, nil
}
