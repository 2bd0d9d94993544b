package cli_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/filesdb/internal/cli"
)

func Test_Shell_Runs_Scripted_Commands_When_Stdin_Is_Not_A_Terminal(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	script := strings.Join([]string{
		`create-table users id:INT name:TEXT --key id`,
		`insert users '{"id": 1, "name": "Jo Ann"}'`,
		``,
		`# comments are skipped`,
		`find users id == 1`,
		`tables`,
		`exit`,
		`insert users '{"id": 2, "name": "never"}'`,
	}, "\n")

	stdout, stderr, code := c.RunWithInput(script, "shell")
	if code != 0 {
		t.Fatalf("exitCode=%d, want=0 (stderr=%s)", code, stderr)
	}

	want := strings.Join([]string{
		`created users natural(id)`,
		`1`,
		`{"id":"1","record":{"id":1,"name":"Jo Ann"}}`,
		`users`,
	}, "\n") + "\n"

	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Fatalf("stdout mismatch (-want +got):\n%s", diff)
	}

	if got := c.MustRun("find", "users", "id == 2"); got != "" {
		t.Fatalf("line after exit ran: %q", got)
	}
}

func Test_Shell_Exits_1_When_A_Scripted_Command_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("bogus\ncreate-table log msg:TEXT\ninsert log 'unterminated\n", "shell")

	if got, want := code, 1; got != want {
		t.Fatalf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, "created log auto(0)\n"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown command: bogus")
	cli.AssertContains(t, stderr, "unterminated quote")
	cli.AssertContains(t, stderr, "warning: 2 command(s) failed")
}

func Test_Shell_Lists_Commands_When_Asked_For_Help(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, _, code := c.RunWithInput("help\n", "shell")
	if code != 0 {
		t.Fatalf("exitCode=%d, want=0", code)
	}

	cli.AssertContains(t, stdout, "insert <table> [json]")
	cli.AssertContains(t, stdout, "check [table]")
	cli.AssertNotContains(t, stdout, "  shell")
}

func Test_Shell_Fails_When_Stdin_Is_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("shell")

	cli.AssertContains(t, stderr, "shell needs stdin")
}
