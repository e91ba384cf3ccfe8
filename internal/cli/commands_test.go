package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/testutil"
)

const lsHelp = `Usage: ls [OPTION]... [FILE]...
  -a, --all        do not ignore entries starting with .
  -l               use a long listing format
`

// execute runs the root command with args and captures both streams.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func testOptions() *RootOptions {
	return &RootOptions{
		Runner: testutil.NewFakeRunner().Exit("help", 0, lsHelp),
		Clock:  testutil.NewFixedClock(time.Time{}),
		IDs:    testutil.NewSequenceIDs("txn"),
	}
}

// decode parses a JSON envelope.
func decode(t *testing.T, stdout string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pack")

	stdout, _, err := execute(t, testOptions(), "init", "/usr/bin/ls", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ wrote "+docpack.ManifestPath)
	assert.Contains(t, stdout, "✓ wrote "+docpack.ConfigPath)
	assert.Contains(t, stdout, "✓ wrote "+docpack.ScenarioPlanPath)
	assert.Contains(t, stdout, "next: bman validate "+dir)
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(docpack.ManifestPath)))

	_, stderr, err := execute(t, testOptions(), "init", "/usr/bin/ls", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Contains(t, stderr, "already initialized")
}

func TestInitCommandArgs(t *testing.T) {
	_, _, err := execute(t, testOptions(), "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommandJSON(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "--format", "json", "validate", p.Root.Dir())
	require.NoError(t, err)

	resp, data := decode(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, data["inputs_hash"])
	assert.True(t, p.Exists(docpack.LockPath))
}

func TestValidateCommandText(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "validate", p.Root.Dir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ lock written")
	assert.Contains(t, stdout, "inputs_hash: ")
}

func TestValidateMissingPack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	stdout, _, err := execute(t, testOptions(), "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp, _ := decode(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestPlanCommandNeedsLock(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "--format", "json", "plan", p.Root.Dir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, _ := decode(t, stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLockMissing, resp.Error.Code)
	assert.False(t, p.Exists(docpack.PlanPath))
}

func TestPlanCommandText(t *testing.T) {
	p := testutil.Minimal(t, "ls")
	opts := testOptions()

	_, _, err := execute(t, opts, "validate", p.Root.Dir())
	require.NoError(t, err)
	stdout, _, err := execute(t, opts, "plan", p.Root.Dir())
	require.NoError(t, err)

	assert.Contains(t, stdout, "✗ surface")
	assert.Contains(t, stdout, "planned: surface_discovery")
	assert.Contains(t, stdout, "decision: incomplete")
	assert.Contains(t, stdout, "next: bman apply "+p.Root.Dir())
	assert.True(t, p.Exists(docpack.PlanPath))
}

func TestStatusCommand(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "status", p.Root.Dir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "lock: missing")
	assert.Contains(t, stdout, "plan: missing")
	assert.Contains(t, stdout, "decision: incomplete")
	assert.Contains(t, stdout, "next: bman validate "+p.Root.Dir())
	assert.False(t, p.Exists(docpack.LockPath), "status never writes")
}

func TestStatusCommandJSONAlias(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "status", "--json", p.Root.Dir())
	require.NoError(t, err)

	resp, data := decode(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "incomplete", data["decision"])
	next, _ := data["next_action"].(map[string]any)
	assert.Equal(t, "command", next["kind"])
}

func TestStatusCommandYAML(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "--format", "yaml", "status", p.Root.Dir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "status: ok\n")
	assert.Contains(t, stdout, "  decision: incomplete\n")
}

func TestStatusCommandStrict(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, _, err := execute(t, testOptions(), "status", "--strict", p.Root.Dir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.False(t, Reported(err))
	assert.Contains(t, err.Error(), "decision incomplete")
	assert.Contains(t, stdout, "decision: incomplete", "status is printed before the strict check")
}

func TestApplyCommand(t *testing.T) {
	p := testutil.Minimal(t, "ls")
	opts := testOptions()

	stdout, _, err := execute(t, opts, "apply", p.Root.Dir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ applied txn txn-0001")
	assert.Contains(t, stdout, "executed: surface_discovery")
	assert.Contains(t, stdout, "published: "+docpack.ManPagePath("ls"))
	assert.True(t, p.Exists(docpack.ReportPath))

	stdout, _, err = execute(t, opts, "--format", "json", "status", p.Root.Dir())
	require.NoError(t, err)
	_, data := decode(t, stdout)
	lockStatus, _ := data["lock"].(map[string]any)
	assert.Equal(t, true, lockStatus["present"])
	assert.Equal(t, false, lockStatus["stale"])
}

func TestApplyCommandConflictingModes(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	_, _, err := execute(t, testOptions(), "apply", "--rerun-all", "--rerun-failed", p.Root.Dir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, p.Exists(docpack.LockPath))
}

func TestVerboseLogsGoToStderr(t *testing.T) {
	p := testutil.Minimal(t, "ls")

	stdout, stderr, err := execute(t, testOptions(), "-v", "--format", "json", "validate", p.Root.Dir())
	require.NoError(t, err)
	assert.Contains(t, stderr, "lock written")
	decode(t, stdout)
}
