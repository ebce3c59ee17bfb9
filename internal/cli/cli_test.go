package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: simple
description: "One insert reaches the consumer"
cycles:
  - set: {"1": a}
    expect:
      changes:
        "1": {new: a}
      view: {"1": a}
  - delete: ["1"]
    expect:
      changes:
        "1": {removed: a}
`

const failingScenario = `name: broken
description: "Expects a change that never happens"
cycles:
  - set: {"1": a}
    expect:
      changes:
        "1": {new: b}
`

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"test", "run", "trace"})
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "test", t.TempDir(), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := WrapExitError(ExitFailure, "scenario aborted", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "scenario aborted: "+assert.AnError.Error(), wrapped.Error())
}

func TestTestCommand_UpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", passingScenario)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ simple (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "simple.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario":"simple"`)

	out, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ simple\n")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", passingScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	writeFile(t, filepath.Join(dir, "golden"), "simple.golden", "{}\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ simple")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", passingScenario)
	writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	// Files are reported in lexical order.
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "broken", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "changes mismatch")
	assert.Equal(t, "simple", resp.Data.Scenarios[1].Name)
	assert.Equal(t, "missing", resp.Data.Scenarios[1].Golden)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", passingScenario)
	writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "sim*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "name: bad\nunknown: 1\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ bad.yaml")
	assert.Contains(t, out, "load:")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunAndTrace(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "simple.yaml", passingScenario)
	db := filepath.Join(dir, "incr.db")

	out, err := execute(t, "run", scenario, "--db", db, "--format", "json")
	require.NoError(t, err)

	var run struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "ok", run.Status)
	assert.True(t, run.Data.Pass)
	assert.Equal(t, 2, run.Data.Cycles)
	assert.NotEmpty(t, run.Data.RunID)
	assert.Len(t, run.Data.Digest, 64)

	out, err = execute(t, "trace", "--db", db, "--format", "json")
	require.NoError(t, err)

	var trace struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &trace))
	assert.Equal(t, run.Data.RunID, trace.Data.Run.ID)
	assert.Equal(t, "passed", trace.Data.Run.Status)
	assert.Equal(t, run.Data.Digest, trace.Data.Run.Digest)
	require.Len(t, trace.Data.Cycles, 2)
	assert.Equal(t, int64(1), trace.Data.Cycles[0].Cycle)
	assert.Equal(t, 1, trace.Data.Cycles[0].Total)

	out, err = execute(t, "trace", "--db", db, "--run", run.Data.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "scenario=simple")
	assert.Contains(t, out, `cycle 2  1 changes  {"value":{"1":{"removed":"a"}}}`)
}

func TestRunCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "run", scenario, "--db", filepath.Join(dir, "incr.db"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken (1 cycles)")
}

func TestRunCommand_RequiresDB(t *testing.T) {
	_, err := execute(t, "run", "scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestTraceCommand_UnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "incr.db")

	_, err := execute(t, "trace", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "trace", "--db", db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
