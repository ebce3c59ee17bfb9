package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/incr/internal/journal"
	"github.com/roach88/incr/internal/metrics"
)

func loadTestScenario(t *testing.T, file string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)
	return s
}

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScenarios_Golden(t *testing.T) {
	for _, file := range []string{"basic_column.yaml", "late_consumers.yaml", "relation_move.cue"} {
		t.Run(file, func(t *testing.T) {
			s := loadTestScenario(t, file)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestLoadScenario_YAML(t *testing.T) {
	s := loadTestScenario(t, "late_consumers.yaml")

	assert.Equal(t, "late_consumers", s.Name)
	assert.Equal(t, StorageDense, s.Storage)
	assert.Equal(t, map[string]string{"1": "x"}, s.Initial)
	require.Len(t, s.Consumers, 3)
	assert.Equal(t, Consumer{Name: "late", Kind: ConsumerFork, Join: 2}, s.Consumers[0])
	require.Len(t, s.Cycles, 3)
	assert.Equal(t, []string{"2"}, s.Cycles[2].Delete)
}

func TestLoadScenario_CUE(t *testing.T) {
	s := loadTestScenario(t, "relation_move.cue")

	assert.Equal(t, "relation_move", s.Name)
	assert.True(t, s.Relation)
	assert.Equal(t, StorageInterleaved, s.Storage)
	require.Len(t, s.Cycles, 3)
	assert.Equal(t, map[string]string{"3": "blue"}, s.Cycles[0].Set)
	require.NotNil(t, s.Cycles[1].Expect)
	assert.Equal(t, []string{"blue"}, s.Cycles[1].Expect.Groups)
	assert.Equal(t, map[string][]string{"blue": {"1", "3"}}, s.Cycles[1].Expect.Reverse)
}

func TestLoadScenario_YAMLRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, "typo.yaml", `
name: typo
description: "misspelled field"
cycle:
  - set: {"1": a}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_CUESchemaViolation(t *testing.T) {
	path := writeScenario(t, "bad.cue", `
name:        "bad"
description: "unknown consumer kind"
consumers: [{name: "c", kind: "mirror", join: 1}]
cycles: [{set: "1": "a"}]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)

	var le *LoadError
	assert.ErrorAs(t, err, &le)
}

func TestLoadScenario_CUERejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, "extra.cue", `
name:        "extra"
description: "field outside the schema"
colour:      "red"
cycles: [{set: "1": "a"}]
`)
	_, err := LoadScenario(path)
	assert.Error(t, err)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "v",
			Description: "d",
			Cycles:      []Cycle{{Set: map[string]string{"1": "a"}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no cycles", func(s *Scenario) { s.Cycles = nil }, "cycles list is required"},
		{"bad storage", func(s *Scenario) { s.Storage = "btree" }, "unknown storage"},
		{"bad handle", func(s *Scenario) { s.Cycles[0].Set = map[string]string{"x": "a"} }, "invalid handle"},
		{"bad delete", func(s *Scenario) { s.Cycles[0].Delete = []string{"-1"} }, "invalid handle"},
		{"bad kind", func(s *Scenario) { s.Consumers = []Consumer{{Name: "c", Kind: "x", Join: 1}} }, "unknown kind"},
		{"join out of range", func(s *Scenario) { s.Consumers = []Consumer{{Name: "c", Kind: ConsumerFork, Join: 2}} }, "join must be within 1..1"},
		{"duplicate consumer", func(s *Scenario) {
			s.Consumers = []Consumer{{Name: "c", Kind: ConsumerFork, Join: 1}, {Name: "c", Kind: ConsumerWatch, Join: 1}}
		}, "duplicate name"},
		{"groups without relation", func(s *Scenario) { s.Cycles[0].Expect = &Expect{Groups: []string{"a"}} }, "need relation"},
	}

	require.NoError(t, validateScenario(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := &Scenario{
		Name:        "wrong",
		Description: "expectations that do not hold",
		Cycles: []Cycle{{
			Set: map[string]string{"1": "a"},
			Expect: &Expect{
				Changes: map[string]any{"1": map[string]any{"new": "b"}},
				View:    map[string]string{"1": "b"},
			},
		}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "cycle 1: changes mismatch")
	assert.Contains(t, result.Errors[1], "cycle 1: view mismatch")
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "relation_move.cue")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	for range 5 {
		again, err := Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, first.Digest, again.Digest)
	}
}

func TestRun_StorageBackendsAgree(t *testing.T) {
	digests := make(map[string]string)
	for _, backend := range []string{StorageSparse, StorageDense, StorageInterleaved} {
		s := loadTestScenario(t, "basic_column.yaml")
		s.Storage = backend

		result, err := Run(context.Background(), s)
		require.NoError(t, err)
		require.True(t, result.Pass, "%s: %v", backend, result.Errors)
		digests[backend] = result.Digest
	}
	assert.Equal(t, digests[StorageSparse], digests[StorageDense])
	assert.Equal(t, digests[StorageSparse], digests[StorageInterleaved])
}

func TestRun_Journal(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"),
		journal.WithIDGenerator(journal.NewFixedGenerator("run-1")))
	require.NoError(t, err)
	defer j.Close()

	s := loadTestScenario(t, "late_consumers.yaml")
	result, err := Run(ctx, s, WithJournal(j))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "run-1", result.RunID)

	run, err := j.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusPassed, run.Status)
	assert.Equal(t, result.Digest, run.Digest)

	cycles, err := j.Cycles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cycles, len(result.Trace))
	for i, c := range cycles {
		assert.Equal(t, result.Trace[i].Cycle, c.Cycle)
		assert.Equal(t, result.Trace[i].Changes, c.Changes)
	}
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := loadTestScenario(t, "late_consumers.yaml")
	result, err := Run(context.Background(), s, WithMetrics(m))
	require.NoError(t, err)
	require.True(t, result.Pass)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DriverCycles))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ForkComputations.WithLabelValues(RootValue)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WatchAttachments.WithLabelValues(RootValue)))
}

func TestTraceJSON_EndsWithNewline(t *testing.T) {
	result := &Result{Scenario: "empty"}
	data, err := TraceJSON(result)
	require.NoError(t, err)
	assert.Equal(t, "{\"cycles\":[],\"scenario\":\"empty\"}\n", string(data))
}
