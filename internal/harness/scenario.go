package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/incr/internal/storage"
)

// Scenario defines a conformance scenario over one string column.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Storage selects the column backend. Defaults to "sparse".
	Storage string `yaml:"storage,omitempty" json:"storage,omitempty"`

	// Relation treats every value as the one-key of its handle and
	// derives the reverse index and the reduced set of one-keys.
	Relation bool `yaml:"relation,omitempty" json:"relation,omitempty"`

	// Initial rows are written before the pipeline is built. They show up
	// as inserts in the first cycle.
	Initial map[string]string `yaml:"initial,omitempty" json:"initial,omitempty"`

	// Consumers join the column after the first cycle has been computed.
	Consumers []Consumer `yaml:"consumers,omitempty" json:"consumers,omitempty"`

	// Cycles are applied in order, one driver step each.
	Cycles []Cycle `yaml:"cycles" json:"cycles"`
}

// Consumer is an additional observer of the column.
type Consumer struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"` // "fork" | "watch"
	Join int    `yaml:"join" json:"join"` // first polled cycle, 1-based
}

// Consumer kinds.
const (
	ConsumerFork  = "fork"
	ConsumerWatch = "watch"
)

// Storage backends.
const (
	StorageSparse      = "sparse"
	StorageDense       = "dense"
	StorageInterleaved = "interleaved"
)

// Cycle holds the writes of one cycle and what to expect afterwards.
type Cycle struct {
	Set    map[string]string `yaml:"set,omitempty" json:"set,omitempty"`
	Delete []string          `yaml:"delete,omitempty" json:"delete,omitempty"`
	Expect *Expect           `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Expect lists the checks of one cycle. Absent fields are not checked.
type Expect struct {
	// Changes is the batch the column's own consumer receives, keyed by
	// handle: {new: v}, {new: v, old: o} or {removed: o}. An empty map
	// expects an empty batch.
	Changes map[string]any `yaml:"changes,omitempty" json:"changes,omitempty"`

	// View is the column state after the cycle.
	View map[string]string `yaml:"view,omitempty" json:"view,omitempty"`

	// Reverse is the relation's reverse index. Member order is ignored.
	Reverse map[string][]string `yaml:"reverse,omitempty" json:"reverse,omitempty"`

	// Groups is the set of one-keys referenced by at least one handle.
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// LoadScenario reads a scenario file. Files ending in .cue are evaluated
// with CUE against the scenario schema; everything else is parsed as YAML
// with unknown fields rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if filepath.Ext(path) == ".cue" {
		scenario, err = parseCUE(path, data)
	} else {
		scenario, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

func parseYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and handle syntax.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}

	switch s.Storage {
	case "", StorageSparse, StorageDense, StorageInterleaved:
	default:
		return fmt.Errorf("unknown storage %q", s.Storage)
	}

	for h := range s.Initial {
		if _, err := parseHandle(h); err != nil {
			return fmt.Errorf("initial: %w", err)
		}
	}

	names := make(map[string]bool, len(s.Consumers))
	for i, c := range s.Consumers {
		if c.Name == "" {
			return fmt.Errorf("consumers[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("consumers[%d]: duplicate name %q", i, c.Name)
		}
		names[c.Name] = true
		if c.Kind != ConsumerFork && c.Kind != ConsumerWatch {
			return fmt.Errorf("consumers[%d]: unknown kind %q", i, c.Kind)
		}
		if c.Join < 1 || c.Join > len(s.Cycles) {
			return fmt.Errorf("consumers[%d]: join must be within 1..%d", i, len(s.Cycles))
		}
	}

	for i, c := range s.Cycles {
		for h := range c.Set {
			if _, err := parseHandle(h); err != nil {
				return fmt.Errorf("cycles[%d].set: %w", i, err)
			}
		}
		for _, h := range c.Delete {
			if _, err := parseHandle(h); err != nil {
				return fmt.Errorf("cycles[%d].delete: %w", i, err)
			}
		}
		if c.Expect != nil && !s.Relation && (c.Expect.Reverse != nil || c.Expect.Groups != nil) {
			return fmt.Errorf("cycles[%d].expect: reverse and groups need relation: true", i)
		}
	}
	return nil
}

func parseHandle(s string) (storage.Handle, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	return storage.Handle(n), nil
}

func formatHandle(h storage.Handle) string {
	return strconv.FormatUint(uint64(h), 10)
}
