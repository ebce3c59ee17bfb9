package harness

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// scenarioSchema is the CUE definition every .cue scenario is unified with.
// Definitions are closed, so misspelled fields fail evaluation.
const scenarioSchema = `
#Scenario: {
	name:        string & !=""
	description: string & !=""
	storage?:    "sparse" | "dense" | "interleaved"
	relation?:   bool
	initial?: [=~"^[0-9]+$"]: string
	consumers?: [...#Consumer]
	cycles: [#Cycle, ...#Cycle]
}

#Consumer: {
	name: string & !=""
	kind: "fork" | "watch"
	join: int & >=1
}

#Cycle: {
	set?: [=~"^[0-9]+$"]: string
	delete?: [...(string & =~"^[0-9]+$")]
	expect?: #Expect
}

#Expect: {
	changes?: [=~"^[0-9]+$"]: {new: string, old?: string} | {removed: string}
	view?: [=~"^[0-9]+$"]: string
	reverse?: [string]: [...string]
	groups?: [...string]
}
`

// parseCUE evaluates a scenario written in CUE. The file's top-level
// fields form the scenario.
func parseCUE(path string, data []byte) (*Scenario, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var scenario Scenario
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode CUE scenario: %w", err)
	}
	return &scenario, nil
}

// LoadError reports an invalid CUE scenario with its source position.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Message: first.Error()}
}
