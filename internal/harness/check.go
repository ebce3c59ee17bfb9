package harness

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/incr/internal/canonical"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/storage"
)

// check runs the built-in invariants and the cycle's expectations.
func (p *pipeline) check(expect *Expect) []string {
	errs := p.errors
	p.errors = nil

	state := collection.Collect(p.column.View())
	for _, r := range p.roots {
		if !r.polled {
			continue
		}
		if diff := cmp.Diff(state, r.mirror); diff != "" {
			errs = append(errs, p.errorf("%s diverged from the column (-column +replayed):\n%s", r.name, diff))
		}
	}

	if expect == nil {
		return errs
	}

	if expect.Changes != nil {
		errs = append(errs, p.checkChanges(expect.Changes)...)
	}
	if expect.View != nil {
		got := make(map[string]string, len(state))
		for h, v := range state {
			got[formatHandle(h)] = v
		}
		if diff := cmp.Diff(expect.View, got); diff != "" {
			errs = append(errs, p.errorf("view mismatch (-want +got):\n%s", diff))
		}
	}
	if expect.Reverse != nil {
		want := make(map[string][]string, len(expect.Reverse))
		for one, members := range expect.Reverse {
			want[one] = sortedHandles(members)
		}
		got := make(map[string][]string, len(p.reverse))
		for one, v := range p.reverse {
			for _, m := range v.(canonical.Array) {
				got[one] = append(got[one], string(m.(canonical.String)))
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			errs = append(errs, p.errorf("reverse index mismatch (-want +got):\n%s", diff))
		}
	}
	if expect.Groups != nil {
		want := slices.Sorted(slices.Values(expect.Groups))
		got := slices.Sorted(maps.Keys(p.groups))
		if !slices.Equal(want, got) {
			errs = append(errs, p.errorf("groups mismatch: want %v, got %v", want, got))
		}
	}
	return errs
}

func (p *pipeline) checkChanges(expected map[string]any) []string {
	want, err := canonical.Marshal(expected)
	if err != nil {
		return []string{p.errorf("invalid expected changes: %v", err)}
	}

	got := canonical.Object{}
	if r := p.roots[0]; r.batch != nil {
		got = r.batch
	}
	gotJSON, err := canonical.Marshal(got)
	if err != nil {
		return []string{p.errorf("render changes: %v", err)}
	}

	if !bytes.Equal(want, gotJSON) {
		return []string{p.errorf("changes mismatch:\n  want %s\n  got  %s", want, gotJSON)}
	}
	return nil
}

func (p *pipeline) errorf(format string, args ...any) string {
	return fmt.Sprintf("cycle %d: ", p.cycle) + fmt.Sprintf(format, args...)
}

// sortedHandles orders handle strings numerically.
func sortedHandles(hs []string) []string {
	parsed := make([]storage.Handle, 0, len(hs))
	for _, h := range hs {
		handle, err := parseHandle(h)
		if err != nil {
			return slices.Sorted(slices.Values(hs))
		}
		parsed = append(parsed, handle)
	}
	slices.Sort(parsed)
	out := make([]string, len(parsed))
	for i, h := range parsed {
		out[i] = formatHandle(h)
	}
	return out
}
