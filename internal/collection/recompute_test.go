package collection

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// scramble applies a few random writes to src.
func scramble(rng *rand.Rand, src *Mutable[int, int]) {
	for w := rng.IntN(4); w >= 0; w-- {
		k := rng.IntN(16)
		if rng.IntN(3) == 0 {
			src.Delete(k)
		} else {
			src.Set(k, rng.IntN(8))
		}
	}
}

// matchesRecompute drives random writes through out for many cycles. After
// every poll the applied changes and the view must equal expected(), and an
// immediate second poll must report nothing.
func matchesRecompute[V comparable](t *testing.T, rng *rand.Rand, out Collection[int, V], write func(), expected func() map[int]V) {
	t.Helper()
	mirror := map[int]V{}

	for cycle := 0; cycle < 150; cycle++ {
		write()
		changes, view := poll(out)
		changes.Apply(mirror)

		want := expected()
		require.Equal(t, want, view, "cycle %d view", cycle)
		require.Equal(t, want, mirror, "cycle %d mirror", cycle)

		changes, view = poll(out)
		require.True(t, changes.IsEmpty(), "cycle %d second poll: %v", cycle, changes)
		require.Equal(t, want, view, "cycle %d second poll view", cycle)

		if rng.IntN(10) == 0 {
			out.Request(RequestShrinkToFit)
		}
	}
}

func mapValues[V comparable](src *Mutable[int, int], f func(k, v int) (V, bool)) map[int]V {
	out := map[int]V{}
	for k, v := range Collect(src.View()) {
		if u, ok := f(k, v); ok {
			out[k] = u
		}
	}
	return out
}

func TestMap_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	src := NewMutable[int, int](nil)
	f := func(k, v int) int { return v*10 + k%3 }

	matchesRecompute(t, rng, Map[int, int, int](src, f),
		func() { scramble(rng, src) },
		func() map[int]int {
			return mapValues(src, func(k, v int) (int, bool) { return f(k, v), true })
		})
}

func TestFilterMap_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	src := NewMutable[int, int](nil)
	f := func(_ int, v int) (int, bool) { return v / 2, v%2 == 0 }

	matchesRecompute(t, rng, FilterMap[int, int, int](src, f),
		func() { scramble(rng, src) },
		func() map[int]int { return mapValues(src, f) })
}

func TestDiff_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	src := NewMutable[int, int](nil)
	coarse := func(_ int, v int) int { return v / 3 }
	diffed := Diff(Map[int, int, int](src, coarse))

	matchesRecompute(t, rng, diffed,
		func() { scramble(rng, src) },
		func() map[int]int {
			return mapValues(src, func(k, v int) (int, bool) { return coarse(k, v), true })
		})

	for i := 0; i < 50; i++ {
		scramble(rng, src)
		changes, _ := poll(diffed)
		for k, c := range changes {
			require.False(t, c.IsRedundant(), "key %d: %v", k, c)
		}
	}
}

func TestSelect_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 5))
	left := NewMutable[int, int](nil)
	right := NewMutable[int, int](nil)

	matchesRecompute(t, rng, Select[int, int](left, right),
		func() {
			scramble(rng, left)
			scramble(rng, right)
		},
		func() map[int]int {
			out := Collect(right.View())
			for k, v := range Collect(left.View()) {
				out[k] = v
			}
			return out
		})
}

func TestUnion_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	a := NewMutable[int, int](nil)
	b := NewMutable[int, int](nil)
	// Keys present on both sides whose values sum to an odd number drop out.
	sum := func(av int, aok bool, bv int, bok bool) (int, bool) {
		s := av + bv
		if aok && bok && s%2 == 1 {
			return 0, false
		}
		return s, true
	}

	matchesRecompute(t, rng, Union[int, int, int, int](a, b, sum),
		func() {
			scramble(rng, a)
			scramble(rng, b)
		},
		func() map[int]int {
			av, bv := Collect(a.View()), Collect(b.View())
			out := map[int]int{}
			for k := range 16 {
				x, xok := av[k]
				y, yok := bv[k]
				if !xok && !yok {
					continue
				}
				if s, ok := sum(x, xok, y, yok); ok {
					out[k] = s
				}
			}
			return out
		})
}

func TestExecuteMap_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 7))
	src := NewMutable[int, int](nil)
	exec := ExecuteMap[int, int, int](src, func() func(int, int) int {
		return func(k, v int) int { return k*100 + v }
	})

	matchesRecompute(t, rng, exec,
		func() { scramble(rng, src) },
		func() map[int]int {
			return mapValues(src, func(k, v int) (int, bool) { return k*100 + v, true })
		})
}

func TestMaterialize_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	src := NewMutable[int, int](nil)
	f := func(_ int, v int) (int, bool) { return v + 1, v != 0 }

	matchesRecompute(t, rng, Materialize(FilterMap[int, int, int](src, f)),
		func() { scramble(rng, src) },
		func() map[int]int { return mapValues(src, f) })
}
