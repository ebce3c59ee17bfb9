package relation

import (
	"iter"
	"maps"
	"slices"
)

// bucketSetThreshold is the member count past which a bucket switches from
// a slice to a hash set.
const bucketSetThreshold = 128

// bucket holds the many-keys of one one-key.
type bucket[M comparable] struct {
	list []M
	set  map[M]struct{}
}

func (b *bucket[M]) add(m M) {
	if b.set != nil {
		b.set[m] = struct{}{}
		return
	}
	if slices.Contains(b.list, m) {
		return
	}
	b.list = append(b.list, m)
	if len(b.list) > bucketSetThreshold {
		b.set = make(map[M]struct{}, len(b.list))
		for _, x := range b.list {
			b.set[x] = struct{}{}
		}
		b.list = nil
	}
}

// remove reports whether m was a member.
func (b *bucket[M]) remove(m M) bool {
	if b.set != nil {
		if _, ok := b.set[m]; !ok {
			return false
		}
		delete(b.set, m)
		return true
	}
	i := slices.Index(b.list, m)
	if i < 0 {
		return false
	}
	last := len(b.list) - 1
	b.list[i] = b.list[last]
	b.list = b.list[:last]
	return true
}

func (b *bucket[M]) len() int {
	if b.set != nil {
		return len(b.set)
	}
	return len(b.list)
}

func (b *bucket[M]) members() iter.Seq[M] {
	if b.set != nil {
		return maps.Keys(b.set)
	}
	return slices.Values(b.list)
}

func (b *bucket[M]) shrink() {
	if b.set != nil {
		b.set = maps.Clone(b.set)
		return
	}
	b.list = slices.Clip(b.list)
}
