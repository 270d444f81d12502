package hash

import "github.com/j6k1/nnshogi/internal/shogi"

// kyEntry pairs the sub key with a value; entries sharing a main key are
// disambiguated by the sub key.
type kyEntry[V any] struct {
	sub uint64
	val V
}

// KyokumenMap maps (side, DualHash) to a value. It backs the per-path
// ledgers (repetition counts, check cycles, ignore sets) and the shared
// mate-verdict cache. Clone gives the copy-on-descend value semantics the
// search relies on: a child's writes never alias its siblings.
type KyokumenMap[V any] struct {
	m [2]map[uint64][]kyEntry[V]
}

// NewKyokumenMap creates an empty map.
func NewKyokumenMap[V any]() *KyokumenMap[V] {
	return &KyokumenMap[V]{
		m: [2]map[uint64][]kyEntry[V]{
			make(map[uint64][]kyEntry[V]),
			make(map[uint64][]kyEntry[V]),
		},
	}
}

// Get looks up the value stored for (side, h).
func (k *KyokumenMap[V]) Get(c shogi.Color, h DualHash) (V, bool) {
	for _, e := range k.m[c][h.Main] {
		if e.sub == h.Sub {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Insert stores v for (side, h), replacing any existing entry.
func (k *KyokumenMap[V]) Insert(c shogi.Color, h DualHash, v V) {
	entries := k.m[c][h.Main]
	for i := range entries {
		if entries[i].sub == h.Sub {
			entries[i].val = v
			return
		}
	}
	k.m[c][h.Main] = append(entries, kyEntry[V]{sub: h.Sub, val: v})
}

// ClearSide drops every entry recorded for one side.
func (k *KyokumenMap[V]) ClearSide(c shogi.Color) {
	k.m[c] = make(map[uint64][]kyEntry[V])
}

// Clone returns an independent deep copy.
func (k *KyokumenMap[V]) Clone() *KyokumenMap[V] {
	n := NewKyokumenMap[V]()
	for side := 0; side < 2; side++ {
		for key, entries := range k.m[side] {
			cp := make([]kyEntry[V], len(entries))
			copy(cp, entries)
			n.m[side][key] = cp
		}
	}
	return n
}

// Len returns the total number of entries.
func (k *KyokumenMap[V]) Len() int {
	n := 0
	for side := 0; side < 2; side++ {
		for _, entries := range k.m[side] {
			n += len(entries)
		}
	}
	return n
}
