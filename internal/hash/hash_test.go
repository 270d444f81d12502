package hash

import (
	"math/rand"
	"testing"

	"github.com/j6k1/nnshogi/internal/shogi"
)

// TestIncrementalMatchesInitial verifies the core hashing invariant: the
// per-move incremental update agrees with recomputing from scratch, along
// random games with captures, drops and promotions.
func TestIncrementalMatchesInitial(t *testing.T) {
	seeds := NewSeeds()
	rng := rand.New(rand.NewSource(11))

	for game := 0; game < 5; game++ {
		pos := shogi.NewPosition()
		h := seeds.Initial(&pos)

		for ply := 0; ply < 120; ply++ {
			moves := pos.Evasions()
			if moves.Len() == 0 {
				break
			}
			m := moves.Get(rng.Intn(moves.Len()))

			h = seeds.ApplyMove(h, &pos, m)
			pos, _ = pos.Apply(m)

			if want := seeds.Initial(&pos); want != h {
				t.Fatalf("game %d ply %d: incremental hash %v != scratch %v after %v",
					game, ply, h, want, m)
			}
		}
	}
}

// TestHashRoundTrip checks every opening move against the parent hash: each
// move changes the hash, and deriving the child leaves the parent intact, so
// re-deriving the parent from scratch still matches.
func TestHashRoundTrip(t *testing.T) {
	seeds := NewSeeds()
	pos := shogi.NewPosition()
	h0 := seeds.Initial(&pos)

	for _, m := range pos.Evasions().Slice() {
		h1 := seeds.ApplyMove(h0, &pos, m)
		if h1 == h0 {
			t.Errorf("move %v did not change the hash", m)
		}
		if again := seeds.Initial(&pos); again != h0 {
			t.Fatalf("parent hash disturbed: %v != %v", again, h0)
		}
	}
}

func TestDropWithEmptyHandIsNoop(t *testing.T) {
	seeds := NewSeeds()
	pos := shogi.NewPosition()
	h := seeds.Initial(&pos)

	drop := shogi.NewDrop(shogi.HandGold, 40)
	if got := seeds.ApplyMove(h, &pos, drop); got != h {
		t.Errorf("drop from empty hand must leave the hash unchanged")
	}
}

func TestKyokumenMapTwoKeys(t *testing.T) {
	m := NewKyokumenMap[uint32]()
	a := DualHash{Main: 1, Sub: 2}
	b := DualHash{Main: 1, Sub: 3} // same main key, different sub key

	m.Insert(shogi.Black, a, 10)
	m.Insert(shogi.Black, b, 20)

	if v, ok := m.Get(shogi.Black, a); !ok || v != 10 {
		t.Errorf("Get(a) = %d,%v want 10,true", v, ok)
	}
	if v, ok := m.Get(shogi.Black, b); !ok || v != 20 {
		t.Errorf("Get(b) = %d,%v want 20,true", v, ok)
	}
	if _, ok := m.Get(shogi.White, a); ok {
		t.Error("sides must be partitioned")
	}

	m.Insert(shogi.Black, a, 11)
	if v, _ := m.Get(shogi.Black, a); v != 11 {
		t.Errorf("Insert must replace, got %d", v)
	}
}

func TestKyokumenMapCloneIsIndependent(t *testing.T) {
	m := NewKyokumenMap[uint32]()
	h := DualHash{Main: 5, Sub: 6}
	m.Insert(shogi.White, h, 1)

	c := m.Clone()
	c.Insert(shogi.White, h, 2)
	c.Insert(shogi.White, DualHash{Main: 7, Sub: 8}, 3)

	if v, _ := m.Get(shogi.White, h); v != 1 {
		t.Errorf("clone write leaked into the original: %d", v)
	}
	if m.Len() != 1 {
		t.Errorf("original length = %d, want 1", m.Len())
	}
	if c.Len() != 2 {
		t.Errorf("clone length = %d, want 2", c.Len())
	}
}

func TestSharedBoolMap(t *testing.T) {
	m := NewSharedBoolMap()
	h := DualHash{Main: 9, Sub: 10}

	m.InsertIfAbsent(shogi.Black, h, false)
	if v, ok := m.Get(shogi.Black, h); !ok || v {
		t.Errorf("Get = %v,%v want false,true", v, ok)
	}
	m.InsertIfAbsent(shogi.Black, h, true)
	if v, _ := m.Get(shogi.Black, h); v {
		t.Error("InsertIfAbsent must not overwrite")
	}
	m.Insert(shogi.Black, h, true)
	if v, _ := m.Get(shogi.Black, h); !v {
		t.Error("Insert must overwrite")
	}
}
