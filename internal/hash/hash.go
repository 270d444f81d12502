// Package hash implements the dual Zobrist-style position hashing used for
// repetition and cache keys. Two independent 64-bit hashes are kept: the main
// hash accumulates by XOR, the sub hash by wrapping addition, which makes a
// collision on both keys at once vanishingly unlikely.
package hash

import (
	"encoding/binary"

	"lukechampine.com/frand"

	"github.com/j6k1/nnshogi/internal/shogi"
)

const (
	numPieceKinds = int(shogi.NoPiece) + 1 // board piece kinds including blank
	maxHandSlots  = 18                     // the pawn bounds the per-kind slot count
)

// DualHash is the pair of position keys.
type DualHash struct {
	Main uint64
	Sub  uint64
}

// Seeds holds the random tables the hashes are built from. The tables are
// fixed once at construction and shared read-only between workers.
type Seeds struct {
	pieceSq [numPieceKinds][shogi.NumSquares]uint64
	hold    [2][maxHandSlots][shogi.NumHandKinds]uint64
}

// NewSeeds fills fresh seed tables from the process entropy pool.
func NewSeeds() *Seeds {
	rng := frand.New()
	var buf [8]byte
	u64 := func() uint64 {
		rng.Read(buf[:])
		return binary.LittleEndian.Uint64(buf[:])
	}

	s := &Seeds{}
	for k := 0; k < numPieceKinds; k++ {
		for sq := 0; sq < shogi.NumSquares; sq++ {
			s.pieceSq[k][sq] = u64()
		}
	}
	for side := 0; side < 2; side++ {
		for slot := 0; slot < maxHandSlots; slot++ {
			for k := 0; k < shogi.NumHandKinds; k++ {
				s.hold[side][slot][k] = u64()
			}
		}
	}
	return s
}

// Initial computes the dual hash of a position from scratch.
func (s *Seeds) Initial(pos *shogi.Position) DualHash {
	var h DualHash
	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		seed := s.pieceSq[pos.Board[sq]][sq]
		h.Main ^= seed
		h.Sub += seed
	}
	for _, c := range [2]shogi.Color{shogi.Black, shogi.White} {
		for hk := shogi.HandKind(0); hk < shogi.NumHandKinds; hk++ {
			for i := 0; i < pos.Hands[c].Count(hk); i++ {
				seed := s.hold[c][i][hk]
				h.Main ^= seed
				h.Sub += seed
			}
		}
	}
	return h
}

// ApplyMove derives the hash of the successor position from the hash of pos.
// pos must be the position the move is played from; the move must carry its
// capture annotation. The result agrees with Initial on the applied position.
func (s *Seeds) ApplyMove(h DualHash, pos *shogi.Position, m shogi.Move) DualHash {
	mover := pos.Side
	if m.IsDrop() {
		hk := m.DropKind()
		count := pos.Hands[mover].Count(hk)
		if count == 0 {
			// Caller error; leave the hash untouched rather than corrupt it.
			return h
		}
		h = pull(h, s.hold[mover][count-1][hk])
		h = pull(h, s.pieceSq[shogi.NoPiece][m.To()])
		h = add(h, s.pieceSq[shogi.NewPiece(hk.PieceTypeOf(), mover)][m.To()])
		return h
	}

	src := pos.Board[m.From()]
	h = pull(h, s.pieceSq[src][m.From()])
	h = add(h, s.pieceSq[shogi.NoPiece][m.From()])

	h = pull(h, s.pieceSq[pos.Board[m.To()]][m.To()])

	final := src
	if m.IsPromotion() {
		final = src.Promote()
	}
	h = add(h, s.pieceSq[final][m.To()])

	if captured := pos.Board[m.To()]; captured != shogi.NoPiece && captured.Type() != shogi.King {
		if hk, ok := shogi.HandKindOf(captured.Type()); ok {
			count := pos.Hands[mover].Count(hk)
			h = add(h, s.hold[mover][count][hk])
		}
	}
	return h
}

func add(h DualHash, seed uint64) DualHash {
	h.Main ^= seed
	h.Sub += seed
	return h
}

func pull(h DualHash, seed uint64) DualHash {
	h.Main ^= seed
	h.Sub -= seed
	return h
}
