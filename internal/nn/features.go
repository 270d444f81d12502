// Package nn implements the two-headed MLP position evaluator with a
// differential first layer: a child position's hidden pre-activations are
// derived from its parent's by applying a sparse feature delta instead of a
// full matrix multiply.
package nn

import (
	"errors"
	"fmt"

	"github.com/j6k1/nnshogi/internal/shogi"
)

// Network dimensions. InputSize is contractual; the feature layout below
// uses 2360 slots and the tail stays zero.
const (
	InputSize  = 2517
	HiddenSize = 256
	L2Size     = 100
)

const (
	selfFlagIndex     = 0
	opponentFlagIndex = 1
	boardBase         = 2
	planeSize         = shogi.NumSquares
	numPlanes         = 14 // one side's piece planes: king + 7 basics + 6 promoted
)

// handWidths is the unary width reserved per hand kind (pawn..rook).
var handWidths = [shogi.NumHandKinds]int{19, 5, 5, 5, 5, 3, 3}

var (
	selfHandBase [shogi.NumHandKinds]int
	oppHandBase  [shogi.NumHandKinds]int
)

func init() {
	base := boardBase + 2*numPlanes*planeSize
	for hk := 0; hk < shogi.NumHandKinds; hk++ {
		selfHandBase[hk] = base
		base += handWidths[hk]
	}
	for hk := 0; hk < shogi.NumHandKinds; hk++ {
		oppHandBase[hk] = base
		base += handWidths[hk]
	}
	if base > InputSize {
		panic(fmt.Sprintf("nn: feature layout overflows input size: %d", base))
	}
}

// planeOrder maps a piece type to its plane position within one side's block.
// The king plane comes first, then the basic pieces, then the promoted forms.
var planeOrder = [shogi.NoPieceType]int{
	shogi.King:      0,
	shogi.Pawn:      1,
	shogi.Lance:     2,
	shogi.Knight:    3,
	shogi.Silver:    4,
	shogi.Gold:      5,
	shogi.Bishop:    6,
	shogi.Rook:      7,
	shogi.ProPawn:   8,
	shogi.ProLance:  9,
	shogi.ProKnight: 10,
	shogi.ProSilver: 11,
	shogi.Horse:     12,
	shogi.Dragon:    13,
}

// boardFeature returns the input index of piece p on sq as seen from
// perspective t. The opponent perspective mirrors the board point-symmetric
// and swaps the ownership blocks.
func boardFeature(t shogi.Color, p shogi.Piece, sq shogi.Square) int {
	f, r := sq.FileIdx(), sq.Rank()
	if t == shogi.White {
		f, r = 8-f, 8-r
	}
	block := 0
	if p.Color() != t {
		block = 1
	}
	return boardBase + (block*numPlanes+planeOrder[p.Type()])*planeSize + r*9 + f
}

// handFeature returns the input index of the i-th held copy of kind hk,
// owned by t itself (selfSide) or its opponent.
func handFeature(selfSide bool, hk shogi.HandKind, i int) int {
	if selfSide {
		return selfHandBase[hk] + i
	}
	return oppHandBase[hk] + i
}

// flagIndex returns the side-flag feature index.
func flagIndex(isSelf bool) int {
	if isSelf {
		return selfFlagIndex
	}
	return opponentFlagIndex
}

// ActiveFeatures lists the input indices that are 1 for the given position,
// viewed from perspective t with the given self flag.
func ActiveFeatures(t shogi.Color, isSelf bool, pos *shogi.Position) []int {
	active := make([]int, 0, 48)
	active = append(active, flagIndex(isSelf))
	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		if p := pos.Board[sq]; p != shogi.NoPiece {
			active = append(active, boardFeature(t, p, sq))
		}
	}
	for hk := shogi.HandKind(0); hk < shogi.NumHandKinds; hk++ {
		for i := 0; i < pos.Hands[t].Count(hk); i++ {
			active = append(active, handFeature(true, hk, i))
		}
		for i := 0; i < pos.Hands[t.Other()].Count(hk); i++ {
			active = append(active, handFeature(false, hk, i))
		}
	}
	return active
}

// FeatureDelta is one sparse input change: the feature at Index moved by
// Value (+1 or -1).
type FeatureDelta struct {
	Index int
	Value float32
}

// ErrInvalidDiff is returned when a sparse delta cannot be derived, e.g. a
// drop from an empty hand. Callers fall back to a from-scratch snapshot.
var ErrInvalidDiff = errors.New("nn: invalid diff input")

// MoveDelta builds the sparse input delta that takes the feature vector of
// pos (perspective t) to the feature vector of pos after m. When flipFlags
// is set the two side-flag features are toggled as well, which is how a
// parent's snapshot turns into the child frame's opposite-role snapshot.
func MoveDelta(t shogi.Color, isSelfAfter bool, flipFlags bool, pos *shogi.Position, m shogi.Move) ([]FeatureDelta, error) {
	d := make([]FeatureDelta, 0, 6)
	if flipFlags {
		d = append(d,
			FeatureDelta{Index: flagIndex(!isSelfAfter), Value: -1},
			FeatureDelta{Index: flagIndex(isSelfAfter), Value: 1},
		)
	}

	mover := pos.Side
	if m.IsDrop() {
		hk := m.DropKind()
		count := pos.Hands[mover].Count(hk)
		if count == 0 {
			return nil, fmt.Errorf("%w: drop of %v with empty hand", ErrInvalidDiff, hk.PieceTypeOf())
		}
		d = append(d,
			FeatureDelta{Index: handFeature(mover == t, hk, count-1), Value: -1},
			FeatureDelta{Index: boardFeature(t, shogi.NewPiece(hk.PieceTypeOf(), mover), m.To()), Value: 1},
		)
		return d, nil
	}

	src := pos.Board[m.From()]
	if src == shogi.NoPiece {
		return nil, fmt.Errorf("%w: no piece on %v", ErrInvalidDiff, m.From())
	}
	d = append(d, FeatureDelta{Index: boardFeature(t, src, m.From()), Value: -1})

	final := src
	if m.IsPromotion() {
		final = src.Promote()
	}
	d = append(d, FeatureDelta{Index: boardFeature(t, final, m.To()), Value: 1})

	if captured := pos.Board[m.To()]; captured != shogi.NoPiece {
		d = append(d, FeatureDelta{Index: boardFeature(t, captured, m.To()), Value: -1})
		if captured.Type() != shogi.King {
			if hk, ok := shogi.HandKindOf(captured.Type()); ok {
				count := pos.Hands[mover].Count(hk)
				d = append(d, FeatureDelta{Index: handFeature(mover == t, hk, count), Value: 1})
			}
		}
	}
	return d, nil
}
