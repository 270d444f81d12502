package shogi

import "fmt"

// Move encodes a shogi move in 23 bits:
// bits 0-6:   destination square (0-80)
// bits 7-13:  origin square (0-80), or dropOrigin for drops
// bit 14:     promotion flag
// bits 15-17: hand kind for drops
// bits 18-22: captured piece (set by the move generator; NoPiece when quiet)
type Move uint32

const (
	dropOrigin        = 0x7F
	moveCapturedShift = 18
	moveCapturedMask  = 0x1F << moveCapturedShift
	moveDropKindShift = 15
	movePromotionFlag = 1 << 14
)

// NoMove represents an invalid or absent move.
const NoMove Move = ^Move(0)

// NewBoardMove creates a board move, optionally promoting.
func NewBoardMove(from, to Square, promote bool) Move {
	m := Move(to) | Move(from)<<7 | Move(NoPiece)<<moveCapturedShift
	if promote {
		m |= movePromotionFlag
	}
	return m
}

// NewDrop creates a drop of the given hand kind.
func NewDrop(hk HandKind, to Square) Move {
	return Move(to) | dropOrigin<<7 | Move(hk)<<moveDropKindShift | Move(NoPiece)<<moveCapturedShift
}

// From returns the origin square; only valid for board moves.
func (m Move) From() Square {
	return Square((m >> 7) & 0x7F)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square(m & 0x7F)
}

// IsDrop reports whether the move is a drop from hand.
func (m Move) IsDrop() bool {
	return (m>>7)&0x7F == dropOrigin
}

// IsPromotion reports whether the move promotes the moved piece.
func (m Move) IsPromotion() bool {
	return m&movePromotionFlag != 0
}

// DropKind returns the hand kind dropped; only valid when IsDrop.
func (m Move) DropKind() HandKind {
	return HandKind((m >> moveDropKindShift) & 0x7)
}

// Captured returns the piece captured by the move, NoPiece when quiet.
func (m Move) Captured() Piece {
	return Piece((m & moveCapturedMask) >> moveCapturedShift)
}

// WithCaptured returns the move annotated with the captured piece.
func (m Move) WithCaptured(p Piece) Move {
	return (m &^ moveCapturedMask) | Move(p)<<moveCapturedShift
}

// IsCapture reports whether the move captures a piece.
func (m Move) IsCapture() bool {
	return m != NoMove && m.Captured() != NoPiece
}

// String returns the USI notation of the move ("7g7f", "8h2b+", "P*5e").
func (m Move) String() string {
	if m == NoMove {
		return "none"
	}
	if m.IsDrop() {
		return fmt.Sprintf("%c*%s", sfenChars[m.DropKind().PieceTypeOf()], m.To())
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += "+"
	}
	return s
}

// ParseMove parses USI move notation. The returned move carries no capture
// annotation; resolve it against a position with AnnotateCapture.
func ParseMove(str string) (Move, error) {
	if len(str) >= 4 && str[1] == '*' {
		to, err := ParseSquare(str[2:4])
		if err != nil {
			return NoMove, err
		}
		p := PieceFromSFEN(str[0], false)
		if p == NoPiece || p.Color() != Black {
			return NoMove, fmt.Errorf("invalid drop piece in %q", str)
		}
		hk, ok := HandKindOf(p.Type())
		if !ok {
			return NoMove, fmt.Errorf("invalid drop piece in %q", str)
		}
		return NewDrop(hk, to), nil
	}
	if len(str) < 4 {
		return NoMove, fmt.Errorf("invalid move: %q", str)
	}
	from, err := ParseSquare(str[0:2])
	if err != nil {
		return NoMove, err
	}
	to, err := ParseSquare(str[2:4])
	if err != nil {
		return NoMove, err
	}
	promote := len(str) >= 5 && str[4] == '+'
	return NewBoardMove(from, to, promote), nil
}

// MoveList is a reusable list of moves.
type MoveList struct {
	moves []Move
}

// NewMoveList creates an empty move list with room for a typical position.
func NewMoveList() *MoveList {
	return &MoveList{moves: make([]Move, 0, 128)}
}

// Add appends a move.
func (ml *MoveList) Add(m Move) {
	ml.moves = append(ml.moves, m)
}

// Len returns the number of moves.
func (ml *MoveList) Len() int {
	return len(ml.moves)
}

// Get returns the move at index i.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

// Slice returns the moves as a slice.
func (ml *MoveList) Slice() []Move {
	return ml.moves
}

// Clear empties the list, keeping capacity.
func (ml *MoveList) Clear() {
	ml.moves = ml.moves[:0]
}
