package shogi

import (
	"fmt"
	"strings"
)

// Hand holds the droppable piece counts for one side.
type Hand [NumHandKinds]uint8

// Count returns the number of held pieces of the given kind.
func (h *Hand) Count(hk HandKind) int {
	return int(h[hk])
}

// Total returns the total number of held pieces.
func (h *Hand) Total() int {
	t := 0
	for _, c := range h {
		t += int(c)
	}
	return t
}

// StartSFEN is the SFEN of the initial position.
const StartSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

// Position is a value object: the 9x9 board, both hands and the side to move.
// Apply returns a successor instead of mutating, so positions can be shared
// freely between search frames and worker goroutines.
type Position struct {
	Board [NumSquares]Piece
	Hands [2]Hand
	Side  Color
	Ply   int
}

// NewPosition returns the initial shogi position.
func NewPosition() Position {
	pos, err := ParseSFEN(StartSFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// PieceAt returns the piece on the given square.
func (p *Position) PieceAt(sq Square) Piece {
	return p.Board[sq]
}

// KingSquare returns the square of the given side's king, or NoSquare when
// the king has been captured.
func (p *Position) KingSquare(c Color) Square {
	king := NewPiece(King, c)
	for sq := Square(0); sq < NumSquares; sq++ {
		if p.Board[sq] == king {
			return sq
		}
	}
	return NoSquare
}

// Apply plays the move and returns the successor position together with the
// captured piece (NoPiece when quiet). The move is not legality-checked.
func (p Position) Apply(m Move) (Position, Piece) {
	captured := NoPiece
	if m.IsDrop() {
		hk := m.DropKind()
		if p.Hands[p.Side][hk] > 0 {
			p.Hands[p.Side][hk]--
			p.Board[m.To()] = NewPiece(hk.PieceTypeOf(), p.Side)
		}
	} else {
		piece := p.Board[m.From()]
		p.Board[m.From()] = NoPiece
		captured = p.Board[m.To()]
		if captured != NoPiece && captured.Type() != King {
			if hk, ok := HandKindOf(captured.Type()); ok {
				p.Hands[p.Side][hk]++
			}
		}
		if m.IsPromotion() {
			piece = piece.Promote()
		}
		p.Board[m.To()] = piece
	}
	p.Side = p.Side.Other()
	p.Ply++
	return p, captured
}

// AnnotateCapture resolves the captured-piece field of a parsed move against
// this position.
func (p *Position) AnnotateCapture(m Move) Move {
	if m == NoMove || m.IsDrop() {
		return m
	}
	return m.WithCaptured(p.Board[m.To()])
}

// ParseSFEN parses an SFEN position string: board, side, hands and an
// optional move number.
func ParseSFEN(sfen string) (Position, error) {
	var pos Position
	fields := strings.Fields(sfen)
	if len(fields) < 3 {
		return pos, fmt.Errorf("invalid sfen: %q", sfen)
	}

	for i := range pos.Board {
		pos.Board[i] = NoPiece
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 9 {
		return pos, fmt.Errorf("invalid sfen board: %q", fields[0])
	}
	for r, row := range ranks {
		f := 0
		promoted := false
		for i := 0; i < len(row); i++ {
			c := row[i]
			switch {
			case c == '+':
				promoted = true
			case c >= '1' && c <= '9':
				f += int(c - '0')
			default:
				if f > 8 {
					return pos, fmt.Errorf("sfen rank overflow: %q", row)
				}
				piece := PieceFromSFEN(c, promoted)
				if piece == NoPiece {
					return pos, fmt.Errorf("invalid sfen piece %q", string(c))
				}
				pos.Board[NewSquare(f, r)] = piece
				promoted = false
				f++
			}
		}
		if f != 9 {
			return pos, fmt.Errorf("sfen rank too short: %q", row)
		}
	}

	switch fields[1] {
	case "b":
		pos.Side = Black
	case "w":
		pos.Side = White
	default:
		return pos, fmt.Errorf("invalid sfen side: %q", fields[1])
	}

	if fields[2] != "-" {
		count := 0
		for i := 0; i < len(fields[2]); i++ {
			c := fields[2][i]
			if c >= '0' && c <= '9' {
				count = count*10 + int(c-'0')
				continue
			}
			piece := PieceFromSFEN(c, false)
			if piece == NoPiece {
				return pos, fmt.Errorf("invalid sfen hand piece %q", string(c))
			}
			hk, ok := HandKindOf(piece.Type())
			if !ok {
				return pos, fmt.Errorf("king in sfen hand: %q", fields[2])
			}
			if count == 0 {
				count = 1
			}
			pos.Hands[piece.Color()][hk] += uint8(count)
			count = 0
		}
	}

	if len(fields) >= 4 {
		var ply int
		if _, err := fmt.Sscanf(fields[3], "%d", &ply); err == nil && ply >= 1 {
			pos.Ply = ply - 1
		}
	}

	return pos, nil
}

// SFEN formats the position as an SFEN string.
func (p *Position) SFEN() string {
	var sb strings.Builder
	for r := 0; r < 9; r++ {
		if r > 0 {
			sb.WriteByte('/')
		}
		blanks := 0
		for f := 0; f < 9; f++ {
			piece := p.Board[NewSquare(f, r)]
			if piece == NoPiece {
				blanks++
				continue
			}
			if blanks > 0 {
				sb.WriteByte('0' + byte(blanks))
				blanks = 0
			}
			sb.WriteString(piece.String())
		}
		if blanks > 0 {
			sb.WriteByte('0' + byte(blanks))
		}
	}

	if p.Side == Black {
		sb.WriteString(" b ")
	} else {
		sb.WriteString(" w ")
	}

	hands := ""
	// SFEN hand order: rook, bishop, gold, silver, knight, lance, pawn,
	// black before white.
	order := [NumHandKinds]HandKind{HandRook, HandBishop, HandGold, HandSilver, HandKnight, HandLance, HandPawn}
	for _, c := range [2]Color{Black, White} {
		for _, hk := range order {
			n := p.Hands[c].Count(hk)
			if n == 0 {
				continue
			}
			if n > 1 {
				hands += fmt.Sprintf("%d", n)
			}
			hands += NewPiece(hk.PieceTypeOf(), c).String()
		}
	}
	if hands == "" {
		hands = "-"
	}
	sb.WriteString(hands)
	sb.WriteString(fmt.Sprintf(" %d", p.Ply+1))
	return sb.String()
}

// String renders the board for debugging.
func (p *Position) String() string {
	var sb strings.Builder
	for r := 0; r < 9; r++ {
		for f := 0; f < 9; f++ {
			piece := p.Board[NewSquare(f, r)]
			if piece == NoPiece {
				sb.WriteString(" . ")
			} else {
				s := piece.String()
				if len(s) == 1 {
					s = " " + s
				}
				sb.WriteString(s + " ")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("side: %s  hands: %v %v\n", p.Side, p.Hands[Black], p.Hands[White]))
	return sb.String()
}
