// Package train implements the training-data pipeline: fixed-size packed
// position records, directory iteration with checkpoint resume, and batch
// feeding of the evaluator's SGD pass.
package train

import (
	"errors"
	"fmt"
	"io"

	"github.com/j6k1/nnshogi/internal/shogi"
)

// Record sizes of the two supported wire formats.
const (
	PackedRecordSize = 40 // position + value + best move + end ply + result
	HCPERecordSize   = 38 // position + eval + best move + result
	positionBytes    = 32
)

// GameOutcome labels a training position with the game's final result.
type GameOutcome int8

const (
	OutcomeDraw GameOutcome = iota
	OutcomeBlackWin
	OutcomeWhiteWin
)

// Record is one decoded training position.
type Record struct {
	Pos     shogi.Position
	Value   int16
	Outcome GameOutcome
}

var errPositionTooLarge = errors.New("train: position exceeds packed size")

// bitWriter packs bits little-endian-first into a fixed buffer.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) write(value uint32, bits int) error {
	for i := 0; i < bits; i++ {
		if w.n >= len(w.buf)*8 {
			return errPositionTooLarge
		}
		if value&(1<<i) != 0 {
			w.buf[w.n/8] |= 1 << (w.n % 8)
		}
		w.n++
	}
	return nil
}

// bitReader reads bits in the writer's order.
type bitReader struct {
	buf []byte
	n   int
}

func (r *bitReader) read(bits int) (uint32, error) {
	var v uint32
	for i := 0; i < bits; i++ {
		if r.n >= len(r.buf)*8 {
			return 0, io.ErrUnexpectedEOF
		}
		if r.buf[r.n/8]&(1<<(r.n%8)) != 0 {
			v |= 1 << i
		}
		r.n++
	}
	return v, nil
}

// Board piece codes: prefix-free, ordered so the whole-position encoding of
// any position reachable from the start fits 256 bits. Kings are stored as
// two 7-bit squares instead.
//
//	empty   0
//	pawn    10      +promote +color
//	lance   1100    +promote +color
//	knight  1101    +promote +color
//	silver  1110    +promote +color
//	gold    11110   +color
//	bishop  111110  +promote +color
//	rook    111111  +promote +color
type pieceCode struct {
	code    uint32
	bits    int
	promote bool
}

var boardCodes = map[shogi.PieceType]pieceCode{
	shogi.Pawn:   {0b01, 2, true},
	shogi.Lance:  {0b0011, 4, true},
	shogi.Knight: {0b1011, 4, true},
	shogi.Silver: {0b0111, 4, true},
	shogi.Gold:   {0b01111, 5, false},
	shogi.Bishop: {0b011111, 6, true},
	shogi.Rook:   {0b111111, 6, true},
}

// Hand piece codes: a separate, shorter prefix-free table (hands never hold
// kings and never need an empty code).
//
//	pawn 0, lance 100, knight 101, silver 110, gold 1110,
//	bishop 11110, rook 11111 — each followed by a color bit.
var handCodes = map[shogi.HandKind]pieceCode{
	shogi.HandPawn:   {0b0, 1, false},
	shogi.HandLance:  {0b001, 3, false},
	shogi.HandKnight: {0b101, 3, false},
	shogi.HandSilver: {0b011, 3, false},
	shogi.HandGold:   {0b0111, 4, false},
	shogi.HandBishop: {0b01111, 5, false},
	shogi.HandRook:   {0b11111, 5, false},
}

// encodePosition packs a position into 32 bytes: 1 bit side, two 7-bit king
// squares, the board in square order under the board code table, then both
// hands under the hand table.
func encodePosition(pos *shogi.Position, out []byte) error {
	census := 0
	for _, p := range pos.Board {
		if p != shogi.NoPiece {
			census++
		}
	}
	census += pos.Hands[shogi.Black].Total() + pos.Hands[shogi.White].Total()
	if census != 40 {
		// The decoder recovers the hand section from the 40-piece census,
		// which every position reachable from the start satisfies.
		return fmt.Errorf("train: cannot encode a position with %d pieces", census)
	}

	w := &bitWriter{buf: out[:positionBytes]}

	if err := w.write(uint32(pos.Side), 1); err != nil {
		return err
	}
	bk := pos.KingSquare(shogi.Black)
	wk := pos.KingSquare(shogi.White)
	if bk == shogi.NoSquare || wk == shogi.NoSquare {
		return fmt.Errorf("train: cannot encode a position without both kings")
	}
	if err := w.write(uint32(bk), 7); err != nil {
		return err
	}
	if err := w.write(uint32(wk), 7); err != nil {
		return err
	}

	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		if sq == bk || sq == wk {
			continue
		}
		p := pos.Board[sq]
		if p == shogi.NoPiece {
			if err := w.write(0, 1); err != nil {
				return err
			}
			continue
		}
		base := p.Type().Demote()
		pc := boardCodes[base]
		if err := w.write(pc.code, pc.bits); err != nil {
			return err
		}
		if pc.promote {
			promoted := uint32(0)
			if p.Type().IsPromoted() {
				promoted = 1
			}
			if err := w.write(promoted, 1); err != nil {
				return err
			}
		}
		if err := w.write(uint32(p.Color()), 1); err != nil {
			return err
		}
	}

	for _, c := range [2]shogi.Color{shogi.Black, shogi.White} {
		for hk := shogi.HandKind(0); hk < shogi.NumHandKinds; hk++ {
			pc := handCodes[hk]
			for i := 0; i < pos.Hands[c].Count(hk); i++ {
				if err := w.write(pc.code, pc.bits); err != nil {
					return err
				}
				if err := w.write(uint32(c), 1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// decodeBoardPiece reads one board code (after a leading 1 has been seen).
func decodeBoardPiece(r *bitReader) (shogi.PieceType, bool, error) {
	// Walk the prefix tree: 1, 11, 110x, 111, 1110?, 11110, 11111x.
	b, err := r.read(1)
	if err != nil {
		return 0, false, err
	}
	if b == 0 { // 10 -> pawn
		return shogi.Pawn, true, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, false, err
	}
	if b == 0 { // 110x
		b, err = r.read(1)
		if err != nil {
			return 0, false, err
		}
		if b == 0 {
			return shogi.Lance, true, nil
		}
		return shogi.Knight, true, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, false, err
	}
	if b == 0 { // 1110 -> silver
		return shogi.Silver, true, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, false, err
	}
	if b == 0 { // 11110 -> gold
		return shogi.Gold, false, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, false, err
	}
	if b == 0 { // 111110 -> bishop
		return shogi.Bishop, true, nil
	}
	return shogi.Rook, true, nil
}

// decodeHandPiece reads one hand code.
func decodeHandPiece(r *bitReader) (shogi.HandKind, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return shogi.HandPawn, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, err
	}
	if b == 0 { // 10x
		b, err = r.read(1)
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return shogi.HandLance, nil
		}
		return shogi.HandKnight, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, err
	}
	if b == 0 { // 110 -> silver
		return shogi.HandSilver, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, err
	}
	if b == 0 { // 1110 -> gold
		return shogi.HandGold, nil
	}
	b, err = r.read(1)
	if err != nil {
		return 0, err
	}
	if b == 0 { // 11110 -> bishop
		return shogi.HandBishop, nil
	}
	return shogi.HandRook, nil
}

// decodePosition is the inverse of encodePosition. The hand section runs to
// the end of the 32-byte block; trailing zero bits decode as black pawns, so
// the total piece census caps the loop instead.
func decodePosition(in []byte) (shogi.Position, error) {
	var pos shogi.Position
	for i := range pos.Board {
		pos.Board[i] = shogi.NoPiece
	}
	r := &bitReader{buf: in[:positionBytes]}

	side, err := r.read(1)
	if err != nil {
		return pos, err
	}
	pos.Side = shogi.Color(side)

	bk, err := r.read(7)
	if err != nil {
		return pos, err
	}
	wk, err := r.read(7)
	if err != nil {
		return pos, err
	}
	if bk >= shogi.NumSquares || wk >= shogi.NumSquares || bk == wk {
		return pos, fmt.Errorf("train: corrupt king squares %d %d", bk, wk)
	}
	pos.Board[bk] = shogi.NewPiece(shogi.King, shogi.Black)
	pos.Board[wk] = shogi.NewPiece(shogi.King, shogi.White)

	onBoard := 2
	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		if sq == shogi.Square(bk) || sq == shogi.Square(wk) {
			continue
		}
		b, err := r.read(1)
		if err != nil {
			return pos, err
		}
		if b == 0 {
			continue
		}
		pt, hasPromote, err := decodeBoardPiece(r)
		if err != nil {
			return pos, err
		}
		if hasPromote {
			promoted, err := r.read(1)
			if err != nil {
				return pos, err
			}
			if promoted != 0 {
				pt = pt.Promote()
			}
		}
		color, err := r.read(1)
		if err != nil {
			return pos, err
		}
		pos.Board[sq] = shogi.NewPiece(pt, shogi.Color(color))
		onBoard++
	}

	// 40 pieces total in a legal census; the remainder sits in hands.
	for inHand := 0; inHand < 40-onBoard; inHand++ {
		hk, err := decodeHandPiece(r)
		if err != nil {
			return pos, err
		}
		color, err := r.read(1)
		if err != nil {
			return pos, err
		}
		pos.Hands[color][hk]++
	}
	return pos, nil
}
