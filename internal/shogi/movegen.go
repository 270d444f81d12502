package shogi

// step is a board displacement in (file, rank) deltas from Black's point of
// view; rank deltas are negated for White.
type step struct {
	df, dr int
}

var (
	goldSteps   = []step{{0, -1}, {-1, -1}, {1, -1}, {-1, 0}, {1, 0}, {0, 1}}
	silverSteps = []step{{0, -1}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	kingSteps   = []step{{0, -1}, {-1, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
	knightSteps = []step{{-1, -2}, {1, -2}}
	pawnSteps   = []step{{0, -1}}
	orthoRays   = []step{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	diagRays    = []step{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	lanceRay    = []step{{0, -1}}
)

// pieceSteps returns the single-step displacements of a piece type.
func pieceSteps(pt PieceType) []step {
	switch pt {
	case Pawn:
		return pawnSteps
	case Knight:
		return knightSteps
	case Silver:
		return silverSteps
	case Gold, ProPawn, ProLance, ProKnight, ProSilver:
		return goldSteps
	case King:
		return kingSteps
	case Horse:
		return orthoRays
	case Dragon:
		return diagRays
	}
	return nil
}

// pieceRays returns the sliding directions of a piece type.
func pieceRays(pt PieceType) []step {
	switch pt {
	case Lance:
		return lanceRay
	case Bishop, Horse:
		return diagRays
	case Rook, Dragon:
		return orthoRays
	}
	return nil
}

func offset(c Color, from Square, s step) (Square, bool) {
	dr := s.dr
	if c == White {
		dr = -dr
	}
	f := from.FileIdx() + s.df
	r := from.Rank() + dr
	if f < 0 || f > 8 || r < 0 || r > 8 {
		return NoSquare, false
	}
	return NewSquare(f, r), true
}

// attacksSquare reports whether the piece on from attacks to, given the
// current occupancy.
func (p *Position) attacksSquare(from, to Square) bool {
	piece := p.Board[from]
	if piece == NoPiece {
		return false
	}
	c := piece.Color()
	pt := piece.Type()
	for _, s := range pieceSteps(pt) {
		if sq, ok := offset(c, from, s); ok && sq == to {
			return true
		}
	}
	for _, ray := range pieceRays(pt) {
		sq := from
		for {
			next, ok := offset(c, sq, ray)
			if !ok {
				break
			}
			if next == to {
				return true
			}
			if p.Board[next] != NoPiece {
				break
			}
			sq = next
		}
	}
	return false
}

// attackedBy reports whether any piece of side c attacks the target square.
func (p *Position) attackedBy(c Color, target Square) bool {
	for sq := Square(0); sq < NumSquares; sq++ {
		piece := p.Board[sq]
		if piece == NoPiece || piece.Color() != c {
			continue
		}
		if p.attacksSquare(sq, target) {
			return true
		}
	}
	return false
}

// InCheck reports whether side c's king is attacked. A side whose king has
// already been captured is not considered in check.
func (p *Position) InCheck(c Color) bool {
	king := p.KingSquare(c)
	if king == NoSquare {
		return false
	}
	return p.attackedBy(c.Other(), king)
}

// GivesCheck reports whether playing m puts the opponent of the side to move
// in check.
func (p *Position) GivesCheck(m Move) bool {
	next, _ := p.Apply(m)
	return next.InCheck(next.Side)
}

// addBoardMoves appends the destination moves of the piece on from,
// generating both promoting and non-promoting variants where allowed.
func (p *Position) addBoardMoves(ml *MoveList, from Square) {
	piece := p.Board[from]
	c := piece.Color()
	pt := piece.Type()

	emit := func(to Square) {
		captured := p.Board[to]
		canPromote := pt.CanPromote() &&
			(PromotionRank(c, from.Rank()) || PromotionRank(c, to.Rank()))
		if canPromote {
			ml.Add(NewBoardMove(from, to, true).WithCaptured(captured))
		}
		if !lastRank(c, pt, to.Rank()) {
			ml.Add(NewBoardMove(from, to, false).WithCaptured(captured))
		}
	}

	for _, s := range pieceSteps(pt) {
		to, ok := offset(c, from, s)
		if !ok {
			continue
		}
		if dst := p.Board[to]; dst == NoPiece || dst.Color() != c {
			emit(to)
		}
	}
	for _, ray := range pieceRays(pt) {
		sq := from
		for {
			to, ok := offset(c, sq, ray)
			if !ok {
				break
			}
			dst := p.Board[to]
			if dst == NoPiece {
				emit(to)
				sq = to
				continue
			}
			if dst.Color() != c {
				emit(to)
			}
			break
		}
	}
}

// pawnOnFile reports whether side c has an unpromoted pawn on the file.
func (p *Position) pawnOnFile(c Color, fileIdx int) bool {
	pawn := NewPiece(Pawn, c)
	for r := 0; r < 9; r++ {
		if p.Board[NewSquare(fileIdx, r)] == pawn {
			return true
		}
	}
	return false
}

// addDrops appends all drops of the side to move. Nifu and dead-square drops
// are excluded; drop-pawn-mate is left to the mate searches.
func (p *Position) addDrops(ml *MoveList) {
	c := p.Side
	for hk := HandKind(0); hk < NumHandKinds; hk++ {
		if p.Hands[c].Count(hk) == 0 {
			continue
		}
		pt := hk.PieceTypeOf()
		for sq := Square(0); sq < NumSquares; sq++ {
			if p.Board[sq] != NoPiece {
				continue
			}
			if lastRank(c, pt, sq.Rank()) {
				continue
			}
			if pt == Pawn && p.pawnOnFile(c, sq.FileIdx()) {
				continue
			}
			ml.Add(NewDrop(hk, sq))
		}
	}
}

// AllMoves generates every pseudo-legal move of the side to move. Moves that
// leave the mover's own king attackable are included; the search punishes
// them through king capture.
func (p *Position) AllMoves() *MoveList {
	ml := NewMoveList()
	for sq := Square(0); sq < NumSquares; sq++ {
		piece := p.Board[sq]
		if piece != NoPiece && piece.Color() == p.Side {
			p.addBoardMoves(ml, sq)
		}
	}
	p.addDrops(ml)
	return ml
}

// CheckMoves generates the moves of the side to move that give check and do
// not leave the mover's own king capturable. A move that captures the enemy
// king outright also qualifies.
func (p *Position) CheckMoves() *MoveList {
	all := p.AllMoves()
	ml := NewMoveList()
	for _, m := range all.Slice() {
		if m.Captured() != NoPiece && m.Captured().Type() == King {
			ml.Add(m)
			continue
		}
		next, _ := p.Apply(m)
		if next.InCheck(p.Side) {
			continue
		}
		if next.InCheck(next.Side) {
			ml.Add(m)
		}
	}
	return ml
}

// Evasions generates the moves of the side to move after which it is no
// longer in check. On a position without check this is simply the legal
// move set.
func (p *Position) Evasions() *MoveList {
	all := p.AllMoves()
	ml := NewMoveList()
	for _, m := range all.Slice() {
		if m.Captured() != NoPiece && m.Captured().Type() == King {
			ml.Add(m)
			continue
		}
		next, _ := p.Apply(m)
		if !next.InCheck(p.Side) {
			ml.Add(m)
		}
	}
	return ml
}
