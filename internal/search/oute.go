package search

import (
	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/shogi"
)

// The sweep searches prove or refute quick forced mates behind a checking
// move found at an interior node. outeOnly expands the attacker's checks,
// respondOuteOnly the defender's evasions; they alternate by plain
// recursion, bounded only by the time limit, the repetition ledgers and the
// shared explored-position cache.

// respondOuteOnly explores every evasion of the side to move (the defender).
// It returns the deepest mating depth when all evasions run into mate,
// noMateDepth as soon as one escapes.
func (s *Searcher) respondOuteOnly(c *ctx, pos *shogi.Position,
	rep *hash.KyokumenMap[uint32], already *hash.SharedBoolMap,
	oute *hash.KyokumenMap[struct{}], h hash.DualHash, curDepth uint32) outeEval {

	defender := pos.Side
	mvs := pos.Evasions().Slice()

	if s.aborted(c) {
		s.message("think timeout!")
		return outeEval{kind: outeTimeout}
	}

	if len(mvs) == 0 {
		return outeEval{kind: outeValue, depth: int32(curDepth)}
	}

	maxDepth := noMateDepth
	for _, m := range mvs {
		mh := s.Seeds.ApplyMove(h, pos, m)

		repMap := rep.Clone()
		if count, _ := repMap.Get(defender, mh); count >= 3 {
			continue
		} else {
			repMap.Insert(defender, mh, count+1)
		}

		next, _ := pos.Apply(m)

		outeMap := oute
		// A counter-checking evasion extends the defender's own check run;
		// revisiting one of those positions is perpetual check.
		if next.InCheck(next.Side) {
			cloned := oute.Clone()
			if _, seen := cloned.Get(defender, mh); seen {
				continue
			}
			cloned.Insert(defender, mh, struct{}{})
			outeMap = cloned
		}

		r := s.outeOnly(c, &next, repMap, already, outeMap, mh, curDepth+1)
		switch r.kind {
		case outeValue:
			if r.depth == noMateDepth {
				return outeEval{kind: outeValue, depth: noMateDepth}
			}
			if r.depth > maxDepth {
				maxDepth = r.depth
			}
		case outeTimeout:
			return r
		case outeError:
			return r
		}

		if s.aborted(c) {
			s.message("think timeout!")
			return outeEval{kind: outeTimeout}
		}
	}

	return outeEval{kind: outeValue, depth: maxDepth}
}

// outeOnly explores the checking moves of the side to move (the attacker).
// A check that captures the king answers at once with the current depth.
// Otherwise checks are tried in generation order, skipping repeated
// positions, perpetual-check revisits and pawn-drop mates; the first check
// not skipped decides the answer: its proved mating depth, or noMateDepth
// when the defender escapes it. A check whose position the shared cache
// marks as explored also answers noMateDepth, as does running out of checks.
func (s *Searcher) outeOnly(c *ctx, pos *shogi.Position,
	rep *hash.KyokumenMap[uint32], already *hash.SharedBoolMap,
	oute *hash.KyokumenMap[struct{}], h hash.DualHash, curDepth uint32) outeEval {

	attacker := pos.Side
	mvs := pos.CheckMoves().Slice()

	if s.aborted(c) {
		s.message("think timeout!")
		return outeEval{kind: outeTimeout}
	}

	if len(mvs) == 0 {
		return outeEval{kind: outeValue, depth: noMateDepth}
	}

	for _, m := range mvs {
		if m.IsCapture() && m.Captured().Type() == shogi.King {
			return outeEval{kind: outeValue, depth: int32(curDepth)}
		}

		isPutFu := m.IsDrop() && m.DropKind() == shogi.HandPawn

		mh := s.Seeds.ApplyMove(h, pos, m)

		if explored, ok := already.Get(attacker, mh); ok && explored {
			return outeEval{kind: outeValue, depth: noMateDepth}
		}
		already.InsertIfAbsent(attacker, mh, false)

		repMap := rep.Clone()
		if count, _ := repMap.Get(attacker, mh); count >= 3 {
			continue
		} else {
			repMap.Insert(attacker, mh, count+1)
		}

		outeMap := oute.Clone()
		if _, seen := outeMap.Get(attacker, mh); seen {
			continue
		}
		outeMap.Insert(attacker, mh, struct{}{})

		next, _ := pos.Apply(m)

		r := s.respondOuteOnly(c, &next, repMap, already, outeMap, mh, curDepth+1)
		switch r.kind {
		case outeValue:
			if r.depth == noMateDepth {
				return outeEval{kind: outeValue, depth: noMateDepth}
			}
			if r.depth >= 0 && !(isPutFu && r.depth-int32(curDepth) == 2) {
				return r
			}
		case outeTimeout:
			return r
		case outeError:
			return r
		}

		already.Insert(attacker, mh, true)

		if s.aborted(c) {
			s.message("think timeout!")
			return outeEval{kind: outeTimeout}
		}
	}

	return outeEval{kind: outeValue, depth: noMateDepth}
}
