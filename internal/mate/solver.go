// Package mate decides whether the side to move can force checkmate. Two
// cooperating depth-first searches run interleaved: a prover ordered to find
// mates quickly and a disprover ordered to find escapes quickly. Both share
// a verdict cache, and the first terminal answer from either wins.
//
// Recursion is modeled as an explicit stack of frames. That is not an
// optimization: deep tsume lines would overflow a native stack, and the
// alternating prover/disprover stepping needs to suspend a search between
// single expansions.
package mate

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/shogi"
)

// Kind classifies a solver answer.
type Kind uint8

const (
	continuation Kind = iota // internal: search not finished
	NoMate
	Mate
	MaxDepth
	MaxNodes
	Timeout
	Unknown
)

func (k Kind) String() string {
	switch k {
	case NoMate:
		return "NoMate"
	case Mate:
		return "Mate"
	case MaxDepth:
		return "MaxDepth"
	case MaxNodes:
		return "MaxNodes"
	case Timeout:
		return "Timeout"
	case Unknown:
		return "Unknown"
	}
	return "Continuation"
}

// Outcome is the solver verdict. For Mate, Depth is the proved mate depth
// and Moves the forcing line (possibly truncated when strict moves are off).
type Outcome struct {
	Kind  Kind
	Depth uint32
	Moves []shogi.Move
}

// Limits bound a solve call. Zero values disable the corresponding bound.
type Limits struct {
	MaxDepth uint32
	MaxNodes uint64
	Deadline time.Time
	Stop     *atomic.Bool
}

func (l *Limits) expired() bool {
	if l.Stop != nil && l.Stop.Load() {
		return true
	}
	return !l.Deadline.IsZero() && !time.Now().Before(l.Deadline)
}

// Solver solves mate problems.
type Solver struct {
	Seeds *hash.Seeds

	// StrictMoves makes the prover enumerate a full forcing line instead of
	// returning on the first cached proof.
	StrictMoves bool

	// OnSearchStart, when set, is notified with (depth, nodes) before each
	// expansion.
	OnSearchStart func(depth uint32, nodes uint64)
}

// frame is one level of the alternating mate search.
type frame struct {
	side   shogi.Color
	pos    shogi.Position
	moves  []shogi.Move // remaining pre-ordered moves
	played shogi.Move   // the move that led into this frame
	h      hash.DualHash

	ignore *hash.KyokumenMap[struct{}] // positions already explored on this path
	oute   *hash.KyokumenMap[struct{}] // positions reached by an unbroken check run
	rep    *hash.KyokumenMap[uint32]   // per-path repetition counts

	hasUnknown bool
}

// strategy is one of the two interleaved searches. The prover orders
// attacker checks by fewest evasions first and defender evasions by most
// follow-up checks first; the disprover uses the opposite pair.
type strategy struct {
	solver   *Solver
	checkAsc bool // ordering of attacker check moves by evasion count
	evadeAsc bool // ordering of defender evasions by follow-up check count

	already *hash.KyokumenMap[bool]
	limits  *Limits

	nodes uint64
	cur   frame
	stack []frame
}

// Solve decides whether the side to move in pos can force mate. The caller
// supplies the current path ledgers so in-game perpetual-check state carries
// into the solve; pass fresh maps for a standalone problem.
func (s *Solver) Solve(pos shogi.Position, h hash.DualHash,
	outeLedger *hash.KyokumenMap[struct{}], repLedger *hash.KyokumenMap[uint32],
	already *hash.KyokumenMap[bool], limits Limits) Outcome {

	if already == nil {
		already = hash.NewKyokumenMap[bool]()
	}
	if outeLedger == nil {
		outeLedger = hash.NewKyokumenMap[struct{}]()
	}
	if repLedger == nil {
		repLedger = hash.NewKyokumenMap[uint32]()
	}

	checks := pos.CheckMoves().Slice()
	if len(checks) == 0 {
		return Outcome{Kind: NoMate}
	}

	newRoot := func() frame {
		moves := make([]shogi.Move, len(checks))
		copy(moves, checks)
		return frame{
			side:   pos.Side,
			pos:    pos,
			moves:  moves,
			played: shogi.NoMove,
			h:      h,
			ignore: hash.NewKyokumenMap[struct{}](),
			oute:   outeLedger.Clone(),
			rep:    repLedger.Clone(),
		}
	}

	prover := &strategy{solver: s, checkAsc: true, evadeAsc: false, already: already, limits: &limits, cur: newRoot()}
	disprover := &strategy{solver: s, checkAsc: false, evadeAsc: true, already: already, limits: &limits, cur: newRoot()}

	if out, done := prover.preprocessRoot(); done {
		return out
	}
	if out, done := disprover.preprocessRoot(); done {
		return out
	}

	for {
		if out := prover.resume(); out.Kind != continuation {
			return out
		}
		if out := disprover.resume(); out.Kind != continuation {
			return out
		}
	}
}

// preprocessRoot orders the root check moves; a terminal answer may already
// fall out (immediate king capture, cached verdict, no checks at all).
func (st *strategy) preprocessRoot() (Outcome, bool) {
	if len(st.cur.moves) == 0 {
		return Outcome{Kind: NoMate}, true
	}
	out := st.orderChecks(0)
	if out.Kind != continuation {
		return out, true
	}
	return Outcome{}, false
}

// resume runs one expansion at the deepest frame and unwinds any finished
// subtrees, per the alternating-step contract with the sibling strategy.
func (st *strategy) resume() Outcome {
	r := st.expand()
	for {
		if r.Kind == continuation {
			return r
		}
		if len(st.stack) == 0 {
			if r.Kind == NoMate && len(st.cur.moves) == 0 && st.cur.hasUnknown {
				return Outcome{Kind: Unknown}
			}
			return r
		}

		cf := &st.cur
		attackerFrame := len(st.stack)%2 == 0

		switch r.Kind {
		case Mate:
			if attackerFrame || (!cf.hasUnknown && len(cf.moves) == 0) {
				if cf.played != shogi.NoMove {
					r.Moves = append([]shogi.Move{cf.played}, r.Moves...)
				}
			} else if len(cf.moves) > 0 {
				return Outcome{Kind: continuation}
			} else {
				r = Outcome{Kind: continuation}
			}
		case NoMate:
			if !attackerFrame || (!cf.hasUnknown && len(cf.moves) == 0) {
				// propagate
			} else if len(cf.moves) > 0 {
				return Outcome{Kind: continuation}
			} else {
				r = Outcome{Kind: continuation}
			}
		}

		hasUnknown := false
		if r.Kind == continuation {
			hasUnknown = cf.hasUnknown
		}

		st.cur = st.stack[len(st.stack)-1]
		st.stack = st.stack[:len(st.stack)-1]

		if r.Kind == MaxDepth {
			if len(st.cur.moves) == 0 {
				hasUnknown = true
			} else {
				r = Outcome{Kind: continuation}
			}
		}
		st.cur.hasUnknown = hasUnknown

		if r.Kind == continuation {
			return r
		}
	}
}

// expand runs a single attacker or defender step at the deepest frame.
func (st *strategy) expand() Outcome {
	if len(st.stack)%2 == 0 {
		return st.attackerStep()
	}
	return st.defenderStep()
}

func (st *strategy) checkBounds(depth uint32) (Outcome, bool) {
	st.nodes++
	if st.solver.OnSearchStart != nil {
		st.solver.OnSearchStart(depth, st.nodes)
	}
	if st.limits.MaxDepth > 0 && depth >= st.limits.MaxDepth {
		return Outcome{Kind: MaxDepth}, true
	}
	if st.limits.MaxNodes > 0 && st.nodes >= st.limits.MaxNodes {
		return Outcome{Kind: MaxNodes}, true
	}
	if st.limits.expired() {
		return Outcome{Kind: Timeout}, true
	}
	return Outcome{}, false
}

// attackerStep expands one checking move of the attacker frame.
func (st *strategy) attackerStep() Outcome {
	depth := uint32(len(st.stack))
	if out, done := st.checkBounds(depth); done {
		return out
	}

	cf := &st.cur
	if len(cf.moves) == 0 {
		st.already.Insert(cf.side, cf.h, false)
		return Outcome{Kind: NoMate}
	}

	m := cf.moves[0]
	cf.moves = cf.moves[1:]

	h := st.solver.Seeds.ApplyMove(cf.h, &cf.pos, m)

	ignore := cf.ignore.Clone()
	oute := cf.oute.Clone()
	rep := cf.rep.Clone()

	ignore.Insert(cf.side, h, struct{}{})
	count, _ := rep.Get(cf.side, h)
	rep.Insert(cf.side, h, count+1)
	oute.Insert(cf.side, h, struct{}{})

	next, _ := cf.pos.Apply(m)
	evasions := next.Evasions().Slice()
	if len(evasions) == 0 {
		if m.IsDrop() && m.DropKind() == shogi.HandPawn {
			// Drop-pawn-mate is illegal; this check yields no proof.
			return Outcome{Kind: continuation}
		}
		return Outcome{Kind: Mate, Depth: depth + 1, Moves: []shogi.Move{m}}
	}

	child := frame{
		side:   cf.side.Other(),
		pos:    next,
		moves:  evasions,
		played: m,
		h:      h,
		ignore: ignore,
		oute:   oute,
		rep:    rep,
	}

	prev := st.cur
	st.cur = child
	out := st.orderEvasions(depth + 1)
	if out.Kind == continuation {
		st.stack = append(st.stack, prev)
		return out
	}
	st.cur = prev
	return out
}

// defenderStep expands one evasion of the defender frame.
func (st *strategy) defenderStep() Outcome {
	depth := uint32(len(st.stack))
	if out, done := st.checkBounds(depth); done {
		return out
	}

	cf := &st.cur
	if len(cf.moves) == 0 {
		st.already.Insert(cf.side, cf.h, true)
		return Outcome{Kind: Mate, Depth: depth, Moves: nil}
	}

	m := cf.moves[0]
	cf.moves = cf.moves[1:]

	h := st.solver.Seeds.ApplyMove(cf.h, &cf.pos, m)

	ignore := cf.ignore.Clone()
	oute := cf.oute.Clone()
	rep := cf.rep.Clone()

	ignore.Insert(cf.side, h, struct{}{})
	count, _ := rep.Get(cf.side, h)
	rep.Insert(cf.side, h, count+1)

	next, _ := cf.pos.Apply(m)

	// A defender move may itself start or extend a check run against the
	// attacker; revisiting such a position is a perpetual-check cycle.
	if next.InCheck(next.Side) {
		if _, seen := oute.Get(cf.side, h); seen {
			return Outcome{Kind: continuation}
		}
		oute.Insert(cf.side, h, struct{}{})
	} else {
		oute.ClearSide(cf.side)
	}

	checks := next.CheckMoves().Slice()
	if len(checks) == 0 {
		return Outcome{Kind: NoMate}
	}

	child := frame{
		side:   cf.side.Other(),
		pos:    next,
		moves:  checks,
		played: m,
		h:      h,
		ignore: ignore,
		oute:   oute,
		rep:    rep,
	}

	prev := st.cur
	st.cur = child
	out := st.orderChecks(depth + 1)
	if out.Kind == continuation {
		st.stack = append(st.stack, prev)
		return out
	}
	st.cur = prev
	return out
}

// orderChecks pre-orders the attacker frame's checking moves by the number
// of defender evasions each leaves, pruning cached, ignored and repeated
// positions. A check that captures the king is an immediate proof.
func (st *strategy) orderChecks(depth uint32) Outcome {
	cf := &st.cur
	type scored struct {
		m shogi.Move
		n int
	}
	kept := make([]scored, 0, len(cf.moves))
	for _, m := range cf.moves {
		if m.IsCapture() && m.Captured().Type() == shogi.King {
			st.already.Insert(cf.side, cf.h, true)
			return Outcome{Kind: Mate, Depth: depth, Moves: nil}
		}

		h := st.solver.Seeds.ApplyMove(cf.h, &cf.pos, m)

		if verdict, ok := st.already.Get(cf.side, h); ok {
			if verdict {
				if !st.solver.StrictMoves {
					return Outcome{Kind: Mate, Depth: depth, Moves: []shogi.Move{m}}
				}
			} else {
				continue
			}
		}
		if _, seen := cf.ignore.Get(cf.side, h); seen {
			continue
		}
		if count, _ := cf.rep.Get(cf.side, h); count >= 3 {
			continue
		}
		if _, seen := cf.oute.Get(cf.side, h); seen {
			continue
		}

		next, _ := cf.pos.Apply(m)
		kept = append(kept, scored{m: m, n: next.Evasions().Len()})

		if st.limits.expired() {
			return Outcome{Kind: Timeout}
		}
	}

	asc := st.checkAsc
	sort.SliceStable(kept, func(i, j int) bool {
		if asc {
			return kept[i].n < kept[j].n
		}
		return kept[i].n > kept[j].n
	})
	cf.moves = cf.moves[:0]
	for _, e := range kept {
		cf.moves = append(cf.moves, e.m)
	}
	return Outcome{Kind: continuation}
}

// orderEvasions pre-orders the defender frame's evasions by the number of
// follow-up checks each allows. Capturing the attacker's king disproves the
// mate outright, as does a cached non-mate child.
func (st *strategy) orderEvasions(depth uint32) Outcome {
	cf := &st.cur
	type scored struct {
		m shogi.Move
		n int
	}
	kept := make([]scored, 0, len(cf.moves))
	for _, m := range cf.moves {
		if m.IsCapture() && m.Captured().Type() == shogi.King {
			return Outcome{Kind: NoMate}
		}

		h := st.solver.Seeds.ApplyMove(cf.h, &cf.pos, m)

		if verdict, ok := st.already.Get(cf.side, h); ok {
			if verdict {
				continue
			}
			return Outcome{Kind: NoMate}
		}
		if _, seen := cf.ignore.Get(cf.side, h); seen {
			continue
		}
		if count, _ := cf.rep.Get(cf.side, h); count >= 3 {
			continue
		}

		next, _ := cf.pos.Apply(m)
		kept = append(kept, scored{m: m, n: next.CheckMoves().Len()})

		if st.limits.expired() {
			return Outcome{Kind: Timeout}
		}
	}

	asc := st.evadeAsc
	sort.SliceStable(kept, func(i, j int) bool {
		if asc {
			return kept[i].n < kept[j].n
		}
		return kept[i].n > kept[j].n
	})
	cf.moves = cf.moves[:0]
	for _, e := range kept {
		cf.moves = append(cf.moves, e.m)
	}
	return Outcome{Kind: continuation}
}
