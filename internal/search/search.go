package search

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/shogi"
)

// Move ordering priority classes.
const (
	priorityCheck   = 10
	priorityCapture = 5
	priorityQuiet   = 1
)

// Searcher runs root searches. The seed tables and evaluator weights are
// shared read-only between all worker goroutines of a call.
type Searcher struct {
	Seeds  *hash.Seeds
	Eval   *nn.Evaluator
	Config Config

	// OnInfo, when set, receives best-effort progress reports. It may be
	// called from multiple goroutines.
	OnInfo func(Info)
}

// NewSearcher creates a searcher over the given tables and evaluator.
func NewSearcher(seeds *hash.Seeds, eval *nn.Evaluator, cfg Config) *Searcher {
	return &Searcher{Seeds: seeds, Eval: eval, Config: cfg}
}

// ctx is the state shared by every frame of one root search call.
type ctx struct {
	alreadyOute *hash.SharedBoolMap
	stop        *atomic.Bool
	quited      *atomic.Bool
	deadline    time.Time // zero = no limit
}

// node carries the per-frame arguments of alphabeta.
type node struct {
	side     shogi.Color
	pos      shogi.Position
	prevPos  *shogi.Position // position the leading move was played from; nil at root
	m        shogi.Move      // move that led into this node; NoMove at root
	obtained shogi.Piece     // capture of m

	alpha, beta int64

	// Snapshot pairs for the two perspective lineages: selfSS views the
	// node's side to move, oppSS its opponent. At non-root nodes both still
	// reflect prevPos and are advanced by diff on entry.
	selfSS, oppSS nn.SnapshotPair

	rep  *hash.KyokumenMap[uint32]
	oute *hash.KyokumenMap[struct{}]
	h    hash.DualHash

	depth    uint32 // remaining depth
	curDepth uint32
}

// loopFunc walks the ordered move list of a node; singleSearch is used
// everywhere, parallelSearch only at the root.
type loopFunc func(c *ctx, n *node, mvs []priorityMove, respondedOute bool) evaluation

type priorityMove struct {
	priority uint32
	m        shogi.Move
}

// Search runs a full search from the root position and decides the move to
// play. repLedger and outeLedger are the game-path ledgers maintained by the
// player adapter; deadline may be zero for infinite thinking.
func (s *Searcher) Search(pos shogi.Position, h hash.DualHash,
	repLedger *hash.KyokumenMap[uint32], outeLedger *hash.KyokumenMap[struct{}],
	deadline time.Time, stop, quited *atomic.Bool) Result {

	c := &ctx{
		alreadyOute: hash.NewSharedBoolMap(),
		stop:        stop,
		quited:      quited,
		deadline:    deadline,
	}

	side := pos.Side
	root := &node{
		side:     side,
		pos:      pos,
		m:        shogi.NoMove,
		obtained: shogi.NoPiece,
		alpha:    -ScoreInfinite,
		beta:     ScoreInfinite,
		selfSS:   s.Eval.MakeSnapshot(side, true, &pos),
		oppSS:    s.Eval.MakeSnapshot(side.Other(), false, &pos),
		rep:      repLedger.Clone(),
		oute:     outeLedger.Clone(),
		h:        h,
		depth:    s.Config.BaseDepth,
		curDepth: 0,
	}

	loop := s.singleSearch
	if s.Config.Threads > 1 {
		loop = s.parallelSearch
	}

	ev := s.alphabeta(c, root, loop)
	switch ev.kind {
	case evalValue:
		if ev.move == shogi.NoMove {
			return Result{Kind: Resign}
		}
		return Result{Kind: PlayMove, Move: ev.move, Score: ev.score}
	case evalTimeout:
		if ev.move != shogi.NoMove {
			return Result{Kind: PlayMove, Move: ev.move, Score: ev.score}
		}
		if quited != nil && quited.Load() {
			return Result{Kind: Abort}
		}
		return Result{Kind: Resign}
	default:
		s.message("search error!")
		return Result{Kind: Resign}
	}
}

// timelimitReached reports whether the remaining time is inside the network
// delay plus safety margin.
func (s *Searcher) timelimitReached(deadline time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	return time.Until(deadline) <= s.Config.NetworkDelay+timeLimitMargin
}

func (c *ctx) stopped() bool {
	return c.stop != nil && c.stop.Load()
}

func (s *Searcher) aborted(c *ctx) bool {
	return s.timelimitReached(c.deadline) || c.stopped()
}

func (s *Searcher) message(msg string) {
	if s.OnInfo != nil {
		s.OnInfo(Info{Message: msg})
	}
}

func (s *Searcher) sendSelDepth(depth, seldepth uint32) {
	if s.OnInfo != nil {
		s.OnInfo(Info{Depth: depth, SelDepth: seldepth})
	}
}

// evalSnapshot scores the node's self snapshot, reporting it when asked to.
func (s *Searcher) evalSnapshot(pair nn.SnapshotPair) evaluation {
	score := s.Eval.ScoreSnapshot(pair)
	if s.Config.DisplayEvalScore && s.OnInfo != nil {
		s.OnInfo(Info{Score: score, HasScore: true, Message: "evaluate score"})
	}
	return evaluation{kind: evalValue, score: score, move: shogi.NoMove}
}

// enterSnapshots advances both snapshot lineages across the node's leading
// move. A failed sparse diff falls back to a from-scratch snapshot.
func (s *Searcher) enterSnapshots(n *node) {
	if n.prevPos == nil {
		return
	}
	selfSS, err := s.Eval.DiffSnapshot(n.selfSS, n.side, true, true, n.prevPos, n.m)
	if err != nil {
		selfSS = s.Eval.MakeSnapshot(n.side, true, &n.pos)
	}
	oppSS, err := s.Eval.DiffSnapshot(n.oppSS, n.side.Other(), false, true, n.prevPos, n.m)
	if err != nil {
		oppSS = s.Eval.MakeSnapshot(n.side.Other(), false, &n.pos)
	}
	n.selfSS = selfSS
	n.oppSS = oppSS
}

// alphabeta evaluates one node: terminal checks, the check sweep, move
// generation and ordering, then the move loop through loop (which recurses).
func (s *Searcher) alphabeta(c *ctx, n *node, loop loopFunc) evaluation {
	if n.curDepth > s.Config.BaseDepth {
		s.sendSelDepth(s.Config.BaseDepth, n.curDepth)
	}

	// The move leading here captured the king: the mover already won.
	if n.obtained != shogi.NoPiece && n.obtained.Type() == shogi.King {
		return evaluation{kind: evalValue, score: -ScoreInfinite, move: shogi.NoMove}
	}

	if s.aborted(c) {
		s.message("think timeout!")
		return evaluation{kind: evalTimeout, move: shogi.NoMove}
	}

	var mvs []shogi.Move
	respondedOute := false

	if n.pos.InCheck(n.side) {
		evasions := n.pos.Evasions()
		if evasions.Len() == 0 {
			return evaluation{kind: evalValue, score: -ScoreInfinite, move: shogi.NoMove}
		}
		if n.depth == 0 || n.curDepth == s.Config.MaxDepth {
			if s.aborted(c) {
				s.message("think timeout!")
				return evaluation{kind: evalTimeout, move: shogi.NoMove}
			}
			s.enterSnapshots(n)
			return s.evalSnapshot(n.selfSS)
		}
		mvs = evasions.Slice()
		respondedOute = true
	} else {
		outeMvs := n.pos.CheckMoves().Slice()

		for _, m := range outeMvs {
			if m.IsCapture() && m.Captured().Type() == shogi.King {
				return evaluation{kind: evalValue, score: ScoreInfinite, move: m}
			}
		}

		if s.aborted(c) {
			s.message("think timeout!")
			return evaluation{kind: evalTimeout, move: shogi.NoMove}
		}

		if n.depth == 0 || n.curDepth == s.Config.MaxDepth {
			s.enterSnapshots(n)
			return s.evalSnapshot(n.selfSS)
		}

		// Check sweep: try to prove a quick forced mate behind each
		// checking move before the full-width loop runs.
		for _, m := range outeMvs {
			h := s.Seeds.ApplyMove(n.h, &n.pos, m)

			outeMap := n.oute.Clone()
			if _, seen := outeMap.Get(n.side, h); seen {
				continue
			}
			outeMap.Insert(n.side, h, struct{}{})

			c.alreadyOute.InsertIfAbsent(n.side, h, false)

			repMap := n.rep.Clone()
			if count, _ := repMap.Get(n.side, h); count >= 3 {
				continue
			} else {
				repMap.Insert(n.side, h, count+1)
			}

			next, _ := n.pos.Apply(m)
			if !next.InCheck(n.side) {
				isPutFu := m.IsDrop() && m.DropKind() == shogi.HandPawn

				if s.aborted(c) {
					s.message("think timeout!")
					return evaluation{kind: evalTimeout, move: m}
				}

				r := s.respondOuteOnly(c, &next, repMap, c.alreadyOute, outeMap, h, n.curDepth+1)
				switch r.kind {
				case outeValue:
					if r.depth >= 0 && !(isPutFu && r.depth-int32(n.curDepth) == 2) {
						return evaluation{kind: evalValue, score: ScoreInfinite, move: m}
					}
				case outeTimeout:
					return evaluation{kind: evalTimeout, move: m}
				case outeError:
					return evaluation{kind: evalError}
				}
			}

			if s.aborted(c) {
				s.message("think timeout!")
				return evaluation{kind: evalTimeout, move: m}
			}
		}

		if s.aborted(c) {
			s.message("think timeout!")
			if len(outeMvs) > 0 {
				return evaluation{kind: evalTimeout, move: outeMvs[0]}
			}
			return evaluation{kind: evalTimeout, move: shogi.NoMove}
		}

		mvs = n.pos.AllMoves().Slice()
	}

	s.enterSnapshots(n)

	if len(mvs) == 0 {
		return evaluation{kind: evalValue, score: -ScoreInfinite, move: shogi.NoMove}
	}
	if s.aborted(c) {
		s.message("think timeout!")
		return evaluation{kind: evalTimeout, move: mvs[0]}
	}
	if len(mvs) == 1 {
		// Forced move: score the position behind it directly.
		pair, err := s.Eval.DiffSnapshot(n.selfSS, n.side, false, true, &n.pos, mvs[0])
		if err != nil {
			next, _ := n.pos.Apply(mvs[0])
			pair = s.Eval.MakeSnapshot(n.side, false, &next)
		}
		ev := s.evalSnapshot(pair)
		ev.move = mvs[0]
		return ev
	}

	ordered := make([]priorityMove, 0, len(mvs))
	for _, m := range mvs {
		var p uint32
		switch {
		case n.pos.GivesCheck(m):
			p = priorityCheck
		case m.IsCapture():
			p = priorityCapture
		default:
			p = priorityQuiet
		}
		ordered = append(ordered, priorityMove{priority: p, m: m})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].priority > ordered[j].priority
	})

	return loop(c, n, ordered, respondedOute)
}

// childState is the per-move bookkeeping produced by startupStrategy.
type childState struct {
	depth        uint32
	h            hash.DualHash
	oute         *hash.KyokumenMap[struct{}]
	rep          *hash.KyokumenMap[uint32]
	isSennichite bool
}

// startupStrategy prepares ledgers, hashes and the extended depth for one
// candidate move, or reports that the move must be skipped (perpetual check
// revisit, four-fold repetition).
func (s *Searcher) startupStrategy(n *node, pm priorityMove, respondedOute bool) (childState, bool) {
	var cs childState

	h := s.Seeds.ApplyMove(n.h, &n.pos, pm.m)
	outeMap := n.oute.Clone()
	repMap := n.rep.Clone()

	if pm.priority == priorityCheck {
		if _, seen := outeMap.Get(n.side, h); seen {
			return cs, false
		}
		outeMap.Insert(n.side, h, struct{}{})
	}

	// Depth extensions: at most one ply regardless of how many heuristics
	// fire.
	depth := n.depth
	if pm.priority == priorityCheck || pm.priority == priorityCapture || respondedOute {
		depth++
	}

	isSennichite := false
	count, _ := repMap.Get(n.side, h)
	switch {
	case count >= 3:
		return cs, false
	case count > 0:
		repMap.Insert(n.side, h, count+1)
		isSennichite = true
	}

	cs = childState{depth: depth, h: h, oute: outeMap, rep: repMap, isSennichite: isSennichite}
	return cs, true
}

// singleSearch walks the ordered moves sequentially.
func (s *Searcher) singleSearch(c *ctx, n *node, mvs []priorityMove, respondedOute bool) evaluation {
	scoreval := -ScoreInfinite
	best := shogi.NoMove
	alpha, beta := n.alpha, n.beta

	for _, pm := range mvs {
		cs, ok := s.startupStrategy(n, pm, respondedOute)
		if !ok {
			continue
		}

		next, obtained := n.pos.Apply(pm.m)

		if cs.isSennichite {
			var sc int64
			if next.InCheck(n.side) {
				sc = -ScoreInfinite
			}
			if sc > scoreval {
				scoreval = sc
				best = pm.m
				if alpha < scoreval {
					alpha = scoreval
				}
				if scoreval >= beta {
					return evaluation{kind: evalValue, score: scoreval, move: best}
				}
			}
			continue
		}

		prev := n.pos
		child := &node{
			side:     n.side.Other(),
			pos:      next,
			prevPos:  &prev,
			m:        pm.m,
			obtained: obtained,
			alpha:    -beta,
			beta:     -alpha,
			selfSS:   n.oppSS,
			oppSS:    n.selfSS,
			rep:      cs.rep,
			oute:     cs.oute,
			h:        cs.h,
			depth:    cs.depth - 1,
			curDepth: n.curDepth + 1,
		}

		ev := s.alphabeta(c, child, s.singleSearch)
		switch ev.kind {
		case evalTimeout:
			if best != shogi.NoMove {
				return evaluation{kind: evalTimeout, score: scoreval, move: best}
			}
			return evaluation{kind: evalTimeout, move: pm.m}
		case evalValue:
			if -ev.score > scoreval {
				scoreval = -ev.score
				best = pm.m
				if alpha < scoreval {
					alpha = scoreval
				}
				if scoreval >= beta {
					return evaluation{kind: evalValue, score: scoreval, move: best}
				}
			}
		case evalError:
			return evaluation{kind: evalError}
		}

		if s.aborted(c) {
			s.message("think timeout!")
			if best != shogi.NoMove {
				return evaluation{kind: evalTimeout, score: scoreval, move: best}
			}
			return evaluation{kind: evalTimeout, move: pm.m}
		}
	}

	return evaluation{kind: evalValue, score: scoreval, move: best}
}
