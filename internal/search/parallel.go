package search

import (
	"github.com/j6k1/nnshogi/internal/shogi"
)

// workerResult pairs a subtree answer with the root move it belongs to.
type workerResult struct {
	ev evaluation
	m  shogi.Move
}

// parallelSearch is the root-only move loop for Threads > 1: each candidate
// subtree runs on its own goroutine (bounded by the configured pool size),
// results fan in through a channel, and the collector applies the usual
// alpha-update semantics in arrival order. Alpha-beta is commutative over
// candidate moves, so arrival order only affects which of several equal
// moves is kept. Below the root every worker searches single-threaded.
func (s *Searcher) parallelSearch(c *ctx, n *node, mvs []priorityMove, respondedOute bool) evaluation {
	scoreval := -ScoreInfinite
	best := shogi.NoMove
	alpha, beta := n.alpha, n.beta

	results := make(chan workerResult, s.Config.Threads)
	slots := s.Config.Threads
	outstanding := 0

	// drain stops every worker and waits out the ones still running.
	drain := func() {
		if c.stop != nil {
			c.stop.Store(true)
		}
		for outstanding > 0 {
			<-results
			outstanding--
		}
	}

	collect := func(r workerResult) (evaluation, bool) {
		switch r.ev.kind {
		case evalTimeout:
			if best != shogi.NoMove {
				return evaluation{kind: evalTimeout, score: scoreval, move: best}, true
			}
			return evaluation{kind: evalTimeout, move: r.m}, true
		case evalValue:
			if -r.ev.score > scoreval {
				scoreval = -r.ev.score
				best = r.m
				if alpha < scoreval {
					alpha = scoreval
				}
				if scoreval >= beta {
					return evaluation{kind: evalValue, score: scoreval, move: best}, true
				}
			}
		case evalError:
			return evaluation{kind: evalError}, true
		}
		return evaluation{}, false
	}

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
					drain()
					return evaluation{kind: evalValue, score: scoreval, move: best}
				}
			}
			continue
		}

		if slots == 0 {
			r := <-results
			outstanding--
			slots++
			if ev, done := collect(r); done {
				drain()
				return ev
			}
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

		m := pm.m
		go func() {
			results <- workerResult{ev: s.alphabeta(c, child, s.singleSearch), m: m}
		}()
		slots--
		outstanding++

		if s.aborted(c) {
			s.message("think timeout!")
			drain()
			if best != shogi.NoMove {
				return evaluation{kind: evalTimeout, score: scoreval, move: best}
			}
			return evaluation{kind: evalTimeout, move: pm.m}
		}
	}

	for outstanding > 0 {
		r := <-results
		outstanding--
		if ev, done := collect(r); done {
			drain()
			return ev
		}
	}

	return evaluation{kind: evalValue, score: scoreval, move: best}
}
