// Package usi glues the engine core to the USI protocol: it keeps the
// persistent game state between commands and translates protocol events into
// search, mate-solver and training calls.
package usi

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/mate"
	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/search"
	"github.com/j6k1/nnshogi/internal/shogi"
	"github.com/j6k1/nnshogi/internal/storage"
)

// GameResult is the outcome reported by "gameover", from the engine's point
// of view.
type GameResult uint8

const (
	ResultWin GameResult = iota
	ResultLose
	ResultDraw
)

// histEntry is one reached game state with its dual hash.
type histEntry struct {
	pos shogi.Position
	h   hash.DualHash
}

// Adapter holds the persistent per-game state of the player.
type Adapter struct {
	seeds *hash.Seeds
	eval  *nn.Evaluator
	cfg   search.Config

	pos        shogi.Position
	h          hash.DualHash
	repLedger  *hash.KyokumenMap[uint32]
	outeLedger *hash.KyokumenMap[struct{}]
	history    []histEntry

	weightsA, weightsB string
	store              *storage.Store

	moveStarted int
	moved       bool
	startSFEN   string
}

// NewAdapter creates the player state. The store may be nil when no
// persistent archive is configured.
func NewAdapter(seeds *hash.Seeds, eval *nn.Evaluator, weightsA, weightsB string, store *storage.Store) *Adapter {
	a := &Adapter{
		seeds:      seeds,
		eval:       eval,
		cfg:        search.DefaultConfig(),
		repLedger:  hash.NewKyokumenMap[uint32](),
		outeLedger: hash.NewKyokumenMap[struct{}](),
		weightsA:   weightsA,
		weightsB:   weightsB,
		store:      store,
	}
	a.pos = shogi.NewPosition()
	a.h = seeds.Initial(&a.pos)
	return a
}

// NewGame resets the per-game state.
func (a *Adapter) NewGame() {
	a.history = nil
	a.moveStarted = 0
	a.moved = false
}

// SetPosition replays the given move list from the base position, updating
// hashes and the repetition ledger incrementally, then rebuilds the
// perpetual-check ledger by scanning the history backwards over each side's
// unbroken check run.
func (a *Adapter) SetPosition(baseSFEN string, moves []string) error {
	pos, err := shogi.ParseSFEN(baseSFEN)
	if err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	a.startSFEN = baseSFEN

	h := a.seeds.Initial(&pos)
	rep := hash.NewKyokumenMap[uint32]()
	history := make([]histEntry, 0, len(moves)+1)

	for _, ms := range moves {
		m, err := shogi.ParseMove(ms)
		if err != nil {
			return fmt.Errorf("invalid move %q: %w", ms, err)
		}
		m = pos.AnnotateCapture(m)

		history = append(history, histEntry{pos: pos, h: h})
		mover := pos.Side
		nh := a.seeds.ApplyMove(h, &pos, m)
		count, _ := rep.Get(mover, nh)
		rep.Insert(mover, nh, count+1)

		pos, _ = pos.Apply(m)
		h = nh
	}
	history = append(history, histEntry{pos: pos, h: h})

	// Perpetual-check ledger: walk the history backwards, alternating
	// sides, while each side's run of checking positions is unbroken.
	oute := hash.NewKyokumenMap[struct{}]()
	currentTeban := pos.Side.Other()
	currentCont, opponentCont := true, true
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if currentCont && e.pos.InCheck(currentTeban.Other()) {
			oute.Insert(currentTeban, e.h, struct{}{})
		} else if !opponentCont {
			break
		} else {
			currentCont = false
		}
		currentCont, opponentCont = opponentCont, currentCont
		currentTeban = currentTeban.Other()
	}

	a.pos = pos
	a.h = h
	a.repLedger = rep
	a.outeLedger = oute
	a.history = history
	a.moveStarted++
	a.moved = false
	return nil
}

// Think runs a root search with the current configuration and, on success,
// extends the game history with the chosen move.
func (a *Adapter) Think(deadline time.Time, stop, quited *atomic.Bool, onInfo func(search.Info)) search.Result {
	s := search.NewSearcher(a.seeds, a.eval, a.cfg)
	s.OnInfo = onInfo

	result := s.Search(a.pos, a.h, a.repLedger, a.outeLedger, deadline, stop, quited)

	if result.Kind == search.PlayMove {
		m := a.pos.AnnotateCapture(result.Move)
		nh := a.seeds.ApplyMove(a.h, &a.pos, m)
		next, _ := a.pos.Apply(m)
		a.history = append(a.history, histEntry{pos: next, h: nh})
		a.moved = true
	}
	return result
}

// ThinkMate runs the mate solver on the current position.
func (a *Adapter) ThinkMate(deadline time.Time, stop *atomic.Bool) mate.Outcome {
	solver := &mate.Solver{Seeds: a.seeds, StrictMoves: true}
	limits := mate.Limits{Deadline: deadline, Stop: stop}

	// The solver must see stable scores.
	shake := a.eval.ShakeShake
	a.eval.ShakeShake = false
	defer func() { a.eval.ShakeShake = shake }()

	return solver.Solve(a.pos, a.h, a.outeLedger, a.repLedger, nil, limits)
}

// GameOver feeds the finished game to the evaluator's training pass, saves
// the weights atomically and archives the game record.
func (a *Adapter) GameOver(result GameResult) error {
	if a.moveStarted == 0 || len(a.history) == 0 {
		return nil
	}

	samples := a.trainingSamples(result)
	opts := nn.DefaultTrainOptions()
	if loss, err := a.eval.A.TrainBatch(samples, opts); err != nil {
		return err
	} else {
		log.Printf("[Learn] network A loss=%.6f over %d samples", loss, len(samples))
	}
	if loss, err := a.eval.B.TrainBatch(samples, opts); err != nil {
		return err
	} else {
		log.Printf("[Learn] network B loss=%.6f over %d samples", loss, len(samples))
	}

	if a.weightsA != "" && a.weightsB != "" {
		if err := a.eval.Save(a.weightsA, a.weightsB); err != nil {
			return err
		}
	}

	if a.store != nil {
		rec := storage.GameRecord{
			StartSFEN: a.startSFEN,
			Plies:     len(a.history) - 1,
			Result:    int(result),
			FinalSFEN: a.pos.SFEN(),
		}
		if err := a.store.SaveGame(rec); err != nil {
			log.Printf("[Store] failed to archive game: %v", err)
		}
	}

	a.history = nil
	return nil
}

// trainingSamples turns the game history into (features, target) pairs for
// both the mover and the opponent perspective of every reached state.
func (a *Adapter) trainingSamples(result GameResult) []nn.Sample {
	// The result is the engine's outcome; targets for the opponent's
	// perspectives are mirrored.
	samples := make([]nn.Sample, 0, 2*len(a.history))
	engineSide := a.pos.Side

	target := func(c shogi.Color) float32 {
		switch result {
		case ResultDraw:
			return 0.5
		case ResultWin:
			if c == engineSide {
				return 1
			}
			return 0
		default:
			if c == engineSide {
				return 0
			}
			return 1
		}
	}

	for _, e := range a.history {
		side := e.pos.Side
		samples = append(samples,
			nn.Sample{Active: nn.ActiveFeatures(side, true, &e.pos), Target: target(side)},
			nn.Sample{Active: nn.ActiveFeatures(side.Other(), false, &e.pos), Target: target(side.Other())},
		)
	}
	return samples
}

// Config returns a pointer to the tunables so setoption can adjust them.
func (a *Adapter) Config() *search.Config {
	return &a.cfg
}

// Position returns the current root position.
func (a *Adapter) Position() shogi.Position {
	return a.pos
}
