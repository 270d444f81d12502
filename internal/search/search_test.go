package search

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/shogi"
)

func newTestSearcher(cfg Config) *Searcher {
	return NewSearcher(hash.NewSeeds(), nn.NewEvaluator(false), cfg)
}

func runSearch(t *testing.T, s *Searcher, sfen string, deadline time.Time) Result {
	t.Helper()
	pos, err := shogi.ParseSFEN(sfen)
	if err != nil {
		t.Fatal(err)
	}
	var stop, quited atomic.Bool
	return s.Search(pos, s.Seeds.Initial(&pos),
		hash.NewKyokumenMap[uint32](), hash.NewKyokumenMap[struct{}](),
		deadline, &stop, &quited)
}

// TestSearchInitialPosition: the engine must produce a legal move from the
// starting position at the default base depth, and not resign.
func TestSearchInitialPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	result := runSearch(t, s, shogi.StartSFEN, time.Now().Add(60*time.Second))
	if result.Kind != PlayMove {
		t.Fatalf("result = %v, want PlayMove", result.Kind)
	}

	pos := shogi.NewPosition()
	legal := pos.Evasions()
	found := false
	for _, m := range legal.Slice() {
		if m.From() == result.Move.From() && m.To() == result.Move.To() &&
			m.IsDrop() == result.Move.IsDrop() && m.IsPromotion() == result.Move.IsPromotion() {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("search returned non-legal move %v", result.Move)
	}
}

// TestSearchImmediateKingCapture: a checking move that captures the bare
// king must be returned at once with an infinite score.
func TestSearchImmediateKingCapture(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	// Black rook on 5b directly faces the white king on 5a.
	result := runSearch(t, s, "4k4/4R4/9/9/9/9/9/9/4K4 b - 1", time.Time{})
	if result.Kind != PlayMove {
		t.Fatalf("result = %v, want PlayMove", result.Kind)
	}
	if result.Score != ScoreInfinite {
		t.Errorf("score = %d, want +infinite", result.Score)
	}
	if result.Move.To() != mustSquare(t, "5a") {
		t.Errorf("move = %v, want the king capture on 5a", result.Move)
	}
}

// TestSearchMateInOneViaSweep: the pre-loop check sweep proves the forced
// mate behind G*5b and returns it with an infinite score.
func TestSearchMateInOneViaSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	result := runSearch(t, s, "4k4/9/4P4/9/9/9/9/9/8K b G 1", time.Time{})
	if result.Kind != PlayMove {
		t.Fatalf("result = %v, want PlayMove", result.Kind)
	}
	if result.Score != ScoreInfinite {
		t.Errorf("score = %d, want +infinite", result.Score)
	}
	if !result.Move.IsDrop() || result.Move.To() != mustSquare(t, "5b") {
		t.Errorf("move = %v, want G*5b", result.Move)
	}
}

// TestSearchResignsWhenMated: with no evasion available the search reports
// resignation.
func TestSearchResignsWhenMated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	// White to move, mated by gold on 5b supported by pawn on 5c.
	result := runSearch(t, s, "4k4/4G4/4P4/9/9/9/9/9/4K4 w - 1", time.Time{})
	if result.Kind != Resign {
		t.Fatalf("result = %v, want Resign", result.Kind)
	}
}

// TestStartupStrategySennichite: a repeated position scores zero (or loses
// outright when still in check), and a fourth repetition is skipped.
func TestStartupStrategySennichite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	pos := shogi.NewPosition()
	m := pos.AnnotateCapture(mustMove(t, "7g7f"))
	h := s.Seeds.Initial(&pos)
	childH := s.Seeds.ApplyMove(h, &pos, m)

	rep := hash.NewKyokumenMap[uint32]()
	rep.Insert(shogi.Black, childH, 1)

	n := &node{
		side: pos.Side, pos: pos, h: h,
		rep: rep, oute: hash.NewKyokumenMap[struct{}](),
		depth: 2,
	}
	cs, ok := s.startupStrategy(n, priorityMove{priority: priorityQuiet, m: m}, false)
	if !ok {
		t.Fatal("move unexpectedly skipped")
	}
	if !cs.isSennichite {
		t.Error("second occurrence must flag sennichite")
	}

	rep.Insert(shogi.Black, childH, 3)
	if _, ok := s.startupStrategy(n, priorityMove{priority: priorityQuiet, m: m}, false); ok {
		t.Error("fourth occurrence must be skipped")
	}
}

// TestPerpetualCheckSkipped: a checking move into a position already on the
// path's check ledger must be pruned, never scored as a win.
func TestPerpetualCheckSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	pos, err := shogi.ParseSFEN("4k4/9/4P4/9/9/9/9/9/8K b G 1")
	if err != nil {
		t.Fatal(err)
	}
	h := s.Seeds.Initial(&pos)
	m := shogi.NewDrop(shogi.HandGold, mustSquare(t, "5b"))
	childH := s.Seeds.ApplyMove(h, &pos, m)

	oute := hash.NewKyokumenMap[struct{}]()
	oute.Insert(shogi.Black, childH, struct{}{})

	n := &node{side: pos.Side, pos: pos, h: h,
		rep: hash.NewKyokumenMap[uint32](), oute: oute, depth: 2}
	if _, ok := s.startupStrategy(n, priorityMove{priority: priorityCheck, m: m}, false); ok {
		t.Error("revisited check position must be skipped")
	}
}

// TestStopMidSearch: setting the stop flag must unwind the search promptly
// with the best answer so far.
func TestStopMidSearch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDepth = 6
	cfg.MaxDepth = 12
	cfg.NetworkDelay = 0
	s := newTestSearcher(cfg)

	pos := shogi.NewPosition()
	var stop, quited atomic.Bool
	done := make(chan Result, 1)
	go func() {
		done <- s.Search(pos, s.Seeds.Initial(&pos),
			hash.NewKyokumenMap[uint32](), hash.NewKyokumenMap[struct{}](),
			time.Time{}, &stop, &quited)
	}()

	time.Sleep(50 * time.Millisecond)
	stop.Store(true)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("search did not stop")
	}
}

// TestParallelMatchesSequential: with the deterministic evaluator a
// four-worker root search must report the same score as the sequential one
// (the chosen move may differ on exact ties).
func TestParallelMatchesSequential(t *testing.T) {
	seeds := hash.NewSeeds()
	eval := nn.NewEvaluator(false)

	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	cfg.NetworkDelay = 0

	single := NewSearcher(seeds, eval, cfg)
	r1 := runSearch(t, single, shogi.StartSFEN, time.Now().Add(120*time.Second))

	cfg.Threads = 4
	parallel := NewSearcher(seeds, eval, cfg)
	r2 := runSearch(t, parallel, shogi.StartSFEN, time.Now().Add(120*time.Second))

	if r1.Kind != PlayMove || r2.Kind != PlayMove {
		t.Fatalf("kinds = %v/%v, want PlayMove", r1.Kind, r2.Kind)
	}
	if r1.Score != r2.Score {
		t.Errorf("parallel score %d != sequential score %d", r2.Score, r1.Score)
	}
}

func mustMove(t *testing.T, s string) shogi.Move {
	t.Helper()
	m, err := shogi.ParseMove(s)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustSquare(t *testing.T, s string) shogi.Square {
	t.Helper()
	sq, err := shogi.ParseSquare(s)
	if err != nil {
		t.Fatal(err)
	}
	return sq
}
