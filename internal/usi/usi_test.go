package usi

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/shogi"
)

// syncWriter makes a bytes.Buffer safe for the search goroutine.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newTestUSI() (*USI, *syncWriter) {
	adapter := NewAdapter(hash.NewSeeds(), nn.NewEvaluator(false), "", "", nil)
	u := New(adapter)
	w := &syncWriter{}
	u.out = w
	return u, w
}

func TestHandshake(t *testing.T) {
	u, w := newTestUSI()
	u.Run(strings.NewReader("usi\nisready\nquit\n"))

	out := w.String()
	for _, want := range []string{"id name nnshogi", "option name MaxDepth", "usiok", "readyok"} {
		if !strings.Contains(out, want) {
			t.Errorf("handshake output missing %q:\n%s", want, out)
		}
	}
}

func TestPositionAndGoProducesBestmove(t *testing.T) {
	u, w := newTestUSI()
	u.adapter.Config().BaseDepth = 1
	u.adapter.Config().MaxDepth = 1
	u.adapter.Config().NetworkDelay = 0

	u.Run(strings.NewReader(
		"position startpos moves 7g7f\ngo byoyomi 10000\nstop\nquit\n"))

	out := w.String()
	if !strings.Contains(out, "bestmove ") {
		t.Fatalf("no bestmove in output:\n%s", out)
	}
	if strings.Contains(out, "bestmove resign") {
		t.Fatalf("unexpected resignation:\n%s", out)
	}
}

func TestStopDeliversBestmovePromptly(t *testing.T) {
	u, w := newTestUSI()
	cfg := u.adapter.Config()
	cfg.BaseDepth = 6
	cfg.MaxDepth = 12
	cfg.NetworkDelay = 0

	if err := u.handlePosition([]string{"startpos"}); err != nil {
		t.Fatal(err)
	}
	u.handleGo([]string{"infinite"})

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	u.handleStop()
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Fatalf("stop took %v", elapsed)
	}
	if !strings.Contains(w.String(), "bestmove ") {
		t.Fatalf("no bestmove after stop:\n%s", w.String())
	}
}

func TestGoMateAnswersCheckmate(t *testing.T) {
	u, w := newTestUSI()
	if err := u.handlePosition([]string{"sfen", "4k4/9/4P4/9/9/9/9/9/8K", "b", "G", "1"}); err != nil {
		t.Fatal(err)
	}
	u.handleGo([]string{"mate", "10000"})
	<-u.searchDone

	out := w.String()
	if !strings.Contains(out, "checkmate G*5b") {
		t.Fatalf("mate answer missing, got:\n%s", out)
	}
}

func TestSetPositionBuildsRepetitionLedger(t *testing.T) {
	adapter := NewAdapter(hash.NewSeeds(), nn.NewEvaluator(false), "", "", nil)

	// Shuffle the rooks back and forth to repeat the same position.
	moves := []string{"2h3h", "8b7b", "3h2h", "7b8b", "2h3h", "8b7b", "3h2h", "7b8b"}
	if err := adapter.SetPosition(shogi.StartSFEN, moves); err != nil {
		t.Fatal(err)
	}

	count, ok := adapter.repLedger.Get(shogi.White, adapter.h)
	if !ok || count != 2 {
		t.Errorf("repetition count = %d,%v want 2,true", count, ok)
	}
	if len(adapter.history) != len(moves)+1 {
		t.Errorf("history length = %d, want %d", len(adapter.history), len(moves)+1)
	}
}

func TestSetPositionRejectsGarbage(t *testing.T) {
	adapter := NewAdapter(hash.NewSeeds(), nn.NewEvaluator(false), "", "", nil)
	if err := adapter.SetPosition("not an sfen", nil); err == nil {
		t.Error("expected an error for a malformed sfen")
	}
	if err := adapter.SetPosition(shogi.StartSFEN, []string{"zz"}); err == nil {
		t.Error("expected an error for a malformed move")
	}
}

func TestTrainingSamplesTargets(t *testing.T) {
	adapter := NewAdapter(hash.NewSeeds(), nn.NewEvaluator(false), "", "", nil)
	if err := adapter.SetPosition(shogi.StartSFEN, []string{"7g7f", "3c3d"}); err != nil {
		t.Fatal(err)
	}

	samples := adapter.trainingSamples(ResultWin)
	if len(samples) != 2*len(adapter.history) {
		t.Fatalf("sample count = %d, want %d", len(samples), 2*len(adapter.history))
	}
	for _, s := range samples {
		if s.Target != 0 && s.Target != 1 {
			t.Errorf("win/loss target = %v, want 0 or 1", s.Target)
		}
	}
	for _, s := range adapter.trainingSamples(ResultDraw) {
		if s.Target != 0.5 {
			t.Errorf("draw target = %v, want 0.5", s.Target)
		}
	}
}
