package train

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/shogi"
	"github.com/j6k1/nnshogi/internal/storage"
)

// randomGamePositions plays a short random game and collects the reached
// positions; every one has the full 40-piece census the codec relies on.
func randomGamePositions(t *testing.T, seed int64, plies int) []shogi.Position {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	pos := shogi.NewPosition()
	positions := []shogi.Position{pos}
	for i := 0; i < plies; i++ {
		moves := pos.Evasions()
		if moves.Len() == 0 {
			break
		}
		pos, _ = pos.Apply(moves.Get(rng.Intn(moves.Len())))
		positions = append(positions, pos)
	}
	return positions
}

func positionsEqual(a, b *shogi.Position) bool {
	if a.Side != b.Side || a.Hands != b.Hands {
		return false
	}
	return a.Board == b.Board
}

func TestPackedRecordRoundTrip(t *testing.T) {
	for _, pos := range randomGamePositions(t, 21, 60) {
		rec := Record{Pos: pos, Value: -321, Outcome: OutcomeWhiteWin}
		var buf [PackedRecordSize]byte
		if err := EncodePacked(&rec, buf[:]); err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodePacked(buf[:])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !positionsEqual(&got.Pos, &pos) {
			t.Fatalf("position round trip mismatch:\n%s\n%s", pos.String(), got.Pos.String())
		}
		if got.Value != rec.Value || got.Outcome != rec.Outcome {
			t.Errorf("labels = %d/%d, want %d/%d", got.Value, got.Outcome, rec.Value, rec.Outcome)
		}
	}
}

func TestHCPERecordRoundTrip(t *testing.T) {
	for _, pos := range randomGamePositions(t, 22, 60) {
		rec := Record{Pos: pos, Value: 512, Outcome: OutcomeBlackWin}
		var buf [HCPERecordSize]byte
		if err := EncodeHCPE(&rec, buf[:]); err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeHCPE(buf[:])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !positionsEqual(&got.Pos, &pos) {
			t.Fatalf("position round trip mismatch at ply %d", pos.Ply)
		}
		if got.Outcome != rec.Outcome {
			t.Errorf("outcome = %d, want %d", got.Outcome, rec.Outcome)
		}
	}
}

func TestEncodeRejectsPartialMaterial(t *testing.T) {
	pos, err := shogi.ParseSFEN("4k4/9/9/9/9/9/9/9/4K4 b - 1")
	if err != nil {
		t.Fatal(err)
	}
	rec := Record{Pos: pos}
	var buf [PackedRecordSize]byte
	if err := EncodePacked(&rec, buf[:]); err == nil {
		t.Error("expected an error for a bare-kings position")
	}
}

func TestTrainerRunWithCheckpointResume(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "kifu")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Two small files of packed records.
	for fi, name := range []string{"a.psv", "b.psv"} {
		var data []byte
		for _, pos := range randomGamePositions(t, int64(30+fi), 8) {
			rec := Record{Pos: pos, Outcome: OutcomeDraw}
			var buf [PackedRecordSize]byte
			if err := EncodePacked(&rec, buf[:]); err != nil {
				t.Fatal(err)
			}
			data = append(data, buf[:]...)
		}
		if err := os.WriteFile(filepath.Join(dataDir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	eval := nn.NewEvaluator(false)
	checkpointPath := filepath.Join(dir, "checkpoint.txt")
	weightsA := filepath.Join(dir, "a.weights")
	weightsB := filepath.Join(dir, "b.weights")

	trainer := NewTrainer(eval, dataDir, checkpointPath, weightsA, weightsB)
	trainer.BatchSize = 4
	trainer.Opts.MaxThreads = 2
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}

	cp, err := storage.ReadCheckpoint(checkpointPath)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Filename != "b.psv" || cp.Item != 0 {
		t.Errorf("checkpoint = %+v, want b.psv fully consumed", cp)
	}
	if _, err := os.Stat(weightsA); err != nil {
		t.Errorf("weights A not written: %v", err)
	}

	// A second run resumes past the checkpoint and has nothing to do.
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestSamplesTargets(t *testing.T) {
	pos := shogi.NewPosition()
	records := []Record{{Pos: pos, Outcome: OutcomeBlackWin}}
	samples := Samples(records)
	if len(samples) != 2 {
		t.Fatalf("sample count = %d, want 2", len(samples))
	}
	if samples[0].Target != 1 {
		t.Errorf("mover (black) target = %v, want 1", samples[0].Target)
	}
	if samples[1].Target != 0 {
		t.Errorf("opponent (white) target = %v, want 0", samples[1].Target)
	}
}
