package mate

import (
	"testing"
	"time"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/shogi"
)

func solve(t *testing.T, sfen string, strict bool, maxDepth uint32) Outcome {
	t.Helper()
	pos, err := shogi.ParseSFEN(sfen)
	if err != nil {
		t.Fatal(err)
	}
	seeds := hash.NewSeeds()
	solver := &Solver{Seeds: seeds, StrictMoves: strict}
	limits := Limits{
		MaxDepth: maxDepth,
		MaxNodes: 2_000_000,
		Deadline: time.Now().Add(20 * time.Second),
	}
	return solver.Solve(pos, seeds.Initial(&pos), nil, nil, nil, limits)
}

// applyLine plays the proved line and reports whether it ends in a position
// where the defender has no legal answer.
func applyLine(t *testing.T, sfen string, moves []shogi.Move) bool {
	t.Helper()
	pos, err := shogi.ParseSFEN(sfen)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range moves {
		m = pos.AnnotateCapture(m)
		pos, _ = pos.Apply(m)
	}
	return pos.InCheck(pos.Side) && pos.Evasions().Len() == 0
}

func TestMateInOneByDrop(t *testing.T) {
	// White king on 5a, black pawn on 5c supports G*5b.
	const sfen = "4k4/9/4P4/9/9/9/9/9/8K b G 1"
	out := solve(t, sfen, true, 7)
	if out.Kind != Mate {
		t.Fatalf("outcome = %v, want Mate", out.Kind)
	}
	if out.Depth != 1 || len(out.Moves) != 1 {
		t.Fatalf("depth = %d moves = %v, want a one-move proof", out.Depth, out.Moves)
	}
	want := shogi.NewDrop(shogi.HandGold, mustSquare(t, "5b"))
	if out.Moves[0].To() != want.To() || !out.Moves[0].IsDrop() {
		t.Errorf("proof move = %v, want G*5b", out.Moves[0])
	}
	if !applyLine(t, sfen, out.Moves) {
		t.Error("proof line does not end in mate")
	}
}

func TestMateInThreeRookDrop(t *testing.T) {
	// White king on 1a, black gold on 2c, rook in hand:
	// R*1b, K2a, R2b+ (or an equivalent proof of the same depth).
	const sfen = "8k/9/7G1/9/9/9/9/9/K8 b R 1"
	out := solve(t, sfen, true, 9)
	if out.Kind != Mate {
		t.Fatalf("outcome = %v, want Mate", out.Kind)
	}
	if out.Depth != 3 {
		t.Fatalf("depth = %d, want 3", out.Depth)
	}
	if len(out.Moves) != int(out.Depth) {
		t.Fatalf("proved depth %d but line has %d moves", out.Depth, len(out.Moves))
	}
	if !applyLine(t, sfen, out.Moves) {
		t.Errorf("proof line %v does not end in mate", out.Moves)
	}
}

func TestNonStrictMayTruncate(t *testing.T) {
	const sfen = "8k/9/7G1/9/9/9/9/9/K8 b R 1"
	out := solve(t, sfen, false, 9)
	if out.Kind != Mate {
		t.Fatalf("outcome = %v, want Mate", out.Kind)
	}
	if len(out.Moves) == 0 {
		t.Fatal("a proof must carry at least the first move")
	}
}

func TestDropPawnMateIsNoMate(t *testing.T) {
	// The only mating try is P*1b (supported by the lance, escapes covered
	// by the gold); a pawn-drop mate is illegal, so there is no mate.
	const sfen = "8k/6G2/8L/9/9/9/9/9/K8 b P 1"
	out := solve(t, sfen, true, 13)
	if out.Kind != NoMate {
		t.Fatalf("outcome = %v (depth %d line %v), want NoMate", out.Kind, out.Depth, out.Moves)
	}
}

func TestNoCheckMeansNoMate(t *testing.T) {
	out := solve(t, shogi.StartSFEN, true, 5)
	if out.Kind != NoMate {
		t.Fatalf("outcome = %v, want NoMate", out.Kind)
	}
}

func TestMaxDepthBound(t *testing.T) {
	// A mate in three searched with a depth cap of two cannot be proved.
	const sfen = "8k/9/7G1/9/9/9/9/9/K8 b R 1"
	out := solve(t, sfen, true, 2)
	if out.Kind == Mate {
		t.Fatalf("mate proved past the depth bound: %v", out.Moves)
	}
}

func mustSquare(t *testing.T, s string) shogi.Square {
	t.Helper()
	sq, err := shogi.ParseSquare(s)
	if err != nil {
		t.Fatal(err)
	}
	return sq
}
