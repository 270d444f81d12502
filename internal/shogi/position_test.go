package shogi

import (
	"math/rand"
	"testing"
)

func TestStartposSFENRoundTrip(t *testing.T) {
	pos := NewPosition()
	if got := pos.SFEN(); got != StartSFEN {
		t.Errorf("SFEN round trip mismatch:\n got %q\nwant %q", got, StartSFEN)
	}
	if pos.Side != Black {
		t.Errorf("side to move = %v, want Black", pos.Side)
	}
}

func TestParseSFENHands(t *testing.T) {
	pos, err := ParseSFEN("4k4/9/9/9/9/9/9/9/4K4 b 2RB3p 1")
	if err != nil {
		t.Fatal(err)
	}
	if got := pos.Hands[Black].Count(HandRook); got != 2 {
		t.Errorf("black rooks in hand = %d, want 2", got)
	}
	if got := pos.Hands[Black].Count(HandBishop); got != 1 {
		t.Errorf("black bishops in hand = %d, want 1", got)
	}
	if got := pos.Hands[White].Count(HandPawn); got != 3 {
		t.Errorf("white pawns in hand = %d, want 3", got)
	}
	if got := pos.SFEN(); got != "4k4/9/9/9/9/9/9/9/4K4 b 2RB3p 1" {
		t.Errorf("hand SFEN round trip = %q", got)
	}
}

func TestStartposMoveCount(t *testing.T) {
	pos := NewPosition()
	if got := pos.AllMoves().Len(); got != 30 {
		t.Errorf("startpos move count = %d, want 30", got)
	}
	// No checks exist in the opening position.
	if got := pos.CheckMoves().Len(); got != 0 {
		t.Errorf("startpos check move count = %d, want 0", got)
	}
}

func TestParseMoveRoundTrip(t *testing.T) {
	cases := []string{"7g7f", "8h2b+", "P*5e", "1a1b", "S*9i"}
	for _, c := range cases {
		m, err := ParseMove(c)
		if err != nil {
			t.Fatalf("ParseMove(%q): %v", c, err)
		}
		if got := m.String(); got != c {
			t.Errorf("move round trip: got %q, want %q", got, c)
		}
	}
	if _, err := ParseMove("xx"); err == nil {
		t.Error("expected error for malformed move")
	}
}

func TestApplyCaptureFlowsToHand(t *testing.T) {
	// Crafted position: black rook on 8d takes the white pawn on 8c.
	pos, err := ParseSFEN("4k4/9/1p7/1R7/9/9/9/9/4K4 b - 1")
	if err != nil {
		t.Fatal(err)
	}
	m, err := ParseMove("8d8c")
	if err != nil {
		t.Fatal(err)
	}
	m = pos.AnnotateCapture(m)
	if !m.IsCapture() {
		t.Fatal("expected a capture")
	}
	next, captured := pos.Apply(m)
	if captured != NewPiece(Pawn, White) {
		t.Errorf("captured = %v, want white pawn", captured)
	}
	if got := next.Hands[Black].Count(HandPawn); got != 1 {
		t.Errorf("black pawns in hand = %d, want 1", got)
	}
	if next.Side != White {
		t.Errorf("side after move = %v, want White", next.Side)
	}
}

func TestPromotionForcedOnLastRank(t *testing.T) {
	pos, err := ParseSFEN("4k4/4P4/9/9/9/9/9/9/4K4 b - 1")
	if err != nil {
		t.Fatal(err)
	}
	moves := pos.AllMoves()
	sawPromotion := false
	for _, m := range moves.Slice() {
		if m.IsDrop() || m.From() != mustSquare(t, "5b") {
			continue
		}
		if !m.IsPromotion() {
			t.Errorf("pawn move to last rank must promote: %v", m)
		}
		sawPromotion = true
	}
	if !sawPromotion {
		t.Error("no pawn moves generated from 5b")
	}
}

func TestNifuForbidden(t *testing.T) {
	pos, err := ParseSFEN("4k4/9/9/9/9/9/4P4/9/4K4 b P 1")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range pos.AllMoves().Slice() {
		if m.IsDrop() && m.DropKind() == HandPawn && m.To().File() == 5 {
			t.Errorf("nifu drop generated: %v", m)
		}
	}
}

func TestInCheckAndEvasions(t *testing.T) {
	// White king on 5a checked by a black gold on 5b supported by a pawn.
	pos, err := ParseSFEN("4k4/4G4/4P4/9/9/9/9/9/4K4 w - 1")
	if err != nil {
		t.Fatal(err)
	}
	if !pos.InCheck(White) {
		t.Fatal("white must be in check")
	}
	if pos.Evasions().Len() != 0 {
		t.Errorf("expected mate, got %d evasions", pos.Evasions().Len())
	}
}

func TestGivesCheck(t *testing.T) {
	pos, err := ParseSFEN("4k4/9/4P4/9/9/9/9/9/4K4 b G 1")
	if err != nil {
		t.Fatal(err)
	}
	drop := NewDrop(HandGold, mustSquare(t, "5b"))
	if !pos.GivesCheck(drop) {
		t.Error("G*5b must give check")
	}
	quiet := NewDrop(HandGold, mustSquare(t, "5e"))
	if pos.GivesCheck(quiet) {
		t.Error("G*5e must not give check")
	}
}

// TestRandomPlayoutCensus plays random legal games and checks that material
// is conserved: board pieces plus hands always total 40.
func TestRandomPlayoutCensus(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for game := 0; game < 5; game++ {
		pos := NewPosition()
		for ply := 0; ply < 80; ply++ {
			moves := pos.Evasions()
			if moves.Len() == 0 {
				break
			}
			m := moves.Get(rng.Intn(moves.Len()))
			pos, _ = pos.Apply(m)

			census := pos.Hands[Black].Total() + pos.Hands[White].Total()
			for _, p := range pos.Board {
				if p != NoPiece {
					census++
				}
			}
			if census != 40 {
				t.Fatalf("census broken after %v at ply %d: %d pieces", m, ply, census)
			}
		}
	}
}

func mustSquare(t *testing.T, s string) Square {
	t.Helper()
	sq, err := ParseSquare(s)
	if err != nil {
		t.Fatal(err)
	}
	return sq
}
