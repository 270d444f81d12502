package search

import "github.com/j6k1/nnshogi/internal/shogi"

// ScoreInfinite bounds every evaluator score: the evaluator output lives in
// (-2^29, 2^29), so 2^40 is safely outside the value range while still
// negating without overflow.
const ScoreInfinite int64 = 1 << 40

// ResultKind classifies the outcome of a search call.
type ResultKind uint8

const (
	// PlayMove: a best move was found.
	PlayMove ResultKind = iota
	// Resign: no playable move (mated, or a fatal internal error).
	Resign
	// Abort: the engine was asked to quit mid-search.
	Abort
)

// Result is the answer of a root search.
type Result struct {
	Kind  ResultKind
	Move  shogi.Move
	Score int64
}

// evaluation is the internal per-node answer.
type evaluation struct {
	kind  evalKind
	score int64
	move  shogi.Move // best move, NoMove when none
}

type evalKind uint8

const (
	evalValue evalKind = iota
	evalTimeout
	evalError
)

// outeEval is the answer of the quick mate-sweep searches: the mating depth
// when one was proved, noMateDepth when none, or a timeout marker.
type outeEval struct {
	kind  outeKind
	depth int32
}

type outeKind uint8

const (
	outeValue outeKind = iota
	outeTimeout
	outeError
)

// noMateDepth marks "no forced mate found" in the sweep searches.
const noMateDepth int32 = -1
