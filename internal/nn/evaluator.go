package nn

import (
	"lukechampine.com/frand"

	"github.com/j6k1/nnshogi/internal/shogi"
)

// ScoreScale converts the (-0.5, 0.5) raw ensemble output to the integer
// score range used by the search.
const ScoreScale = 1 << 29

// SnapshotPair holds one snapshot per ensemble head.
type SnapshotPair struct {
	A, B *Snapshot
}

// Evaluator is the two-headed ensemble. The final score is a convex
// combination of the heads; in shake-shake mode the mixing weight is drawn
// uniformly per evaluation, otherwise it is fixed at 0.5. The weight
// matrices are immutable during search; training must not run concurrently.
type Evaluator struct {
	A *Network
	B *Network

	// ShakeShake enables the random convex combination. The mate searches
	// require it off so repeated evaluations agree.
	ShakeShake bool

	rng *frand.RNG
}

// NewEvaluator creates an evaluator with freshly initialized heads.
func NewEvaluator(shakeShake bool) *Evaluator {
	rng := frand.New()
	a := NewNetwork()
	a.InitRandom(rng)
	b := NewNetwork()
	b.InitRandom(rng)
	return &Evaluator{A: a, B: b, ShakeShake: shakeShake, rng: rng}
}

// mix returns the per-evaluation head weights (a, 1-a).
func (e *Evaluator) mix() (float32, float32) {
	if !e.ShakeShake {
		return 0.5, 0.5
	}
	a := float32(e.rng.Float64())
	return a, 1 - a
}

// score combines the two head outputs into the integer score.
func (e *Evaluator) score(outA, outB float32) int64 {
	a, b := e.mix()
	raw := outA*a + outB*b - 0.5
	return int64(raw * float32(ScoreScale))
}

// Evaluate scores a position from perspective t with the given self flag,
// running both heads densely.
func (e *Evaluator) Evaluate(t shogi.Color, isSelf bool, pos *shogi.Position) int64 {
	active := ActiveFeatures(t, isSelf, pos)
	return e.score(e.A.Forward(active), e.B.Forward(active))
}

// MakeSnapshot builds the snapshot pair for a position from scratch.
func (e *Evaluator) MakeSnapshot(t shogi.Color, isSelf bool, pos *shogi.Position) SnapshotPair {
	active := ActiveFeatures(t, isSelf, pos)
	return SnapshotPair{A: e.A.SnapshotFrom(active), B: e.B.SnapshotFrom(active)}
}

// DiffSnapshot derives the snapshot pair after playing m on pos, each head
// diffing with its own weights. isSelfAfter is the self flag the derived
// snapshot represents; flipFlags toggles the side-flag features, which is
// required whenever the snapshot changes role between parent and child.
// On ErrInvalidDiff the caller should recompute from scratch.
func (e *Evaluator) DiffSnapshot(pair SnapshotPair, t shogi.Color, isSelfAfter, flipFlags bool, pos *shogi.Position, m shogi.Move) (SnapshotPair, error) {
	delta, err := MoveDelta(t, isSelfAfter, flipFlags, pos, m)
	if err != nil {
		return SnapshotPair{}, err
	}
	return SnapshotPair{
		A: e.A.SnapshotDiff(pair.A, delta),
		B: e.B.SnapshotDiff(pair.B, delta),
	}, nil
}

// ScoreSnapshot combines a snapshot pair into the integer score.
func (e *Evaluator) ScoreSnapshot(pair SnapshotPair) int64 {
	return e.score(pair.A.Output(), pair.B.Output())
}
