package nn

import (
	"math"

	"github.com/chewxy/math32"
	"lukechampine.com/frand"
)

// Network is one head of the evaluator ensemble:
// 2517 -> 256 (ReLU, diff-capable) -> 100 (ReLU) -> 1 (sigmoid).
type Network struct {
	// W1 is stored row-major by input feature so a sparse diff touches one
	// contiguous row per changed feature.
	W1 [][]float32 // [InputSize][HiddenSize]
	B1 []float32   // [HiddenSize]
	W2 [][]float32 // [HiddenSize][L2Size]
	B2 []float32   // [L2Size]
	W3 []float32   // [L2Size]
	B3 float32

	vel *momentumState // SGD velocity, lazily allocated by TrainBatch
}

// NewNetwork allocates a zero network.
func NewNetwork() *Network {
	n := &Network{
		W1: make([][]float32, InputSize),
		B1: make([]float32, HiddenSize),
		W2: make([][]float32, HiddenSize),
		B2: make([]float32, L2Size),
		W3: make([]float32, L2Size),
	}
	for i := range n.W1 {
		n.W1[i] = make([]float32, HiddenSize)
	}
	for i := range n.W2 {
		n.W2[i] = make([]float32, L2Size)
	}
	return n
}

// InitRandom draws fresh weights: He-normal sigma=sqrt(2/fanin) for the two
// ReLU layers and sigma=1/sqrt(fanin) for the sigmoid output layer.
func (n *Network) InitRandom(rng *frand.RNG) {
	sigma1 := math32.Sqrt(2.0 / float32(InputSize))
	sigma2 := math32.Sqrt(2.0 / float32(HiddenSize))
	sigma3 := 1.0 / math32.Sqrt(float32(L2Size))

	for i := range n.W1 {
		for j := range n.W1[i] {
			n.W1[i][j] = normal(rng) * sigma1
		}
	}
	for i := range n.W2 {
		for j := range n.W2[i] {
			n.W2[i][j] = normal(rng) * sigma2
		}
	}
	for i := range n.W3 {
		n.W3[i] = normal(rng) * sigma3
	}
}

// normal draws a standard normal sample (Box-Muller).
func normal(rng *frand.RNG) float32 {
	u1 := float32(rng.Float64())
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	u2 := float32(rng.Float64())
	return math32.Sqrt(-2*math32.Log(u1)) * math32.Cos(2*math.Pi*u2)
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}

func ln(x float32) float32 {
	return math32.Log(x)
}

// preactivation computes the first-layer pre-activation for the active
// feature indices (all with value 1).
func (n *Network) preactivation(active []int) []float32 {
	pre := make([]float32, HiddenSize)
	copy(pre, n.B1)
	for _, idx := range active {
		row := n.W1[idx]
		for j := 0; j < HiddenSize; j++ {
			pre[j] += row[j]
		}
	}
	return pre
}

// forwardTail runs layers 2 and 3 on a first-layer pre-activation and
// returns the sigmoid output.
func (n *Network) forwardTail(pre []float32) float32 {
	var l2 [L2Size]float32
	copy(l2[:], n.B2)
	for i := 0; i < HiddenSize; i++ {
		h := pre[i]
		if h <= 0 {
			continue
		}
		row := n.W2[i]
		for j := 0; j < L2Size; j++ {
			l2[j] += h * row[j]
		}
	}
	out := n.B3
	for j := 0; j < L2Size; j++ {
		if l2[j] > 0 {
			out += l2[j] * n.W3[j]
		}
	}
	return sigmoid(out)
}

// Forward evaluates the network on a dense input given as active indices.
func (n *Network) Forward(active []int) float32 {
	return n.forwardTail(n.preactivation(active))
}
