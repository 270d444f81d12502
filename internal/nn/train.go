package nn

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Sample is one training example: the active input indices and the expected
// sigmoid output (1 win, 0 loss, 0.5 draw, from the input's perspective).
type Sample struct {
	Active []int
	Target float32
}

// TrainOptions control the SGD pass.
type TrainOptions struct {
	LearningRate float32
	Momentum     float32
	MaxThreads   int
}

// DefaultTrainOptions returns the options used by the self-play learner.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.01,
		Momentum:     0.9,
		MaxThreads:   runtime.GOMAXPROCS(0),
	}
}

// gradients accumulates one worker's share of the batch gradient.
type gradients struct {
	w1 [][]float32
	b1 []float32
	w2 [][]float32
	b2 []float32
	w3 []float32
	b3 float32
}

func newGradients() *gradients {
	g := &gradients{
		w1: make([][]float32, InputSize),
		b1: make([]float32, HiddenSize),
		w2: make([][]float32, HiddenSize),
		b2: make([]float32, L2Size),
		w3: make([]float32, L2Size),
	}
	for i := range g.w2 {
		g.w2[i] = make([]float32, L2Size)
	}
	// w1 rows are allocated lazily: only rows of touched features exist.
	return g
}

func (g *gradients) w1row(idx int) []float32 {
	if g.w1[idx] == nil {
		g.w1[idx] = make([]float32, HiddenSize)
	}
	return g.w1[idx]
}

// accumulate runs forward and backward for one sample under cross-entropy
// loss with a sigmoid output, adding the gradient contribution to g.
func (n *Network) accumulate(g *gradients, s Sample) float32 {
	pre := n.preactivation(s.Active)

	var hidden [HiddenSize]float32
	for i := 0; i < HiddenSize; i++ {
		if pre[i] > 0 {
			hidden[i] = pre[i]
		}
	}

	var l2pre [L2Size]float32
	copy(l2pre[:], n.B2)
	for i := 0; i < HiddenSize; i++ {
		h := hidden[i]
		if h == 0 {
			continue
		}
		row := n.W2[i]
		for j := 0; j < L2Size; j++ {
			l2pre[j] += h * row[j]
		}
	}
	var l2 [L2Size]float32
	for j := 0; j < L2Size; j++ {
		if l2pre[j] > 0 {
			l2[j] = l2pre[j]
		}
	}

	outPre := n.B3
	for j := 0; j < L2Size; j++ {
		outPre += l2[j] * n.W3[j]
	}
	out := sigmoid(outPre)

	// d(loss)/d(outPre) for cross entropy with sigmoid output.
	dOut := out - s.Target

	g.b3 += dOut
	var dL2 [L2Size]float32
	for j := 0; j < L2Size; j++ {
		g.w3[j] += dOut * l2[j]
		if l2pre[j] > 0 {
			dL2[j] = dOut * n.W3[j]
		}
	}

	var dHidden [HiddenSize]float32
	for i := 0; i < HiddenSize; i++ {
		if hidden[i] == 0 {
			continue
		}
		row := n.W2[i]
		grow := g.w2[i]
		var acc float32
		for j := 0; j < L2Size; j++ {
			grow[j] += dL2[j] * hidden[i]
			acc += dL2[j] * row[j]
		}
		dHidden[i] = acc
	}

	for i := 0; i < HiddenSize; i++ {
		g.b1[i] += dHidden[i]
	}
	for _, idx := range s.Active {
		grow := g.w1row(idx)
		for i := 0; i < HiddenSize; i++ {
			grow[i] += dHidden[i]
		}
	}

	loss := crossEntropy(out, s.Target)
	return loss
}

func crossEntropy(out, target float32) float32 {
	const eps = 1e-7
	if out < eps {
		out = eps
	} else if out > 1-eps {
		out = 1 - eps
	}
	return -(target*ln(out) + (1-target)*ln(1-out))
}

// momentumState holds the velocity buffers between TrainBatch calls.
type momentumState struct {
	w1 [][]float32
	b1 []float32
	w2 [][]float32
	b2 []float32
	w3 []float32
	b3 float32
}

func (n *Network) velocity() *momentumState {
	if n.vel == nil {
		v := &momentumState{
			w1: make([][]float32, InputSize),
			b1: make([]float32, HiddenSize),
			w2: make([][]float32, HiddenSize),
			b2: make([]float32, L2Size),
			w3: make([]float32, L2Size),
		}
		for i := range v.w2 {
			v.w2[i] = make([]float32, L2Size)
		}
		n.vel = v
	}
	return n.vel
}

// TrainBatch runs one SGD-with-momentum step over the batch. Gradient
// computation fans out over at most opts.MaxThreads goroutines; the weight
// update itself is single-threaded. It returns the mean loss.
// TrainBatch must not run concurrently with a search.
func (n *Network) TrainBatch(samples []Sample, opts TrainOptions) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	threads := opts.MaxThreads
	if threads < 1 {
		threads = 1
	}
	if threads > len(samples) {
		threads = len(samples)
	}

	grads := make([]*gradients, threads)
	losses := make([]float32, threads)
	chunk := (len(samples) + threads - 1) / threads

	var g errgroup.Group
	g.SetLimit(threads)
	for w := 0; w < threads; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > len(samples) {
			hi = len(samples)
		}
		g.Go(func() error {
			acc := newGradients()
			var loss float32
			for _, s := range samples[lo:hi] {
				loss += n.accumulate(acc, s)
			}
			grads[w] = acc
			losses[w] = loss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	v := n.velocity()
	scale := 1.0 / float32(len(samples))
	lr := opts.LearningRate
	mom := opts.Momentum

	var total float32
	for w := 0; w < threads; w++ {
		total += losses[w]
		acc := grads[w]
		for idx, grow := range acc.w1 {
			if grow == nil {
				continue
			}
			if v.w1[idx] == nil {
				v.w1[idx] = make([]float32, HiddenSize)
			}
			vrow := v.w1[idx]
			wrow := n.W1[idx]
			for i := 0; i < HiddenSize; i++ {
				vrow[i] = mom*vrow[i] - lr*grow[i]*scale
				wrow[i] += vrow[i]
			}
		}
		for i := 0; i < HiddenSize; i++ {
			v.b1[i] = mom*v.b1[i] - lr*acc.b1[i]*scale
			n.B1[i] += v.b1[i]
			vrow := v.w2[i]
			wrow := n.W2[i]
			grow := acc.w2[i]
			for j := 0; j < L2Size; j++ {
				vrow[j] = mom*vrow[j] - lr*grow[j]*scale
				wrow[j] += vrow[j]
			}
		}
		for j := 0; j < L2Size; j++ {
			v.b2[j] = mom*v.b2[j] - lr*acc.b2[j]*scale
			n.B2[j] += v.b2[j]
			v.w3[j] = mom*v.w3[j] - lr*acc.w3[j]*scale
			n.W3[j] += v.w3[j]
		}
		v.b3 = mom*v.b3 - lr*acc.b3*scale
		n.B3 += v.b3
	}

	return total / float32(len(samples)), nil
}
