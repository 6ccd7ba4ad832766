// Package agent implements the learning side of the bot: a small value
// network with a target copy, a bounded replay buffer with loss-biased
// sampling, heuristic strategy overrides layered over the greedy policy,
// and the loss-driven adaptation applied after each finished match.
package agent

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Network is a two-layer fully connected value approximator:
// input -> hidden (ReLU) -> one output per action. It carries its own Adam
// optimizer so the learning rate can be adjusted at runtime.
type Network struct {
	inDim  int
	hidDim int
	outDim int

	w1 *mat.Dense    // hidDim x inDim
	b1 *mat.VecDense // hidDim
	w2 *mat.Dense    // outDim x hidDim
	b2 *mat.VecDense // outDim

	clipNorm float64
	opt      *adam
}

// NewNetwork builds a network with Glorot-uniform initialized weights and
// zero biases. The caller supplies the rng (math/rand/v2) for deterministic
// tests.
func NewNetwork(inDim, hidDim, outDim int, lr, clipNorm float64, rng *rand.Rand) *Network {
	n := &Network{
		inDim:    inDim,
		hidDim:   hidDim,
		outDim:   outDim,
		w1:       mat.NewDense(hidDim, inDim, nil),
		b1:       mat.NewVecDense(hidDim, nil),
		w2:       mat.NewDense(outDim, hidDim, nil),
		b2:       mat.NewVecDense(outDim, nil),
		clipNorm: clipNorm,
	}
	glorot(n.w1, inDim, hidDim, rng)
	glorot(n.w2, hidDim, outDim, rng)
	n.opt = newAdam(lr, n.paramData())
	return n
}

func glorot(w *mat.Dense, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := w.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Forward computes Q(state, ·) and returns one value per action.
func (n *Network) Forward(state []float64) []float64 {
	_, _, q := n.forwardFull(state)
	return q
}

// forwardFull returns the hidden pre-activation, hidden activation and
// output, which the backward pass needs.
func (n *Network) forwardFull(state []float64) (z1, h, q []float64) {
	x := mat.NewVecDense(n.inDim, state)

	zv := mat.NewVecDense(n.hidDim, nil)
	zv.MulVec(n.w1, x)
	zv.AddVec(zv, n.b1)
	z1 = zv.RawVector().Data

	h = make([]float64, n.hidDim)
	for i, v := range z1 {
		if v > 0 {
			h[i] = v
		}
	}

	qv := mat.NewVecDense(n.outDim, nil)
	qv.MulVec(n.w2, mat.NewVecDense(n.hidDim, h))
	qv.AddVec(qv, n.b2)
	q = qv.RawVector().Data
	return z1, h, q
}

// TrainBatch runs one optimizer step minimizing the mean squared error
// between Q(state, action) and the given TD targets. extraLoss is a scalar
// adjustment added to the reported loss only; it carries no gradient.
// Gradients are clipped to a global norm before the Adam update. Returns
// the total loss.
func (n *Network) TrainBatch(states [][]float64, actions []int, targets []float64, extraLoss float64) float64 {
	batch := len(states)
	if batch == 0 {
		return extraLoss
	}

	gw1 := mat.NewDense(n.hidDim, n.inDim, nil)
	gb1 := mat.NewVecDense(n.hidDim, nil)
	gw2 := mat.NewDense(n.outDim, n.hidDim, nil)
	gb2 := mat.NewVecDense(n.outDim, nil)

	var loss float64
	for s := 0; s < batch; s++ {
		z1, h, q := n.forwardFull(states[s])
		a := actions[s]
		diff := q[a] - targets[s]
		loss += diff * diff

		// d(loss)/d(q_a) for the MSE mean.
		dqa := 2 * diff / float64(batch)

		gw2row := gw2.RawRowView(a)
		for j := 0; j < n.hidDim; j++ {
			gw2row[j] += dqa * h[j]
		}
		gb2.SetVec(a, gb2.AtVec(a)+dqa)

		// Backprop through the ReLU into the first layer.
		dh := make([]float64, n.hidDim)
		w2row := n.w2.RawRowView(a)
		for j := 0; j < n.hidDim; j++ {
			if z1[j] > 0 {
				dh[j] = dqa * w2row[j]
			}
		}
		dhv := mat.NewVecDense(n.hidDim, dh)
		gw1.RankOne(gw1, 1, dhv, mat.NewVecDense(n.inDim, states[s]))
		gb1.AddVec(gb1, dhv)
	}
	loss = loss/float64(batch) + extraLoss

	grads := [][]float64{
		gw1.RawMatrix().Data,
		gb1.RawVector().Data,
		gw2.RawMatrix().Data,
		gb2.RawVector().Data,
	}
	clipGlobalNorm(grads, n.clipNorm)
	n.opt.update(n.paramData(), grads)
	return loss
}

func clipGlobalNorm(grads [][]float64, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sq float64
	for _, g := range grads {
		for _, v := range g {
			sq += v * v
		}
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, g := range grads {
		for i := range g {
			g[i] *= scale
		}
	}
}

// CopyInto overwrites dst's weights with n's. Optimizer state is not
// copied; the target network never trains.
func (n *Network) CopyInto(dst *Network) {
	dst.w1.Copy(n.w1)
	dst.b1.CopyVec(n.b1)
	dst.w2.Copy(n.w2)
	dst.b2.CopyVec(n.b2)
}

// SetLearningRate adjusts the optimizer step size in place.
func (n *Network) SetLearningRate(lr float64) { n.opt.lr = lr }

// LearningRate reports the current optimizer step size.
func (n *Network) LearningRate() float64 { return n.opt.lr }

// paramData exposes the raw parameter slices in a fixed order shared with
// the gradient slices and the checkpoint layout.
func (n *Network) paramData() [][]float64 {
	return [][]float64{
		n.w1.RawMatrix().Data,
		n.b1.RawVector().Data,
		n.w2.RawMatrix().Data,
		n.b2.RawVector().Data,
	}
}

// netWeights is the serializable parameter snapshot.
type netWeights struct {
	InDim  int
	HidDim int
	OutDim int
	W1     []float64
	B1     []float64
	W2     []float64
	B2     []float64
}

func (n *Network) snapshot() netWeights {
	cp := func(src []float64) []float64 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}
	return netWeights{
		InDim:  n.inDim,
		HidDim: n.hidDim,
		OutDim: n.outDim,
		W1:     cp(n.w1.RawMatrix().Data),
		B1:     cp(n.b1.RawVector().Data),
		W2:     cp(n.w2.RawMatrix().Data),
		B2:     cp(n.b2.RawVector().Data),
	}
}

func (n *Network) restore(w netWeights) bool {
	if w.InDim != n.inDim || w.HidDim != n.hidDim || w.OutDim != n.outDim {
		return false
	}
	copy(n.w1.RawMatrix().Data, w.W1)
	copy(n.b1.RawVector().Data, w.B1)
	copy(n.w2.RawMatrix().Data, w.W2)
	copy(n.b2.RawVector().Data, w.B2)
	return true
}

// adam is a standard Adam optimizer over flat parameter slices.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int
	m     [][]float64
	v     [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	o := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	o.m = make([][]float64, len(params))
	o.v = make([][]float64, len(params))
	for i, p := range params {
		o.m[i] = make([]float64, len(p))
		o.v[i] = make([]float64, len(p))
	}
	return o
}

func (o *adam) update(params, grads [][]float64) {
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))
	for i, p := range params {
		g := grads[i]
		m, v := o.m[i], o.v[i]
		for j := range p {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g[j]
			v[j] = o.beta2*v[j] + (1-o.beta2)*g[j]*g[j]
			mh := m[j] / bc1
			vh := v[j] / bc2
			p[j] -= o.lr * mh / (math.Sqrt(vh) + o.eps)
		}
	}
}
