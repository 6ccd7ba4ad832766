package agent

import "math/rand/v2"

// Transition is one replay entry. State slices are owned by the buffer once
// stored; callers must not mutate them afterwards.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// ReplayBuffer is a bounded FIFO of transitions backed by a ring. When full,
// pushing evicts the oldest entry. Not safe for concurrent use; the agent is
// only ever driven from the single training goroutine.
type ReplayBuffer struct {
	items []Transition
	start int
	n     int
}

// NewReplayBuffer returns a buffer holding at most capacity transitions.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{items: make([]Transition, capacity)}
}

// Len reports the number of stored transitions.
func (b *ReplayBuffer) Len() int { return b.n }

// Cap reports the buffer capacity.
func (b *ReplayBuffer) Cap() int { return len(b.items) }

// Push appends a transition, evicting the oldest when full.
func (b *ReplayBuffer) Push(t Transition) {
	if b.n < len(b.items) {
		b.items[(b.start+b.n)%len(b.items)] = t
		b.n++
		return
	}
	b.items[b.start] = t
	b.start = (b.start + 1) % len(b.items)
}

// At returns the transition at position i, oldest first.
func (b *ReplayBuffer) At(i int) Transition {
	return b.items[(b.start+i)%len(b.items)]
}

// AdjustReward adds delta to the stored reward at position i (oldest first).
func (b *ReplayBuffer) AdjustReward(i int, delta float64) {
	b.items[(b.start+i)%len(b.items)].Reward += delta
}

// SampleBiased draws a batch with loss-biased sampling: the most recent
// fifth of the buffer is scanned for negative-reward transitions, and when
// any exist up to half the batch is drawn from them, the remainder uniformly
// from the whole buffer. With no recent negatives the whole batch is
// uniform. The caller must ensure Len() >= batchSize.
func (b *ReplayBuffer) SampleBiased(rng *rand.Rand, batchSize int) []Transition {
	recent := b.n / 5
	if recent < 1 {
		recent = 1
	}
	var negatives []int
	for i := b.n - recent; i < b.n; i++ {
		if b.At(i).Reward < 0 {
			negatives = append(negatives, i)
		}
	}

	out := make([]Transition, 0, batchSize)
	if len(negatives) > 0 {
		take := batchSize / 2
		if take > len(negatives) {
			take = len(negatives)
		}
		for _, i := range sampleIndices(rng, len(negatives), take) {
			out = append(out, b.At(negatives[i]))
		}
	}
	for _, i := range sampleIndices(rng, b.n, batchSize-len(out)) {
		out = append(out, b.At(i))
	}
	return out
}

// sampleIndices draws k distinct indices from [0, n) by partial
// Fisher-Yates.
func sampleIndices(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
