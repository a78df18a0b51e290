package l5tracks

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSymbolRange is returned for an observation outside [0, symbols).
	ErrSymbolRange = errors.New("observation symbol out of range")
	// ErrDimension is returned when model shapes disagree.
	ErrDimension = errors.New("model dimension mismatch")
)

// HMM is a discrete hidden Markov model in natural-log space.
type HMM struct {
	// Start[i] is log P(state i at t=0).
	Start []float64
	// Transition.At(i, j) is log P(state j at t+1 | state i at t).
	Transition *mat.Dense
	// Emission.At(i, k) is log P(symbol k | state i).
	Emission *mat.Dense
}

// NewHMM copies log-probability tables into an HMM and checks their shapes.
func NewHMM(start []float64, transition, emission [][]float64) (HMM, error) {
	n := len(start)
	if n == 0 {
		return HMM{}, fmt.Errorf("%w: no states", ErrDimension)
	}
	if len(transition) != n {
		return HMM{}, fmt.Errorf("%w: transition has %d rows, want %d", ErrDimension, len(transition), n)
	}
	if len(emission) != n {
		return HMM{}, fmt.Errorf("%w: emission has %d rows, want %d", ErrDimension, len(emission), n)
	}
	k := len(emission[0])
	if k == 0 {
		return HMM{}, fmt.Errorf("%w: no symbols", ErrDimension)
	}
	tr := mat.NewDense(n, n, nil)
	em := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		if len(transition[i]) != n {
			return HMM{}, fmt.Errorf("%w: transition row %d has %d entries, want %d", ErrDimension, i, len(transition[i]), n)
		}
		if len(emission[i]) != k {
			return HMM{}, fmt.Errorf("%w: emission row %d has %d entries, want %d", ErrDimension, i, len(emission[i]), k)
		}
		tr.SetRow(i, transition[i])
		em.SetRow(i, emission[i])
	}
	return HMM{Start: append([]float64(nil), start...), Transition: tr, Emission: em}, nil
}

// States returns the number of hidden states.
func (m HMM) States() int { return len(m.Start) }

// Symbols returns the size of the observation alphabet.
func (m HMM) Symbols() int {
	if m.Emission == nil {
		return 0
	}
	_, k := m.Emission.Dims()
	return k
}

func (m HMM) check(obs []int) error {
	n := len(m.Start)
	if n == 0 || m.Transition == nil || m.Emission == nil {
		return fmt.Errorf("%w: incomplete model", ErrDimension)
	}
	if r, c := m.Transition.Dims(); r != n || c != n {
		return fmt.Errorf("%w: transition is %dx%d, want %dx%d", ErrDimension, r, c, n, n)
	}
	r, k := m.Emission.Dims()
	if r != n {
		return fmt.Errorf("%w: emission has %d rows, want %d", ErrDimension, r, n)
	}
	for t, o := range obs {
		if o < 0 || o >= k {
			return fmt.Errorf("%w: obs[%d] = %d not in [0, %d)", ErrSymbolRange, t, o, k)
		}
	}
	return nil
}

// LogProbs returns the natural log of each probability. Zero maps to -Inf.
func LogProbs(p []float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = math.Log(v)
	}
	return out
}

// ViterbiResult holds the forward total, the best path and its score,
// all in natural-log space.
type ViterbiResult struct {
	Total float64
	Best  float64
	Path  []int
}

// Decode runs the forward and Viterbi recursions over obs. Empty input
// gives a zero result with an empty path.
func Decode(obs []int, m HMM) (ViterbiResult, error) {
	if err := m.check(obs); err != nil {
		return ViterbiResult{}, err
	}
	T := len(obs)
	if T == 0 {
		return ViterbiResult{Path: []int{}}, nil
	}
	n := m.States()

	alpha := make([]float64, n) // forward log totals
	delta := make([]float64, n) // best-path log scores
	nextAlpha := make([]float64, n)
	nextDelta := make([]float64, n)
	terms := make([]float64, n)
	back := make([][]int, T)

	for i := 0; i < n; i++ {
		e := m.Start[i] + m.Emission.At(i, obs[0])
		alpha[i], delta[i] = e, e
	}
	for t := 1; t < T; t++ {
		back[t] = make([]int, n)
		for j := 0; j < n; j++ {
			best, arg := math.Inf(-1), 0
			for i := 0; i < n; i++ {
				a := m.Transition.At(i, j)
				terms[i] = alpha[i] + a
				if s := delta[i] + a; s > best {
					best, arg = s, i
				}
			}
			e := m.Emission.At(j, obs[t])
			nextAlpha[j] = floats.LogSumExp(terms) + e
			nextDelta[j] = best + e
			back[t][j] = arg
		}
		alpha, nextAlpha = nextAlpha, alpha
		delta, nextDelta = nextDelta, delta
	}

	res := ViterbiResult{
		Total: floats.LogSumExp(alpha),
		Best:  math.Inf(-1),
		Path:  make([]int, T),
	}
	last := 0
	for i, d := range delta {
		if d > res.Best {
			res.Best, last = d, i
		}
	}
	res.Path[T-1] = last
	for t := T - 1; t > 0; t-- {
		last = back[t][last]
		res.Path[t-1] = last
	}
	return res, nil
}

// ForwardLogProb returns log P(obs | m) without tracking the best path.
func ForwardLogProb(obs []int, m HMM) (float64, error) {
	if err := m.check(obs); err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		return 0, nil
	}
	n := m.States()
	alpha := make([]float64, n)
	next := make([]float64, n)
	terms := make([]float64, n)
	for i := range alpha {
		alpha[i] = m.Start[i] + m.Emission.At(i, obs[0])
	}
	for _, o := range obs[1:] {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				terms[i] = alpha[i] + m.Transition.At(i, j)
			}
			next[j] = floats.LogSumExp(terms) + m.Emission.At(j, o)
		}
		alpha, next = next, alpha
	}
	return floats.LogSumExp(alpha), nil
}
