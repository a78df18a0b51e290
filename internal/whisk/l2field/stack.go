package l2field

// Stack is a response volume laid out as [offset][angle][radius].
// It is scratch space owned by one worker.
type Stack struct {
	NOffsets, NAngles, NRadii int
	Data                      []float32
}

// NewStack allocates a stack sized for the sampler's extents.
func (s *Sampler) NewStack() *Stack {
	no, na, nr := s.Extents()
	return &Stack{NOffsets: no, NAngles: na, NRadii: nr, Data: make([]float32, no*na*nr)}
}

// Index returns the flat offset of (o, a, r).
func (st *Stack) Index(o, a, r int) int {
	return (o*st.NAngles+a)*st.NRadii + r
}

// At returns the response at (o, a, r).
func (st *Stack) At(o, a, r int) float32 {
	return st.Data[st.Index(o, a, r)]
}

// Argmax returns the indices and value of the strongest response. Ties go
// to the lowest flat index.
func (st *Stack) Argmax() (o, a, r int, v float32) {
	best := 0
	for i, x := range st.Data {
		if x > st.Data[best] {
			best = i
		}
	}
	r = best % st.NRadii
	a = (best / st.NRadii) % st.NAngles
	o = best / (st.NRadii * st.NAngles)
	return o, a, r, st.Data[best]
}
