package l5tracks

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// bruteMin returns the lowest total over every injective mapping that
// matches min(rows, cols) rows.
func bruteMin(cost [][]float64) float64 {
	n := len(cost)
	m := len(cost[0])
	want := min(n, m)
	used := make([]bool, m)
	best := math.Inf(1)
	var walk func(i, matched int, total float64)
	walk = func(i, matched int, total float64) {
		if matched+(n-i) < want {
			return
		}
		if i == n {
			if matched == want && total < best {
				best = total
			}
			return
		}
		walk(i+1, matched, total)
		for j := 0; j < m; j++ {
			if used[j] {
				continue
			}
			used[j] = true
			walk(i+1, matched+1, total+cost[i][j])
			used[j] = false
		}
	}
	walk(0, 0, 0)
	return best
}

func randomCost(rng *rand.Rand, n, m int) [][]float64 {
	c := make([][]float64, n)
	for i := range c {
		c[i] = make([]float64, m)
		for j := range c[i] {
			c[i][j] = math.Round(rng.Float64()*1000) / 10
		}
	}
	return c
}

func checkInjective(t *testing.T, a Assignment, cols int) {
	t.Helper()
	seen := map[int]bool{}
	for i, j := range a.Rows {
		if j == NoMatch {
			continue
		}
		require.True(t, j >= 0 && j < cols, "row %d mapped to %d", i, j)
		require.False(t, seen[j], "column %d used twice", j)
		seen[j] = true
	}
}

func TestAssignMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shapes := [][2]int{{3, 3}, {3, 4}, {4, 2}, {1, 5}, {5, 1}, {4, 4}}
	for _, sh := range shapes {
		for trial := 0; trial < 20; trial++ {
			cost := randomCost(rng, sh[0], sh[1])
			a, err := Assign(cost)
			require.NoError(t, err)
			require.Len(t, a.Rows, sh[0])
			checkInjective(t, a, sh[1])
			assert.Equal(t, min(sh[0], sh[1]), a.Matched())

			sum := 0.0
			for i, j := range a.Rows {
				if j != NoMatch {
					sum += cost[i][j]
				}
			}
			assert.InDelta(t, sum, a.Cost, 1e-9)
			assert.InDelta(t, bruteMin(cost), a.Cost, 1e-9, "shape %v trial %d", sh, trial)
		}
	}
}

func TestAssignClassic(t *testing.T) {
	cost := [][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	a, err := Assign(cost)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, a.Rows)
	assert.Equal(t, 10.0, a.Cost)
}

func TestAssignForbidden(t *testing.T) {
	tests := []struct {
		name string
		cost [][]float64
		rows []int
		want float64
	}{
		{"row with no reachable column", [][]float64{{1, 2}, {Forbidden, Forbidden}}, []int{0, NoMatch}, 1},
		{"infinite cells", [][]float64{{math.Inf(1), 3}, {2, math.Inf(1)}}, []int{1, 0}, 5},
		{"cardinality beats a cheap single match", [][]float64{{1, 2}, {3, Forbidden}}, []int{1, 0}, 5},
		{"all forbidden", [][]float64{{Forbidden}, {2 * Forbidden}}, []int{NoMatch, NoMatch}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Assign(tt.cost)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, a.Rows)
			assert.Equal(t, tt.want, a.Cost)
		})
	}
}

func TestAssignZeroDimension(t *testing.T) {
	a, err := Assign(nil)
	require.NoError(t, err)
	assert.NotNil(t, a.Rows)
	assert.Empty(t, a.Rows)
	assert.Zero(t, a.Cost)

	a, err = Assign([][]float64{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, []int{NoMatch, NoMatch}, a.Rows)
	assert.Zero(t, a.Cost)
}

func TestAssignInvalid(t *testing.T) {
	for name, cost := range map[string][][]float64{
		"ragged":   {{1, 2}, {3}},
		"nan":      {{1, math.NaN()}},
		"negative": {{1, -2}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Assign(cost)
			assert.ErrorIs(t, err, ErrInvalidCost)
		})
	}
}

func TestAssignDeterministic(t *testing.T) {
	cost := [][]float64{
		{1, 1, 1},
		{1, 1, 1},
		{1, 1, 1},
	}
	first, err := Assign(cost)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Assign(cost)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssignDense(t *testing.T) {
	a, err := AssignDense(mat.NewDense(2, 2, []float64{4, 1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, a.Rows)
	assert.Equal(t, 3.0, a.Cost)
}
