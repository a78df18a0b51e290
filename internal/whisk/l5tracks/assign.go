package l5tracks

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NoMatch marks a row left without a column. It is a legitimate outcome
// when there are more rows than columns or a row's candidates are all
// forbidden.
const NoMatch = -1

// Forbidden is the smallest cost the solver treats as "never match".
// +Inf is forbidden as well.
const Forbidden = 1e18

// ErrInvalidCost is returned for ragged, NaN or negative cost matrices.
var ErrInvalidCost = errors.New("invalid cost matrix")

// Assignment is the result of Assign.
type Assignment struct {
	// Rows[i] is the column matched to row i, or NoMatch.
	Rows []int
	// Cost is the summed cost of the matched cells.
	Cost float64
}

// Matched returns the number of rows with a column.
func (a Assignment) Matched() int {
	n := 0
	for _, j := range a.Rows {
		if j != NoMatch {
			n++
		}
	}
	return n
}

func forbidden(c float64) bool { return c >= Forbidden || math.IsInf(c, 1) }

// Assign solves the rectangular minimum-cost assignment for an n×m cost
// matrix with the Kuhn-Munkres algorithm (Jonker-Volgenant potentials).
//
// Forbidden cells are replaced by a penalty larger than any feasible
// assignment's total, so the solver first maximizes the number of real
// matches and then minimizes their cost. Rows that end up on a forbidden
// or padded cell get NoMatch. Equal inputs always give equal outputs.
func Assign(cost [][]float64) (Assignment, error) {
	n := len(cost)
	if n == 0 {
		return Assignment{Rows: []int{}}, nil
	}
	m := len(cost[0])
	maxFinite := 0.0
	for i, row := range cost {
		if len(row) != m {
			return Assignment{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidCost, i, len(row), m)
		}
		for j, c := range row {
			if math.IsNaN(c) || c < 0 {
				return Assignment{}, fmt.Errorf("%w: cell (%d, %d) = %v", ErrInvalidCost, i, j, c)
			}
			if !forbidden(c) {
				maxFinite = math.Max(maxFinite, c)
			}
		}
	}

	rows := make([]int, n)
	for i := range rows {
		rows[i] = NoMatch
	}
	if m == 0 {
		return Assignment{Rows: rows}, nil
	}

	dim := max(n, m)
	penalty := (maxFinite + 1) * float64(dim+1)

	// Padded cells cost nothing; the padding count is fixed by the shape.
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			if i < n && j < m {
				if forbidden(cost[i][j]) {
					c[i][j] = penalty
				} else {
					c[i][j] = cost[i][j]
				}
			}
		}
	}

	// 1-indexed potentials; column 0 is virtual.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)   // p[j] = row assigned to column j
	way := make([]int, dim+1) // previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	total := 0.0
	for j := 1; j <= dim; j++ {
		i := p[j] - 1
		col := j - 1
		if i < 0 || i >= n || col >= m || forbidden(cost[i][col]) {
			continue
		}
		rows[i] = col
		total += cost[i][col]
	}
	return Assignment{Rows: rows, Cost: total}, nil
}

// AssignDense runs Assign over a gonum matrix.
func AssignDense(cost mat.Matrix) (Assignment, error) {
	r, c := cost.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = cost.At(i, j)
		}
	}
	return Assign(rows)
}
