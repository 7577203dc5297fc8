package alloc

import (
	"golang.org/x/exp/constraints"
)

// Number is any cost type the assignment solver accepts.
type Number interface {
	constraints.Signed | constraints.Float
}

// Hungarian solves the square assignment problem with the potentials method
// in O(n^3). It returns, for each row, the column assigned to it.
func Hungarian[T Number](cost [][]T) ([]int, error) {
	n := len(cost)
	if n == 0 {
		return nil, ErrEmptyMatrix
	}
	for _, row := range cost {
		if len(row) != n {
			return nil, ErrNotSquare
		}
	}

	// 1-based potentials; column 0 is the virtual start of each augmenting path.
	u := make([]T, n+1)
	v := make([]T, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]T, n+1)
		hasMin := make([]bool, n+1)
		used := make([]bool, n+1)

		for {
			used[j0] = true
			i0 := p[j0]
			var delta T
			hasDelta := false
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if !hasMin[j] || cur < minv[j] {
					minv[j] = cur
					hasMin[j] = true
					way[j] = j0
				}
				if !hasDelta || minv[j] < delta {
					delta = minv[j]
					hasDelta = true
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
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
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assign := make([]int, n)
	for j := 1; j <= n; j++ {
		assign[p[j]-1] = j - 1
	}
	return assign, nil
}

// AssignmentCost sums the cost of an assignment returned by Hungarian.
func AssignmentCost[T Number](cost [][]T, assign []int) T {
	var total T
	for i, j := range assign {
		total += cost[i][j]
	}
	return total
}
