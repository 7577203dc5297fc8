package core

// Successor is a reachable node and the cost of getting there.
type Successor struct {
	Node Node
	Cost float64
}

// Environment exposes successor states and a heuristic. It holds no search logic.
type Environment interface {
	// Neighbors returns the moves available from n at time t, including waiting.
	Neighbors(n Node, t int) []Successor
	// Heuristic estimates the remaining cost from n to goal.
	Heuristic(n, goal Node, t int) float64
}

// moves lists the four unit steps followed by waiting in place.
var moves = [...]Node{{1, 0}, {0, 1}, {-1, 0}, {0, -1}, {0, 0}}

// Grid is a static 4-connected grid with unit step costs.
type Grid struct {
	Width, Height int
	blocked       map[Node]bool
}

// NewGrid creates an obstacle-free grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:   width,
		Height:  height,
		blocked: make(map[Node]bool),
	}
}

// NewGridFromRows builds a grid from rows of text where '#' marks an obstacle.
// Row index is X, column index is Y.
func NewGridFromRows(rows []string) *Grid {
	width := len(rows)
	height := 0
	for _, r := range rows {
		if len(r) > height {
			height = len(r)
		}
	}
	g := NewGrid(width, height)
	for x, r := range rows {
		for y := 0; y < height; y++ {
			if y >= len(r) || r[y] == '#' {
				g.Block(Node{x, y})
			}
		}
	}
	return g
}

// Block marks a cell as a static obstacle.
func (g *Grid) Block(n Node) {
	g.blocked[n] = true
}

// InBounds reports whether n lies on the grid.
func (g *Grid) InBounds(n Node) bool {
	return n.X >= 0 && n.Y >= 0 && n.X < g.Width && n.Y < g.Height
}

// Free reports whether n is on the grid and not an obstacle.
func (g *Grid) Free(n Node) bool {
	return g.InBounds(n) && !g.blocked[n]
}

// Neighbors returns the valid moves from n. The grid is static so t is ignored.
func (g *Grid) Neighbors(n Node, t int) []Successor {
	out := make([]Successor, 0, len(moves))
	for _, m := range moves {
		next := Node{n.X + m.X, n.Y + m.Y}
		if !g.Free(next) {
			continue
		}
		out = append(out, Successor{Node: next, Cost: 1})
	}
	return out
}

// Heuristic returns the Manhattan distance, admissible and consistent here.
func (g *Grid) Heuristic(n, goal Node, t int) float64 {
	return float64(Manhattan(n, goal))
}

// Nearest returns the closest free cell to n (by BFS over free cells) that
// does not satisfy taken. The second result is false if none exists.
func (g *Grid) Nearest(n Node, taken func(Node) bool) (Node, bool) {
	if !g.Free(n) {
		return Node{}, false
	}
	seen := map[Node]bool{n: true}
	queue := []Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !taken(cur) {
			return cur, true
		}
		for _, m := range moves[:4] {
			next := Node{cur.X + m.X, cur.Y + m.Y}
			if seen[next] || !g.Free(next) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return Node{}, false
}
