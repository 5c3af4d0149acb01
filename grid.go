package woz

// Cell addresses one grid square.
type Cell struct {
	X, Y int
}

// Grid is the editor-side model: a surface plus the ordered module
// list. It is plain storage; invariant enforcement lives in the
// placement methods (place.go). Rendering sessions never hold a Grid,
// they read States.
type Grid struct {
	state State
}

func NewGrid(cols, rows int) *Grid {
	if cols < 1 {
		cols = DefaultCols
	}
	if rows < 1 {
		rows = DefaultRows
	}
	return &Grid{state: State{V: 1, Surface: Surface{Cols: cols, Rows: rows}}}
}

// GridOf wraps an existing state, e.g. one received from the wire
// after normalization. The modules are trusted as-is.
func GridOf(s State) *Grid {
	return &Grid{state: s.Clone()}
}

func (g *Grid) Cols() int { return g.state.Surface.Cols }
func (g *Grid) Rows() int { return g.state.Surface.Rows }
func (g *Grid) Len() int  { return len(g.state.Modules) }

// State snapshots the grid for pushing. The copy is deep, later edits
// do not leak into it.
func (g *Grid) State() State {
	return g.state.Clone()
}

// Bump increments the state version and returns the snapshot in one
// step, the usual push sequence.
func (g *Grid) Bump() State {
	g.state.V++
	return g.State()
}

// Find returns the module with the given id, nil when absent. Linear
// scan: surfaces stay in the tens-by-tens range.
func (g *Grid) Find(id string) *Module {
	for i := range g.state.Modules {
		if g.state.Modules[i].ID == id {
			return &g.state.Modules[i]
		}
	}
	return nil
}

// Modules returns a deep copy of the module list in placement order.
func (g *Grid) Modules() []Module {
	out := make([]Module, len(g.state.Modules))
	for i := range g.state.Modules {
		out[i] = g.state.Modules[i].Clone()
	}
	return out
}

// Occupied expands every footprint into individual cells. Recomputed
// per call; at panel scale an incremental index is not worth carrying.
func Occupied(modules []Module) map[Cell]struct{} {
	occ := make(map[Cell]struct{})
	for i := range modules {
		m := &modules[i]
		for y := m.Y; y < m.Y+m.H; y++ {
			for x := m.X; x < m.X+m.W; x++ {
				occ[Cell{x, y}] = struct{}{}
			}
		}
	}
	return occ
}
