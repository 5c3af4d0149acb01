package woz

// Placement engine. Every geometry-changing operation goes through
// here and preserves the three invariants: no overlapping footprints,
// every footprint inside the surface, unique ids. Rejections are
// silent no-ops returning false; callers revert whatever speculative
// UI value triggered the request.

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}

func overlapsAny(modules []Module, x, y, w, h int, excludeID string) bool {
	for i := range modules {
		m := &modules[i]
		if excludeID != "" && m.ID == excludeID {
			continue
		}
		if m.Overlaps(x, y, w, h) {
			return true
		}
	}
	return false
}

// CanPlace reports whether a w×h rectangle can sit at x,y: inside the
// surface and clear of every module except excludeID. The exclusion
// lets a module test a move or resize against all the others.
func (g *Grid) CanPlace(x, y, w, h int, excludeID string) bool {
	if w < 1 || h < 1 || x < 0 || y < 0 {
		return false
	}
	if x+w > g.state.Surface.Cols || y+h > g.state.Surface.Rows {
		return false
	}
	return !overlapsAny(g.state.Modules, x, y, w, h, excludeID)
}

// Add places a new module at its stated geometry. A blank id gets a
// generated one, a zero footprint is lifted to 1×1, faders and arrows
// get their orientation field aligned with the long axis. Returns
// false on a duplicate id or an occupied slot.
func (g *Grid) Add(m Module) bool {
	if m.ID == "" {
		m.ID = NewID()
	} else if g.Find(m.ID) != nil {
		return false
	}
	if m.W < 1 {
		m.W = 1
	}
	if m.H < 1 {
		m.H = 1
	}
	if orientable(m.Type) {
		m.W, m.H = coupleFootprint(m.W, m.H, m.Orientation)
		m.Orientation = orientationFor(m.Type, m.W, m.H, m.Orientation)
	}
	if !g.CanPlace(m.X, m.Y, m.W, m.H, m.ID) {
		return false
	}
	g.state.Modules = append(g.state.Modules, m)
	return true
}

// Remove deletes the module outright. Order of the remaining modules
// is preserved, it matters for render precedence.
func (g *Grid) Remove(id string) bool {
	for i := range g.state.Modules {
		if g.state.Modules[i].ID == id {
			g.state.Modules = append(g.state.Modules[:i], g.state.Modules[i+1:]...)
			return true
		}
	}
	return false
}

// Move clamps the candidate origin into bounds first, then validates.
// On rejection the module is left untouched.
func (g *Grid) Move(id string, x, y int) bool {
	m := g.Find(id)
	if m == nil {
		return false
	}
	x = clamp(x, 0, g.state.Surface.Cols-m.W)
	y = clamp(y, 0, g.state.Surface.Rows-m.H)
	if !g.CanPlace(x, y, m.W, m.H, id) {
		return false
	}
	m.X, m.Y = x, y
	return true
}

// Resize clamps the request against the space remaining from the
// module's origin, applies the fader/arrow axis coupling, then
// validates. The dimension the caller changed wins the long axis;
// when both change, the larger one does; a square tie keeps the
// stored orientation, horizontal by default.
func (g *Grid) Resize(id string, w, h int) bool {
	m := g.Find(id)
	if m == nil {
		return false
	}
	w = clamp(w, 1, g.state.Surface.Cols-m.X)
	h = clamp(h, 1, g.state.Surface.Rows-m.Y)
	if orientable(m.Type) {
		w, h = coupleResize(m, w, h)
	}
	if !g.CanPlace(m.X, m.Y, w, h, id) {
		return false
	}
	m.W, m.H = w, h
	if orientable(m.Type) {
		m.Orientation = orientationFor(m.Type, w, h, m.Orientation)
	}
	return true
}

// SetValue stores a pointer-driven value change, clamped to [0,1].
// Locked modules ignore pointer interaction, so they refuse it.
func (g *Grid) SetValue(id string, v float64) bool {
	m := g.Find(id)
	if m == nil || m.Locked {
		return false
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.Value = v
	return true
}

func (g *Grid) ToggleLock(id string) bool {
	m := g.Find(id)
	if m == nil {
		return false
	}
	m.Locked = !m.Locked
	return true
}

// coupleResize locks a fader or arrow to a single row or column,
// deciding the long axis from which dimension the caller changed.
func coupleResize(m *Module, w, h int) (int, int) {
	hChanged := h != m.H
	wChanged := w != m.W
	switch {
	case hChanged && !wChanged:
		return 1, h
	case wChanged && !hChanged:
		return w, 1
	case w > h:
		return w, 1
	case h > w:
		return 1, h
	default:
		return coupleFootprint(w, h, m.Orientation)
	}
}

// coupleFootprint collapses a w×h request onto one axis using the
// stored orientation for the tie, horizontal when nothing is stored.
func coupleFootprint(w, h int, orientation string) (int, int) {
	switch {
	case w > h:
		return w, 1
	case h > w:
		return 1, h
	case orientation == Vertical || orientation == DirUp || orientation == DirDown:
		return 1, h
	default:
		return w, 1
	}
}

// orientationFor aligns the orientation field with the long axis. An
// existing value on the same axis survives, so a left arrow stretched
// wider stays a left arrow.
func orientationFor(k Kind, w, h int, prev string) string {
	horizontal := w > h
	vertical := h > w
	if !horizontal && !vertical {
		// square footprint, the stored orientation wins
		switch prev {
		case "":
			horizontal = true
		case Vertical, DirUp, DirDown:
			vertical = true
		default:
			horizontal = true
		}
	}
	if k == KindArrow {
		if horizontal {
			if prev == DirLeft || prev == DirRight {
				return prev
			}
			return DirRight
		}
		if prev == DirUp || prev == DirDown {
			return prev
		}
		return DirUp
	}
	if horizontal {
		return Horizontal
	}
	return Vertical
}

// Reflow applies new surface dimensions and re-places every module in
// original order. Origins are pulled back inside the new cell bounds;
// a module whose footprint then sticks out is dropped without resizing
// it behind the operator's back, and a module colliding with an
// earlier-accepted one retries at 1×1 before being dropped
// (first-fit-wins, original order breaks ties). Destructive: the
// dropped modules are returned and gone, there is no undo.
func (g *Grid) Reflow(newCols, newRows int) (dropped []Module) {
	if newCols < 1 || newRows < 1 {
		return nil
	}
	g.state.Surface.Cols, g.state.Surface.Rows = newCols, newRows

	accepted := make([]Module, 0, len(g.state.Modules))
	for _, m := range g.state.Modules {
		m.X = clamp(m.X, 0, newCols-1)
		m.Y = clamp(m.Y, 0, newRows-1)
		if m.X+m.W > newCols || m.Y+m.H > newRows {
			dropped = append(dropped, m)
			continue
		}
		if overlapsAny(accepted, m.X, m.Y, m.W, m.H, m.ID) {
			if overlapsAny(accepted, m.X, m.Y, 1, 1, m.ID) {
				dropped = append(dropped, m)
				continue
			}
			m.W, m.H = 1, 1
		}
		accepted = append(accepted, m)
	}
	g.state.Modules = accepted
	return dropped
}
