package woz

// Visible filters a module list for drawing. The store does not
// re-validate remote geometry, so a received state may carry
// overlapping footprints; walking the list in array order and skipping
// anything that collides with an already-accepted module guarantees no
// cell is ever drawn twice. First module wins.
func Visible(modules []Module) []Module {
	out := make([]Module, 0, len(modules))
	for i := range modules {
		m := &modules[i]
		if overlapsAny(out, m.X, m.Y, m.W, m.H, "") {
			continue
		}
		out = append(out, *m)
	}
	return out
}
