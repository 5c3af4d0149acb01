package woz

import (
	"fmt"
	"math"
	"math/rand"
)

// Procedural layout generation. The algorithm is two-phase bin packing
// with fallback shrink: a weighted bag of widget kinds is placed at
// random origins, then leftover holes are filled with single-cell
// modules. The caller owns the random source; feeding the same seed
// yields the same layout, which is what the tests rely on.

const placementAttempts = 100

var (
	smallKinds  = []Kind{KindButton, KindToggle, KindLabel, KindArrow}
	mediumKinds = []Kind{KindFader, KindDial, KindMeter, KindCanvas}

	labelGlyphs = []string{"∎", "—", "I", "II", "↺", "⅓", "⋯", "⌁"}
	screenModes = []string{"scroll", "wrap", "hold"}
	screenLines = []string{
		"SIG LOCK 0.84",
		"DRIFT +0.03",
		"RELAY OK",
		"CH 4 ARMED",
		"BUS A 48%",
		"TEMP 41C",
		"LINK -3dB",
		"SYNC HOLD",
	}
)

// Generate produces a dense, collision-free module set for a
// cols×rows surface. Coverage lands between 60% and near-full
// depending on the draw; every emitted module satisfies the placement
// invariants by construction.
func Generate(cols, rows int, rng *rand.Rand) []Module {
	if cols < 1 || rows < 1 || rng == nil {
		return nil
	}
	total := cols * rows
	coverage := 0.70 + rng.Float64()*0.20
	count := int(float64(total)*coverage/1.5) + rng.Intn(3) - 1
	if count < 1 {
		count = 1
	}

	occ := make(map[Cell]struct{}, total)
	out := make([]Module, 0, count)

	for _, k := range buildBag(count, rng) {
		w, h := drawSize(k, cols, rows, rng)
		m, ok := tryPlace(k, w, h, cols, rows, occ, rng)
		if !ok && (w > 1 || h > 1) {
			m, ok = tryPlace(k, max(1, w/2), max(1, h/2), cols, rows, occ, rng)
		}
		if !ok && isSmall(k) {
			m, ok = tryPlace(k, 1, 1, cols, rows, occ, rng)
		}
		if !ok {
			continue
		}
		decorate(&m, rng)
		claim(occ, &m)
		out = append(out, m)
	}

	// fill phase: plug up to 90% of the leftover holes so sparse
	// corners do not read as broken panels
	free := freeCells(cols, rows, occ)
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	for _, c := range free[:len(free)*9/10] {
		k := smallKinds[rng.Intn(len(smallKinds))]
		m := Module{ID: cellID(c.X, c.Y), Type: k, X: c.X, Y: c.Y, W: 1, H: 1}
		decorate(&m, rng)
		claim(occ, &m)
		out = append(out, m)
	}
	return out
}

// buildBag deals widget kinds 40% small, 30% medium, 20% screen; the
// rounding remainder goes to the small pile. Shuffled so placement
// order does not favor one class.
func buildBag(count int, rng *rand.Rand) []Kind {
	nScreen := count * 20 / 100
	nMedium := count * 30 / 100
	nSmall := count - nScreen - nMedium

	bag := make([]Kind, 0, count)
	for i := 0; i < nSmall; i++ {
		bag = append(bag, smallKinds[rng.Intn(len(smallKinds))])
	}
	for i := 0; i < nMedium; i++ {
		bag = append(bag, mediumKinds[rng.Intn(len(mediumKinds))])
	}
	for i := 0; i < nScreen; i++ {
		bag = append(bag, KindScreen)
	}
	rng.Shuffle(len(bag), func(i, j int) { bag[i], bag[j] = bag[j], bag[i] })
	return bag
}

func isSmall(k Kind) bool {
	for _, s := range smallKinds {
		if k == s {
			return true
		}
	}
	return false
}

// drawSize picks a footprint inside the kind's size range, capped by
// the surface.
func drawSize(k Kind, cols, rows int, rng *rand.Rand) (int, int) {
	switch k {
	case KindScreen:
		return clamp(3+rng.Intn(6), 1, cols), clamp(2+rng.Intn(5), 1, rows)
	case KindFader:
		l := 2 + rng.Intn(5)
		if rng.Intn(2) == 0 {
			return clamp(l, 1, cols), 1
		}
		return 1, clamp(l, 1, rows)
	case KindMeter:
		return clamp(2+rng.Intn(3), 1, cols), 1
	case KindCanvas:
		return clamp(2+rng.Intn(2), 1, cols), clamp(2+rng.Intn(2), 1, rows)
	case KindDial:
		s := 1 + rng.Intn(2)
		return clamp(s, 1, cols), clamp(s, 1, rows)
	default:
		return 1, 1
	}
}

// tryPlace draws up to placementAttempts random origins and takes the
// first collision-free one.
func tryPlace(k Kind, w, h, cols, rows int, occ map[Cell]struct{}, rng *rand.Rand) (Module, bool) {
	if w > cols || h > rows {
		return Module{}, false
	}
	for i := 0; i < placementAttempts; i++ {
		x := rng.Intn(cols - w + 1)
		y := rng.Intn(rows - h + 1)
		if occupied(occ, x, y, w, h) {
			continue
		}
		return Module{ID: cellID(x, y), Type: k, X: x, Y: y, W: w, H: h}, true
	}
	return Module{}, false
}

func occupied(occ map[Cell]struct{}, x, y, w, h int) bool {
	for cy := y; cy < y+h; cy++ {
		for cx := x; cx < x+w; cx++ {
			if _, ok := occ[Cell{cx, cy}]; ok {
				return true
			}
		}
	}
	return false
}

func claim(occ map[Cell]struct{}, m *Module) {
	for y := m.Y; y < m.Y+m.H; y++ {
		for x := m.X; x < m.X+m.W; x++ {
			occ[Cell{x, y}] = struct{}{}
		}
	}
}

// freeCells walks the surface row by row so the result is stable for a
// given occupancy; the shuffle that follows is the only random part.
func freeCells(cols, rows int, occ map[Cell]struct{}) []Cell {
	var free []Cell
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if _, ok := occ[Cell{x, y}]; !ok {
				free = append(free, Cell{x, y})
			}
		}
	}
	return free
}

// cellID names a module after its origin the way the stock panels do:
// row letter plus 1-based column.
func cellID(x, y int) string {
	if y < 26 {
		return fmt.Sprintf("%c%d", 'A'+y, x+1)
	}
	return fmt.Sprintf("R%d-%d", y, x+1)
}

// decorate fills the kind-specific payload from the fixed vocabulary:
// glyph labels, display modes, sample readout lines, meter steps,
// fader/dial ranges.
func decorate(m *Module, rng *rand.Rand) {
	switch m.Type {
	case KindButton:
		m.Label = glyph(rng)
	case KindToggle:
		m.Label = glyph(rng)
		m.Value = float64(rng.Intn(2))
	case KindLabel:
		m.Label = glyph(rng)
	case KindArrow:
		switch {
		case m.W > m.H:
			m.Orientation = DirRight
		case m.H > m.W:
			m.Orientation = DirUp
		default:
			dirs := []string{DirUp, DirDown, DirLeft, DirRight}
			m.Orientation = dirs[rng.Intn(len(dirs))]
		}
	case KindFader:
		if m.W >= m.H {
			m.Orientation = Horizontal
		} else {
			m.Orientation = Vertical
		}
		m.Min, m.Max, m.Step = fptr(0), fptr(1), fptr(0.01)
		m.Value = round2(rng.Float64())
	case KindDial:
		m.Min, m.Max, m.Step = fptr(0), fptr(1), fptr(0.02)
		m.Value = round2(rng.Float64())
	case KindScreen:
		m.Mode = screenModes[rng.Intn(len(screenModes))]
		n := 2 + rng.Intn(3)
		for i := 0; i < n; i++ {
			m.Lines = append(m.Lines, screenLines[rng.Intn(len(screenLines))])
		}
	case KindMeter:
		n := 3 + rng.Intn(3)
		for i := 0; i < n; i++ {
			m.Values = append(m.Values, round2(rng.Float64()))
		}
		m.Value = round2(rng.Float64())
	}
}

func glyph(rng *rand.Rand) string {
	return labelGlyphs[rng.Intn(len(labelGlyphs))]
}

func fptr(v float64) *float64 {
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
