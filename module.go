package woz

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Kind names a widget type. The enumeration below is what the engine
// and the generator know how to lay out; the wire accepts any string
// and carries unknown kinds verbatim, renderers skip what they cannot
// mount.
type Kind string

const (
	KindButton Kind = "button" // momentary trigger
	KindToggle Kind = "toggle" // latching trigger
	KindFader  Kind = "fader"  // linear slider, single row or column
	KindDial   Kind = "dial"   // rotary control
	KindScreen Kind = "screen" // multi-line readout
	KindLabel  Kind = "label"  // static text cell
	KindArrow  Kind = "arrow"  // directional arrow
	KindCanvas Kind = "canvas" // pixel canvas
	KindMeter  Kind = "meter"  // indicator strip
)

// Orientation values for faders and direction values for arrows. Both
// kinds keep the field coupled to their long axis, see Grid.Resize.
const (
	Horizontal = "horizontal"
	Vertical   = "vertical"

	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
)

// Module is one placed widget. The base fields up to Locked are common
// to every kind; the tail is kind-specific, present only when it means
// something and never stripped by normalization. Payload is the single
// free-form slot for programmable modules.
type Module struct {
	ID     string  `json:"id"`
	Type   Kind    `json:"type"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	W      int     `json:"w"`
	H      int     `json:"h"`
	Value  float64 `json:"value"`
	Locked bool    `json:"locked"`

	Label       string          `json:"label,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	Orientation string          `json:"orientation,omitempty"`
	Lines       []string        `json:"lines,omitempty"`
	Values      []float64       `json:"values,omitempty"`
	Min         *float64        `json:"min,omitempty"`
	Max         *float64        `json:"max,omitempty"`
	Step        *float64        `json:"step,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Overlaps reports whether the module's footprint intersects the w×h
// rectangle at x,y.
func (m *Module) Overlaps(x, y, w, h int) bool {
	return x < m.X+m.W && x+w > m.X && y < m.Y+m.H && y+h > m.Y
}

// Clone copies the module including its slice-backed fields, so the
// copy can outlive mutations of the original.
func (m Module) Clone() Module {
	c := m
	if m.Lines != nil {
		c.Lines = append([]string(nil), m.Lines...)
	}
	if m.Values != nil {
		c.Values = append([]float64(nil), m.Values...)
	}
	if m.Payload != nil {
		c.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	c.Min = cloneFloat(m.Min)
	c.Max = cloneFloat(m.Max)
	c.Step = cloneFloat(m.Step)
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// NewID mints a module id. V7 keeps ids roughly creation-ordered,
// which makes logs easier to follow.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func orientable(k Kind) bool {
	return k == KindFader || k == KindArrow
}
