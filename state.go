package woz

import "encoding/json"

// Bootstrap surface dimensions, also the fallback for remote states
// that arrive without usable dimensions.
const (
	DefaultCols = 4
	DefaultRows = 6
)

// Surface is the cell grid a panel is laid out on. Theme and Tempo
// belong to the renderer; the engine carries them opaquely and never
// looks inside.
type Surface struct {
	Cols  int             `json:"cols"`
	Rows  int             `json:"rows"`
	Theme json.RawMessage `json:"theme,omitempty"`
	Tempo *float64        `json:"tempo,omitempty"`
}

// State is the unit of synchronization. It is replaced whole on every
// push and never field-patched over the wire.
type State struct {
	V       int      `json:"v"`
	Surface Surface  `json:"surface"`
	Modules []Module `json:"modules"`
}

// Clone deep-copies the state so readers and subscribers cannot alias
// the store's module slice.
func (s State) Clone() State {
	c := s
	if s.Surface.Theme != nil {
		c.Surface.Theme = append(json.RawMessage(nil), s.Surface.Theme...)
	}
	c.Surface.Tempo = cloneFloat(s.Surface.Tempo)
	if s.Modules != nil {
		c.Modules = make([]Module, len(s.Modules))
		for i := range s.Modules {
			c.Modules[i] = s.Modules[i].Clone()
		}
	}
	return c
}
