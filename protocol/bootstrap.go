package protocol

import (
	"encoding/json"

	"github.com/thomknoe/woz"
)

var defaultTheme = json.RawMessage(
	`{"bg":"#0a0a0d","fg":"#e8e8ee","muted":"#8d8d98","accent":"#b7c7ff","glow":0.9,"grain":0.12}`)

// DefaultState is the layout every freshly attached panel is handed
// before any operator pushes one: a 4×6 surface with the top two rows
// populated. Returned by value so callers can mutate their copy.
func DefaultState() woz.State {
	tempo := 0.35
	return woz.State{
		V: 1,
		Surface: woz.Surface{
			Cols:  woz.DefaultCols,
			Rows:  woz.DefaultRows,
			Theme: append(json.RawMessage(nil), defaultTheme...),
			Tempo: &tempo,
		},
		Modules: []woz.Module{
			{ID: "A1", Type: woz.KindButton, X: 0, Y: 0, W: 1, H: 1, Label: "∎"},
			{ID: "A2", Type: woz.KindFader, X: 1, Y: 0, W: 1, H: 1, Label: "I",
				Orientation: woz.Horizontal, Value: 0.62,
				Min: fptr(0), Max: fptr(1), Step: fptr(0.01)},
			{ID: "A3", Type: woz.KindDial, X: 2, Y: 0, W: 1, H: 1, Label: "↺",
				Value: 0.18, Min: fptr(0), Max: fptr(1), Step: fptr(0.02)},
			{ID: "A4", Type: woz.KindMeter, X: 3, Y: 0, W: 1, H: 1, Label: "⋯", Value: 0.4},
			{ID: "B1", Type: woz.KindToggle, X: 0, Y: 1, W: 1, H: 1, Label: "—", Value: 1},
			{ID: "B2", Type: woz.KindMeter, X: 1, Y: 1, W: 1, H: 1, Label: "⌁", Value: 0.2},
			{ID: "B3", Type: woz.KindFader, X: 2, Y: 1, W: 1, H: 1, Label: "II",
				Orientation: woz.Horizontal, Value: 0.28,
				Min: fptr(0), Max: fptr(1), Step: fptr(0.01)},
			{ID: "B4", Type: woz.KindDial, X: 3, Y: 1, W: 1, H: 1, Label: "⅓",
				Value: 0.76, Min: fptr(0), Max: fptr(1), Step: fptr(0.02)},
		},
	}
}

func fptr(v float64) *float64 {
	return &v
}
