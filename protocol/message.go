package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/thomknoe/woz"
)

// Every frame on the wire is a JSON object with a "type" discriminator.
// The relay treats the body as opaque bytes and fans it out verbatim;
// only the discriminator and the handful of fields the hub reacts to
// are decoded here.
const (
	TypeState       = "state"
	TypePushState   = "wizard:push_state"
	TypeModuleEvent = "user:module_event"
	TypeButtonPress = "player:button_press"
	TypeUpdateName  = "player:update_name"
	TypeCommand     = "player:command"
)

// Interaction kinds carried by a module event.
const (
	EventPress   = "press"
	EventRelease = "release"
	EventChange  = "change"
	EventToggle  = "toggle"
)

var (
	ErrBadFrame = errors.New("bad frame format")
	ErrNoState  = errors.New("frame carries no state")
)

// Envelope is the decoded discriminator plus the untouched frame
// bytes, kept so relaying never re-serializes what a client sent.
type Envelope struct {
	Type string
	Raw  []byte
}

// Parse pulls the type discriminator out of a frame. The frame must be
// a JSON object with a non-empty string "type"; everything else about
// it stays unexamined.
func Parse(data []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, ErrBadFrame
	}
	if head.Type == "" {
		return Envelope{}, ErrBadFrame
	}
	return Envelope{Type: head.Type, Raw: data}, nil
}

type stateFrame struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state"`
}

// EncodeState wraps a full state snapshot into a frame of the given
// type, TypeState for hub-to-panel and TypePushState for the reverse.
func EncodeState(msgType string, st woz.State) ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateFrame{Type: msgType, State: body})
}

// DecodeState extracts the embedded state candidate from a state or
// push frame. The candidate is returned raw; normalization is the
// store's job.
func DecodeState(data []byte) (json.RawMessage, error) {
	var f stateFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrBadFrame
	}
	if len(f.State) == 0 {
		return nil, ErrNoState
	}
	return f.State, nil
}

// ModuleEvent reports one pointer interaction with a module: press and
// release for momentary widgets, change for continuous ones, toggle
// for two-state ones. Value is present only when the interaction moved
// one; Payload is whatever extra context the panel attached.
type ModuleEvent struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	EType   string          `json:"etype"`
	Value   *float64        `json:"value,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e ModuleEvent) Encode() ([]byte, error) {
	e.Type = TypeModuleEvent
	return json.Marshal(e)
}

func ParseModuleEvent(data []byte) (ModuleEvent, error) {
	var e ModuleEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ModuleEvent{}, ErrBadFrame
	}
	return e, nil
}

// PayloadObject decodes the event payload into a map. Panels are
// supposed to send an object, but some ship the object re-encoded as a
// JSON string; that wrapping is undone here. A payload that is neither
// is handed back as an opaque string for the caller to log and keep.
func (e ModuleEvent) PayloadObject() (map[string]any, string) {
	if len(e.Payload) == 0 {
		return nil, ""
	}
	var obj map[string]any
	if json.Unmarshal(e.Payload, &obj) == nil {
		return obj, ""
	}
	var inner string
	if json.Unmarshal(e.Payload, &inner) == nil {
		if json.Unmarshal([]byte(inner), &obj) == nil {
			return obj, ""
		}
		return nil, inner
	}
	return nil, strings.TrimSpace(string(e.Payload))
}

// ButtonPress is a controller movement from a player device, relayed
// to panels and consumers alike. Player may be blank; the hub fills
// the registered name into its log but relays the frame as sent.
type ButtonPress struct {
	Type     string `json:"type"`
	Player   string `json:"player,omitempty"`
	Movement string `json:"movement"`
}

func (b ButtonPress) Encode() ([]byte, error) {
	b.Type = TypeButtonPress
	return json.Marshal(b)
}

func ParseButtonPress(data []byte) (ButtonPress, error) {
	var b ButtonPress
	if err := json.Unmarshal(data, &b); err != nil {
		return ButtonPress{}, ErrBadFrame
	}
	return b, nil
}

// UpdateName (re)registers the sending session's player name. It is
// absorbed by the hub, nothing is relayed.
type UpdateName struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (u UpdateName) Encode() ([]byte, error) {
	u.Type = TypeUpdateName
	return json.Marshal(u)
}

func ParseUpdateName(data []byte) (UpdateName, error) {
	var u UpdateName
	if err := json.Unmarshal(data, &u); err != nil {
		return UpdateName{}, ErrBadFrame
	}
	return u, nil
}

// Command is an out-of-band instruction injected over HTTP and pushed
// to consumer sessions only.
type Command struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`
	Action string `json:"action"`
	Device string `json:"device,omitempty"`
}

func (c Command) Encode() ([]byte, error) {
	c.Type = TypeCommand
	return json.Marshal(c)
}
