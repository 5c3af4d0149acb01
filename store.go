package woz

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/thomknoe/woz/utils"
)

// ErrBadState rejects a network candidate that is not a JSON object.
var ErrBadState = errors.New("woz: state is not an object")

// Store holds one session's canonical state and gatekeeps everything
// the session did not produce itself. Remote candidates go through
// SetState and get normalized; the editor's own updates go through
// SetLocal untouched. Subscribers run synchronously after every
// accepted update.
type Store struct {
	lock  sync.Mutex
	state State
	subs  map[int]func(State)
	seq   int
	log   utils.Logger
}

func NewStore(log utils.Logger) *Store {
	return &Store{
		state: State{V: 1, Surface: Surface{Cols: DefaultCols, Rows: DefaultRows}},
		subs:  make(map[int]func(State)),
		log:   log,
	}
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state.Clone()
}

// SetState validates and normalizes a state candidate that arrived
// from the network. Rejected candidates leave the prior state in
// place; the error is for the caller to log, nothing propagates
// further. Accepted candidates replace the state whole.
func (s *Store) SetState(candidate []byte) error {
	st, err := Normalize(candidate)
	if err != nil {
		return err
	}
	s.set(st)
	return nil
}

// SetLocal installs the session's own optimistic state, bypassing the
// gate. The caller guarantees it came out of a Grid.
func (s *Store) SetLocal(st State) {
	s.set(st.Clone())
}

// ApplyEvent writes a remote interaction's value into the matching
// module so this session's snapshot agrees with what the interacting
// panel displays. Events without a value change nothing.
func (s *Store) ApplyEvent(id string, value *float64) bool {
	if value == nil {
		return false
	}
	s.lock.Lock()
	hit := false
	for i := range s.state.Modules {
		if s.state.Modules[i].ID == id {
			s.state.Modules[i].Value = *value
			hit = true
			break
		}
	}
	if !hit {
		s.lock.Unlock()
		return false
	}
	st := s.state.Clone()
	fns := s.snapshotSubs()
	s.lock.Unlock()
	s.notify(fns, st)
	return true
}

// Subscribe registers a synchronous observer and returns its cancel
// function. A subscriber that panics is logged and skipped; it never
// prevents the remaining subscribers from running.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.lock.Lock()
	s.seq++
	id := s.seq
	s.subs[id] = fn
	s.lock.Unlock()
	return func() {
		s.lock.Lock()
		delete(s.subs, id)
		s.lock.Unlock()
	}
}

func (s *Store) set(st State) {
	s.lock.Lock()
	s.state = st
	snapshot := st.Clone()
	fns := s.snapshotSubs()
	s.lock.Unlock()
	s.notify(fns, snapshot)
}

func (s *Store) snapshotSubs() []func(State) {
	fns := make([]func(State), 0, len(s.subs))
	for id := 1; id <= s.seq; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func (s *Store) notify(fns []func(State), st State) {
	for _, fn := range fns {
		s.call(fn, st)
	}
}

func (s *Store) call(fn func(State), st State) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("store: subscriber panicked", "panic", r)
		}
	}()
	fn(st.Clone())
}

// Normalize decodes a raw state candidate and fills the documented
// defaults: generated id, button type, origin 0,0, footprint 1×1,
// value 0, unlocked. The module list is read from "modules" or the
// legacy "widgets" field; a missing or non-array list becomes empty.
// Present kind-specific fields survive untouched, and geometry is NOT
// re-validated: a remote state may carry overlaps or out-of-bounds
// footprints, the render path tolerates that (see Visible).
func Normalize(candidate []byte) (State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(candidate, &fields); err != nil || fields == nil {
		return State{}, ErrBadState
	}

	st := State{V: 1, Surface: Surface{Cols: DefaultCols, Rows: DefaultRows}}
	if raw, ok := fields["v"]; ok {
		var v int
		if json.Unmarshal(raw, &v) == nil && v >= 1 {
			st.V = v
		}
	}
	if raw, ok := fields["surface"]; ok {
		var surf Surface
		if json.Unmarshal(raw, &surf) == nil {
			if surf.Cols < 1 {
				surf.Cols = DefaultCols
			}
			if surf.Rows < 1 {
				surf.Rows = DefaultRows
			}
			st.Surface = surf
		}
	}

	list, ok := fields["modules"]
	if !ok {
		list, ok = fields["widgets"]
	}
	st.Modules = make([]Module, 0)
	if ok {
		var mods []Module
		if json.Unmarshal(list, &mods) == nil && mods != nil {
			st.Modules = mods
		}
	}
	for i := range st.Modules {
		normalizeModule(&st.Modules[i])
	}
	return st, nil
}

func normalizeModule(m *Module) {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Type == "" {
		m.Type = KindButton
	}
	if m.W < 1 {
		m.W = 1
	}
	if m.H < 1 {
		m.H = 1
	}
}
