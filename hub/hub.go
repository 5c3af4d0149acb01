package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thomknoe/woz/protocol"
	"github.com/thomknoe/woz/utils"
)

var ErrStopped = errors.New("hub stopped")

// LogEntry is one relayed frame as the log endpoint reports it. The
// timestamp and resolved player name live outside the frame bytes;
// replay must hand a late panel exactly what went over the wire.
type LogEntry struct {
	At     time.Time       `json:"at"`
	Type   string          `json:"type"`
	Player string          `json:"player,omitempty"`
	Raw    json.RawMessage `json:"message"`
}

// A HubOpt tunes the hub at construction.
//
// Example:
//
//	hub.NewHub(logger,
//		&hub.PingIntervalOpt{Interval: 10 * time.Second},
//		&hub.ReplayLimitOpt{Limit: 250},
//	)
type HubOpt interface {
	Apply(h *Hub)
}

type PingIntervalOpt struct {
	Interval time.Duration
}

func (opt *PingIntervalOpt) Apply(h *Hub) { h.pingInterval = opt.Interval }

type ReplayLimitOpt struct {
	Limit int
}

func (opt *ReplayLimitOpt) Apply(h *Hub) { h.replayLimit = opt.Limit }

// Hub is the relay between panels, consumers and the HTTP boundary.
// One goroutine (Run) owns the membership maps, the player registry
// and the message log; everything else talks to it over channels, so
// frames from concurrent senders serialize into one order and the last
// write wins everywhere at once.
type Hub struct {
	log          utils.Logger
	pingInterval time.Duration
	replayLimit  int
	bootstrap    []byte

	register   chan *Session
	unregister chan *Session
	inbound    chan frame
	commands   chan commandReq
	logreq     chan chan []LogEntry
	done       chan struct{}

	panels    map[*Session]struct{}
	consumers map[*Session]struct{}
	msglog    []LogEntry

	panelCount    atomic.Int64
	consumerCount atomic.Int64
	logSize       atomic.Int64
	broadcastSize *utils.AvgVal
}

type commandReq struct {
	cmd   protocol.Command
	reply chan int
}

func NewHub(log utils.Logger, opts ...HubOpt) *Hub {
	h := &Hub{
		log:           log,
		pingInterval:  DefaultPingInterval,
		replayLimit:   DefaultReplayLimit,
		bootstrap:     bootstrapFrame(),
		register:      make(chan *Session),
		unregister:    make(chan *Session),
		inbound:       make(chan frame, 64),
		commands:      make(chan commandReq),
		logreq:        make(chan chan []LogEntry),
		done:          make(chan struct{}),
		panels:        make(map[*Session]struct{}),
		consumers:     make(map[*Session]struct{}),
		broadcastSize: &utils.AvgVal{},
	}
	for _, opt := range opts {
		opt.Apply(h)
	}
	return h
}

func bootstrapFrame() []byte {
	data, err := protocol.EncodeState(protocol.TypeState, protocol.DefaultState())
	if err != nil {
		panic(err)
	}
	return data
}

// Run owns the hub until the context ends. It must be running for any
// session or HTTP request to make progress.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.removeSession(s)
		case f := <-h.inbound:
			h.route(f)
		case req := <-h.commands:
			req.reply <- h.deliverCommand(req.cmd)
		case reply := <-h.logreq:
			reply <- h.snapshotLog()
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for s := range h.panels {
		delete(h.panels, s)
		close(s.out)
	}
	for s := range h.consumers {
		delete(h.consumers, s)
		close(s.out)
	}
	h.panelCount.Store(0)
	h.consumerCount.Store(0)
	h.log.Info("hub: stopped")
}

// attach hands a fresh session to the hub loop. False means the hub is
// gone and the caller owns the connection again.
func (h *Hub) attach(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

// drop is the read pump's exit notification. Safe to call however many
// ways a connection manages to die; the loop ignores unknown sessions.
func (h *Hub) drop(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) addSession(s *Session) {
	switch s.role {
	case RolePanel:
		h.panels[s] = struct{}{}
		h.panelCount.Store(int64(len(h.panels)))
		h.trySend(s, h.bootstrap)
		for i := range h.msglog {
			h.trySend(s, h.msglog[i].Raw)
		}
		h.log.Info("hub: panel attached", "name", s.name, "replayed", len(h.msglog))
	case RoleConsumer:
		h.consumers[s] = struct{}{}
		h.consumerCount.Store(int64(len(h.consumers)))
		h.log.Info("hub: consumer attached", "name", s.name)
	}
}

func (h *Hub) removeSession(s *Session) {
	switch s.role {
	case RolePanel:
		if _, ok := h.panels[s]; !ok {
			return
		}
		delete(h.panels, s)
		h.panelCount.Store(int64(len(h.panels)))
	case RoleConsumer:
		if _, ok := h.consumers[s]; !ok {
			return
		}
		delete(h.consumers, s)
		h.consumerCount.Store(int64(len(h.consumers)))
	}
	close(s.out)
	h.log.Info("hub: session detached", "name", s.name, "player", s.player)
}

// route relays one inbound frame. The frame body travels verbatim;
// the hub only reads the discriminator and, for a few types, enough
// fields to keep its registry and log straight. Unreadable frames are
// counted and swallowed, the session stays attached.
func (h *Hub) route(f frame) {
	env, err := protocol.Parse(f.data)
	if err != nil {
		BadFrames.Inc()
		h.log.Warn("hub: unreadable frame", "name", f.from.name, "err", err)
		return
	}
	FramesTotal.WithLabelValues(env.Type).Inc()

	if env.Type == protocol.TypeUpdateName {
		h.setPlayer(f.from, env.Raw)
		h.appendLog(f.from, env)
		return
	}
	h.appendLog(f.from, env)

	switch env.Type {
	case protocol.TypeModuleEvent, protocol.TypeButtonPress, protocol.TypeCommand:
		h.fanOut(env.Raw, f.from, true)
	default:
		// state pushes and anything future-shaped go to the other panels
		h.fanOut(env.Raw, f.from, false)
	}
}

// fanOut relays raw bytes to every panel except the sender, plus all
// consumers when the frame is interaction-shaped.
func (h *Hub) fanOut(data []byte, except *Session, toConsumers bool) {
	h.broadcastSize.Add(float64(len(data)))
	for s := range h.panels {
		if s == except {
			continue
		}
		h.trySend(s, data)
	}
	if !toConsumers {
		return
	}
	for s := range h.consumers {
		if s == except {
			continue
		}
		h.trySend(s, data)
	}
}

// trySend never blocks the hub loop. A session whose buffer is full is
// not keeping up with real-time fan-out and gets detached instead.
func (h *Hub) trySend(s *Session, data []byte) {
	select {
	case s.out <- data:
	default:
		DroppedSessions.Inc()
		h.log.Warn("hub: dropping slow session", "name", s.name)
		h.removeSession(s)
	}
}

func (h *Hub) setPlayer(s *Session, raw []byte) {
	u, err := protocol.ParseUpdateName(raw)
	if err != nil {
		return
	}
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = "Player"
	}
	s.player = name
	h.log.Info("hub: player named", "name", s.name, "player", name)
}

func (h *Hub) appendLog(from *Session, env protocol.Envelope) {
	entry := LogEntry{At: time.Now().UTC(), Type: env.Type, Raw: env.Raw}
	if env.Type == protocol.TypeButtonPress && from != nil {
		if bp, err := protocol.ParseButtonPress(env.Raw); err == nil {
			entry.Player = bp.Player
			if entry.Player == "" {
				entry.Player = from.player
			}
		}
	}
	h.msglog = append(h.msglog, entry)
	if len(h.msglog) > h.replayLimit {
		h.msglog = h.msglog[len(h.msglog)-h.replayLimit:]
	}
	h.logSize.Store(int64(len(h.msglog)))
}

func (h *Hub) deliverCommand(cmd protocol.Command) int {
	data, err := cmd.Encode()
	if err != nil {
		return 0
	}
	FramesTotal.WithLabelValues(protocol.TypeCommand).Inc()
	h.appendLog(nil, protocol.Envelope{Type: protocol.TypeCommand, Raw: data})
	n := 0
	for s := range h.consumers {
		h.trySend(s, data)
		n++
	}
	return n
}

func (h *Hub) snapshotLog() []LogEntry {
	out := make([]LogEntry, len(h.msglog))
	copy(out, h.msglog)
	return out
}

// Command pushes an out-of-band instruction to every consumer and
// reports how many were targeted.
func (h *Hub) Command(ctx context.Context, cmd protocol.Command) (int, error) {
	req := commandReq{cmd: cmd, reply: make(chan int, 1)}
	select {
	case h.commands <- req:
	case <-h.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-req.reply:
		return n, nil
	case <-h.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Messages returns a copy of the relay log, oldest first.
func (h *Hub) Messages(ctx context.Context) ([]LogEntry, error) {
	reply := make(chan []LogEntry, 1)
	select {
	case h.logreq <- reply:
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case entries := <-reply:
		return entries, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
