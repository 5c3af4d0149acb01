package hub

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Role classes an attached websocket. Panels take part in state
// synchronization: bootstrap plus replay on attach, every relayed
// frame afterwards. Consumers only ever receive interactions and
// commands.
type Role int

const (
	RolePanel Role = iota
	RoleConsumer
)

var roleNames = []string{"panel", "consumer"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "unknown"
	}
	return roleNames[r]
}

const (
	// DefaultPingInterval is the liveness cadence. A session that
	// produces no pong for one full interval is dropped on the next
	// tick, there is no second chance.
	DefaultPingInterval = 25 * time.Second

	// DefaultReplayLimit caps the message history kept for attach-time
	// replay and the log endpoint.
	DefaultReplayLimit = 100

	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Session is one attached websocket. The hub goroutine owns player and
// the membership maps; the two pumps own the connection. Frames headed
// for the session go through out, which only the hub closes.
type Session struct {
	name   string
	role   Role
	player string

	conn  *websocket.Conn
	out   chan []byte
	alive atomic.Bool

	hub *Hub
}

type frame struct {
	from *Session
	data []byte
}

// readPump feeds inbound frames to the hub loop until the connection
// dies, then detaches the session. Detaching through the hub loop is
// the single cleanup path for every failure mode.
func (s *Session) readPump() {
	defer func() {
		s.conn.Close()
		s.hub.drop(s)
	}()
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetPongHandler(func(string) error {
		s.alive.Store(true)
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.hub.inbound <- frame{from: s, data: data}:
		case <-s.hub.done:
			return
		}
	}
}

// writePump drains out and keeps the ping ticker. Closing the
// connection here unblocks the read side, which does the detaching.
func (s *Session) writePump(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if !s.alive.Swap(false) {
				s.hub.log.Warn("hub: session missed ping", "name", s.name)
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
