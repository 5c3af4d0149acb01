package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/thomknoe/woz"
	"github.com/thomknoe/woz/protocol"
	"github.com/thomknoe/woz/utils"
)

const (
	MAX_RETRY_PERIOD = time.Minute
	MIN_RETRY_PERIOD = time.Second / 2

	writeWait = 10 * time.Second
)

var ErrNotConnected = errors.New("client not connected")

// A ClientOpt tunes the client at construction.
type ClientOpt interface {
	Apply(c *Client)
}

// DialerOpt swaps the websocket dialer, e.g. to cap the handshake
// time or route through a proxy.
type DialerOpt struct {
	Dialer *websocket.Dialer
}

func (opt *DialerOpt) Apply(c *Client) { c.dialer = opt.Dialer }

type listener struct {
	module string
	fn     func(protocol.ModuleEvent)
}

// Client attaches a local session to the relay as a panel. Incoming
// state goes through the store's gate; module events update the store
// and wake listeners. Pushing a state records its digest so the replay
// echo after a reconnect is not re-applied over newer local edits.
type Client struct {
	url    string
	store  *woz.Store
	log    utils.Logger
	dialer *websocket.Dialer

	closed atomic.Bool
	wg     sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn

	lastPush  atomic.Uint64
	seq       atomic.Uint64
	listeners *xsync.MapOf[uint64, *listener]
}

func NewClient(url string, store *woz.Store, log utils.Logger, opts ...ClientOpt) *Client {
	c := &Client{
		url:       url,
		store:     store,
		log:       log,
		dialer:    websocket.DefaultDialer,
		listeners: xsync.NewMapOf[uint64, *listener](),
	}
	for _, opt := range opts {
		opt.Apply(c)
	}
	return c
}

// Connect dials once and reads until the connection dies. Callers that
// want resilience use KeepConnected instead.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrap(err, "client: dial failed")
	}
	c.setConn(conn)
	c.log.Info("client: connected", "url", c.url)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop(ctx, conn)
		c.setConn(nil)
	}()
	return nil
}

// KeepConnected redials with exponential backoff until the context
// ends or the client is closed. It blocks; run it in a goroutine.
func (c *Client) KeepConnected(ctx context.Context) {
	backoff := MIN_RETRY_PERIOD

	for !c.closed.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Error("client: couldn't connect", "url", c.url, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(MAX_RETRY_PERIOD, backoff*2)
			continue
		}

		c.log.Info("client: connected", "url", c.url)
		backoff = MIN_RETRY_PERIOD
		c.setConn(conn)
		c.readLoop(ctx, conn)
		c.setConn(nil)
	}
}

func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && ctx.Err() == nil {
				c.log.Warn("client: connection lost", "url", c.url, "err", err)
			}
			return
		}
		c.handle(data)
	}
}

// handle applies one inbound frame. Full states go through the store's
// gate and a rejected candidate leaves the local state alone; module
// events are written back so this session's values agree with the
// panel that produced them.
func (c *Client) handle(data []byte) {
	env, err := protocol.Parse(data)
	if err != nil {
		c.log.Warn("client: unreadable frame", "err", err)
		return
	}

	switch env.Type {
	case protocol.TypeState, protocol.TypePushState:
		if xxhash.Sum64(data) == c.lastPush.Load() {
			// replay echo of our own latest push, already applied
			return
		}
		candidate, err := protocol.DecodeState(data)
		if err != nil {
			c.log.Warn("client: state frame without state", "err", err)
			return
		}
		if err := c.store.SetState(candidate); err != nil {
			c.log.Warn("client: rejected remote state", "err", err)
		}
	case protocol.TypeModuleEvent:
		evt, err := protocol.ParseModuleEvent(env.Raw)
		if err != nil {
			c.log.Warn("client: unreadable module event", "err", err)
			return
		}
		c.store.ApplyEvent(evt.ID, evt.Value)
		if _, opaque := evt.PayloadObject(); opaque != "" {
			c.log.Warn("client: payload kept as opaque string", "id", evt.ID, "payload", opaque)
		}
		c.dispatch(evt)
	default:
		c.log.Debug("client: ignoring frame", "type", env.Type)
	}
}

// OnEvent registers a listener for module events. An empty module id
// subscribes to all of them. The returned cancel removes the listener.
func (c *Client) OnEvent(moduleID string, fn func(protocol.ModuleEvent)) (cancel func()) {
	key := c.seq.Add(1)
	c.listeners.Store(key, &listener{module: moduleID, fn: fn})
	return func() { c.listeners.Delete(key) }
}

func (c *Client) dispatch(evt protocol.ModuleEvent) {
	c.listeners.Range(func(_ uint64, l *listener) bool {
		if l.module == "" || l.module == evt.ID {
			l.fn(evt)
		}
		return true
	})
}

// PushState replaces the shared state with st: installed locally
// first, then broadcast through the hub. The frame digest makes the
// replay echo recognizable after a reconnect.
func (c *Client) PushState(st woz.State) error {
	frame, err := protocol.EncodeState(protocol.TypePushState, st)
	if err != nil {
		return err
	}
	c.store.SetLocal(st)
	c.lastPush.Store(xxhash.Sum64(frame))
	return c.write(frame)
}

// SendEvent reports a local interaction to the other sessions.
func (c *Client) SendEvent(evt protocol.ModuleEvent) error {
	frame, err := evt.Encode()
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendButtonPress relays a controller movement.
func (c *Client) SendButtonPress(movement string) error {
	frame, err := protocol.ButtonPress{Movement: movement}.Encode()
	if err != nil {
		return err
	}
	return c.write(frame)
}

// UpdateName registers this session's player name with the hub.
func (c *Client) UpdateName(name string) error {
	frame, err := protocol.UpdateName{Name: name}.Encode()
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
