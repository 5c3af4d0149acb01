package client

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomknoe/woz"
	"github.com/thomknoe/woz/hub"
	"github.com/thomknoe/woz/protocol"
	"github.com/thomknoe/woz/utils"
)

func startHub(t *testing.T) string {
	t.Helper()
	h := hub.NewHub(utils.NewDefaultLogger(slog.LevelError))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h.Router(prometheus.NewRegistry()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startClient(t *testing.T, url string) (*Client, *woz.Store) {
	t.Helper()
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient(url, store, utils.NewDefaultLogger(slog.LevelError),
		&DialerOpt{Dialer: &websocket.Dialer{HandshakeTimeout: 2 * time.Second}})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })

	// a session is usable once the bootstrap state landed
	require.Eventually(t, func() bool {
		return len(store.State().Modules) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return c, store
}

func moduleValue(t *testing.T, store *woz.Store, id string) float64 {
	t.Helper()
	for _, m := range store.State().Modules {
		if m.ID == id {
			return m.Value
		}
	}
	t.Fatalf("module %s not found", id)
	return 0
}

func TestClientBootstrap(t *testing.T) {
	url := startHub(t)
	_, store := startClient(t, url)
	assert.Equal(t, protocol.DefaultState(), store.State())
}

func TestPushReachesOtherPanels(t *testing.T) {
	url := startHub(t)
	a, astore := startClient(t, url)
	_, bstore := startClient(t, url)

	st := protocol.DefaultState()
	st.V = 7
	st.Modules = woz.Generate(4, 6, rand.New(rand.NewSource(2)))
	require.NoError(t, a.PushState(st))

	assert.Equal(t, st, astore.State(), "the pusher applies its state locally at once")
	require.Eventually(t, func() bool {
		return bstore.State().V == 7
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, st, bstore.State(), "the receiver converges on the pushed state")
}

func TestEventWriteBack(t *testing.T) {
	url := startHub(t)
	a, astore := startClient(t, url)
	b, bstore := startClient(t, url)

	got := make(chan protocol.ModuleEvent, 1)
	b.OnEvent("A2", func(e protocol.ModuleEvent) { got <- e })

	v := 0.9
	require.NoError(t, a.SendEvent(protocol.ModuleEvent{
		ID: "A2", EType: protocol.EventChange, Value: &v,
	}))

	select {
	case e := <-got:
		require.NotNil(t, e.Value)
		assert.Equal(t, 0.9, *e.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never fired")
	}
	assert.Equal(t, 0.9, moduleValue(t, bstore, "A2"),
		"the event value is written back before listeners run")
	assert.Equal(t, 0.62, moduleValue(t, astore, "A2"),
		"the sender gets no echo")
}

func TestListenerCancel(t *testing.T) {
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient("ws://unused", store, utils.NewDefaultLogger(slog.LevelError))

	var fired int
	cancel := c.OnEvent("", func(protocol.ModuleEvent) { fired++ })
	c.handle([]byte(`{"type":"user:module_event","id":"A1","etype":"press"}`))
	cancel()
	c.handle([]byte(`{"type":"user:module_event","id":"A1","etype":"release"}`))
	assert.Equal(t, 1, fired)
}

func TestOwnEchoSuppressed(t *testing.T) {
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient("ws://unused", store, utils.NewDefaultLogger(slog.LevelError))

	pushed := protocol.DefaultState()
	pushed.V = 5
	err := c.PushState(pushed)
	assert.ErrorIs(t, err, ErrNotConnected, "digest is recorded even when the send fails")

	newer := protocol.DefaultState()
	newer.V = 9
	store.SetLocal(newer)

	echo, err := protocol.EncodeState(protocol.TypePushState, pushed)
	require.NoError(t, err)
	c.handle(echo)
	assert.Equal(t, 9, store.State().V, "a replay of our own push must not undo newer edits")

	foreign := protocol.DefaultState()
	foreign.V = 7
	frame, err := protocol.EncodeState(protocol.TypePushState, foreign)
	require.NoError(t, err)
	c.handle(frame)
	assert.Equal(t, 7, store.State().V, "someone else's push still applies")
}

func TestBadRemoteStateIgnored(t *testing.T) {
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient("ws://unused", store, utils.NewDefaultLogger(slog.LevelError))

	prior := protocol.DefaultState()
	prior.V = 4
	store.SetLocal(prior)

	c.handle([]byte(`{"type":"state","state":[1,2]}`))
	c.handle([]byte(`{"type":"state"}`))
	c.handle([]byte(`garbage`))
	assert.Equal(t, 4, store.State().V)
}

func TestOpaquePayloadRetained(t *testing.T) {
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient("ws://unused", store, utils.NewDefaultLogger(slog.LevelError))

	var got protocol.ModuleEvent
	c.OnEvent("A1", func(e protocol.ModuleEvent) { got = e })
	c.handle([]byte(`{"type":"user:module_event","id":"A1","etype":"press","payload":"static"}`))

	require.Equal(t, "A1", got.ID)
	obj, opaque := got.PayloadObject()
	assert.Nil(t, obj)
	assert.Equal(t, "static", opaque)
}

func TestWriteWithoutConnection(t *testing.T) {
	store := woz.NewStore(utils.NewDefaultLogger(slog.LevelError))
	c := NewClient("ws://unused", store, utils.NewDefaultLogger(slog.LevelError))

	assert.ErrorIs(t, c.UpdateName("Nova"), ErrNotConnected)
	assert.ErrorIs(t, c.SendButtonPress("cw"), ErrNotConnected)
}
