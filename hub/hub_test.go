package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomknoe/woz"
	"github.com/thomknoe/woz/protocol"
	"github.com/thomknoe/woz/utils"
)

func newTestHub(t *testing.T, opts ...HubOpt) (*Hub, *httptest.Server, *prometheus.Registry) {
	t.Helper()
	h := NewHub(utils.NewDefaultLogger(slog.LevelError), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewHubCollector(h))
	srv := httptest.NewServer(h.Router(reg))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, role string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if role != "" {
		u += "?role=" + role
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func send(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// expectSilence asserts nothing arrives within the grace window. The
// deadline poisons the connection, so it must be the last read on it.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

func waitLogged(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		entries, err := h.Messages(context.Background())
		return err == nil && len(entries) >= n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPanelBootstrap(t *testing.T) {
	_, srv, _ := newTestHub(t)
	conn := dialWS(t, srv, "")

	data := readFrame(t, conn)
	env, err := protocol.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeState, env.Type)

	candidate, err := protocol.DecodeState(data)
	require.NoError(t, err)
	st, err := woz.Normalize(candidate)
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultState(), st)
}

func TestFanOutExcludesSender(t *testing.T) {
	_, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	b := dialWS(t, srv, "")
	readFrame(t, a)
	readFrame(t, b)

	frame, err := protocol.ModuleEvent{ID: "A1", EType: protocol.EventPress}.Encode()
	require.NoError(t, err)
	send(t, a, frame)

	assert.Equal(t, frame, readFrame(t, b), "relay must be byte-verbatim")
	expectSilence(t, a)
}

func TestReplayConvergesOnLastPush(t *testing.T) {
	h, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	readFrame(t, a)

	push := func(v int) []byte {
		st := protocol.DefaultState()
		st.V = v
		frame, err := protocol.EncodeState(protocol.TypePushState, st)
		require.NoError(t, err)
		send(t, a, frame)
		return frame
	}
	first := push(2)
	second := push(3)
	waitLogged(t, h, 2)

	late := dialWS(t, srv, "")
	boot := readFrame(t, late)
	env, err := protocol.Parse(boot)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeState, env.Type)

	assert.Equal(t, first, readFrame(t, late))
	assert.Equal(t, second, readFrame(t, late), "replay preserves arrival order")

	candidate, err := protocol.DecodeState(second)
	require.NoError(t, err)
	st, err := woz.Normalize(candidate)
	require.NoError(t, err)
	assert.Equal(t, 3, st.V, "the last push is the state a late panel ends on")
}

func TestConsumerRouting(t *testing.T) {
	h, srv, _ := newTestHub(t)
	panel := dialWS(t, srv, "")
	readFrame(t, panel)
	consumer := dialWS(t, srv, "consumer")
	require.Eventually(t, func() bool { return h.consumerCount.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	evt, err := protocol.ModuleEvent{ID: "B1", EType: protocol.EventToggle}.Encode()
	require.NoError(t, err)
	send(t, panel, evt)
	assert.Equal(t, evt, readFrame(t, consumer),
		"consumers get interactions and no bootstrap before them")

	pushed, err := protocol.EncodeState(protocol.TypePushState, protocol.DefaultState())
	require.NoError(t, err)
	send(t, panel, pushed)
	expectSilence(t, consumer)
}

func TestUpdateNameFillsLog(t *testing.T) {
	h, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	b := dialWS(t, srv, "")
	readFrame(t, a)
	readFrame(t, b)

	name, err := protocol.UpdateName{Name: "  Nova  "}.Encode()
	require.NoError(t, err)
	send(t, a, name)

	press, err := protocol.ButtonPress{Movement: "cw"}.Encode()
	require.NoError(t, err)
	send(t, a, press)
	waitLogged(t, h, 2)

	entries, err := h.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, protocol.TypeUpdateName, entries[0].Type)
	assert.Empty(t, entries[0].Player)
	assert.Equal(t, protocol.TypeButtonPress, entries[1].Type)
	assert.Equal(t, "Nova", entries[1].Player, "the registry fills the log, not the frame")
	assert.Equal(t, json.RawMessage(press), entries[1].Raw)

	// the press is relayed untouched, the rename is not relayed at all
	assert.Equal(t, press, readFrame(t, b))
	expectSilence(t, b)
}

func TestUpdateNameBlankBecomesPlayer(t *testing.T) {
	h, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	readFrame(t, a)

	name, err := protocol.UpdateName{Name: "   "}.Encode()
	require.NoError(t, err)
	send(t, a, name)
	press, err := protocol.ButtonPress{Movement: "up"}.Encode()
	require.NoError(t, err)
	send(t, a, press)
	waitLogged(t, h, 2)

	entries, err := h.Messages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Player", entries[1].Player)
}

func TestCommandEndpoint(t *testing.T) {
	h, srv, _ := newTestHub(t)

	post := func(body string) (*http.Response, map[string]any) {
		t.Helper()
		resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		return resp, decoded
	}

	resp, body := post(`{"movement":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = post(`{"player":"Nova"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "action is required", body["error"])

	resp, body = post(`{"action":"buzz"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "no consumers connected", body["error"])

	consumer := dialWS(t, srv, "consumer")
	require.Eventually(t, func() bool { return h.consumerCount.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	resp, body = post(`{"player":"Nova","action":"buzz","device":"pad-1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["delivered"])

	frame := readFrame(t, consumer)
	assert.JSONEq(t,
		`{"type":"player:command","player":"Nova","action":"buzz","device":"pad-1"}`,
		string(frame))
}

func TestMessagesEndpoint(t *testing.T) {
	h, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	readFrame(t, a)

	evt, err := protocol.ModuleEvent{ID: "A2", EType: protocol.EventChange}.Encode()
	require.NoError(t, err)
	send(t, a, evt)
	waitLogged(t, h, 1)

	resp, err := http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count    int        `json:"count"`
		Messages []LogEntry `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, protocol.TypeModuleEvent, body.Messages[0].Type)
	assert.False(t, body.Messages[0].At.IsZero())
	assert.Equal(t, json.RawMessage(evt), body.Messages[0].Raw)
}

func TestLogTrimsToReplayLimit(t *testing.T) {
	h, srv, _ := newTestHub(t, &ReplayLimitOpt{Limit: 3})
	a := dialWS(t, srv, "")
	readFrame(t, a)

	for i := 0; i < 5; i++ {
		press, err := protocol.ButtonPress{Movement: strings.Repeat("x", i+1)}.Encode()
		require.NoError(t, err)
		send(t, a, press)
	}
	require.Eventually(t, func() bool { return h.logSize.Load() == 3 },
		2*time.Second, 10*time.Millisecond)

	entries, err := h.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Contains(t, string(entries[0].Raw), `"xxx"`, "oldest entries age out first")
}

func TestBadFrameKeepsSession(t *testing.T) {
	_, srv, _ := newTestHub(t)
	a := dialWS(t, srv, "")
	b := dialWS(t, srv, "")
	readFrame(t, a)
	readFrame(t, b)

	send(t, a, []byte("not even json"))
	send(t, a, []byte(`{"movement":"up"}`))

	evt, err := protocol.ModuleEvent{ID: "A1", EType: protocol.EventPress}.Encode()
	require.NoError(t, err)
	send(t, a, evt)
	assert.Equal(t, evt, readFrame(t, b), "bad frames are swallowed, not relayed, not fatal")
}

func TestMissedPongDrops(t *testing.T) {
	h, srv, _ := newTestHub(t, &PingIntervalOpt{Interval: 30 * time.Millisecond})
	conn := dialWS(t, srv, "")
	// swallow pings so no pong ever goes back
	conn.SetPingHandler(func(string) error { return nil })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				t.Fatal("hub kept a session that never ponged")
			}
			break
		}
	}
	require.Eventually(t, func() bool { return h.panelCount.Load() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestCollectorGauges(t *testing.T) {
	h, srv, reg := newTestHub(t)
	a := dialWS(t, srv, "")
	readFrame(t, a)
	dialWS(t, srv, "consumer")
	require.Eventually(t, func() bool {
		return h.panelCount.Load() == 1 && h.consumerCount.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	gauges := make(map[string]float64)
	for _, mf := range families {
		if len(mf.GetMetric()) == 1 && mf.GetMetric()[0].GetGauge() != nil {
			gauges[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, gauges["woz_hub_panel_sessions"])
	assert.Equal(t, 1.0, gauges["woz_hub_consumer_sessions"])
}
