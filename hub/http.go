package hub

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thomknoe/woz/protocol"
)

//go:embed static/index.html
var indexHTML []byte

// Panels attach from LAN origins and local file shells, so the origin
// check stays open.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Router serves the whole HTTP boundary: the websocket attach point,
// the static shell, the command and log endpoints and the metrics
// scrape. Registering the hub's collectors on reg is the caller's job.
func (h *Hub) Router(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/", h.serveIndex)
	r.Get("/ws", h.ServeWS)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Post("/command", h.handleCommand)
		r.Get("/messages", h.handleMessages)
	})
	return r
}

func (h *Hub) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// ServeWS upgrades the request and hands the session to the hub loop.
// The role query parameter picks the session class, panel by default.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := RolePanel
	if r.URL.Query().Get("role") == "consumer" {
		role = RoleConsumer
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("hub: upgrade failed", "remoteAddr", r.RemoteAddr, "err", err)
		return
	}
	s := &Session{
		name: fmt.Sprintf("%s:%s:%s", role, uuid.Must(uuid.NewV7()).String(), r.RemoteAddr),
		role: role,
		conn: conn,
		out:  make(chan []byte, h.replayLimit+64),
		hub:  h,
	}
	s.alive.Store(true)
	if !h.attach(s) {
		conn.Close()
		return
	}
	go s.writePump(h.pingInterval)
	go s.readPump()
}

func (h *Hub) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd protocol.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "request body is not a command"})
		return
	}
	if cmd.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "action is required"})
		return
	}
	n, err := h.Command(r.Context(), cmd)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no consumers connected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": n})
}

func (h *Hub) handleMessages(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Messages(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "messages": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
