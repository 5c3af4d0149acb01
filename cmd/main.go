package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thomknoe/woz/hub"
	"github.com/thomknoe/woz/utils"
)

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5001"
}

func main() {
	addr := flag.String("addr", defaultAddr(), "listen address")
	ping := flag.Duration("ping", hub.DefaultPingInterval, "ping cadence; one missed pong drops the session")
	replay := flag.Int("replay", hub.DefaultReplayLimit, "messages replayed to a freshly attached panel")
	level := flag.String("log", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*level)); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "bad log level %q\n", *level)
		os.Exit(2)
	}
	log := utils.NewDefaultLogger(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h := hub.NewHub(log,
		&hub.PingIntervalOpt{Interval: *ping},
		&hub.ReplayLimitOpt{Limit: *replay},
	)
	go h.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		hub.NewHubCollector(h),
		hub.FramesTotal,
		hub.BadFrames,
		hub.DroppedSessions,
	)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           h.Router(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("hub: listening", "addr", *addr, "ping", *ping, "replay", *replay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("hub: server failed", "err", err)
		os.Exit(1)
	}
	log.Info("hub: stopped")
}
