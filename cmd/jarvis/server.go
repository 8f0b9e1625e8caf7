package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/session"
)

// newServer builds the observability server: Prometheus metrics plus the
// liveness and readiness probes.
func newServer(cfg *config.Config, ctrl *session.Controller, metrics *observe.Metrics) *http.Server {
	ffmpeg := cfg.Audio.Microphone.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	checkers := []health.Checker{
		health.ReadyChecker("session", ctrl),
		health.BinaryChecker("ffmpeg", ffmpeg),
	}
	if cfg.Audio.Speaker.Backend == config.SpeakerFFplay {
		ffplay := cfg.Audio.Speaker.FFplayPath
		if ffplay == "" {
			ffplay = "ffplay"
		}
		checkers = append(checkers, health.BinaryChecker("ffplay", ffplay))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers, health.WithState(func() string {
		return ctrl.State().String()
	})).Register(mux)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("observability server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
