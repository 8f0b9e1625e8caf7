// Command jarvis is a terminal voice assistant that talks to a live speech
// model through the default microphone and speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/ui"
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "dotenv file loaded into the environment before the config (optional)")
	headless := flag.Bool("headless", false, "connect immediately and log the transcript instead of drawing the UI")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := loadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The UI owns the terminal, so logs are redirected into its log pane.
	var logs *ui.LogWriter
	var logOut io.Writer = os.Stderr
	if !*headless {
		logs = ui.NewLogWriter(200)
		logOut = logs
	}
	logger, level := newLogger(cfg.Server.LogLevel, logOut)
	slog.SetDefault(logger)

	if *headless {
		printStartupSummary(os.Stdout, cfg)
	}
	slog.Info("jarvis starting",
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.NewTelemetry(observe.TelemetryConfig{
		Version:  version,
		Provider: cfg.Provider.Name,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildProvider(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build live provider", "provider", cfg.Provider.Name, "err", err)
		return 1
	}

	// ── Session controller ────────────────────────────────────────────────────
	liveCfg := liveConfig(cfg)
	mic, speaker := buildDevices(cfg.Audio)
	ctrl := session.New(session.Config{
		Provider:         provider,
		ProviderName:     cfg.Provider.Name,
		APIKey:           cfg.Provider.APIKey,
		Live:             &liveCfg,
		Microphone:       mic,
		Speaker:          speaker,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		BlockSize:        cfg.Audio.BlockSize,
		SendQueue:        cfg.Audio.SendQueue,
		FFTSize:          cfg.Audio.FFTSize,
		RenderQuantum:    cfg.Audio.RenderQuantum,
		Metrics:          metrics,
	})

	// ── Run ───────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if watchable {
		w, err := config.NewWatcher(*configPath, reloader(level, ctrl))
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg, ctrl, metrics)
		g.Go(func() error { return serve(gctx, srv) })
	}

	g.Go(func() error {
		// Leaving the UI or the headless loop ends the process.
		defer cancel()
		if *headless {
			return runHeadless(gctx, ctrl, os.Stdout)
		}
		_, err := tea.NewProgram(
			ui.NewModel(gctx, ctrl, logs),
			tea.WithAltScreen(),
			tea.WithContext(gctx),
		).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	if err := ctrl.Close(); err != nil {
		slog.Warn("session close error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		if logs != nil {
			// The alt screen swallowed the log pane; surface the failure.
			fmt.Fprintf(os.Stderr, "jarvis: %v\n", runErr)
		}
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadEnvFile loads KEY=value pairs from path without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config at path. A missing file yields the defaults
// (with the API key taken from the environment) and disables watching.
func loadConfig(path string) (cfg *config.Config, watchable bool, err error) {
	cfg, err = config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// reloader applies hot-reloadable changes from the config watcher.
func reloader(level *slog.LevelVar, ctrl *session.Controller) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged {
			ctrl.SetLiveConfig(liveConfig(new))
			slog.Info("session settings updated; they apply on the next activation",
				"model", new.Provider.Model, "voice", new.Provider.Voice)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes require a restart", "fields", d.RestartRequired)
		}
	}
}

// ── Logging ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger returns a text logger writing to w whose level can be changed
// through the returned LevelVar.
func newLogger(level config.LogLevel, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), lvl
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	model := cfg.Provider.Model
	if model == "" {
		model = "(default)"
	}
	voice := cfg.Provider.Voice
	if voice == "" {
		voice = "(default)"
	}
	key := "(missing)"
	if cfg.Provider.APIKey != "" {
		key = "(set)"
	}
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         JARVIS — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Provider        : %-19s ║\n", truncate(cfg.Provider.Name, 19))
	fmt.Fprintf(w, "║  Model           : %-19s ║\n", truncate(model, 19))
	fmt.Fprintf(w, "║  Voice           : %-19s ║\n", truncate(voice, 19))
	fmt.Fprintf(w, "║  API key         : %-19s ║\n", key)
	fmt.Fprintf(w, "║  Speaker         : %-19s ║\n", cfg.Audio.Speaker.Backend)
	if n := len(cfg.Failover.Providers); n > 0 {
		fmt.Fprintf(w, "║  Failover        : %-19d ║\n", n)
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr, 19))
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
