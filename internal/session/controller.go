// Package session implements the lifecycle controller of the voice client.
//
// A [Controller] owns at most one live session together with its output
// audio context, playback scheduler and microphone capture pipeline. It moves
// through the states Idle, Connecting, Listening and Error, dispatches inbound
// transport events to the transcript log and the scheduler, and guarantees a
// full teardown on every path out of a session.
//
// Each connection attempt is stamped with a generation number. Events, late
// connect results and callbacks carrying an older generation are ignored, so
// a session that was replaced or torn down can never mutate current state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/transcript"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/device"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
	"github.com/MrWong99/jarvis/pkg/audio/render"
	"github.com/MrWong99/jarvis/pkg/provider/live"
)

// Config configures a [Controller].
type Config struct {
	// Provider opens live sessions. Required.
	Provider live.Provider

	// ProviderName labels metrics and logs. Default: "live".
	ProviderName string

	// APIKey must be non-empty for Connect to proceed. The provider carries
	// its own copy; the controller only checks presence so that a missing
	// key fails before any device is opened.
	APIKey string

	// Live is the session configuration. Default: [live.DefaultConfig].
	Live *live.Config

	// Microphone and Speaker are the host audio endpoints. Required.
	Microphone device.Microphone
	Speaker    device.Speaker

	// OutputSampleRate is the speaker device rate. Inbound 24 kHz audio is
	// resampled to it. Default: 24000.
	OutputSampleRate int

	// BlockSize is the capture block size in frames. Default: 4096.
	BlockSize int

	// SendQueue is the capture send queue depth. Default: 8.
	SendQueue int

	// FFTSize is the analyser window. Default: 256.
	FFTSize int

	// RenderQuantum is the output render period. Default: 20ms.
	RenderQuantum time.Duration

	// Metrics records instruments. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// TracerProvider receives session spans. Default: the global provider.
	TracerProvider trace.TracerProvider
}

// Snapshot is an immutable view of the controller for rendering.
type Snapshot struct {
	State      State
	Transcript []transcript.Entry

	// Error is the user-facing message of the last failure, or empty.
	Error string
}

// Controller is the session lifecycle state machine. All methods are safe for
// concurrent use.
type Controller struct {
	cfg     Config
	liveCfg live.Config
	metrics *observe.Metrics
	tracer  *observe.SessionTracer
	log     *transcript.Log

	mu        sync.Mutex
	state     State
	errMsg    string
	lastErr   error
	gen       uint64
	conn      *connection
	active    bool
	listeners []func()

	pumps sync.WaitGroup
}

// connection bundles the resources of one session attempt.
type connection struct {
	gen     uint64
	sess    live.Session
	capture *capture.Pipeline
	sched   *playback.Scheduler
	stop    chan struct{}
}

// New creates a Controller in the Idle state.
func New(cfg Config) *Controller {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "live"
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = audio.OutputSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = capture.DefaultBlockSize
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = capture.DefaultQueueSize
	}
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = render.DefaultFFTSize
	}
	if cfg.RenderQuantum <= 0 {
		cfg.RenderQuantum = render.DefaultQuantum
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	liveCfg := live.DefaultConfig()
	if cfg.Live != nil {
		liveCfg = *cfg.Live
	}
	if liveCfg.InputSampleRate <= 0 {
		liveCfg.InputSampleRate = audio.InputSampleRate
	}
	return &Controller{
		cfg:     cfg,
		liveCfg: liveCfg,
		metrics: metrics,
		tracer:  observe.NewSessionTracer(cfg.TracerProvider, cfg.ProviderName),
		log:     transcript.New(),
	}
}

// OnChange registers fn to be called after every observable change of state,
// transcript or error. fn runs on the goroutine that made the change and
// must not block.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind the current Error state, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns the state, a copy of the transcript and the error message.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	st, msg := c.state, c.errMsg
	c.mu.Unlock()
	return Snapshot{State: st, Transcript: c.log.Entries(), Error: msg}
}

// FrequencyData returns the current output spectrum, or nil when no output
// context is open.
func (c *Controller) FrequencyData() []byte {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.sched == nil {
		return nil
	}
	return conn.sched.FrequencyData()
}

// Ready reports an error while the controller is in the Error state. It is
// used as a readiness probe.
func (c *Controller) Ready(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Error {
		return fmt.Errorf("session in error state: %s", c.errMsg)
	}
	return nil
}

// SetLiveConfig replaces the session configuration used by the next Connect.
// An open session keeps the configuration it was opened with.
func (c *Controller) SetLiveConfig(cfg live.Config) {
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = audio.InputSampleRate
	}
	c.mu.Lock()
	c.liveCfg = cfg
	c.mu.Unlock()
}

// Toggle connects from Idle or Error and disconnects otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.State() {
	case Idle, Error:
		return c.Connect(ctx)
	default:
		c.Disconnect()
		return nil
	}
}

// Connect opens the output context, the live session and the microphone, in
// that order. It is a no-op returning nil unless the controller is Idle or
// in Error. On failure the controller enters Error with the message
// "Failed to connect: <cause>", everything opened so far is torn down and the
// cause is returned.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle && c.state != Error {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	lc := c.liveCfg
	c.errMsg = ""
	c.lastErr = nil
	c.setStateLocked(Connecting)
	c.mu.Unlock()
	c.log.Reset()
	c.notify()

	ctx, span := c.tracer.Start(ctx, "connect", lc.Model)
	start := time.Now()

	if err := c.connect(ctx, gen, lc); err != nil {
		err = c.fail(gen, "Failed to connect: ", err)
		c.tracer.Finish(span, c.State().String(), err)
		return err
	}
	c.tracer.Finish(span, c.State().String(), nil)
	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	c.tracer.Logger(ctx).Info("session connected", "model", lc.Model, "duration", time.Since(start))
	return nil
}

// errStale signals that the attempt was superseded and has cleaned up after
// itself.
var errStale = errors.New("session: superseded")

func (c *Controller) connect(ctx context.Context, gen uint64, lc live.Config) error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}

	sink, err := c.cfg.Speaker.Open(ctx, c.cfg.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	out := render.New(sink,
		render.WithSampleRate(c.cfg.OutputSampleRate),
		render.WithQuantum(c.cfg.RenderQuantum),
		render.WithFFTSize(c.cfg.FFTSize),
	)
	out.Start()
	conn := &connection{
		gen:   gen,
		sched: playback.New(out, playback.WithFormat(audio.OutputSampleRate, 1)),
		stop:  make(chan struct{}),
	}
	if !c.install(gen, conn) {
		c.teardown(conn)
		return errStale
	}

	sess, err := c.cfg.Provider.Connect(ctx, lc)
	if err != nil {
		c.metrics.RecordTransportError(ctx, c.cfg.ProviderName, "open")
		return fmt.Errorf("%w: %w", ErrTransportOpen, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = sess.Close()
		return errStale
	}
	conn.sess = sess
	c.active = true
	c.metrics.ActiveSessions.Add(ctx, 1)
	// Listening follows the transport open. A mic failure below moves to Error.
	c.setStateLocked(Listening)
	c.pumps.Go(func() { c.pump(conn) })
	c.mu.Unlock()
	c.notify()

	pipeline := capture.New(c.cfg.Microphone,
		capture.WithSampleRate(lc.InputSampleRate),
		capture.WithBlockSize(c.cfg.BlockSize),
		capture.WithQueueSize(c.cfg.SendQueue),
		capture.WithObserver(func(st capture.Status) {
			c.metrics.RecordAudioBlock(context.Background(), string(st))
		}),
		capture.WithErrorHandler(func(err error) {
			// The reader goroutine is waited on by teardown.
			go c.fail(gen, "Session error: ", err)
		}),
	)
	if err := pipeline.Start(ctx); err != nil {
		_ = pipeline.Close()
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = pipeline.Close()
		return errStale
	}
	conn.capture = pipeline
	pipeline.Attach(sess)
	c.mu.Unlock()
	return nil
}

// install publishes conn as the current connection if gen is still current.
func (c *Controller) install(gen uint64, conn *connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	return true
}

// Disconnect closes the live session, stops capture and playback and
// returns to Idle. It is a no-op when already Idle.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.gen++
	conn := c.detachLocked()
	c.setStateLocked(Idle)
	c.mu.Unlock()

	c.teardown(conn)
	c.log.CompleteTurn()
	c.notify()
	slog.Info("session disconnected")
}

// Close disconnects and waits for the event pump to exit.
func (c *Controller) Close() error {
	c.Disconnect()
	c.pumps.Wait()
	return nil
}

// fail moves the controller to Error if gen is current and tears down the
// connection. The cause is returned unchanged.
func (c *Controller) fail(gen uint64, prefix string, cause error) error {
	if errors.Is(cause, errStale) {
		return nil
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return cause
	}
	c.gen++
	conn := c.detachLocked()
	c.errMsg = prefix + cause.Error()
	c.lastErr = cause
	c.setStateLocked(Error)
	c.mu.Unlock()

	slog.Error("session failed", "err", cause)
	c.teardown(conn)
	c.notify()
	return cause
}

// detachLocked clears the current connection and returns it.
func (c *Controller) detachLocked() *connection {
	conn := c.conn
	c.conn = nil
	if c.active {
		c.active = false
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	return conn
}

// teardown releases every resource of conn. Transport close failures are
// logged and otherwise ignored.
func (c *Controller) teardown(conn *connection) {
	if conn == nil {
		return
	}
	close(conn.stop)
	if conn.capture != nil {
		conn.capture.Detach()
	}
	if conn.sess != nil {
		if err := conn.sess.Close(); err != nil {
			slog.Warn("closing live session", "err", err)
		}
	}
	if conn.capture != nil {
		if err := conn.capture.Close(); err != nil {
			slog.Warn("closing capture", "err", err)
		}
	}
	if conn.sched != nil {
		if err := conn.sched.Close(); err != nil {
			slog.Warn("closing playback", "err", err)
		}
	}
}

// pump forwards transport events of conn until it is stopped or the event
// channel closes.
func (c *Controller) pump(conn *connection) {
	events := conn.sess.Events()
	for {
		select {
		case <-conn.stop:
			return
		case ev, ok := <-events:
			if !ok {
				c.handleClosed(conn.gen, "")
				return
			}
			switch ev.Kind {
			case live.EventMessage:
				c.handleMessage(conn, ev.Message)
			case live.EventError:
				c.metrics.RecordTransportError(context.Background(), c.cfg.ProviderName, "runtime")
				c.fail(conn.gen, "Session error: ", fmt.Errorf("%w: %w", ErrTransportRuntime, ev.Err))
				return
			case live.EventClosed:
				c.handleClosed(conn.gen, ev.Reason)
				return
			}
		}
	}
}

func (c *Controller) handleClosed(gen uint64, reason string) {
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if !current {
		return
	}
	slog.Info("live session closed by server", "reason", reason)
	c.Disconnect()
}

// handleMessage applies one server message: transcription first, then turn
// completion, then audio, then interruption.
func (c *Controller) handleMessage(conn *connection, m live.Message) {
	c.mu.Lock()
	if c.gen != conn.gen {
		c.mu.Unlock()
		return
	}
	ctx := context.Background()

	c.log.AddPartial(transcript.User, m.UserText)
	c.log.AddPartial(transcript.Assistant, m.AssistantText)
	if m.TurnComplete {
		c.log.CompleteTurn()
		c.metrics.RecordTurn(ctx)
	}
	for _, wire := range m.Audio {
		if err := conn.sched.Enqueue(wire); err != nil {
			if errors.Is(err, playback.ErrClosed) {
				break
			}
			slog.Warn("skipping malformed audio chunk", "err", err, "len", len(wire))
			c.metrics.RecordPlaybackChunk(ctx, "malformed")
			continue
		}
		c.metrics.RecordPlaybackChunk(ctx, "scheduled")
	}
	if m.Interrupted {
		stopped := conn.sched.Interrupt()
		c.metrics.RecordInterruption(ctx, stopped)
		slog.Debug("playback interrupted", "stopped", stopped)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	slog.Debug("session state", "from", c.state, "to", s)
	c.state = s
	c.metrics.RecordStateTransition(context.Background(), s.String())
}

func (c *Controller) notify() {
	c.mu.Lock()
	fns := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
