// Package genailive implements the live.Provider interface on top of the
// official google.golang.org/genai Live client.
//
// It is functionally equivalent to the hand-rolled gemini package but lets
// the SDK own the handshake, model naming and backend selection, which makes
// it the better fit for Vertex AI deployments.
package genailive

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/live"
)

var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const eventBuffer = 64

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model used when [live.Config.Model] is empty.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the service base URL. A ws:// or wss:// scheme is
// used as-is; anything else is upgraded to wss.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithAPIVersion overrides the API version segment (default v1beta).
func WithAPIVersion(v string) Option {
	return func(p *Provider) { p.apiVersion = v }
}

// WithHTTPClient sets the HTTP client handed to the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider opens live sessions through the genai SDK.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// New creates a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: live.DefaultModel}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect opens a session and waits for the server to acknowledge the setup.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    p.baseURL,
			APIVersion: p.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genailive: client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	rate := cfg.InputSampleRate
	if rate <= 0 {
		rate = audio.InputSampleRate
	}

	conn, err := client.Live.Connect(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genailive: connect: %w", err)
	}

	s := &session{
		conn:     conn,
		mimeType: "audio/pcm;rate=" + strconv.Itoa(rate),
		events:   make(chan live.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	if err := s.awaitSetupComplete(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("genailive: setup: %w", err)
	}
	go s.receiveLoop()
	return s, nil
}

func connectConfig(cfg live.Config) *genai.LiveConnectConfig {
	modality := genai.ModalityText
	if cfg.AudioOutput {
		modality = genai.ModalityAudio
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{modality},
	}
	if cfg.Instructions != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.Instructions, genai.RoleUser)
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// toMessage folds SDK server content into a live.Message. Inline audio is
// re-encoded to its wire form because the SDK decodes base64 eagerly.
func toMessage(sc *genai.LiveServerContent) live.Message {
	var m live.Message
	if sc.InputTranscription != nil {
		m.UserText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		m.AssistantText = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			m.Audio = append(m.Audio, base64.StdEncoding.EncodeToString(p.InlineData.Data))
		}
	}
	m.TurnComplete = sc.TurnComplete
	m.Interrupted = sc.Interrupted
	return m
}

type session struct {
	conn     *genai.Session
	mimeType string
	events   chan live.Event

	// writeMu serialises writes; the SDK connection allows one writer.
	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error
	closed bool
	done   chan struct{}
}

type received struct {
	msg *genai.LiveServerMessage
	err error
}

// awaitSetupComplete blocks until setupComplete arrives or ctx is done. The
// SDK's Receive has no context, so cancellation closes the connection.
func (s *session) awaitSetupComplete(ctx context.Context) error {
	ch := make(chan received, 1)
	go func() {
		for {
			msg, err := s.conn.Receive()
			if err != nil || msg.SetupComplete != nil {
				ch <- received{msg: msg, err: err}
				return
			}
		}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			if reason, ok := closeReason(r.err); ok && reason != "" {
				return fmt.Errorf("closed by server: %s", reason)
			}
			return r.err
		}
		return nil
	case <-ctx.Done():
		_ = s.conn.Close()
		<-ch
		return ctx.Err()
	}
}

func (s *session) receiveLoop() {
	defer close(s.events)

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.isClosed() {
				return
			}
			if reason, ok := closeReason(err); ok {
				s.emit(live.Event{Kind: live.EventClosed, Reason: reason})
				return
			}
			err = fmt.Errorf("genailive: receive: %w", err)
			s.setErr(err)
			s.emit(live.Event{Kind: live.EventError, Err: err})
			return
		}
		if msg.GoAway != nil {
			slog.Info("genailive: server going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent == nil {
			continue
		}
		m := toMessage(msg.ServerContent)
		if !m.Empty() && !s.emit(live.Event{Kind: live.EventMessage, Message: m}) {
			return
		}
	}
}

func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func closeReason(err error) (string, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Text, true
	}
	return "", false
}

// SendAudio decodes the wire block and streams it as realtime audio input.
func (s *session) SendAudio(wire string) error {
	if s.isClosed() {
		return fmt.Errorf("genailive: %w", live.ErrSessionClosed)
	}
	raw, err := audio.DecodeWire(wire)
	if err != nil {
		return fmt.Errorf("genailive: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: s.mimeType, Data: raw},
	})
}

// Events returns the inbound event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Err returns the error that ended the session, or nil.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
