// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controllable sessions.
// Use Session to script inbound events and inspect the audio the client
// streamed.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, live.DefaultConfig())
//	sess.Emit(live.Event{Kind: live.EventMessage, Message: live.Message{UserText: "Hi"}})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/live"
)

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh
	// NewSession for every call.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records the Config of every Connect call in order.
	ConnectCalls []live.Config

	// Sessions records every session handed out by Connect.
	Sessions []*Session
}

var _ live.Provider = (*Provider)(nil)

// Connect records the call and returns Session or ConnectErr.
func (p *Provider) Connect(_ context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := p.Session
	if s == nil {
		s = NewSession()
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// ConnectCount returns how many times Connect was called.
func (p *Provider) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// LastSession returns the most recently returned session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	events chan live.Event
	closed bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// ErrVal is returned by Err.
	ErrVal error

	sent       []string
	closeCalls int
}

var _ live.Session = (*Session)(nil)

// NewSession returns a session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64)}
}

// Emit queues ev for delivery on Events. It is a no-op after Close.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// EmitMessage is shorthand for emitting an EventMessage.
func (s *Session) EmitMessage(m live.Message) {
	s.Emit(live.Event{Kind: live.EventMessage, Message: m})
}

// SendAudio records wire and returns SendAudioErr.
func (s *Session) SendAudio(wire string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.sent = append(s.sent, wire)
	return nil
}

// Events implements live.Session.
func (s *Session) Events() <-chan live.Event { return s.events }

// Close records the call and closes the event channel once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return s.CloseErr
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Sent returns a copy of every wire block passed to SendAudio.
func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
