// Package live defines the Provider interface for real-time speech sessions.
//
// A live provider wraps a hosted voice model that accepts a continuous stream
// of microphone audio and answers with synthesised speech and running
// transcriptions, all over one long-lived bidirectional session. The session
// is the hot path of the voice client: SendAudio must return quickly and
// inbound traffic is delivered on a single ordered event channel.
//
// Audio crosses this boundary in its wire form: base64 text wrapping
// little-endian signed 16-bit mono PCM (see [audio.EncodeWire]). Providers do
// not decode inbound audio; the playback scheduler does.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// DefaultModel is the native-audio Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultInstructions is the assistant persona sent as the system instruction.
const DefaultInstructions = "You are JARVIS, a witty, intelligent, and slightly sarcastic AI assistant created by Tony Stark. " +
	"Your responses must be concise, helpful, and reflect this persona. " +
	"Address the user as 'Sir' or 'Ma'am' when appropriate. " +
	"Maintain a professional yet personable tone. Do not use emojis."

// ErrSessionClosed is returned by Session methods after Close.
var ErrSessionClosed = errors.New("live: session closed")

// Config is the initial configuration for a live session.
type Config struct {
	// Model names the hosted model. Empty selects the provider default.
	Model string

	// Instructions is the system instruction defining the persona.
	Instructions string

	// Voice selects a prebuilt voice. Empty selects the model default.
	Voice string

	// AudioOutput requests spoken responses. When false the model answers
	// in text only.
	AudioOutput bool

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool

	// InputSampleRate is the rate of the audio passed to SendAudio.
	InputSampleRate int
}

// DefaultConfig returns the configuration used by the assistant: spoken
// output, both transcriptions and the JARVIS persona.
func DefaultConfig() Config {
	return Config{
		Model:               DefaultModel,
		Instructions:        DefaultInstructions,
		AudioOutput:         true,
		InputTranscription:  true,
		OutputTranscription: true,
		InputSampleRate:     audio.InputSampleRate,
	}
}

// EventKind discriminates [Event] values.
type EventKind int

const (
	// EventMessage carries server content in [Event.Message].
	EventMessage EventKind = iota

	// EventError reports a runtime transport failure in [Event.Err]. It is
	// the last event before the channel closes.
	EventError

	// EventClosed reports that the remote side ended the session. It is the
	// last event before the channel closes.
	EventClosed
)

// String implements [fmt.Stringer].
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is one inbound server message. Any combination of fields may be
// set; empty strings mean "absent".
type Message struct {
	// UserText is a fragment of the running transcription of the user.
	UserText string

	// AssistantText is a fragment of the running transcription of the model.
	AssistantText string

	// TurnComplete marks the end of a conversational turn.
	TurnComplete bool

	// Interrupted reports that the user barged in and queued playback must
	// be discarded.
	Interrupted bool

	// Audio holds wire-encoded 24 kHz PCM chunks in arrival order.
	Audio []string
}

// Empty reports whether m carries nothing.
func (m Message) Empty() bool {
	return m.UserText == "" && m.AssistantText == "" && !m.TurnComplete && !m.Interrupted && len(m.Audio) == 0
}

// Event is delivered on [Session.Events].
type Event struct {
	Kind    EventKind
	Message Message

	// Err is set for EventError.
	Err error

	// Reason is the close reason for EventClosed, if the server sent one.
	Reason string
}

// Session is an open live session. The session has already been accepted by
// the server when [Provider.Connect] returns it.
type Session interface {
	// SendAudio streams one wire-encoded block of microphone audio.
	SendAudio(wire string) error

	// Events returns the inbound event stream. The channel is closed when
	// the session ends for any reason.
	Events() <-chan Event

	// Close terminates the session and stops the receive loop, which then
	// closes the event channel. Calling Close more than once is safe and
	// returns nil.
	Close() error

	// Err returns the error that ended the session, or nil.
	Err() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect dials the service, sends the session setup and waits until the
	// server accepts it. The caller owns the returned Session.
	Connect(ctx context.Context, cfg Config) (Session, error)
}
