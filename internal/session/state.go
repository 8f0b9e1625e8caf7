package session

import "errors"

// State is the lifecycle state of a [Controller].
type State int

const (
	// Idle means no session is open. It is the initial state.
	Idle State = iota

	// Connecting means a session is being opened.
	Connecting

	// Listening means the session is open and the microphone is streaming.
	Listening

	// Error means the last session attempt or session failed. The error
	// message is available from [Controller.Snapshot].
	Error
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrTransportOpen wraps failures to open the live session.
	ErrTransportOpen = errors.New("session: transport open failed")

	// ErrTransportRuntime wraps failures reported by an open live session.
	ErrTransportRuntime = errors.New("session: transport error")

	// ErrMissingAPIKey is returned by Connect when no API key is configured.
	ErrMissingAPIKey = errors.New("API key not set (configure provider.api_key or export API_KEY)")
)
