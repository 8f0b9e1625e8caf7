// Package config provides the configuration schema, loader, and provider
// registry for the jarvis voice client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SpeakerBackend selects how synthesised speech is played.
type SpeakerBackend string

const (
	// SpeakerFFplay pipes PCM into an ffplay subprocess.
	SpeakerFFplay SpeakerBackend = "ffplay"

	// SpeakerDiscard renders audio without sending it to a device.
	SpeakerDiscard SpeakerBackend = "discard"
)

// IsValid reports whether b is a recognised speaker backend.
func (b SpeakerBackend) IsValid() bool {
	return b == SpeakerFFplay || b == SpeakerDiscard
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderEntry  `yaml:"provider"`
	Persona  PersonaConfig  `yaml:"persona"`
	Audio    AudioConfig    `yaml:"audio"`
	Failover FailoverConfig `yaml:"failover"`
}

// ServerConfig holds logging and the optional observability listener.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry selects and configures the live speech provider. The Name
// field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("gemini-live", "genai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. A value of the form
	// "${VAR}" is expanded from the environment; an empty key falls back
	// to $API_KEY, then $GEMINI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the prebuilt voice name (e.g., "Charon").
	Voice string `yaml:"voice"`
}

// FailoverConfig lists providers tried, in order, when the primary fails to
// open a session. Each fallback reuses the primary's key, model and voice.
// Failover is disabled when Providers is empty.
type FailoverConfig struct {
	Providers []string `yaml:"providers"`

	// MaxFailures is how many consecutive open failures trip a provider's
	// circuit breaker. Default: 3.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a tripped provider is skipped. Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PersonaConfig holds the assistant's system instructions.
type PersonaConfig struct {
	// Instructions replaces the built-in JARVIS persona when non-empty.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	// InputSampleRate is the capture rate in Hz. Default: 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the speaker device rate in Hz. The service always
	// sends 24 kHz audio, which is resampled to this rate. Default: 24000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// BlockSize is the capture block length in frames. Default: 4096.
	BlockSize int `yaml:"block_size"`

	// SendQueue bounds how many encoded blocks may wait for the transport.
	// Default: 8.
	SendQueue int `yaml:"send_queue"`

	// FFTSize is the analyser window and must be a power of two in
	// [32, 32768]. Default: 256.
	FFTSize int `yaml:"fft_size"`

	// RenderQuantum is the output render period. Default: 20ms.
	RenderQuantum time.Duration `yaml:"render_quantum"`

	Microphone MicrophoneConfig `yaml:"microphone"`
	Speaker    SpeakerConfig    `yaml:"speaker"`
}

// MicrophoneConfig configures the ffmpeg capture subprocess.
type MicrophoneConfig struct {
	// FFmpegPath is the ffmpeg binary. Default: "ffmpeg" from $PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Device is the platform input device. Required on Windows.
	Device string `yaml:"device"`
}

// SpeakerConfig configures playback.
type SpeakerConfig struct {
	// Backend selects the output. Default: ffplay.
	Backend SpeakerBackend `yaml:"backend"`

	// FFplayPath is the ffplay binary. Default: "ffplay" from $PATH.
	FFplayPath string `yaml:"ffplay_path"`
}
