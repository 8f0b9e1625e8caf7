package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known live provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"gemini-live", "genai"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultProvider         = "gemini-live"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultBlockSize        = 4096
	DefaultSendQueue        = 8
	DefaultFFTSize          = 256
	DefaultRenderQuantum    = 20 * time.Millisecond
	DefaultMaxFailures      = 3
	DefaultResetTimeout     = 30 * time.Second
)

// apiKeyEnv lists the environment variables consulted, in order, when no API
// key is configured.
var apiKeyEnv = []string{"API_KEY", "GEMINI_API_KEY"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, resolves the API key, applies
// defaults and validates the result. An empty document yields the defaults.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Provider.APIKey = ResolveAPIKey(cfg.Provider.APIKey, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveAPIKey expands a "${VAR}" reference using lookup and falls back to
// $API_KEY, then $GEMINI_API_KEY, when the result is empty. Literal keys are
// returned unchanged.
func ResolveAPIKey(key string, lookup func(string) (string, bool)) string {
	key = strings.TrimSpace(key)
	if name, ok := strings.CutPrefix(key, "${"); ok {
		if name, ok = strings.CutSuffix(name, "}"); ok {
			key, _ = lookup(name)
		}
	}
	if key != "" {
		return key
	}
	for _, name := range apiKeyEnv {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}
	a := &cfg.Audio
	if a.InputSampleRate == 0 {
		a.InputSampleRate = DefaultInputSampleRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = DefaultOutputSampleRate
	}
	if a.BlockSize == 0 {
		a.BlockSize = DefaultBlockSize
	}
	if a.SendQueue == 0 {
		a.SendQueue = DefaultSendQueue
	}
	if a.FFTSize == 0 {
		a.FFTSize = DefaultFFTSize
	}
	if a.RenderQuantum == 0 {
		a.RenderQuantum = DefaultRenderQuantum
	}
	if a.Speaker.Backend == "" {
		a.Speaker.Backend = SpeakerFFplay
	}
	if len(cfg.Failover.Providers) > 0 {
		if cfg.Failover.MaxFailures == 0 {
			cfg.Failover.MaxFailures = DefaultMaxFailures
		}
		if cfg.Failover.ResetTimeout == 0 {
			cfg.Failover.ResetTimeout = DefaultResetTimeout
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// A missing API key is only warned about: the session reports it on connect.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider
	validateProviderName(cfg.Provider.Name)
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty and neither API_KEY nor GEMINI_API_KEY is set; connecting will fail")
	}

	// Failover
	for i, name := range cfg.Failover.Providers {
		if name == cfg.Provider.Name {
			errs = append(errs, fmt.Errorf("failover.providers[%d] %q repeats the primary provider", i, name))
			continue
		}
		validateProviderName(name)
	}
	if cfg.Failover.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("failover.max_failures %d must be positive", cfg.Failover.MaxFailures))
	}
	if cfg.Failover.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("failover.reset_timeout %s must be positive", cfg.Failover.ResetTimeout))
	}

	// Audio
	a := cfg.Audio
	if a.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must be positive", a.InputSampleRate))
	}
	if a.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", a.OutputSampleRate))
	}
	if a.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", a.BlockSize))
	}
	if a.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("audio.send_queue %d must be positive", a.SendQueue))
	}
	if a.FFTSize != 0 && (a.FFTSize < 32 || a.FFTSize > 32768 || a.FFTSize&(a.FFTSize-1) != 0) {
		errs = append(errs, fmt.Errorf("audio.fft_size %d must be a power of two in [32, 32768]", a.FFTSize))
	}
	if a.RenderQuantum < 0 {
		errs = append(errs, fmt.Errorf("audio.render_quantum %s must be positive", a.RenderQuantum))
	}
	if a.Speaker.Backend != "" && !a.Speaker.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.speaker.backend %q is invalid; valid values: ffplay, discard", a.Speaker.Backend))
	}
	if a.InputSampleRate > 0 && a.InputSampleRate != DefaultInputSampleRate {
		slog.Warn("audio.input_sample_rate differs from the rate the live service expects",
			"configured", a.InputSampleRate,
			"expected", DefaultInputSampleRate,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
