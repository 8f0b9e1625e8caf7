package main

import (
	"context"
	"fmt"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/audio/device"
	"github.com/MrWong99/jarvis/pkg/provider/live"
	"github.com/MrWong99/jarvis/pkg/provider/live/gemini"
	"github.com/MrWong99/jarvis/pkg/provider/live/genailive"
)

// registerBuiltinProviders wires the live provider factories into reg.
//
//   - "gemini-live" speaks the BidiGenerateContent protocol directly over a
//     WebSocket.
//   - "genai" goes through the Google Gen AI SDK's live client.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("genai", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []genailive.Option
		if entry.Model != "" {
			opts = append(opts, genailive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, genailive.WithBaseURL(entry.BaseURL))
		}
		return genailive.New(entry.APIKey, opts...), nil
	})
}

// buildProvider creates the configured live provider. When failover
// providers are listed, the primary and each fallback are placed behind
// circuit breakers in a [resilience.Fallback]; fallbacks share the primary's
// credentials and model.
func buildProvider(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (live.Provider, error) {
	primary, err := reg.CreateLive(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if len(cfg.Failover.Providers) == 0 {
		return primary, nil
	}

	fb := resilience.NewFallback(cfg.Provider.Name, primary, resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Failover.MaxFailures,
		ResetTimeout: cfg.Failover.ResetTimeout,
		OnStateChange: func(name string, _, to resilience.State) {
			metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	for _, name := range cfg.Failover.Providers {
		entry := cfg.Provider
		entry.Name = name
		p, err := reg.CreateLive(entry)
		if err != nil {
			return nil, fmt.Errorf("failover provider: %w", err)
		}
		fb.Add(name, p)
	}
	return fb, nil
}

// liveConfig derives the session configuration from cfg.
func liveConfig(cfg *config.Config) live.Config {
	lc := live.DefaultConfig()
	if cfg.Provider.Model != "" {
		lc.Model = cfg.Provider.Model
	}
	lc.Voice = cfg.Provider.Voice
	if cfg.Persona.Instructions != "" {
		lc.Instructions = cfg.Persona.Instructions
	}
	if cfg.Audio.InputSampleRate > 0 {
		lc.InputSampleRate = cfg.Audio.InputSampleRate
	}
	return lc
}

// buildDevices returns the host audio endpoints selected by a.
func buildDevices(a config.AudioConfig) (device.Microphone, device.Speaker) {
	mic := &device.FFmpegMicrophone{
		Path:   a.Microphone.FFmpegPath,
		Device: a.Microphone.Device,
	}
	var speaker device.Speaker = &device.FFplaySpeaker{Path: a.Speaker.FFplayPath}
	if a.Speaker.Backend == config.SpeakerDiscard {
		speaker = device.DiscardSpeaker{}
	}
	return mic, speaker
}
