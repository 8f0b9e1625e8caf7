package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/jarvis/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Provider: config.ProviderEntry{Name: "gemini-live", APIKey: "k", Voice: "Charon"},
		Persona:  config.PersonaConfig{Instructions: "Be brief."},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.SessionChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_SessionChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"persona", func(c *config.Config) { c.Persona.Instructions = "Be verbose." }},
		{"voice", func(c *config.Config) { c.Provider.Voice = "Puck" }},
		{"model", func(c *config.Config) { c.Provider.Model = "other-model" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !d.SessionChanged {
				t.Error("expected SessionChanged=true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Provider.APIKey = "rotated"
	new.Audio.BlockSize = 1024

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "provider", "audio"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.SessionChanged {
		t.Error("SessionChanged should be false")
	}
}

func TestDiff_FailoverRequiresRestart(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Failover.Providers = []string{"genai"}

	d := config.Diff(old, new)
	if !slices.Equal(d.RestartRequired, []string{"failover"}) {
		t.Errorf("RestartRequired = %v, want [failover]", d.RestartRequired)
	}
}
