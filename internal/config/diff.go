package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true if the persona, voice or model changed. The new
	// values take effect on the next connect.
	SessionChanged bool

	// RestartRequired lists changed fields that are only read at startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Persona != new.Persona ||
		old.Provider.Voice != new.Provider.Voice ||
		old.Provider.Model != new.Provider.Model {
		d.SessionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Provider.Name != new.Provider.Name ||
		old.Provider.APIKey != new.Provider.APIKey ||
		old.Provider.BaseURL != new.Provider.BaseURL {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if !slices.Equal(old.Failover.Providers, new.Failover.Providers) ||
		old.Failover.MaxFailures != new.Failover.MaxFailures ||
		old.Failover.ResetTimeout != new.Failover.ResetTimeout {
		d.RestartRequired = append(d.RestartRequired, "failover")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}

	return d
}
