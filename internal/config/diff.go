package config

// ConfigDiff describes what changed between two configs. The log level is
// the only field applied live; everything else is reported so the operator
// knows a restart is needed.
type ConfigDiff struct {
	// LogLevelChanged is set when logging.level differs; NewLogLevel holds
	// the value to apply.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartNeeded lists the config sections whose changes only take
	// effect on restart.
	RestartNeeded []string
}

// Changed reports whether the two configs differ at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartNeeded) > 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	sections := []struct {
		name    string
		changed bool
	}{
		{"server", old.Server != new.Server},
		{"logging.format", old.Logging.Format != new.Logging.Format},
		{"audio", old.Audio != new.Audio},
		{"providers", old.Providers != new.Providers},
		{"prompt", old.Prompt != new.Prompt},
		{"tools", old.Tools != new.Tools},
		{"observe", old.Observe != new.Observe},
	}
	for _, s := range sections {
		if s.changed {
			d.RestartNeeded = append(d.RestartNeeded, s.name)
		}
	}
	return d
}
