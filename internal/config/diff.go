package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that
// can be hot-reloaded without a restart are tracked; listen address, storage
// paths, and provider credentials all need a restart.
type ConfigDiff struct {
	// LogLevelChanged is true when server.log_level changed.
	LogLevelChanged bool
	// NewLogLevel is the level to apply when LogLevelChanged.
	NewLogLevel LogLevel

	// QuestionsChanged is true when the interview script changed. Running
	// sessions keep the script they started with; new sessions pick up the
	// new questions.
	QuestionsChanged bool
	// NewQuestions is the script to apply when QuestionsChanged.
	NewQuestions []string
}

// Changed reports whether the diff carries any reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.QuestionsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Interview.Questions, new.Interview.Questions) {
		d.QuestionsChanged = true
		d.NewQuestions = slices.Clone(new.Interview.Questions)
	}

	return d
}
