package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true when the transcript vocabulary or its
	// matching thresholds changed.
	VocabularyChanged bool
	NewVocabulary     []string
}

// HasChanges reports whether the diff contains any hot-reloadable change.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider,
// server, and store settings require a restart and are ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) ||
		old.Transcript.PhoneticThreshold != new.Transcript.PhoneticThreshold ||
		old.Transcript.FuzzyThreshold != new.Transcript.FuzzyThreshold {
		d.VocabularyChanged = true
		d.NewVocabulary = new.Transcript.Vocabulary
	}

	return d
}
