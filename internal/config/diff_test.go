package config_test

import (
	"testing"

	"github.com/mallard-ai/mallard/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	old.Transcript.Vocabulary = []string{"Eldrinax"}

	newCfg := &config.Config{}
	newCfg.Server.LogLevel = config.LogInfo
	newCfg.Transcript.Vocabulary = []string{"Eldrinax"}

	d := config.Diff(old, newCfg)
	if d.HasChanges() {
		t.Errorf("diff = %+v; want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	newCfg := &config.Config{}
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(old, newCfg)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q; want debug", d.NewLogLevel)
	}
}

func TestDiff_Vocabulary(t *testing.T) {
	t.Parallel()

	old := &config.Config{}
	old.Transcript.Vocabulary = []string{"Eldrinax"}
	newCfg := &config.Config{}
	newCfg.Transcript.Vocabulary = []string{"Eldrinax", "Grimjaw"}

	d := config.Diff(old, newCfg)
	if !d.VocabularyChanged {
		t.Fatal("vocabulary change not detected")
	}
	if len(d.NewVocabulary) != 2 {
		t.Errorf("NewVocabulary = %v", d.NewVocabulary)
	}
}

func TestDiff_ThresholdCountsAsVocabularyChange(t *testing.T) {
	t.Parallel()

	old := &config.Config{}
	old.Transcript.PhoneticThreshold = 0.7
	newCfg := &config.Config{}
	newCfg.Transcript.PhoneticThreshold = 0.8

	d := config.Diff(old, newCfg)
	if !d.VocabularyChanged {
		t.Error("threshold change not detected")
	}
}
