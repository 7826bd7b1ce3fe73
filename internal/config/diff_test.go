package config_test

import (
	"testing"

	"github.com/technolifts/presence/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Interview: config.InterviewConfig{
			Questions: []string{"Who are you?", "What do you do?"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("Diff of identical configs reports changes: %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.QuestionsChanged {
		t.Error("QuestionsChanged = true for log-level-only change")
	}
}

func TestDiff_QuestionsChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Interview.Questions = []string{"Who are you?", "What matters to you?"}

	d := config.Diff(old, new)
	if !d.QuestionsChanged {
		t.Fatal("QuestionsChanged = false, want true")
	}
	if len(d.NewQuestions) != 2 || d.NewQuestions[1] != "What matters to you?" {
		t.Errorf("NewQuestions = %q", d.NewQuestions)
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged = true for questions-only change")
	}
}

func TestDiff_QuestionsReordered(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Interview.Questions = []string{"What do you do?", "Who are you?"}

	d := config.Diff(old, new)
	if !d.QuestionsChanged {
		t.Error("reordering the script should count as a change")
	}
}

func TestDiff_NewQuestionsDetached(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Interview.Questions = []string{"Only question?"}

	d := config.Diff(old, new)
	new.Interview.Questions[0] = "mutated"
	if d.NewQuestions[0] != "Only question?" {
		t.Error("NewQuestions aliases the new config's slice")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogError
	new.Interview.Questions = append(new.Interview.Questions, "Anything else?")

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.QuestionsChanged {
		t.Errorf("diff missed a change: %+v", d)
	}
	if !d.Changed() {
		t.Error("Changed() = false with two changes")
	}
}
