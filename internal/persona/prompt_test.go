package persona

import (
	"strings"
	"testing"
)

func TestBuildSystemPromptSections(t *testing.T) {
	p := New("Ada")
	p.Interview = []QA{
		{Question: "Who are you?", Answer: "I am Ada, an engineer."},
		{Question: "What do you build?", Answer: "Analytical engines."},
	}
	p.Documents = []DocumentExcerpt{
		{Filename: "notes.md", Excerpt: "Notes on computation."},
	}

	prompt := BuildSystemPrompt(p)

	for _, want := range []string{
		"You are Ada, a digital twin",
		"## About You",
		"Q: Who are you?",
		"A: I am Ada, an engineer.",
		"## Your Documents",
		"[notes.md]",
		"Notes on computation.",
		"## How You Speak",
		"first person as Ada",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\nprompt:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	prompt := BuildSystemPrompt(New("Ada"))

	if strings.Contains(prompt, "## About You") {
		t.Error("interview section rendered for persona without interview")
	}
	if strings.Contains(prompt, "## Your Documents") {
		t.Error("documents section rendered for persona without documents")
	}
	if !strings.Contains(prompt, "## How You Speak") {
		t.Error("speaking instructions missing")
	}
}

func TestBuildSystemPromptNilPersona(t *testing.T) {
	prompt := BuildSystemPrompt(nil)
	if !strings.Contains(prompt, "You are the person described below") {
		t.Errorf("nil persona fallback missing, got:\n%s", prompt)
	}
}

func TestBuildSystemPromptSkipsUnansweredQuestions(t *testing.T) {
	p := New("Ada")
	p.Interview = []QA{
		{Question: "Skipped?", Answer: "   "},
		{Question: "Answered?", Answer: "Yes."},
	}

	prompt := BuildSystemPrompt(p)
	if strings.Contains(prompt, "Skipped?") {
		t.Error("unanswered question rendered in prompt")
	}
	if !strings.Contains(prompt, "Q: Answered?") {
		t.Error("answered question missing from prompt")
	}
}
