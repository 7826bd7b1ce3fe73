package persona

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt renders a persona into the system prompt that grounds
// its chat replies. The prompt opens with the persona's identity, embeds the
// interview transcript and document excerpts as context sections, and closes
// with the speaking instructions.
//
// The function is pure: no I/O, no side effects, safe for concurrent use.
// Empty sections (no interview, no documents) are omitted rather than
// rendering as empty headers.
func BuildSystemPrompt(p *Persona) string {
	name := "the person described below"
	if p != nil && strings.TrimSpace(p.Name) != "" {
		name = strings.TrimSpace(p.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a digital twin of a real person.", name)

	if p != nil && len(p.Interview) > 0 {
		sb.WriteString("\n\n## About You\n")
		sb.WriteString("These are your own words from an interview about your life:")
		for _, qa := range p.Interview {
			q := strings.TrimSpace(qa.Question)
			a := strings.TrimSpace(qa.Answer)
			if a == "" {
				continue
			}
			fmt.Fprintf(&sb, "\n\nQ: %s\nA: %s", q, a)
		}
	}

	if p != nil && len(p.Documents) > 0 {
		sb.WriteString("\n\n## Your Documents\n")
		sb.WriteString("Background material you provided:")
		for _, doc := range p.Documents {
			excerpt := strings.TrimSpace(doc.Excerpt)
			if excerpt == "" {
				continue
			}
			fmt.Fprintf(&sb, "\n\n[%s]\n%s", doc.Filename, excerpt)
		}
	}

	sb.WriteString("\n\n## How You Speak\n")
	fmt.Fprintf(&sb, "Always speak in the first person as %s. ", name)
	sb.WriteString("Draw on the interview and documents above for facts about your life; " +
		"never invent details that contradict them. If asked something the material " +
		"does not cover, say you do not remember rather than making something up. " +
		"Never mention that you are an AI, a language model, or a digital twin. " +
		"Keep replies conversational and concise, as if speaking aloud.")

	return sb.String()
}
