// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package question turns a topic and domain into the five yes/no research
// questions the rest of the pipeline works through. One model call, strict
// parsing: fewer than five usable questions is an error, never a shorter
// session.
package question

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Count is the fixed number of research questions per session.
const Count = 5

// ErrQuestionCount is wrapped by Generate when the model response parses to
// fewer than Count questions.
var ErrQuestionCount = errors.New("model returned too few usable questions")

// generationPromptTmpl asks for exactly five yes/no questions, one per line,
// so the response parses without any structure beyond line breaks.
var generationPromptTmpl = template.Must(template.New("generation").Parse(
	`You are a research planning assistant. Generate exactly 5 specific yes/no research questions about the topic "{{.Topic}}" in the domain "{{.Domain}}".

Requirements:
- Each question must be answerable with yes or no based on web research.
- Each question must cover a distinct aspect of the topic.
- Write one question per line, numbered 1. through 5.
- Output only the numbered questions, no introduction or commentary.
`))

// Generator produces the question set for a session.
type Generator struct {
	Client     llm.Client
	MaxRetries int
}

// Generate asks the model for five yes/no questions about topic in domain
// and parses them out of the response. Questions get IDs 1..5 in response
// order. When the response yields fewer than five questions, Generate fails
// wrapping ErrQuestionCount; surplus lines beyond five are discarded.
func (g *Generator) Generate(ctx context.Context, topic, domain string) ([]types.Question, error) {
	var buf bytes.Buffer
	err := generationPromptTmpl.Execute(&buf, struct{ Topic, Domain string }{topic, domain})
	if err != nil {
		return nil, fmt.Errorf("rendering generation prompt: %w", err)
	}

	resp, err := llm.CompleteWithRetry(ctx, g.Client, buf.String(), g.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	texts := ParseQuestions(resp)
	if len(texts) < Count {
		return nil, fmt.Errorf("%w: got %d of %d", ErrQuestionCount, len(texts), Count)
	}

	questions := make([]types.Question, Count)
	for i, text := range texts[:Count] {
		questions[i] = types.Question{ID: i + 1, Text: text}
	}
	return questions, nil
}

// listMarker matches leading numbering or bullets: "1.", "2)", "-", "*".
var listMarker = regexp.MustCompile(`^(?:\d+[.):]?|[-*+])\s*`)

// ParseQuestions extracts question lines from a raw model response. It
// strips reasoning markup, then per line removes list numbering, bullets,
// bold markers, and surrounding quotes, keeping lines that end with a
// question mark. Prose and blank lines are dropped.
func ParseQuestions(raw string) []string {
	var questions []string
	for _, line := range strings.Split(llm.StripReasoning(raw), "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.Trim(line, `"“”`)
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasSuffix(line, "?") {
			continue
		}
		questions = append(questions, line)
	}
	return questions
}
