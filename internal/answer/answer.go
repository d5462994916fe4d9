// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package answer synthesizes a cited answer for one question from its
// evidence bundle. The model only ever sees evidence from the bundle, and
// citations only ever point back into it.
package answer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// InsufficientEvidence is the fixed answer text for a question whose bundle
// came back empty. An empty bundle is answered honestly, not failed and not
// handed to the model to guess at.
const InsufficientEvidence = "Insufficient evidence: no usable search results were found for this question."

const defaultMaxSourceChars = 4000

// synthesisPromptTmpl feeds the question and formatted sources to the model.
// The verdict-first requirement keeps answers aligned with the yes/no
// framing of the questions.
var synthesisPromptTmpl = template.Must(template.New("synthesis").Parse(
	`You are a research analyst. Answer the following yes/no research question using only the search results provided below.

Question: {{.Question}}

Requirements:
- Open with a clear verdict: "Yes", "No", or "Unclear", followed by a concise justification.
- Ground every claim in the search results; do not use outside knowledge.
- Reference supporting sources by their URL.
- Keep the answer under 250 words.

Search results:

{{.Sources}}`))

// Synthesizer produces one Answer per question.
type Synthesizer struct {
	Client     llm.Client
	Cfg        types.ResearchConfig
	MaxRetries int
}

// Synthesize answers q from bundle. An empty bundle short-circuits to the
// insufficient-evidence answer without a model call. Citations are the
// bundle URLs the answer text mentions, in bundle order; when the model
// grounds nothing explicitly they default to the enriched subset.
func (s *Synthesizer) Synthesize(ctx context.Context, q types.Question, bundle types.EvidenceBundle) (types.Answer, error) {
	if len(bundle.Evidence) == 0 {
		return types.Answer{QuestionID: q.ID, Text: InsufficientEvidence}, nil
	}

	maxChars := s.Cfg.MaxSourceChars
	if maxChars <= 0 {
		maxChars = defaultMaxSourceChars
	}

	var buf bytes.Buffer
	err := synthesisPromptTmpl.Execute(&buf, struct{ Question, Sources string }{
		Question: q.Text,
		Sources:  FormatSources(bundle, maxChars),
	})
	if err != nil {
		return types.Answer{}, fmt.Errorf("rendering synthesis prompt: %w", err)
	}

	resp, err := llm.CompleteWithRetry(ctx, s.Client, buf.String(), s.MaxRetries)
	if err != nil {
		return types.Answer{}, fmt.Errorf("synthesizing answer for question %d: %w", q.ID, err)
	}

	text := llm.StripReasoning(resp)
	if text == "" {
		return types.Answer{}, fmt.Errorf("synthesizing answer for question %d: model returned empty text", q.ID)
	}

	citations := citedURLs(text, bundle)
	if len(citations) == 0 {
		citations = s.enrichedURLs(bundle)
	}

	return types.Answer{QuestionID: q.ID, Text: text, Citations: citations}, nil
}

// FormatSources serializes a bundle for the synthesis prompt: one block per
// evidence entry with title, URL, snippet, and any fetched content truncated
// to maxChars.
func FormatSources(bundle types.EvidenceBundle, maxChars int) string {
	var b strings.Builder
	for i, ev := range bundle.Evidence {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Source %d: %s\n", i+1, ev.Title)
		fmt.Fprintf(&b, "URL: %s\n", ev.URL)
		if ev.Snippet != "" {
			fmt.Fprintf(&b, "Summary: %s\n", ev.Snippet)
		}
		if ev.Content != "" {
			fmt.Fprintf(&b, "Content: %s\n", truncate(ev.Content, maxChars))
		}
	}
	return b.String()
}

// truncate cuts s at maxChars with an explicit marker, so the model knows
// the source continues beyond what it sees.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + "... [truncated]"
}

// citedURLs returns the bundle URLs mentioned in text, preserving bundle
// order. URLs the model invents are never returned.
func citedURLs(text string, bundle types.EvidenceBundle) []string {
	var cited []string
	for _, ev := range bundle.Evidence {
		if strings.Contains(text, ev.URL) {
			cited = append(cited, ev.URL)
		}
	}
	return cited
}

// enrichedURLs returns the URLs of the enriched subset, falling back to the
// whole bundle when nothing was enriched.
func (s *Synthesizer) enrichedURLs(bundle types.EvidenceBundle) []string {
	var urls []string
	for _, ev := range bundle.Evidence {
		if ev.Content != "" {
			urls = append(urls, ev.URL)
		}
	}
	if len(urls) > 0 {
		return urls
	}

	top := s.Cfg.EnrichTop
	if top <= 0 {
		top = 3
	}
	if top > len(bundle.Evidence) {
		top = len(bundle.Evidence)
	}
	return bundle.URLs()[:top]
}
