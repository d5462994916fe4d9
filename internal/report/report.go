// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report composes the final three-part research report from a
// session's questions and answers, and renders the structured result to
// Markdown or HTML. Composition is all-or-nothing: it refuses incomplete
// answer sets and refuses model output missing any of the three parts.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/question"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrIncompleteAnswers is returned when composition is attempted before
// every question has an answer. The model is never called in that case.
var ErrIncompleteAnswers = errors.New("session does not have an answer for every question")

// ErrMissingParts is wrapped when the model response lacks one of the three
// required report parts. A partially-labeled report is never returned.
var ErrMissingParts = errors.New("report response missing required sections")

const (
	summaryHeading    = "Executive Summary"
	conclusionHeading = "Conclusion"
)

// compositionPromptTmpl enumerates every question/answer pair with its
// citations and pins the response structure to recognizable headings.
var compositionPromptTmpl = template.Must(template.New("composition").Parse(
	`You are a research analyst writing a structured report on the topic "{{.Topic}}" in the domain "{{.Domain}}". The research answered the following questions:

{{range .Items}}Question {{.ID}}: {{.Question}}
Answer: {{.Answer}}
{{if .Citations}}Sources: {{.Citations}}
{{end}}
{{end}}Write the report in Markdown with exactly this structure:
- A section titled "## Executive Summary" introducing the topic and stating the key findings.
- One or more "## " analysis sections, each covering a theme that emerged from the answers.
- A section titled "## Conclusion" with implications and recommendations.

Use only the findings above. Output only the report, no preamble.`))

type promptItem struct {
	ID        int
	Question  string
	Answer    string
	Citations string
}

// Composer produces the report for a completed session.
type Composer struct {
	Client     llm.Client
	MaxRetries int
}

// Compose gates on a complete answer set, makes the single composition
// call, and parses the response into a structured Report. An incomplete
// session fails with ErrIncompleteAnswers before any model call; a response
// that cannot be split into summary, analysis, and conclusion fails
// wrapping ErrMissingParts.
func (c *Composer) Compose(ctx context.Context, s *types.Session) (types.Report, error) {
	if err := checkComplete(s); err != nil {
		return types.Report{}, err
	}

	items := make([]promptItem, 0, len(s.Questions))
	for _, q := range s.Questions {
		ans := s.Answer(q.ID)
		items = append(items, promptItem{
			ID:        q.ID,
			Question:  q.Text,
			Answer:    ans.Text,
			Citations: strings.Join(ans.Citations, ", "),
		})
	}

	var buf bytes.Buffer
	err := compositionPromptTmpl.Execute(&buf, struct {
		Topic, Domain string
		Items         []promptItem
	}{s.Topic, s.Domain, items})
	if err != nil {
		return types.Report{}, fmt.Errorf("rendering composition prompt: %w", err)
	}

	resp, err := llm.CompleteWithRetry(ctx, c.Client, buf.String(), c.MaxRetries)
	if err != nil {
		return types.Report{}, fmt.Errorf("composing report: %w", err)
	}

	return ParseReport(llm.StripReasoning(resp))
}

// checkComplete verifies the all-or-nothing gate: exactly the expected
// question count, each with exactly one answer.
func checkComplete(s *types.Session) error {
	if len(s.Questions) != question.Count {
		return fmt.Errorf("%w: %d of %d questions", ErrIncompleteAnswers, len(s.Questions), question.Count)
	}
	if len(s.Answers) != question.Count {
		return fmt.Errorf("%w: %d of %d answers", ErrIncompleteAnswers, len(s.Answers), question.Count)
	}
	for _, q := range s.Questions {
		if s.Answer(q.ID) == nil {
			return fmt.Errorf("%w: no answer for question %d", ErrIncompleteAnswers, q.ID)
		}
	}
	return nil
}

// ParseReport splits a Markdown response on "## " headings into the
// executive summary, the analysis sections, and the conclusion. All three
// parts must be present.
func ParseReport(text string) (types.Report, error) {
	var report types.Report
	var haveSummary, haveConclusion bool

	for _, sec := range splitSections(text) {
		switch {
		case strings.EqualFold(sec.Heading, summaryHeading):
			report.ExecutiveSummary = sec.Body
			haveSummary = true
		case strings.EqualFold(sec.Heading, conclusionHeading):
			report.Conclusion = sec.Body
			haveConclusion = true
		default:
			report.Sections = append(report.Sections, sec)
		}
	}

	var missing []string
	if !haveSummary || report.ExecutiveSummary == "" {
		missing = append(missing, "executive summary")
	}
	if len(report.Sections) == 0 {
		missing = append(missing, "analysis sections")
	}
	if !haveConclusion || report.Conclusion == "" {
		missing = append(missing, "conclusion")
	}
	if len(missing) > 0 {
		return types.Report{}, fmt.Errorf("%w: %s", ErrMissingParts, strings.Join(missing, ", "))
	}

	return report, nil
}

// splitSections walks the text line by line, starting a new section at each
// "## " heading. Text before the first heading is dropped; a leading "# "
// title line is ignored.
func splitSections(text string) []types.ReportSection {
	var sections []types.ReportSection
	var current *types.ReportSection
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *current)
		}
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			flush()
			heading := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			heading = strings.Trim(heading, "*")
			current = &types.ReportSection{Heading: heading}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	return sections
}
