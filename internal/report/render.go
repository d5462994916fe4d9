// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// RenderMarkdown writes the structured report as a Markdown document with
// the question/answer appendix.
func RenderMarkdown(w io.Writer, s *types.Session) error {
	if s.Report == nil {
		return fmt.Errorf("session has no report")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", s.Topic)
	fmt.Fprintf(&b, "*Domain: %s*\n\n", s.Domain)
	fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", s.Report.ExecutiveSummary)
	for _, sec := range s.Report.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sec.Heading, sec.Body)
	}
	fmt.Fprintf(&b, "## Conclusion\n\n%s\n\n", s.Report.Conclusion)

	b.WriteString("## Appendix: Research Questions\n\n")
	for _, q := range s.Questions {
		fmt.Fprintf(&b, "**Q%d. %s**\n\n", q.ID, q.Text)
		if ans := s.Answer(q.ID); ans != nil {
			fmt.Fprintf(&b, "%s\n\n", ans.Text)
			for _, c := range ans.Citations {
				fmt.Fprintf(&b, "- <%s>\n", c)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// htmlTmpl is the styled HTML shell for exported reports.
var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Research Report: {{.Topic}}</title>
<style>
body { font-family: Georgia, serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a2e; line-height: 1.6; }
h1 { border-bottom: 2px solid #16213e; padding-bottom: 0.4rem; }
h2 { color: #16213e; margin-top: 2rem; }
.domain { color: #555; font-style: italic; }
.question { font-weight: bold; margin-top: 1.2rem; }
.citations { font-size: 0.9rem; color: #444; }
.citations a { color: #0f3460; }
</style>
</head>
<body>
<h1>Research Report: {{.Topic}}</h1>
<p class="domain">Domain: {{.Domain}}</p>
<h2>Executive Summary</h2>
{{range .Summary}}<p>{{.}}</p>
{{end}}{{range .Sections}}<h2>{{.Heading}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{end}}<h2>Conclusion</h2>
{{range .Conclusion}}<p>{{.}}</p>
{{end}}<h2>Appendix: Research Questions</h2>
{{range .Questions}}<p class="question">Q{{.ID}}. {{.Text}}</p>
<p>{{.Answer}}</p>
{{if .Citations}}<p class="citations">Sources: {{range .Citations}}<a href="{{.}}">{{.}}</a> {{end}}</p>
{{end}}{{end}}</body>
</html>
`))

type htmlSection struct {
	Heading    string
	Paragraphs []string
}

type htmlQuestion struct {
	ID        int
	Text      string
	Answer    string
	Citations []string
}

// RenderHTML writes the structured report as a standalone styled HTML page.
func RenderHTML(w io.Writer, s *types.Session) error {
	if s.Report == nil {
		return fmt.Errorf("session has no report")
	}

	sections := make([]htmlSection, 0, len(s.Report.Sections))
	for _, sec := range s.Report.Sections {
		sections = append(sections, htmlSection{Heading: sec.Heading, Paragraphs: paragraphs(sec.Body)})
	}

	questions := make([]htmlQuestion, 0, len(s.Questions))
	for _, q := range s.Questions {
		hq := htmlQuestion{ID: q.ID, Text: q.Text}
		if ans := s.Answer(q.ID); ans != nil {
			hq.Answer = ans.Text
			hq.Citations = ans.Citations
		}
		questions = append(questions, hq)
	}

	return htmlTmpl.Execute(w, struct {
		Topic, Domain string
		Summary       []string
		Sections      []htmlSection
		Conclusion    []string
		Questions     []htmlQuestion
	}{
		Topic:      s.Topic,
		Domain:     s.Domain,
		Summary:    paragraphs(s.Report.ExecutiveSummary),
		Sections:   sections,
		Conclusion: paragraphs(s.Report.Conclusion),
		Questions:  questions,
	})
}

// paragraphs splits body text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_]+`)

// FileName derives the export file name from topic and domain: lowercased,
// spaces collapsed to underscores, suffixed with _report and the extension.
func FileName(topic, domain, ext string) string {
	base := strings.ToLower(topic + " " + domain + " report")
	base = strings.Join(strings.Fields(base), "_")
	base = unsafeFileChars.ReplaceAllString(base, "")
	return base + "." + strings.TrimPrefix(ext, ".")
}
