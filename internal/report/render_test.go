package report

import (
	"strings"
	"testing"

	"github.com/pdiddy/deep-research/pkg/types"
)

func renderedSession() *types.Session {
	s := completeSession()
	s.Report = &types.Report{
		ExecutiveSummary: "The market is growing.",
		Sections: []types.ReportSection{
			{Heading: "Market Growth", Body: "Sales rose sharply.\n\nBattery costs fell."},
		},
		Conclusion: "Invest in infrastructure.",
	}
	return s
}

func TestRenderMarkdown(t *testing.T) {
	var b strings.Builder
	if err := RenderMarkdown(&b, renderedSession()); err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	got := b.String()

	for _, want := range []string{
		"# Research Report: electric vehicles",
		"*Domain: automotive market*",
		"## Executive Summary",
		"## Market Growth",
		"## Conclusion",
		"**Q1. Question 1?**",
		"- <https://example.com/source-3>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdownNoReport(t *testing.T) {
	var b strings.Builder
	if err := RenderMarkdown(&b, completeSession()); err == nil {
		t.Fatal("expected error for a session without a report")
	}
}

func TestRenderHTML(t *testing.T) {
	var b strings.Builder
	if err := RenderHTML(&b, renderedSession()); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	got := b.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Research Report: electric vehicles</title>",
		"<h2>Executive Summary</h2>",
		"<h2>Market Growth</h2>",
		"<p>Sales rose sharply.</p>",
		"<p>Battery costs fell.</p>",
		"<h2>Conclusion</h2>",
		`<a href="https://example.com/source-2">`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	s := renderedSession()
	s.Report.ExecutiveSummary = `<script>alert("x")</script>`

	var b strings.Builder
	if err := RenderHTML(&b, s); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(b.String(), "<script>alert") {
		t.Error("report text not HTML-escaped")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		topic, domain, ext string
		want               string
	}{
		{"Electric Vehicles", "Automotive Market", "html", "electric_vehicles_automotive_market_report.html"},
		{"solid  state  batteries", "venture investing", ".md", "solid_state_batteries_venture_investing_report.md"},
		{"AI/ML", "fin-tech", "html", "aiml_fintech_report.html"},
	}

	for _, tt := range tests {
		if got := FileName(tt.topic, tt.domain, tt.ext); got != tt.want {
			t.Errorf("FileName(%q, %q, %q) = %q, want %q", tt.topic, tt.domain, tt.ext, got, tt.want)
		}
	}
}
