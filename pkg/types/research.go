// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research pipeline:
// the research session aggregate (questions, evidence, answers, report) and
// the per-stage configuration blocks threaded through the orchestrator.
package types

import "time"

// Question is one of the five yes/no research questions generated for a
// session. IDs run 1..5 in generation order.
type Question struct {
	// ID is the 1-based position of the question within its session.
	ID int `json:"id" yaml:"id"`

	// Text is the question itself, phrased so it can be answered yes or no.
	Text string `json:"text" yaml:"text"`
}

// SearchResult is a single ranked hit returned by a web search backend.
type SearchResult struct {
	// Title is the result title as returned by the backend.
	Title string `json:"title" yaml:"title"`

	// URL is the result link, unmodified.
	URL string `json:"url" yaml:"url"`

	// Snippet is the backend's summary or content fragment for the result.
	Snippet string `json:"snippet" yaml:"snippet"`

	// Backend identifies which backend found this result
	// (e.g. "duckduckgo", "searxng", "brave", "tavily").
	Backend string `json:"backend" yaml:"backend"`

	// Rank is the 1-based position of the result within its backend's response.
	Rank int `json:"rank" yaml:"rank"`
}

// Evidence is a search result plus any page content fetched for it.
type Evidence struct {
	SearchResult `yaml:",inline"`

	// Content is the extracted page text, empty when the result was not
	// selected for enrichment or when the fetch failed.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// EvidenceBundle is the merged, deduplicated evidence collected for one
// question. Evidence order is deterministic: backend priority order, then
// backend rank, with duplicate URLs removed first-seen-wins.
type EvidenceBundle struct {
	// QuestionID links the bundle to its question.
	QuestionID int `json:"question_id" yaml:"question_id"`

	// Query is the search query string sent to the backends.
	Query string `json:"query" yaml:"query"`

	// Evidence holds the surviving results, at most the configured cap.
	Evidence []Evidence `json:"evidence" yaml:"evidence"`

	// Warnings records absorbed per-backend and per-fetch failures.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// URLs returns the evidence URLs in bundle order.
func (b EvidenceBundle) URLs() []string {
	urls := make([]string, 0, len(b.Evidence))
	for _, ev := range b.Evidence {
		urls = append(urls, ev.URL)
	}
	return urls
}

// Answer is the synthesized answer for one question.
type Answer struct {
	// QuestionID links the answer to its question.
	QuestionID int `json:"question_id" yaml:"question_id"`

	// Text is the answer body, opening with a yes/no verdict when the
	// evidence supports one.
	Text string `json:"text" yaml:"text"`

	// Citations lists the bundle URLs the answer draws on, in bundle order.
	// Always a subset of the bundle's URLs; may be empty.
	Citations []string `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// ReportSection is one analysis section of the final report.
type ReportSection struct {
	// Heading is the section title without markup.
	Heading string `json:"heading" yaml:"heading"`

	// Body is the section text.
	Body string `json:"body" yaml:"body"`
}

// Report is the composed three-part research report.
type Report struct {
	// ExecutiveSummary introduces the topic and states the key findings.
	ExecutiveSummary string `json:"executive_summary" yaml:"executive_summary"`

	// Sections holds the analysis body, one entry per theme.
	Sections []ReportSection `json:"sections" yaml:"sections"`

	// Conclusion states implications and recommendations.
	Conclusion string `json:"conclusion" yaml:"conclusion"`
}

// SessionState identifies where a session is in its lifecycle.
type SessionState string

const (
	StateIdle               SessionState = "idle"
	StateQuestionsGenerated SessionState = "questions_generated"
	StateResearchInProgress SessionState = "research_in_progress"
	StateResearchComplete   SessionState = "research_complete"
	StateReportComposed     SessionState = "report_composed"
	StateFailed             SessionState = "failed"
	StateCancelled          SessionState = "cancelled"
)

// Terminal reports whether no further transitions can occur from s.
func (s SessionState) Terminal() bool {
	return s == StateReportComposed || s == StateFailed || s == StateCancelled
}

// Session is the aggregate for one research run. Partial results accumulate
// on the session as stages complete, so a failed or cancelled session still
// exposes whatever was collected before it stopped.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id" yaml:"id"`

	// Topic is the research subject (e.g. "solid state batteries").
	Topic string `json:"topic" yaml:"topic"`

	// Domain is the audience or angle (e.g. "venture investing").
	Domain string `json:"domain" yaml:"domain"`

	// Model is the model identifier the session was started with.
	Model string `json:"model" yaml:"model"`

	// State is the session's current lifecycle state.
	State SessionState `json:"state" yaml:"state"`

	// Questions holds the generated questions in ID order.
	Questions []Question `json:"questions,omitempty" yaml:"questions,omitempty"`

	// Bundles holds collected evidence in question ID order.
	Bundles []EvidenceBundle `json:"bundles,omitempty" yaml:"bundles,omitempty"`

	// Answers holds synthesized answers in question ID order.
	Answers []Answer `json:"answers,omitempty" yaml:"answers,omitempty"`

	// Report is the composed report, nil until composition succeeds.
	Report *Report `json:"report,omitempty" yaml:"report,omitempty"`

	// FailureStage names the stage that failed ("generation", "research",
	// "composition"); empty unless State is failed.
	FailureStage string `json:"failure_stage,omitempty" yaml:"failure_stage,omitempty"`

	// FailureReason is the human-readable cause; empty unless State is failed.
	FailureReason string `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`

	// CreatedAt is when the session started.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// FinishedAt is when the session reached a terminal state.
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Bundle returns the evidence bundle for the given question ID, or nil.
func (s *Session) Bundle(questionID int) *EvidenceBundle {
	for i := range s.Bundles {
		if s.Bundles[i].QuestionID == questionID {
			return &s.Bundles[i]
		}
	}
	return nil
}

// Answer returns the answer for the given question ID, or nil.
func (s *Session) Answer(questionID int) *Answer {
	for i := range s.Answers {
		if s.Answers[i].QuestionID == questionID {
			return &s.Answers[i]
		}
	}
	return nil
}
