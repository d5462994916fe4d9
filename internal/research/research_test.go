package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/deep-research/internal/aggregate"
	"github.com/pdiddy/deep-research/internal/question"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

// --- fakes ---

type fakeGenerator struct {
	questions []types.Question
	err       error
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string) ([]types.Question, error) {
	return f.questions, f.err
}

type fakeCollector struct {
	mu      sync.Mutex
	failIDs map[int]error
	delays  map[int]time.Duration
	order   []int
}

func (f *fakeCollector) Collect(ctx context.Context, _, _ string, q types.Question, _ io.Writer) (types.EvidenceBundle, error) {
	if d := f.delays[q.ID]; d > 0 {
		select {
		case <-ctx.Done():
			return types.EvidenceBundle{}, ctx.Err()
		case <-time.After(d):
		}
	}
	f.mu.Lock()
	f.order = append(f.order, q.ID)
	f.mu.Unlock()

	if err := f.failIDs[q.ID]; err != nil {
		return types.EvidenceBundle{}, err
	}
	return types.EvidenceBundle{
		QuestionID: q.ID,
		Query:      q.Text,
		Evidence: []types.Evidence{{
			SearchResult: types.SearchResult{
				Title:   fmt.Sprintf("result for %d", q.ID),
				URL:     fmt.Sprintf("https://example.com/%d", q.ID),
				Backend: "fake",
				Rank:    1,
			},
		}},
		Warnings: []string{fmt.Sprintf("warning for question %d", q.ID)},
	}, nil
}

type fakeSynthesizer struct {
	failIDs map[int]error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, q types.Question, bundle types.EvidenceBundle) (types.Answer, error) {
	if err := f.failIDs[q.ID]; err != nil {
		return types.Answer{}, err
	}
	return types.Answer{
		QuestionID: q.ID,
		Text:       fmt.Sprintf("Yes, answer %d.", q.ID),
		Citations:  bundle.URLs(),
	}, nil
}

type fakeComposer struct {
	err   error
	calls int
}

func (f *fakeComposer) Compose(_ context.Context, s *types.Session) (types.Report, error) {
	f.calls++
	if f.err != nil {
		return types.Report{}, f.err
	}
	if len(s.Answers) != question.Count {
		return types.Report{}, report.ErrIncompleteAnswers
	}
	return types.Report{
		ExecutiveSummary: "Summary.",
		Sections:         []types.ReportSection{{Heading: "Analysis", Body: "Body."}},
		Conclusion:       "Conclusion.",
	}, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds(stage string, kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Stage == stage && ev.Kind == kind {
			n++
		}
	}
	return n
}

func fiveQuestions() []types.Question {
	qs := make([]types.Question, 5)
	for i := range qs {
		qs[i] = types.Question{ID: i + 1, Text: fmt.Sprintf("Question %d?", i+1)}
	}
	return qs
}

func testOrchestrator(rec *eventRecorder) (*Orchestrator, *fakeCollector, *fakeSynthesizer, *fakeComposer) {
	collector := &fakeCollector{failIDs: map[int]error{}, delays: map[int]time.Duration{}}
	synthesizer := &fakeSynthesizer{failIDs: map[int]error{}}
	composer := &fakeComposer{}
	o := &Orchestrator{
		generator:   &fakeGenerator{questions: fiveQuestions()},
		aggregator:  collector,
		synthesizer: synthesizer,
		composer:    composer,
		model:       "deepseek-r1:4b",
		workers:     2,
		events:      rec.record,
	}
	return o, collector, synthesizer, composer
}

// --- tests ---

func TestRunHappyPath(t *testing.T) {
	rec := &eventRecorder{}
	o, _, _, _ := testOrchestrator(rec)

	s, err := o.Run(context.Background(), "electric vehicles", "automotive market")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.State != types.StateReportComposed {
		t.Errorf("state = %s, want report_composed", s.State)
	}
	if s.ID == "" {
		t.Error("session has no ID")
	}
	if s.Model != "deepseek-r1:4b" {
		t.Errorf("model = %q", s.Model)
	}
	if len(s.Questions) != 5 || len(s.Bundles) != 5 || len(s.Answers) != 5 {
		t.Fatalf("counts: %d questions, %d bundles, %d answers", len(s.Questions), len(s.Bundles), len(s.Answers))
	}
	for i := range s.Answers {
		if s.Answers[i].QuestionID != i+1 {
			t.Errorf("answer %d has question ID %d, want %d", i, s.Answers[i].QuestionID, i+1)
		}
		if s.Answers[i].Text == "" {
			t.Errorf("answer %d is empty", i+1)
		}
	}
	if s.Report == nil || s.Report.ExecutiveSummary == "" {
		t.Error("report missing")
	}
	if s.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}

	for _, stage := range []string{StageGeneration, StageResearch, StageComposition} {
		if rec.kinds(stage, EventStarted) == 0 {
			t.Errorf("no started event for stage %s", stage)
		}
		if rec.kinds(stage, EventCompleted) == 0 {
			t.Errorf("no completed event for stage %s", stage)
		}
	}
	if rec.kinds(StageResearch, EventWarning) != 5 {
		t.Errorf("got %d warning events, want one per bundle", rec.kinds(StageResearch, EventWarning))
	}
}

func TestRunAnswersInQuestionOrder(t *testing.T) {
	rec := &eventRecorder{}
	o, collector, _, _ := testOrchestrator(rec)

	// Later questions finish collection first.
	for id := 1; id <= 5; id++ {
		collector.delays[id] = time.Duration(6-id) * 10 * time.Millisecond
	}

	s, err := o.Run(context.Background(), "t", "d")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, b := range s.Bundles {
		if b.QuestionID != i+1 {
			t.Errorf("bundle %d has question ID %d", i, b.QuestionID)
		}
	}
	for i, a := range s.Answers {
		if a.QuestionID != i+1 {
			t.Errorf("answer %d has question ID %d", i, a.QuestionID)
		}
	}
}

func TestRunGenerationFailure(t *testing.T) {
	rec := &eventRecorder{}
	o, _, _, composer := testOrchestrator(rec)
	o.generator = &fakeGenerator{err: fmt.Errorf("generate: %w", question.ErrQuestionCount)}

	s, err := o.Run(context.Background(), "t", "d")
	if s.State != types.StateFailed {
		t.Errorf("state = %s, want failed", s.State)
	}
	if s.FailureStage != StageGeneration {
		t.Errorf("failure stage = %q", s.FailureStage)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %T, want *StageError", err)
	}
	if stageErr.Stage != StageGeneration || stageErr.QuestionID != 0 {
		t.Errorf("stage error = %+v", stageErr)
	}
	if !errors.Is(err, question.ErrQuestionCount) {
		t.Error("cause not reachable through the stage error")
	}
	if composer.calls != 0 {
		t.Error("composition ran after a generation failure")
	}
}

func TestRunAggregationFailureLowestQuestionWins(t *testing.T) {
	rec := &eventRecorder{}
	o, collector, _, composer := testOrchestrator(rec)
	collector.failIDs[3] = fmt.Errorf("collect: %w", aggregate.ErrAllBackendsFailed)
	collector.failIDs[5] = fmt.Errorf("collect: %w", aggregate.ErrAllBackendsFailed)

	s, err := o.Run(context.Background(), "t", "d")
	if s.State != types.StateFailed {
		t.Errorf("state = %s, want failed", s.State)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %T, want *StageError", err)
	}
	if stageErr.Stage != StageResearch || stageErr.QuestionID != 3 {
		t.Errorf("stage error = %+v, want research question 3", stageErr)
	}
	if !errors.Is(err, aggregate.ErrAllBackendsFailed) {
		t.Error("cause not reachable through the stage error")
	}

	// Bundles for the surviving questions stay on the session.
	if len(s.Bundles) != 3 {
		t.Errorf("got %d partial bundles, want 3", len(s.Bundles))
	}
	if composer.calls != 0 {
		t.Error("composition ran after a research failure")
	}
}

func TestRunSynthesisFailureKeepsEarlierAnswers(t *testing.T) {
	rec := &eventRecorder{}
	o, _, synthesizer, composer := testOrchestrator(rec)
	synthesizer.failIDs[3] = fmt.Errorf("model overloaded")

	s, err := o.Run(context.Background(), "t", "d")
	if s.State != types.StateFailed {
		t.Errorf("state = %s, want failed", s.State)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %T, want *StageError", err)
	}
	if stageErr.Stage != StageResearch || stageErr.QuestionID != 3 {
		t.Errorf("stage error = %+v, want research question 3", stageErr)
	}

	if len(s.Answers) != 2 {
		t.Fatalf("got %d partial answers, want 2", len(s.Answers))
	}
	if s.Answers[0].QuestionID != 1 || s.Answers[1].QuestionID != 2 {
		t.Errorf("partial answers = %+v", s.Answers)
	}
	if composer.calls != 0 {
		t.Error("composition ran with missing answers")
	}
}

func TestRunCompositionFailure(t *testing.T) {
	rec := &eventRecorder{}
	o, _, _, composer := testOrchestrator(rec)
	composer.err = fmt.Errorf("parse: %w", report.ErrMissingParts)

	s, err := o.Run(context.Background(), "t", "d")
	if s.State != types.StateFailed {
		t.Errorf("state = %s, want failed", s.State)
	}
	if s.FailureStage != StageComposition {
		t.Errorf("failure stage = %q", s.FailureStage)
	}
	if !errors.Is(err, report.ErrMissingParts) {
		t.Error("cause not reachable through the stage error")
	}
	if s.Report != nil {
		t.Error("partial report left on a failed session")
	}
	// Research results survive the composition failure.
	if len(s.Answers) != 5 {
		t.Errorf("got %d answers, want 5", len(s.Answers))
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	rec := &eventRecorder{}
	o, _, _, _ := testOrchestrator(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := o.Run(ctx, "t", "d")
	if s.State != types.StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if s.FailureStage != "" {
		t.Error("cancelled session must not record a failure stage")
	}
	if rec.kinds(StageGeneration, EventCancelled) != 1 {
		t.Error("no cancelled event emitted")
	}
}

func TestRunCancelledDuringResearchIsNotFailure(t *testing.T) {
	rec := &eventRecorder{}
	o, collector, _, _ := testOrchestrator(rec)
	for id := 1; id <= 5; id++ {
		collector.delays[id] = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s, err := o.Run(ctx, "t", "d")
	if s.State != types.StateCancelled {
		t.Errorf("state = %s, want cancelled (not failed)", s.State)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		t.Error("cancellation surfaced as a stage failure")
	}
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageResearch, QuestionID: 4, Err: fmt.Errorf("boom")}
	if !strings.Contains(err.Error(), "question 4") {
		t.Errorf("error = %q, want it to name the question", err.Error())
	}

	stageOnly := &StageError{Stage: StageComposition, Err: fmt.Errorf("boom")}
	if strings.Contains(stageOnly.Error(), "question") {
		t.Errorf("error = %q, must not mention a question", stageOnly.Error())
	}
}
