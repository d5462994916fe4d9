// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research drives the end-to-end pipeline for one session: question
// generation, per-question evidence collection and answer synthesis, and
// report composition. The orchestrator owns the session state machine,
// honors cancellation at stage boundaries, and never retries a stage.
package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/deep-research/internal/aggregate"
	"github.com/pdiddy/deep-research/internal/answer"
	"github.com/pdiddy/deep-research/internal/fetch"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/question"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/internal/websearch"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Pipeline stage names, as carried on events and failed sessions.
const (
	StageGeneration  = "generation"
	StageResearch    = "research"
	StageComposition = "composition"
)

// StageError reports which stage moved a session to the failed state.
// QuestionID is set for per-question research failures, zero otherwise.
type StageError struct {
	Stage      string
	QuestionID int
	Err        error
}

func (e *StageError) Error() string {
	if e.QuestionID > 0 {
		return fmt.Sprintf("%s stage failed at question %d: %v", e.Stage, e.QuestionID, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// EventKind classifies a progress event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventWarning   EventKind = "warning"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Event is one progress notification from the orchestrator. QuestionID is
// set for per-question events, zero for stage-level ones.
type Event struct {
	Stage      string
	Kind       EventKind
	QuestionID int
	Message    string
}

// EventFunc receives progress events. A nil EventFunc drops them.
type EventFunc func(Event)

// The stage collaborators, as the orchestrator sees them. Concrete
// implementations live in their own packages; tests substitute fakes.
type questionGenerator interface {
	Generate(ctx context.Context, topic, domain string) ([]types.Question, error)
}

type evidenceCollector interface {
	Collect(ctx context.Context, topic, domain string, q types.Question, w io.Writer) (types.EvidenceBundle, error)
}

type answerSynthesizer interface {
	Synthesize(ctx context.Context, q types.Question, bundle types.EvidenceBundle) (types.Answer, error)
}

type reportComposer interface {
	Compose(ctx context.Context, s *types.Session) (types.Report, error)
}

// Orchestrator runs research sessions. Each session gets its own
// Orchestrator; the per-backend rate gates inside the search backends are
// the only state shared across concurrent sessions.
type Orchestrator struct {
	generator   questionGenerator
	aggregator  evidenceCollector
	synthesizer answerSynthesizer
	composer    reportComposer
	model       string
	workers     int
	events      EventFunc
}

// New wires an Orchestrator from its collaborators. The configuration is
// threaded through explicitly; nothing here reads ambient state.
func New(cfg types.PipelineConfig, client llm.Client, backends []websearch.Backend, events EventFunc) *Orchestrator {
	fetcher := fetch.New(nil, cfg.Fetch)

	workers := cfg.Research.QuestionWorkers
	if workers <= 0 {
		workers = 2
	}

	return &Orchestrator{
		generator:   &question.Generator{Client: client, MaxRetries: cfg.Model.MaxRetries},
		aggregator:  aggregate.New(backends, fetcher, cfg.Research),
		synthesizer: &answer.Synthesizer{Client: client, Cfg: cfg.Research, MaxRetries: cfg.Model.MaxRetries},
		composer:    &report.Composer{Client: client, MaxRetries: cfg.Model.MaxRetries},
		model:       cfg.Model.Model,
		workers:     workers,
		events:      events,
	}
}

// Run executes the full pipeline for topic and domain. The returned session
// is never nil: on failure or cancellation it carries the partial results
// collected up to that point alongside the terminal state. The error is a
// *StageError for stage failures and the context error for cancellation.
func (o *Orchestrator) Run(ctx context.Context, topic, domain string) (*types.Session, error) {
	session := &types.Session{
		ID:        uuid.NewString(),
		Topic:     topic,
		Domain:    domain,
		Model:     o.model,
		State:     types.StateIdle,
		CreatedAt: time.Now().UTC(),
	}

	if err := o.checkCancelled(ctx, session, StageGeneration); err != nil {
		return session, err
	}
	if err := o.generate(ctx, session); err != nil {
		return session, err
	}

	if err := o.checkCancelled(ctx, session, StageResearch); err != nil {
		return session, err
	}
	if err := o.research(ctx, session); err != nil {
		return session, err
	}

	if err := o.checkCancelled(ctx, session, StageComposition); err != nil {
		return session, err
	}
	if err := o.compose(ctx, session); err != nil {
		return session, err
	}

	return session, nil
}

// generate runs the question-generation stage.
func (o *Orchestrator) generate(ctx context.Context, s *types.Session) error {
	o.emit(Event{Stage: StageGeneration, Kind: EventStarted})

	questions, err := o.generator.Generate(ctx, s.Topic, s.Domain)
	if err != nil {
		return o.fail(ctx, s, StageGeneration, 0, err)
	}

	s.Questions = questions
	s.State = types.StateQuestionsGenerated
	o.emit(Event{Stage: StageGeneration, Kind: EventCompleted, Message: fmt.Sprintf("%d questions", len(questions))})
	return nil
}

// research collects evidence for every question concurrently under the
// worker bound, then synthesizes answers sequentially in question order.
// The first failing question (lowest ID) fails the stage; bundles and
// answers gathered before the failure stay on the session.
func (o *Orchestrator) research(ctx context.Context, s *types.Session) error {
	s.State = types.StateResearchInProgress
	o.emit(Event{Stage: StageResearch, Kind: EventStarted})

	bundles := make([]types.EvidenceBundle, len(s.Questions))
	errs := make([]error, len(s.Questions))

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for i, q := range s.Questions {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, q types.Question) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o.emit(Event{Stage: StageResearch, Kind: EventStarted, QuestionID: q.ID, Message: "collecting evidence"})
			bundles[i], errs[i] = o.aggregator.Collect(ctx, s.Topic, s.Domain, q, io.Discard)
		}(i, q)
	}
	wg.Wait()

	for i := range bundles {
		for _, warning := range bundles[i].Warnings {
			o.emit(Event{Stage: StageResearch, Kind: EventWarning, QuestionID: s.Questions[i].ID, Message: warning})
		}
	}

	// Keep every bundle that succeeded, then report the lowest failing
	// question.
	failing := 0
	var cause error
	for i, q := range s.Questions {
		if errs[i] != nil {
			if failing == 0 {
				failing, cause = q.ID, errs[i]
			}
			continue
		}
		s.Bundles = append(s.Bundles, bundles[i])
	}
	sort.Slice(s.Bundles, func(i, j int) bool { return s.Bundles[i].QuestionID < s.Bundles[j].QuestionID })

	if cause != nil {
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			return o.cancelled(s, StageResearch)
		}
		return o.fail(ctx, s, StageResearch, failing, cause)
	}

	// Synthesis is sequential: one model call at a time, ascending question ID.
	for i, q := range s.Questions {
		if err := o.checkCancelled(ctx, s, StageResearch); err != nil {
			return err
		}

		o.emit(Event{Stage: StageResearch, Kind: EventStarted, QuestionID: q.ID, Message: "synthesizing answer"})
		ans, err := o.synthesizer.Synthesize(ctx, q, s.Bundles[i])
		if err != nil {
			return o.fail(ctx, s, StageResearch, q.ID, err)
		}
		s.Answers = append(s.Answers, ans)
		o.emit(Event{Stage: StageResearch, Kind: EventCompleted, QuestionID: q.ID})
	}

	s.State = types.StateResearchComplete
	o.emit(Event{Stage: StageResearch, Kind: EventCompleted})
	return nil
}

// compose runs the report-composition stage.
func (o *Orchestrator) compose(ctx context.Context, s *types.Session) error {
	o.emit(Event{Stage: StageComposition, Kind: EventStarted})

	rep, err := o.composer.Compose(ctx, s)
	if err != nil {
		return o.fail(ctx, s, StageComposition, 0, err)
	}

	s.Report = &rep
	s.State = types.StateReportComposed
	s.FinishedAt = time.Now().UTC()
	o.emit(Event{Stage: StageComposition, Kind: EventCompleted})
	return nil
}

// checkCancelled honors a pending cancellation at a stage boundary.
func (o *Orchestrator) checkCancelled(ctx context.Context, s *types.Session, stage string) error {
	if ctx.Err() == nil {
		return nil
	}
	return o.cancelled(s, stage)
}

// cancelled moves the session to the cancelled terminal state. Cancellation
// is a caller decision, never reported as a stage failure.
func (o *Orchestrator) cancelled(s *types.Session, stage string) error {
	s.State = types.StateCancelled
	s.FinishedAt = time.Now().UTC()
	o.emit(Event{Stage: stage, Kind: EventCancelled})
	return context.Canceled
}

// fail moves the session to the failed terminal state, recording the stage
// and cause. A cancellation surfacing as a stage error is reclassified.
func (o *Orchestrator) fail(ctx context.Context, s *types.Session, stage string, questionID int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return o.cancelled(s, stage)
	}

	s.State = types.StateFailed
	s.FailureStage = stage
	s.FailureReason = err.Error()
	s.FinishedAt = time.Now().UTC()

	stageErr := &StageError{Stage: stage, QuestionID: questionID, Err: err}
	o.emit(Event{Stage: stage, Kind: EventFailed, QuestionID: questionID, Message: err.Error()})
	return stageErr
}

// emit delivers an event to the sink, if one is configured.
func (o *Orchestrator) emit(ev Event) {
	if o.events != nil {
		o.events(ev)
	}
}
