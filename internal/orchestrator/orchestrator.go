// Package orchestrator runs the portal's stages one after another, credits
// each result to the reward ledger and hands the finished session to the
// certificate generator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/storage"
	"github.com/kingrea/portal/internal/telemetry"
)

// ErrNoStages is returned when RunSequence is given an empty sequence.
var ErrNoStages = errors.New("orchestrator: no stages to run")

// Session statuses persisted with the history.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Ledger is the reward counter the orchestrator credits.
type Ledger interface {
	Add(ctx context.Context, amount int) (int64, error)
	Total() int64
}

// Generator produces the final artifact for a completed session.
type Generator interface {
	Generate(ctx context.Context, s Session) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, s Session) error

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, s Session) error { return f(ctx, s) }

// Session summarizes one run of the sequence.
type Session struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []stage.Result
	Earned     int
	Total      int64
}

// SequenceError reports the stage that stopped a sequence. Index is -1 when
// the certificate generator failed after every stage succeeded.
type SequenceError struct {
	Index   int
	StageID string
	Err     error
}

func (e *SequenceError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("orchestrator: certificate: %v", e.Err)
	}
	return fmt.Sprintf("orchestrator: stage %d (%s): %v", e.Index+1, e.StageID, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

// Orchestrator drives stage sequences.
type Orchestrator struct {
	ledger    Ledger
	generator Generator
	sessions  storage.SessionStore
	observers []Observer
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	now       func() time.Time
	newID     func() string

	coins  metric.Int64Counter
	stages metric.Int64Counter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator sets the artifact generator invoked after a full run.
func WithGenerator(g Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithSessionStore records session history in store.
func WithSessionStore(store storage.SessionStore) Option {
	return func(o *Orchestrator) { o.sessions = store }
}

// WithObserver registers an observer for sequence progress.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMeter overrides the meter used for the coin and stage counters.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New builds an orchestrator crediting l.
func New(l Ledger, opts ...Option) (*Orchestrator, error) {
	if l == nil {
		return nil, fmt.Errorf("orchestrator: ledger is required")
	}
	o := &Orchestrator{
		ledger: l,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: telemetry.Tracer(),
		meter:  telemetry.Meter(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	var err error
	o.coins, err = o.meter.Int64Counter("portal.coins.awarded",
		metric.WithDescription("Coins credited to the ledger"),
		metric.WithUnit("{coin}"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: coin counter: %w", err)
	}
	o.stages, err = o.meter.Int64Counter("portal.stages.resolved",
		metric.WithDescription("Stages resolved by the orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: stage counter: %w", err)
	}
	return o, nil
}

// RunSequence runs stages strictly in order. Each result is credited to the
// ledger as soon as it resolves. The first failure (or ctx cancellation)
// aborts the rest and is returned as a *SequenceError; credited rewards are
// kept. After a full run the generator is invoked exactly once.
func (o *Orchestrator) RunSequence(ctx context.Context, stages []stage.Stage) (Session, error) {
	if len(stages) == 0 {
		return Session{}, ErrNoStages
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := Session{
		ID:        o.newID(),
		StartedAt: o.now(),
		Results:   make([]stage.Result, 0, len(stages)),
	}
	ctx, span := o.tracer.Start(ctx, "portal.sequence", trace.WithAttributes(
		attribute.String("portal.session_id", session.ID),
		attribute.Int("portal.stage_count", len(stages)),
	))
	defer span.End()

	logger := o.logger.With("session", session.ID)
	logger.Info("sequence started", "stages", len(stages))
	o.recordStart(ctx, session)

	for i, st := range stages {
		res, err := o.runStage(ctx, logger, session.ID, i, st)
		if res != nil {
			session.Results = append(session.Results, *res)
			session.Earned += res.Points()
		}
		if err != nil {
			return o.abort(ctx, span, logger, session, err)
		}
	}

	session.FinishedAt = o.now()
	session.Total = o.ledger.Total()
	if o.generator != nil {
		if err := o.generator.Generate(ctx, session); err != nil {
			return o.abort(ctx, span, logger, session, &SequenceError{Index: -1, Err: err})
		}
	}
	o.recordFinish(ctx, session, StatusComplete, nil)
	logger.Info("sequence complete", "earned", session.Earned, "total", session.Total)
	o.notifyFinished(session, nil)
	return session, nil
}

// runStage starts one stage and waits for it. A non-nil result means the
// stage resolved and its reward was applied.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, sessionID string, index int, st stage.Stage) (*stage.Result, error) {
	info := st.Info()
	fail := func(err error) error {
		return &SequenceError{Index: index, StageID: info.ID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	stageCtx, span := o.tracer.Start(ctx, "portal.stage", trace.WithAttributes(
		attribute.String("portal.stage_id", info.ID),
		attribute.Int("portal.stage_index", index),
	))
	defer span.End()

	o.notifyStarted(index, st)
	logger.Debug("stage starting", "index", index, "stage", info.ID)
	if err := st.Start(stageCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fail(err)
	}

	var cancelled error
	select {
	case <-st.Done():
	case <-ctx.Done():
		cancelled = ctx.Err()
		logger.Info("sequence cancelled, skipping stage", "stage", info.ID)
		st.Skip()
		<-st.Done()
	}

	res, err := st.Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("stage failed", "stage", info.ID, "err", err)
		return nil, fail(err)
	}
	if res.StageID == "" {
		res.StageID = info.ID
	}

	// Rewards are credited even when the run is being cancelled.
	applyCtx := context.WithoutCancel(stageCtx)
	total, err := o.ledger.Add(applyCtx, res.Points())
	if err != nil {
		span.RecordError(err)
		return nil, fail(fmt.Errorf("credit reward: %w", err))
	}
	attrs := metric.WithAttributes(
		attribute.String("portal.stage_id", info.ID),
		attribute.Bool("portal.skipped", res.Skipped),
	)
	o.coins.Add(applyCtx, int64(res.Points()), attrs)
	o.stages.Add(applyCtx, 1, attrs)
	span.SetAttributes(attribute.Int("portal.reward", res.Points()), attribute.Bool("portal.skipped", res.Skipped))

	o.recordStage(applyCtx, sessionID, index, res)
	logger.Info("stage resolved", "stage", info.ID, "reward", res.Points(), "unit", res.Unit, "skipped", res.Skipped, "total", total)
	o.notifyResolved(index, res, total)

	if cancelled != nil {
		return &res, fail(cancelled)
	}
	return &res, nil
}

func (o *Orchestrator) abort(ctx context.Context, span trace.Span, logger *slog.Logger, session Session, err error) (Session, error) {
	session.FinishedAt = o.now()
	session.Total = o.ledger.Total()
	status := StatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = StatusCancelled
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("sequence aborted", "status", status, "err", err)
	o.recordFinish(context.WithoutCancel(ctx), session, status, err)
	o.notifyFinished(session, err)
	return session, err
}

func (o *Orchestrator) recordStart(ctx context.Context, s Session) {
	if o.sessions == nil {
		return
	}
	rec := storage.SessionRecord{ID: s.ID, StartedAt: s.StartedAt, Status: StatusRunning, Total: o.ledger.Total()}
	if err := o.sessions.CreateSession(ctx, rec); err != nil {
		o.logger.Warn("record session start", "session", s.ID, "err", err)
	}
}

func (o *Orchestrator) recordStage(ctx context.Context, sessionID string, index int, res stage.Result) {
	if o.sessions == nil {
		return
	}
	rec := storage.StageRecord{
		Index:      index,
		StageID:    res.StageID,
		Reward:     res.Points(),
		Unit:       res.Unit,
		Skipped:    res.Skipped,
		Detail:     res.Detail,
		FinishedAt: o.now(),
	}
	if err := o.sessions.AppendStage(ctx, sessionID, rec); err != nil {
		o.logger.Warn("record stage", "session", sessionID, "stage", res.StageID, "err", err)
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, s Session, status string, cause error) {
	if o.sessions == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := o.sessions.FinishSession(ctx, s.ID, status, s.Total, msg, s.FinishedAt); err != nil {
		o.logger.Warn("record session finish", "session", s.ID, "err", err)
	}
}
