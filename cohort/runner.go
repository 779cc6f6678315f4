// Package cohort runs one framework over a (model × prompt) grid with
// bounded concurrency, validates every run against a canonical snapshot,
// and persists the records.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/artifact"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/config"
	"github.com/movinture/latent-logic/unifiedllm"
	"github.com/movinture/latent-logic/validation"
)

const tracerName = "github.com/movinture/latent-logic/cohort"

// Defaults applied when the Runner fields are zero.
const (
	DefaultConcurrency = 4
	DefaultUnitTimeout = 5 * time.Minute
)

// Runner drives every unit of a cohort through one framework.
type Runner struct {
	Framework agentloop.Framework
	Tools     *agentloop.ToolRegistry
	Validator *validation.Validator
	Store     *artifact.Store
	// Index is optional; when set every persisted unit is upserted.
	Index *artifact.Index

	Concurrency int
	UnitTimeout time.Duration
	MaxTurns    int

	// Template supplies the per-run tuning (tool-call mode, loop window,
	// temperature, output limits). RunGroup and Logger are set per unit.
	Template agentloop.RunContext
	// Events receives every run event of the cohort.
	Events agentloop.EventSink

	Logger *zap.Logger
	Tracer trace.Tracer
	// Meter defaults to the global MeterProvider.
	Meter metric.Meter
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Model          string                `json:"model"`
	PromptID       string                `json:"prompt_id"`
	Status         agentloop.RunStatus   `json:"status"`
	Valid          validation.Verdict    `json:"valid"`
	Provenance     validation.Provenance `json:"provenance"`
	RunPath        string                `json:"run_path,omitempty"`
	ValidationPath string                `json:"validation_path,omitempty"`
	// Err is the unit-local error, if any. It never aborts the cohort.
	Err error `json:"-"`
}

// Report summarizes a finished cohort. Units follow models × prompts order.
type Report struct {
	RunGroup   string       `json:"run_group"`
	Framework  string       `json:"framework"`
	Units      []UnitResult `json:"units"`
	Valid      int          `json:"valid"`
	Invalid    int          `json:"invalid"`
	Unverified int          `json:"unverified"`
	Errors     int          `json:"errors"`
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return r.Tracer
}

// Run executes every (model, prompt) unit. It returns an error only for
// configuration problems; unit failures are reported in the Report and
// in the persisted records.
func (r *Runner) Run(ctx context.Context, runGroup string, models []string, set agentloop.PromptSet, snap *canonical.Snapshot) (*Report, error) {
	if err := config.RequireCohort(models, len(set.Prompts)); err != nil {
		return nil, err
	}
	if r.Framework == nil || r.Store == nil {
		return nil, &config.ConfigError{Field: "cohort", Message: "framework and store are required"}
	}
	if runGroup == "" {
		return nil, &config.ConfigError{Field: "run_group", Message: "must not be empty"}
	}
	validator := r.Validator
	if validator == nil {
		validator = validation.NewValidator(validation.DefaultTolerances())
	}
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	logger := r.logger().With(
		zap.String("run_group", runGroup),
		zap.String("framework", r.Framework.Name()),
	)
	logger.Info("cohort started",
		zap.Int("models", len(models)),
		zap.Int("prompts", len(set.Prompts)),
		zap.Int("concurrency", concurrency))

	report := &Report{
		RunGroup:  runGroup,
		Framework: r.Framework.Name(),
		Units:     make([]UnitResult, len(models)*len(set.Prompts)),
	}

	metrics := newUnitMetrics(r.Meter)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for mi, model := range models {
		for pi, prompt := range set.Prompts {
			slot := mi*len(set.Prompts) + pi
			g.Go(func() error {
				start := time.Now()
				res := r.runUnit(ctx, runGroup, model, prompt, snap, validator, logger)
				metrics.record(ctx, r.Framework.Name(), res, time.Since(start))
				report.Units[slot] = res
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, u := range report.Units {
		switch u.Valid {
		case validation.Valid:
			report.Valid++
		case validation.Invalid:
			report.Invalid++
		default:
			report.Unverified++
		}
		if u.Err != nil {
			report.Errors++
		}
	}
	logger.Info("cohort finished",
		zap.Int("valid", report.Valid),
		zap.Int("invalid", report.Invalid),
		zap.Int("unverified", report.Unverified),
		zap.Int("errors", report.Errors))
	return report, nil
}

func (r *Runner) runUnit(ctx context.Context, runGroup, model string, prompt agentloop.Prompt, snap *canonical.Snapshot, validator *validation.Validator, logger *zap.Logger) UnitResult {
	res := UnitResult{Model: model, PromptID: prompt.ID}
	logger = logger.With(zap.String("model", model), zap.String("prompt_id", prompt.ID))

	ctx, span := r.tracer().Start(ctx, "cohort.unit", trace.WithAttributes(
		attribute.String("run_group", runGroup),
		attribute.String("framework", r.Framework.Name()),
		attribute.String("model", model),
		attribute.String("prompt_id", prompt.ID),
	))
	defer span.End()

	timeout := r.UnitTimeout
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc := r.Template
	rc.RunGroup = runGroup
	rc.Logger = logger
	rc.Events = r.Events

	rec, runErr := r.Framework.Run(uctx, &rc, model, prompt, r.Tools, r.MaxTurns)
	if rec == nil {
		rec = failedRecord(runGroup, r.Framework.Name(), model, prompt, runErr)
	}
	res.Status = rec.Status
	if runErr != nil {
		var limit *agentloop.TooManyTurnsError
		if !errors.As(runErr, &limit) {
			res.Err = runErr
			span.RecordError(runErr)
			span.SetStatus(codes.Error, unifiedllm.ErrorKind(runErr))
		}
	}

	runPath, err := r.Store.WriteRun(rec)
	if err != nil {
		logger.Error("failed to persist run record", zap.Error(err))
		res.Err = errors.Join(res.Err, err)
		return res
	}
	res.RunPath = runPath

	v := validator.Validate(rec, prompt, snap, rec.FinishedAt.Unix())
	res.Valid = v.Valid
	res.Provenance = v.Provenance
	vPath, err := r.Store.WriteValidation(v)
	if err != nil {
		logger.Error("failed to persist validation record", zap.Error(err))
		res.Err = errors.Join(res.Err, err)
		return res
	}
	res.ValidationPath = vPath
	span.SetAttributes(
		attribute.String("status", string(rec.Status)),
		attribute.String("valid", v.Valid.String()),
		attribute.String("provenance", string(v.Provenance)),
	)

	if r.Index != nil {
		row := artifact.IndexRow{
			RunGroup:       runGroup,
			Framework:      rec.Framework,
			Model:          model,
			PromptID:       prompt.ID,
			Valid:          v.Valid,
			Provenance:     string(v.Provenance),
			FailureReason:  v.FailureReason,
			Turns:          rec.Turns,
			ToolCalls:      len(rec.ToolCalls),
			Status:         string(rec.Status),
			RunPath:        runPath,
			ValidationPath: vPath,
		}
		if err := r.Index.Upsert(ctx, row); err != nil {
			logger.Warn("failed to index unit", zap.Error(err))
		}
	}

	logger.Info("unit finished",
		zap.String("status", string(rec.Status)),
		zap.Int("turns", rec.Turns),
		zap.Int("tool_calls", len(rec.ToolCalls)),
		zap.Stringer("valid", v.Valid),
		zap.String("provenance", string(v.Provenance)))
	return res
}

// failedRecord stands in for a framework that returned no record at all.
func failedRecord(runGroup, framework, model string, prompt agentloop.Prompt, err error) *agentloop.AgentRunRecord {
	if err == nil {
		err = fmt.Errorf("framework %s returned no record", framework)
	}
	now := time.Now()
	return &agentloop.AgentRunRecord{
		RunGroup:      runGroup,
		Framework:     framework,
		Model:         model,
		PromptID:      prompt.ID,
		PromptVersion: prompt.Version,
		PromptType:    prompt.Type,
		Conversation:  []agentloop.ConversationMessage{},
		ToolCalls:     []agentloop.ToolInvocation{},
		ToolResults:   []agentloop.ToolResult{},
		StartedAt:     now,
		FinishedAt:    now,
		Status:        agentloop.StatusError,
		Error:         &agentloop.RunError{Kind: unifiedllm.ErrorKind(err), Message: err.Error()},
	}
}

// EventLog collects run events in memory. It is safe for concurrent use.
type EventLog struct {
	mu     sync.Mutex
	events []agentloop.RunEvent
}

// Emit implements agentloop.EventSink.
func (l *EventLog) Emit(ev agentloop.RunEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Events returns a copy of the collected events.
func (l *EventLog) Events() []agentloop.RunEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]agentloop.RunEvent(nil), l.events...)
}
