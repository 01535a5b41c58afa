// Package agent runs one conversational turn against a dataset: it classifies
// the query, asks the model for a SQL program, executes it in the sandbox and
// retries with the failure reason until the program works or the attempt
// budget is spent. Ambiguous queries get suggestions instead, and successful
// transformations get a short insight.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"data-explorer-be/pkg/ai/parser"
	"data-explorer-be/pkg/ai/prompt"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/llm"
	"data-explorer-be/pkg/sandbox"
	"data-explorer-be/pkg/store"
)

// ErrUpstream wraps a model transport failure that ended the turn.
var ErrUpstream = errors.New("language model unavailable")

const (
	DefaultMaxAttempts   = 3
	DefaultHistoryWindow = 2
	DefaultInsightRows   = 5
	maxSuggestions       = 3
)

type (
	ChartSpec  = parser.ChartSpec
	Suggestion = parser.Suggestion
	Insight    = parser.Insight
)

// Query is one user question plus the recent conversation.
type Query struct {
	SessionID string
	Text      string
	History   []store.Interaction
}

// Turn is the working state of a single query. Steps take it by value and
// return the next value.
type Turn struct {
	Query          Query
	Input          *dataset.Dataset
	Profile        dataset.Profile
	Classification Classification
	Code           string
	Explanation    string
	Charts         []ChartSpec
	Suggestions    []Suggestion
	Insight        *Insight
	Output         *dataset.Dataset
	Err            error
	Attempts       int
}

// Result is what a finished turn reports. Dataset is set only when a
// transformation succeeded.
type Result struct {
	Classification Classification
	Explanation    string
	Charts         []ChartSpec
	Suggestions    []Suggestion
	Insight        *Insight
	Dataset        *dataset.Dataset
	Error          string
	Attempts       int
}

// Interaction converts the result into a history entry.
func (r Result) Interaction(query string, at time.Time) store.Interaction {
	return store.Interaction{
		Query:          query,
		Classification: r.Classification.String(),
		Explanation:    r.Explanation,
		Charts:         r.Charts,
		Suggestions:    r.Suggestions,
		Error:          r.Error,
		Insight:        r.Insight,
		Dataset:        r.Dataset,
		CreatedAt:      at,
	}
}

// Metrics receives per-turn measurements.
type Metrics interface {
	ObserveTurn(classification, outcome string)
	ObserveAttempt(outcome string)
	ObserveExecution(d time.Duration, outcome string)
	ObserveModelCall(step string, d time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTurn(string, string)                    {}
func (nopMetrics) ObserveAttempt(string)                         {}
func (nopMetrics) ObserveExecution(time.Duration, string)        {}
func (nopMetrics) ObserveModelCall(string, time.Duration, error) {}

type Option func(*Agent)

func WithMaxAttempts(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func WithHistoryWindow(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.historyWindow = n
		}
	}
}

func WithInsightRows(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.insightRows = n
		}
	}
}

// WithModelTimeout bounds every single model call.
func WithModelTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.modelTimeout = d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(a *Agent) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Agent) {
		a.observer = o
	}
}

type Agent struct {
	llm           llm.LLMProvider
	sandbox       sandbox.Executor
	maxAttempts   int
	historyWindow int
	insightRows   int
	modelTimeout  time.Duration
	logger        *zap.Logger
	metrics       Metrics
	observer      Observer
	tracer        trace.Tracer
}

func New(provider llm.LLMProvider, executor sandbox.Executor, opts ...Option) *Agent {
	a := &Agent{
		llm:           provider,
		sandbox:       executor,
		maxAttempts:   DefaultMaxAttempts,
		historyWindow: DefaultHistoryWindow,
		insightRows:   DefaultInsightRows,
		logger:        zap.NewNop(),
		metrics:       nopMetrics{},
		tracer:        otel.Tracer("data-explorer-be/agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drives one turn to Done. The returned error is non-nil only when the
// model could not be reached outside the insight step or ctx ended; every
// other failure is reported in Result.Error.
func (a *Agent) Run(ctx context.Context, q Query, ds *dataset.Dataset) (Result, error) {
	ctx, span := a.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("session.id", q.SessionID),
	))
	defer span.End()

	q.History = store.Window(q.History, a.historyWindow)
	t := Turn{
		Query:   q,
		Input:   ds,
		Profile: dataset.BuildProfile(ds),
	}

	state := StateClassify
	for state != StateDone {
		var (
			next State
			err  error
		)
		prev := state
		t, next, err = a.step(ctx, state, t)
		if err != nil {
			a.metrics.ObserveTurn(t.Classification.String(), "upstream_error")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.logger.Error("turn aborted",
				zap.String("session_id", q.SessionID),
				zap.String("state", prev.String()),
				zap.Error(err))
			return a.finish(t), err
		}
		a.emit(t, prev, next)
		state = next
	}

	res := a.finish(t)
	outcome := "ok"
	if res.Error != "" {
		outcome = "error"
	}
	a.metrics.ObserveTurn(res.Classification.String(), outcome)
	span.SetAttributes(
		attribute.String("turn.classification", res.Classification.String()),
		attribute.Int("turn.attempts", res.Attempts),
		attribute.String("turn.outcome", outcome),
	)
	a.logger.Info("turn finished",
		zap.String("session_id", q.SessionID),
		zap.String("classification", res.Classification.String()),
		zap.Int("attempts", res.Attempts),
		zap.String("error", res.Error))
	return res, nil
}

func (a *Agent) step(ctx context.Context, s State, t Turn) (Turn, State, error) {
	ctx, span := a.tracer.Start(ctx, "agent."+s.String(), trace.WithAttributes(
		attribute.Int("turn.attempt", t.Attempts),
	))
	defer span.End()

	var (
		next State
		err  error
	)
	switch s {
	case StateClassify:
		t, next, err = a.classify(ctx, t)
	case StateGenerate:
		t, next, err = a.generate(ctx, t)
	case StateExecute:
		t, next = a.execute(ctx, t)
	case StateSuggest:
		t, next, err = a.suggest(ctx, t)
	case StateInsight:
		t, next = a.insight(ctx, t)
	case StateDone:
		next = StateDone
	default:
		panic(fmt.Sprintf("agent: unhandled state %v", s))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else if t.Err != nil {
		span.SetAttributes(attribute.String("turn.error", t.Err.Error()))
	}
	return t, next, err
}

func (a *Agent) classify(ctx context.Context, t Turn) (Turn, State, error) {
	b := prompt.NewBuilder(t.Query.Text, t.Query.History)
	text, err := a.callModel(ctx, StateClassify, b.Classify(), llm.WithTemperature(0))
	if err != nil {
		return t, StateDone, err
	}

	label, err := parser.ParseClassification(text)
	if err != nil {
		t.Classification = ClassificationUnknown
		t.Err = err
		return t, StateDone, nil
	}
	t.Classification = ClassificationFromLabel(label)

	switch t.Classification {
	case ClassificationCodeGeneration:
		return t, StateGenerate, nil
	case ClassificationSuggestion:
		return t, StateSuggest, nil
	case ClassificationGreeting:
		return t, StateDone, nil
	default:
		t.Err = fmt.Errorf("unrecognised classification %q", label)
		return t, StateDone, nil
	}
}

func (a *Agent) generate(ctx context.Context, t Turn) (Turn, State, error) {
	var retry *prompt.Retry
	if t.Err != nil {
		retry = &prompt.Retry{Attempt: t.Attempts, Code: t.Code, Reason: t.Err.Error()}
	}
	t.Attempts++

	b := prompt.NewBuilder(t.Query.Text, t.Query.History)
	text, err := a.callModel(ctx, StateGenerate, b.Generate(t.Profile, t.Input.Columns(), retry), llm.WithJSONMode())
	if err != nil {
		return t, StateDone, err
	}

	gen, err := parser.ParseGeneration(text)
	if err != nil {
		t.Code = ""
		t.Err = err
		return t, StateExecute, nil
	}
	t.Code = gen.Code
	t.Explanation = gen.Explanation
	t.Charts = gen.Charts
	t.Err = nil
	return t, StateExecute, nil
}

func (a *Agent) execute(ctx context.Context, t Turn) (Turn, State) {
	if t.Err != nil {
		a.metrics.ObserveAttempt("parse_error")
		return a.retryOrGiveUp(t)
	}

	res := a.sandbox.Execute(ctx, sandbox.Program{Source: t.Code}, t.Input)
	if !res.OK() {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("%w: no result", sandbox.ErrContractViolation)
		}
		a.metrics.ObserveExecution(res.Duration, "error")
		a.metrics.ObserveAttempt("execution_error")
		a.logger.Warn("program failed",
			zap.String("session_id", t.Query.SessionID),
			zap.Int("attempt", t.Attempts),
			zap.Error(err))
		t.Err = err
		return a.retryOrGiveUp(t)
	}

	a.metrics.ObserveExecution(res.Duration, "ok")
	a.metrics.ObserveAttempt("ok")
	t.Err = nil
	t.Output = res.Dataset
	t.Charts = chartsFor(t.Charts, res.Dataset)
	return t, StateInsight
}

func (a *Agent) retryOrGiveUp(t Turn) (Turn, State) {
	if t.Attempts >= a.maxAttempts {
		return t, StateDone
	}
	return t, StateGenerate
}

func (a *Agent) suggest(ctx context.Context, t Turn) (Turn, State, error) {
	b := prompt.NewBuilder(t.Query.Text, t.Query.History)
	text, err := a.callModel(ctx, StateSuggest, b.Suggest(t.Profile, t.Input.Columns()), llm.WithJSONMode())
	if err != nil {
		return t, StateDone, err
	}

	suggestions, err := parser.ParseSuggestions(text)
	if err != nil {
		t.Err = err
		return t, StateDone, nil
	}
	// models sometimes overshoot; keep the first ones
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	t.Suggestions = suggestions
	return t, StateDone, nil
}

// insight never fails the turn; the transformation stands either way.
func (a *Agent) insight(ctx context.Context, t Turn) (Turn, State) {
	b := prompt.NewBuilder(t.Query.Text, t.Query.History)
	text, err := a.callModel(ctx, StateInsight, b.Insight(t.Output.Head(a.insightRows)), llm.WithJSONMode())
	if err != nil {
		t.Err = fmt.Errorf("insight unavailable: %w", err)
		return t, StateDone
	}

	ins, err := parser.ParseInsight(text)
	if err != nil {
		t.Err = err
		return t, StateDone
	}
	t.Insight = &ins
	return t, StateDone
}

func (a *Agent) callModel(ctx context.Context, s State, p string, opts ...llm.Option) (string, error) {
	if a.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.modelTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := a.llm.Generate(ctx, p, opts...)
	a.metrics.ObserveModelCall(s.String(), time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUpstream, s, err)
	}
	return text, nil
}

func (a *Agent) emit(t Turn, from, to State) {
	if a.observer == nil {
		return
	}
	tr := Transition{
		SessionID: t.Query.SessionID,
		From:      from,
		To:        to,
		FromName:  from.String(),
		ToName:    to.String(),
		Attempt:   t.Attempts,
	}
	if t.Err != nil {
		tr.Error = t.Err.Error()
	}
	a.observer(tr)
}

func (a *Agent) finish(t Turn) Result {
	res := Result{
		Classification: t.Classification,
		Suggestions:    t.Suggestions,
		Insight:        t.Insight,
		Dataset:        t.Output,
		Attempts:       t.Attempts,
	}
	if t.Output != nil || t.Classification != ClassificationCodeGeneration {
		res.Explanation = t.Explanation
		res.Charts = t.Charts
	}
	if t.Err != nil {
		res.Error = t.Err.Error()
	}
	return res
}

// chartsFor drops charts that reference columns the result does not have.
func chartsFor(charts []ChartSpec, ds *dataset.Dataset) []ChartSpec {
	var out []ChartSpec
	for _, c := range charts {
		ok := true
		for _, col := range c.Columns() {
			if ds.ColumnIndex(col) < 0 {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}
