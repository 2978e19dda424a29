package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/kartoza/kartoza-nl2sql/internal/llm"
	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// withTimeout derives a context bounded by d, or returns ctx unchanged when
// d is zero
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Introspector fetches the schema description for a store kind
type Introspector struct {
	stores  store.Registry
	log     *slog.Logger
	timeout time.Duration
}

// NewIntrospector creates an Introspector over stores
func NewIntrospector(stores store.Registry, logger *slog.Logger, timeout time.Duration) *Introspector {
	return &Introspector{stores: stores, log: logger, timeout: timeout}
}

// Schema returns the schema text for kind. Any failure is logged and
// reported as an empty string.
func (i *Introspector) Schema(ctx context.Context, kind store.Kind) string {
	s, err := i.stores.Get(kind)
	if err != nil {
		i.log.Error("pipeline: no store for kind", "store", kind, "error", err)
		return ""
	}

	ctx, cancel := withTimeout(ctx, i.timeout)
	defer cancel()

	schema, err := s.Schema(ctx)
	if err != nil {
		i.log.Error("pipeline: failed to retrieve schema", "store", kind, "error", err)
		return ""
	}
	return strings.TrimSpace(schema)
}

// Dialect returns the dialect name of the store for kind
func (i *Introspector) Dialect(kind store.Kind) string {
	s, err := i.stores.Get(kind)
	if err != nil {
		return ""
	}
	return s.Dialect()
}

// Classifier decides whether a question needs a database query
type Classifier struct {
	model   llm.Model
	log     *slog.Logger
	timeout time.Duration
}

// NewClassifier creates a Classifier backed by the chat model
func NewClassifier(model llm.Model, logger *slog.Logger, timeout time.Duration) *Classifier {
	return &Classifier{model: model, log: logger, timeout: timeout}
}

// NeedsQuery asks the model and interprets its reply with ParseDecision
func (c *Classifier) NeedsQuery(ctx context.Context, question, schema string) (bool, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.model.Complete(ctx, classifyPrompt(question, schema))
	metrics.RecordModelCall("classify", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("classify question: %w", err)
	}

	decision := ParseDecision(out)
	c.log.Debug("pipeline: classified question", "raw", strings.TrimSpace(out), "needs_query", decision)
	return decision, nil
}

// ParseDecision is true only when the reply, trimmed, equals "true"
// case-insensitively. Anything else, including empty or hedged replies,
// counts as false.
func ParseDecision(out string) bool {
	return strings.EqualFold(strings.TrimSpace(out), "true")
}

// Synthesizer turns a QueryRequest into a query candidate
type Synthesizer struct {
	model   llm.Model
	log     *slog.Logger
	timeout time.Duration
}

// NewSynthesizer creates a Synthesizer backed by the code model
func NewSynthesizer(model llm.Model, logger *slog.Logger, timeout time.Duration) *Synthesizer {
	return &Synthesizer{model: model, log: logger, timeout: timeout}
}

// Synthesize asks the model for a query and extracts it from the reply.
// The candidate is not validated.
func (s *Synthesizer) Synthesize(ctx context.Context, req QueryRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.model.Complete(ctx, synthesisPrompt(req))
	metrics.RecordModelCall("synthesize", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("synthesize query: %w", err)
	}

	var candidate string
	if req.Kind == store.Document {
		candidate = ExtractDocumentQuery(out)
	} else {
		candidate = ExtractSQL(out)
	}
	s.log.Debug("pipeline: synthesized query", "query", candidate, "retry", req.ErrorContext != "")
	return candidate, nil
}

// errEmptyCandidate is reported when the model replied without a query
var errEmptyCandidate = errors.New("the model returned no query")

// Executor runs query candidates against the configured stores
type Executor struct {
	stores  store.Registry
	log     *slog.Logger
	timeout time.Duration
}

// NewExecutor creates an Executor over stores
func NewExecutor(stores store.Registry, logger *slog.Logger, timeout time.Duration) *Executor {
	return &Executor{stores: stores, log: logger, timeout: timeout}
}

// Execute runs query and returns the formatted result text. Every failure,
// including connection problems, is reported as *store.ExecutionError so
// that it can be fed back into synthesis.
func (e *Executor) Execute(ctx context.Context, kind store.Kind, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", store.NewExecutionError(query, errEmptyCandidate, "")
	}
	s, err := e.stores.Get(kind)
	if err != nil {
		return "", store.NewExecutionError(query, err, "")
	}

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	result, err := s.Execute(ctx, query)
	if err != nil {
		if !store.IsExecutionError(err) {
			err = store.NewExecutionError(query, err, "")
		}
		return "", err
	}
	return store.Format(result), nil
}

// Answerer streams the natural-language answer
type Answerer struct {
	model   llm.Model
	log     *slog.Logger
	timeout time.Duration
}

// NewAnswerer creates an Answerer backed by the chat model
func NewAnswerer(model llm.Model, logger *slog.Logger, timeout time.Duration) *Answerer {
	return &Answerer{model: model, log: logger, timeout: timeout}
}

// Stream yields answer fragments for question grounded on data. The
// timeout bounds the whole stream.
func (a *Answerer) Stream(ctx context.Context, question, data string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := withTimeout(ctx, a.timeout)
		defer cancel()

		start := time.Now()
		var streamErr error
		defer func() { metrics.RecordModelCall("answer", time.Since(start), streamErr) }()

		for chunk, err := range a.model.Stream(ctx, answerPrompt(question, data)) {
			if err != nil {
				streamErr = err
				yield("", fmt.Errorf("stream answer: %w", err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
