// Package pipeline resolves natural-language questions against a data
// store: it introspects the schema, classifies the question, synthesizes and
// executes a query with bounded self-correcting retries, and streams a
// grounded answer back as a sequence of records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kartoza/kartoza-nl2sql/internal/llm"
	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// ErrEmptyQuestion is reported for blank questions
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Config holds the pipeline dependencies
type Config struct {
	Logger *slog.Logger
	Stores store.Registry
	// ChatModel classifies questions and writes answers
	ChatModel llm.Model
	// CodeModel synthesizes queries
	CodeModel llm.Model
	// MaxAttempts bounds query executions per question (default 5)
	MaxAttempts int
	// ModelTimeout bounds each model call, including a whole answer stream
	ModelTimeout time.Duration
	// QueryTimeout bounds each query execution and schema retrieval
	QueryTimeout time.Duration
}

// Validate checks that all required dependencies are present
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if len(c.Stores) == 0 {
		return errors.New("at least one store is required")
	}
	if c.ChatModel == nil {
		return errors.New("chat model is required")
	}
	if c.CodeModel == nil {
		return errors.New("code model is required")
	}
	return nil
}

// Pipeline orchestrates question resolution
type Pipeline struct {
	log        *slog.Logger
	introspect *Introspector
	classifier *Classifier
	retry      *RetryController
	answerer   *Answerer
}

// New creates a new Pipeline
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	exec := NewExecutor(cfg.Stores, log, cfg.QueryTimeout)
	synth := NewSynthesizer(cfg.CodeModel, log, cfg.ModelTimeout)

	return &Pipeline{
		log:        log,
		introspect: NewIntrospector(cfg.Stores, log, cfg.QueryTimeout),
		classifier: NewClassifier(cfg.ChatModel, log, cfg.ModelTimeout),
		retry:      NewRetryController(synth, exec, cfg.MaxAttempts, log),
		answerer:   NewAnswerer(cfg.ChatModel, log, cfg.ModelTimeout),
	}, nil
}

// Process resolves question against the store of the given kind. Records
// are produced lazily as the caller ranges over the sequence; breaking out
// of the loop stops all further work. Process never panics or returns an
// error: any fault becomes a single terminal record labelled LabelError.
func (p *Pipeline) Process(ctx context.Context, question string, kind store.Kind) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		start := time.Now()
		log := p.log.With("request_id", uuid.NewString(), "store", kind)
		outcome := "error"
		defer func() {
			metrics.PipelineRequestsTotal.WithLabelValues(string(kind), outcome).Inc()
			metrics.PipelineDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		}()

		inYield := false
		stopped := false
		emit := func(r Record) bool {
			inYield = true
			ok := yield(r)
			inYield = false
			if !ok {
				stopped = true
			}
			return ok
		}

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			// Panics raised by the consumer belong to the consumer
			if inYield {
				panic(r)
			}
			log.Error("pipeline: recovered from panic", "panic", r)
			outcome = "error"
			if !stopped {
				yield(errorRecord(fmt.Errorf("internal error: %v", r)))
			}
		}()

		outcome = p.run(ctx, log, strings.TrimSpace(question), kind, emit)
		if stopped && outcome != "error" {
			outcome = "cancelled"
		}
	}
}

// run executes the flow and returns the outcome label for metrics
func (p *Pipeline) run(ctx context.Context, log *slog.Logger, question string, kind store.Kind, emit func(Record) bool) string {
	if question == "" {
		log.Warn("pipeline: empty question")
		emit(errorRecord(ErrEmptyQuestion))
		return "error"
	}
	log.Info("pipeline: processing question", "question", question)

	schema := p.introspect.Schema(ctx, kind)
	if schema == "" {
		emit(Record{Label: LabelSchemaUnavailable, Query: "", Answer: SchemaUnavailableAnswer})
		return "schema_unavailable"
	}

	needsQuery, err := p.classifier.NeedsQuery(ctx, question, schema)
	if err != nil {
		log.Error("pipeline: classification failed", "error", err)
		emit(errorRecord(err))
		return "error"
	}

	if !needsQuery {
		log.Info("pipeline: no query needed")
		if !p.streamAnswer(ctx, log, question, NoQueryData, LabelNoQueryNeeded, NoQueryDisplay, emit) {
			return "error"
		}
		return "no_query"
	}

	req := QueryRequest{
		Question: question,
		Kind:     kind,
		Dialect:  p.introspect.Dialect(kind),
		Schema:   schema,
	}
	res, err := p.retry.Resolve(ctx, req)
	if err != nil {
		log.Error("pipeline: query resolution failed", "error", err)
		emit(errorRecord(err))
		return "error"
	}
	log.Info("pipeline: query resolved", "state", res.State, "attempts", res.Attempts, "query", res.Query)

	if !p.streamAnswer(ctx, log, question, res.Data, LabelQueryNeeded, res.Query, emit) {
		return "error"
	}
	if res.State == StateExhausted {
		return "exhausted"
	}
	return "success"
}

// streamAnswer emits one record per answer fragment, carrying the
// cumulative answer. At least one record is emitted. It reports false if
// the stream failed.
func (p *Pipeline) streamAnswer(ctx context.Context, log *slog.Logger, question, data, label, display string, emit func(Record) bool) bool {
	var answer strings.Builder
	emitted := false

	for chunk, err := range p.answerer.Stream(ctx, question, data) {
		if err != nil {
			log.Error("pipeline: answer stream failed", "error", err)
			emit(errorRecord(err))
			return false
		}
		if chunk == "" {
			continue
		}
		answer.WriteString(chunk)
		emitted = true
		if !emit(Record{Label: label, Query: display, Answer: answer.String()}) {
			return true
		}
	}

	if !emitted {
		emit(Record{Label: label, Query: display, Answer: ""})
	}
	return true
}
