package pipeline

import (
	"context"
	"log/slog"

	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// DefaultMaxAttempts bounds the execution attempts for one question
const DefaultMaxAttempts = 5

// State is a retry controller state
type State string

const (
	StateSynthesizing State = "SYNTHESIZING"
	StateExecuting    State = "EXECUTING"
	StateRetry        State = "RETRY"
	StateSuccess      State = "SUCCESS"
	StateExhausted    State = "EXHAUSTED"
)

// Resolution is the terminal outcome of the retry controller
type Resolution struct {
	State State
	// Query is the last candidate that was executed
	Query string
	// Data is the formatted result on success, or the error description
	// handed to the answer model on exhaustion
	Data string
	// Attempts is the number of executions performed
	Attempts  int
	LastError string
}

type synthesizer interface {
	Synthesize(ctx context.Context, req QueryRequest) (string, error)
}

type executor interface {
	Execute(ctx context.Context, kind store.Kind, query string) (string, error)
}

// RetryController drives synthesis and execution, regenerating the query
// with the last execution error until it succeeds or the attempt budget is
// spent. There is no delay between attempts.
type RetryController struct {
	synth       synthesizer
	exec        executor
	maxAttempts int
	log         *slog.Logger
}

// NewRetryController creates a RetryController. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewRetryController(synth synthesizer, exec executor, maxAttempts int, logger *slog.Logger) *RetryController {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryController{synth: synth, exec: exec, maxAttempts: maxAttempts, log: logger}
}

// Resolve runs the state machine for req. Execution failures never escape;
// an error is returned only when synthesis itself fails or ctx is done.
func (rc *RetryController) Resolve(ctx context.Context, req QueryRequest) (*Resolution, error) {
	res := &Resolution{}
	req.ErrorContext = ""
	req.PreviousQuery = ""

	state := StateSynthesizing
	for {
		switch state {
		case StateSynthesizing:
			query, err := rc.synth.Synthesize(ctx, req)
			if err != nil {
				return nil, err
			}
			res.Query = query
			state = StateExecuting

		case StateExecuting:
			res.Attempts++
			data, err := rc.exec.Execute(ctx, req.Kind, res.Query)
			if err == nil {
				res.State = StateSuccess
				res.Data = data
				metrics.ExecutionAttempts.WithLabelValues(string(req.Kind), string(res.State)).Observe(float64(res.Attempts))
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res.LastError = err.Error()
			state = StateRetry

		case StateRetry:
			if res.Attempts >= rc.maxAttempts {
				res.State = StateExhausted
				res.Data = "Error executing query: " + res.LastError
				rc.log.Warn("pipeline: retries exhausted",
					"attempts", res.Attempts, "query", res.Query, "error", res.LastError)
				metrics.ExecutionAttempts.WithLabelValues(string(req.Kind), string(res.State)).Observe(float64(res.Attempts))
				return res, nil
			}
			rc.log.Info("pipeline: retrying failed query",
				"attempt", res.Attempts, "query", res.Query, "error", res.LastError)
			req.ErrorContext = res.LastError
			req.PreviousQuery = res.Query
			state = StateSynthesizing
		}
	}
}
