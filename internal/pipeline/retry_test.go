package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

type scriptedSynth struct {
	requests []QueryRequest
	err      error
}

func (s *scriptedSynth) Synthesize(_ context.Context, req QueryRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("SELECT %d;", len(s.requests)), nil
}

type scriptedExec struct {
	failures int
	calls    int
}

func (e *scriptedExec) Execute(_ context.Context, _ store.Kind, query string) (string, error) {
	e.calls++
	if e.calls <= e.failures {
		return "", store.NewExecutionError(query, fmt.Errorf("boom %d", e.calls), "")
	}
	return "Total 1 rows", nil
}

func TestRetryController_SucceedsFirstTime(t *testing.T) {
	synth := &scriptedSynth{}
	exec := &scriptedExec{}
	rc := NewRetryController(synth, exec, 0, discardLogger())

	res, err := rc.Resolve(context.Background(), QueryRequest{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "SELECT 1;", res.Query)
	assert.Equal(t, "Total 1 rows", res.Data)
}

func TestRetryController_FeedsErrorBack(t *testing.T) {
	synth := &scriptedSynth{}
	exec := &scriptedExec{failures: 2}
	rc := NewRetryController(synth, exec, 0, discardLogger())

	res, err := rc.Resolve(context.Background(), QueryRequest{Question: "q", ErrorContext: "stale"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "SELECT 3;", res.Query)

	require.Len(t, synth.requests, 3)
	assert.Empty(t, synth.requests[0].ErrorContext)
	assert.Equal(t, "boom 1", synth.requests[1].ErrorContext)
	assert.Equal(t, "SELECT 1;", synth.requests[1].PreviousQuery)
	assert.Equal(t, "boom 2", synth.requests[2].ErrorContext)
	assert.Equal(t, "SELECT 2;", synth.requests[2].PreviousQuery)
}

func TestRetryController_Exhausts(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		want        int
	}{
		{"default", 0, DefaultMaxAttempts},
		{"custom", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &scriptedSynth{}
			exec := &scriptedExec{failures: 100}
			rc := NewRetryController(synth, exec, tt.maxAttempts, discardLogger())

			res, err := rc.Resolve(context.Background(), QueryRequest{Question: "q"})
			require.NoError(t, err)
			assert.Equal(t, StateExhausted, res.State)
			assert.Equal(t, tt.want, res.Attempts)
			assert.Equal(t, tt.want, exec.calls)
			assert.Equal(t, fmt.Sprintf("boom %d", tt.want), res.LastError)
			assert.Equal(t, fmt.Sprintf("Error executing query: boom %d", tt.want), res.Data)
		})
	}
}

func TestRetryController_SynthesisFailureIsFatal(t *testing.T) {
	synth := &scriptedSynth{err: errors.New("model offline")}
	exec := &scriptedExec{}
	rc := NewRetryController(synth, exec, 0, discardLogger())

	_, err := rc.Resolve(context.Background(), QueryRequest{Question: "q"})
	assert.ErrorContains(t, err, "model offline")
	assert.Zero(t, exec.calls)
}

func TestRetryController_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	synth := &scriptedSynth{}
	exec := &scriptedExec{failures: 100}
	rc := NewRetryController(synth, exec, 0, discardLogger())

	_, err := rc.Resolve(ctx, QueryRequest{Question: "q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, exec.calls)
}
