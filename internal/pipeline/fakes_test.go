package pipeline

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel returns scripted completions in order and streams fixed chunks
type fakeModel struct {
	mu          sync.Mutex
	completions []string
	completeErr error
	chunks      []string
	streamErr   error
	panicOn     string

	prompts       []string
	streamPrompts []string
	streamed      int
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.panicOn == "complete" {
		panic("model exploded")
	}
	if m.completeErr != nil {
		return "", m.completeErr
	}
	if len(m.completions) == 0 {
		return "", errors.New("no scripted completion")
	}
	out := m.completions[0]
	if len(m.completions) > 1 {
		m.completions = m.completions[1:]
	}
	return out, nil
}

func (m *fakeModel) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		m.streamPrompts = append(m.streamPrompts, prompt)
		chunks := m.chunks
		streamErr := m.streamErr
		m.mu.Unlock()

		for _, c := range chunks {
			m.mu.Lock()
			m.streamed++
			m.mu.Unlock()
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

func (m *fakeModel) completeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// fakeStore is an in-memory store.Store driven by an execute function
type fakeStore struct {
	kind      store.Kind
	schema    string
	schemaErr error
	execute   func(query string) (*store.Result, error)

	mu       sync.Mutex
	executed []string
}

func (s *fakeStore) Kind() store.Kind {
	if s.kind == "" {
		return store.Relational
	}
	return s.kind
}

func (s *fakeStore) Dialect() string {
	if s.Kind() == store.Document {
		return "MongoDB"
	}
	return "MySQL"
}

func (s *fakeStore) EnsureConnected(context.Context) error { return nil }

func (s *fakeStore) Schema(context.Context) (string, error) {
	return s.schema, s.schemaErr
}

func (s *fakeStore) Execute(_ context.Context, query string) (*store.Result, error) {
	s.mu.Lock()
	s.executed = append(s.executed, query)
	s.mu.Unlock()
	if s.execute == nil {
		return nil, store.NewExecutionError(query, errors.New("not implemented"), "")
	}
	return s.execute(query)
}

func (s *fakeStore) ListTables(context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) CreateTable(context.Context, string, []store.ColumnDef) error { return nil }

func (s *fakeStore) BulkInsert(context.Context, string, []string, [][]any) (store.InsertResult, error) {
	return store.InsertResult{}, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) executions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func collect(seq iter.Seq[Record]) []Record {
	var out []Record
	for r := range seq {
		out = append(out, r)
	}
	return out
}
