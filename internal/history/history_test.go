package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

func TestAdd(t *testing.T) {
	h := New(t.TempDir(), 100)

	entry := Entry{
		Timestamp:  time.Now(),
		Question:   "How many customers?",
		Store:      "relational",
		Label:      "Database query needed",
		Query:      "SELECT COUNT(*) FROM customers;",
		Answer:     "There are 3 customers.",
		DurationMS: 10.5,
		Success:    true,
	}

	if err := h.Add(entry); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}

	if entries[0].Question != "How many customers?" {
		t.Errorf("unexpected question: %s", entries[0].Question)
	}

	if entries[0].Query != "SELECT COUNT(*) FROM customers;" {
		t.Errorf("unexpected query: %s", entries[0].Query)
	}
}

func TestHistoryTrimming(t *testing.T) {
	h := New(t.TempDir(), 5)

	// Add more entries than max
	for i := 0; i < 10; i++ {
		err := h.Add(Entry{
			Timestamp: time.Now(),
			Question:  "Question " + string(rune('A'+i)),
			Success:   true,
		})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(entries) != 5 {
		t.Errorf("expected 5 history entries, got %d", len(entries))
	}

	// Most recent should be first
	if entries[0].Question != "Question J" {
		t.Errorf("expected most recent question first, got: %s", entries[0].Question)
	}
}

func TestListMissingFile(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), "nested"), 0)

	entries, err := h.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty history, got %d entries", len(entries))
	}
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	h := New(dir, 10)
	if _, err := h.List(); err == nil {
		t.Error("expected error for corrupt history file")
	}
	if err := h.Add(Entry{Question: "q"}); err == nil {
		t.Error("Add should not overwrite a corrupt history file")
	}
}

func TestClear(t *testing.T) {
	h := New(t.TempDir(), 10)
	if err := h.Add(Entry{Question: "q"}); err != nil {
		t.Fatal(err)
	}
	if err := h.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := h.Clear(); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}

	entries, err := h.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty history after Clear, got %d", len(entries))
	}
}

func TestFromRecord(t *testing.T) {
	started := time.Now().Add(-time.Second)

	e := FromRecord("q", store.Relational, pipeline.Record{
		Label:  pipeline.LabelQueryNeeded,
		Query:  "SELECT 1;",
		Answer: "one",
	}, started)
	want := Entry{
		Timestamp: started,
		Question:  "q",
		Store:     "relational",
		Label:     pipeline.LabelQueryNeeded,
		Query:     "SELECT 1;",
		Answer:    "one",
		Success:   true,
	}
	if diff := cmp.Diff(want, e, cmpopts.IgnoreFields(Entry{}, "DurationMS")); diff != "" {
		t.Errorf("FromRecord mismatch (-want +got):\n%s", diff)
	}
	if e.DurationMS < 1000 {
		t.Errorf("expected duration of at least 1000ms, got %v", e.DurationMS)
	}

	e = FromRecord("q", store.Document, pipeline.Record{Label: pipeline.LabelError, Answer: "Error: boom"}, started)
	if e.Success {
		t.Error("error records should not count as success")
	}
}

func TestRemove(t *testing.T) {
	h := New(t.TempDir(), 10)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := Entry{Timestamp: base, Question: "first"}
	second := Entry{Timestamp: base.Add(time.Minute), Question: "second"}
	for _, e := range []Entry{first, second} {
		if err := h.Add(e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	removed, err := h.Remove(first)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected entry to be removed")
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Question != "second" {
		t.Errorf("unexpected entries after remove: %+v", entries)
	}

	removed, err = h.Remove(Entry{Timestamp: base, Question: "missing"})
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Error("nothing should be removed for an unknown entry")
	}
}
