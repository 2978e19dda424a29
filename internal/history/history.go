// Package history persists answered questions to history.json in the
// configuration directory, most recent first.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// FileName is the history file inside the configuration directory
const FileName = "history.json"

// Entry is one answered question
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Question   string    `json:"question"`
	Store      string    `json:"store"`
	Label      string    `json:"label"`
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	DurationMS float64   `json:"duration_ms"`
	Success    bool      `json:"success"`
}

// FromRecord builds an entry from the last record produced for question
func FromRecord(question string, kind store.Kind, rec pipeline.Record, started time.Time) Entry {
	return Entry{
		Timestamp:  started,
		Question:   question,
		Store:      string(kind),
		Label:      rec.Label,
		Query:      rec.Query,
		Answer:     rec.Answer,
		DurationMS: float64(time.Since(started).Microseconds()) / 1000,
		Success:    rec.Label == pipeline.LabelQueryNeeded || rec.Label == pipeline.LabelNoQueryNeeded,
	}
}

// Store is a bounded, file-backed history. It is safe for concurrent use
// within one process.
type Store struct {
	mu      sync.Mutex
	path    string
	maxSize int
}

// New creates a history stored in dir, keeping at most maxSize entries
func New(dir string, maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{path: filepath.Join(dir, FileName), maxSize: maxSize}
}

// Path returns the history file path
func (s *Store) Path() string {
	return s.path
}

// List returns all entries, most recent first
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add prepends entry and trims the history to its maximum size
func (s *Store) Add(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	entries = append([]Entry{entry}, entries...)

	// Trim to max size
	if len(entries) > s.maxSize {
		entries = entries[:s.maxSize]
	}

	return s.save(entries)
}

// Remove deletes the entry with the same timestamp and question. It
// reports whether an entry was removed.
func (s *Store) Remove(entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return false, err
	}
	for i, e := range entries {
		if e.Timestamp.Equal(entry.Timestamp) && e.Question == entry.Question {
			entries = append(entries[:i], entries[i+1:]...)
			return true, s.save(entries)
		}
	}
	return false, nil
}

// Clear removes all entries
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
