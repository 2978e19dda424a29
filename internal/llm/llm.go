// Package llm provides the model clients used by the query pipeline: a
// blocking completion call and an incremental text stream.
package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Model is a text generation model. Implementations are safe for
// concurrent use.
type Model interface {
	// Complete returns the full completion for prompt. An empty completion
	// is not an error.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream yields completion fragments in order. A non-nil error is
	// yielded at most once and ends the sequence. Breaking out of the range
	// loop releases the underlying response.
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Profile selects which configured model a client uses
type Profile string

const (
	// Chat is used for classification, answers and ingestion decisions
	Chat Profile = "chat"
	// Code is used for query synthesis
	Code Profile = "code"
)

// Provider names
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Config configures both model profiles
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	ChatModel   string
	CodeModel   string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New creates a client for the given profile
func New(cfg Config, profile Profile) (Model, error) {
	model := cfg.ChatModel
	if profile == Code {
		model = cfg.CodeModel
	}
	if model == "" {
		return nil, fmt.Errorf("no %s model configured", profile)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		return NewOllama(OllamaConfig{
			Endpoint:    cfg.BaseURL,
			Model:       model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	case ProviderAnthropic:
		return NewAnthropic(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// Collect drains a stream into a single string
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}
