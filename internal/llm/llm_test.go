package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newOllamaServer(t *testing.T, handler func(w http.ResponseWriter, req ollamaRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaRequest
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		got = req
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"true"},"done":true}`)
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL + "/", Model: "qwen2.5:32b"})
	out, err := c.Complete(context.Background(), "is this a query?")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "true" {
		t.Errorf("expected 'true', got %q", out)
	}

	if got.Model != "qwen2.5:32b" {
		t.Errorf("unexpected model: %s", got.Model)
	}
	if got.Stream {
		t.Error("expected non-streaming request")
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "is this a query?" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if temp, ok := got.Options["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("expected temperature 0, got %v", got.Options["temperature"])
	}
}

func TestOllamaCompleteAPIError(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "missing"})
	_, err := c.Complete(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOllamaCompleteEmptyReply(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		fmt.Fprint(w, `{"message":{"content":""},"done":true}`)
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m"})
	out, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("empty reply should not be an error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestOllamaCompleteTimeout(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, `{"message":{"content":"late"},"done":true}`)
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})
	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected Complete to time out")
	}
}

func TestOllamaStreamOutlivesCompleteTimeout(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		flusher := w.(http.Flusher)
		for _, tok := range []string{"slow ", "but ", "complete"} {
			fmt.Fprintf(w, `{"message":{"content":%q},"done":false}`+"\n", tok)
			flusher.Flush()
			time.Sleep(60 * time.Millisecond)
		}
		fmt.Fprint(w, `{"message":{"content":""},"done":true}`+"\n")
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})
	out, err := Collect(c.Stream(context.Background(), "x"))
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if out != "slow but complete" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOllamaStream(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		if !req.Stream {
			t.Error("expected streaming request")
		}
		for _, tok := range []string{"There ", "are ", "3 customers."} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", tok)
		}
		fmt.Fprint(w, "not json\n")
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m"})

	var chunks []string
	for chunk, err := range c.Stream(context.Background(), "answer") {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if strings.Join(chunks, "|") != "There |are |3 customers." {
		t.Errorf("unexpected chunks: %q", chunks)
	}
}

func TestOllamaStreamErrorLine(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		fmt.Fprint(w, `{"message":{"content":"par"},"done":false}`+"\n")
		fmt.Fprint(w, `{"error":"out of memory"}`+"\n")
	})

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m"})
	out, err := Collect(c.Stream(context.Background(), "x"))
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected stream error, got %v", err)
	}
	if out != "par" {
		t.Errorf("expected partial output 'par', got %q", out)
	}
}

func TestOllamaStreamStopsWhenConsumerBreaks(t *testing.T) {
	closed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, `{"message":{"content":"first"},"done":false}`+"\n")
		flusher.Flush()
		// Block until the client goes away
		<-r.Context().Done()
		close(closed)
	}))
	defer srv.Close()

	c := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "m"})
	for chunk, err := range c.Stream(context.Background(), "x") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chunk != "first" {
			t.Errorf("unexpected chunk %q", chunk)
		}
		break
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not released after break")
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "SELECT 1;"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: srv.URL, Model: "claude-test"})
	if err != nil {
		t.Fatalf("NewAnthropic failed: %v", err)
	}
	out, err := c.Complete(context.Background(), "write sql")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "SELECT 1;" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNewSelectsProfileModel(t *testing.T) {
	cfg := Config{Provider: "ollama", ChatModel: "qwen2.5:32b", CodeModel: "qwen2.5-coder:32b"}

	chat, err := New(cfg, Chat)
	if err != nil {
		t.Fatalf("New chat failed: %v", err)
	}
	if chat.(*Ollama).Name() != "qwen2.5:32b" {
		t.Errorf("unexpected chat model %s", chat.(*Ollama).Name())
	}

	code, err := New(cfg, Code)
	if err != nil {
		t.Fatalf("New code failed: %v", err)
	}
	if code.(*Ollama).Name() != "qwen2.5-coder:32b" {
		t.Errorf("unexpected code model %s", code.(*Ollama).Name())
	}

	if _, err := New(Config{Provider: "bogus", ChatModel: "m"}, Chat); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(Config{Provider: "ollama"}, Code); err == nil {
		t.Error("expected error when no model is configured")
	}
}
