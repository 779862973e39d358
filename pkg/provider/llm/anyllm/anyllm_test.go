package anyllm

import (
	"testing"

	"github.com/mallard-ai/mallard/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_User(t *testing.T) {
	m := llm.Message{Role: "user", Content: "Hello!"}
	got := convertMessage(m)
	if got.Role != "user" {
		t.Errorf("expected role user, got %q", got.Role)
	}
	if got.ContentString() != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", got.ContentString())
	}
}

func TestConvertMessage_Assistant(t *testing.T) {
	m := llm.Message{Role: "assistant", Content: "Hi there!"}
	got := convertMessage(m)
	if got.Role != "assistant" {
		t.Errorf("expected role assistant, got %q", got.Role)
	}
	if got.ContentString() != "Hi there!" {
		t.Errorf("expected content %q, got %q", "Hi there!", got.ContentString())
	}
}

func TestConvertMessage_WithName(t *testing.T) {
	m := llm.Message{Role: "user", Content: "Hi", Name: "alice"}
	got := convertMessage(m)
	if got.Name != "alice" {
		t.Errorf("expected name alice, got %q", got.Name)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptPrepended(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are concise.",
		Messages:     []llm.Message{{Role: "user", Content: "Hi"}},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first message role = %q; want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("second message role = %q; want user", params.Messages[1].Role)
	}
}

func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})
	if params.Temperature != nil {
		t.Error("zero temperature should not be forwarded")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens should not be forwarded")
	}

	params = p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "Hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v; want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v; want 256", params.MaxTokens)
	}
	if params.Model != "gpt-4o" {
		t.Errorf("model = %q; want gpt-4o", params.Model)
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_RejectsEmptyArguments(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("New with empty provider name should fail")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("New with empty model should fail")
	}
}

func TestNew_RejectsUnknownProvider(t *testing.T) {
	if _, err := New("watson", "jeopardy-1"); err == nil {
		t.Error("New with unknown provider should fail")
	}
}
