package realtime_test

import (
	"strings"
	"testing"

	"github.com/mallard-ai/mallard/pkg/realtime"
)

func TestParseEvent_ValidEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want realtime.Event
	}{
		{
			name: "ready",
			data: `{"type":"ready","session_id":"abc-123"}`,
			want: realtime.Event{Type: realtime.EventReady, SessionID: "abc-123"},
		},
		{
			name: "text delta",
			data: `{"type":"text.delta","text":"Hello"}`,
			want: realtime.Event{Type: realtime.EventTextDelta, Text: "Hello"},
		},
		{
			name: "empty text delta",
			data: `{"type":"text.delta","text":""}`,
			want: realtime.Event{Type: realtime.EventTextDelta, Text: ""},
		},
		{
			name: "audio delta",
			data: `{"type":"audio.delta","audio":"AAAA"}`,
			want: realtime.Event{Type: realtime.EventAudioDelta, Audio: "AAAA"},
		},
		{
			name: "transcript",
			data: `{"type":"transcript","text":"what is this"}`,
			want: realtime.Event{Type: realtime.EventTranscript, Text: "what is this"},
		},
		{
			name: "speech started",
			data: `{"type":"speech.started"}`,
			want: realtime.Event{Type: realtime.EventSpeechStarted},
		},
		{
			name: "response done",
			data: `{"type":"response.done"}`,
			want: realtime.Event{Type: realtime.EventResponseDone},
		},
		{
			name: "error",
			data: `{"type":"error","message":"model overloaded"}`,
			want: realtime.Event{Type: realtime.EventError, Message: "model overloaded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := realtime.ParseEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseEvent: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEvent = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEvent_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantSub string
	}{
		{"not json", `{{{`, "parse event"},
		{"unknown type", `{"type":"session.update"}`, "unknown event type"},
		{"ready missing session_id", `{"type":"ready"}`, "missing session_id"},
		{"text delta missing text", `{"type":"text.delta"}`, "missing text"},
		{"audio delta missing audio", `{"type":"audio.delta"}`, "missing audio"},
		{"transcript missing text", `{"type":"transcript"}`, "missing text"},
		{"error missing message", `{"type":"error"}`, "missing message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := realtime.ParseEvent([]byte(tt.data))
			if err == nil {
				t.Fatal("ParseEvent should reject the message")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q; want substring %q", err, tt.wantSub)
			}
		})
	}
}
