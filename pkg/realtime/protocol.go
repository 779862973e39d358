// Package realtime implements the client side of the bidirectional
// audio/video inference protocol: a WebSocket transport exchanging JSON
// envelopes, producers that sample video frames and encode audio chunks from a
// live [media.Stream], and a session controller that assembles streamed model
// responses.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Outbound envelope types.
const (
	EnvelopeVideo = "video"
	EnvelopeAudio = "audio"
	EnvelopeClose = "close"
)

// Envelope is a client-to-server message. Data carries the base64-encoded
// payload for video and audio envelopes and is empty for close.
type Envelope struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// EventType identifies a server-to-client event.
type EventType string

// Server event types.
const (
	EventReady         EventType = "ready"
	EventTextDelta     EventType = "text.delta"
	EventAudioDelta    EventType = "audio.delta"
	EventTranscript    EventType = "transcript"
	EventSpeechStarted EventType = "speech.started"
	EventResponseDone  EventType = "response.done"
	EventError         EventType = "error"
)

// Event is a parsed server-to-client message. Only the fields relevant to the
// event's type are populated.
type Event struct {
	Type EventType

	// SessionID identifies the server-side session. Set for ready.
	SessionID string

	// Text is the delta text for text.delta and the full replacement text for
	// transcript.
	Text string

	// Audio is the base64-encoded PCM16 payload of an audio.delta event.
	Audio string

	// Message is the human-readable description of an error event.
	Message string
}

// wireEvent mirrors the server JSON. Pointer fields distinguish a missing key
// from an empty string so required fields can be enforced per event type.
type wireEvent struct {
	Type      string  `json:"type"`
	SessionID *string `json:"session_id"`
	Text      *string `json:"text"`
	Audio     *string `json:"audio"`
	Message   *string `json:"message"`
}

// ParseEvent decodes and validates a server message. Unknown event types and
// events missing a required field are rejected with an error; callers are
// expected to drop the message and keep the session alive.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("realtime: parse event: %w", err)
	}

	ev := Event{Type: EventType(w.Type)}
	switch ev.Type {
	case EventReady:
		if w.SessionID == nil {
			return Event{}, fmt.Errorf("realtime: ready event missing session_id")
		}
		ev.SessionID = *w.SessionID
	case EventTextDelta:
		if w.Text == nil {
			return Event{}, fmt.Errorf("realtime: text.delta event missing text")
		}
		ev.Text = *w.Text
	case EventAudioDelta:
		if w.Audio == nil {
			return Event{}, fmt.Errorf("realtime: audio.delta event missing audio")
		}
		ev.Audio = *w.Audio
	case EventTranscript:
		if w.Text == nil {
			return Event{}, fmt.Errorf("realtime: transcript event missing text")
		}
		ev.Text = *w.Text
	case EventSpeechStarted, EventResponseDone:
		// No payload.
	case EventError:
		if w.Message == nil {
			return Event{}, fmt.Errorf("realtime: error event missing message")
		}
		ev.Message = *w.Message
	default:
		return Event{}, fmt.Errorf("realtime: unknown event type %q", w.Type)
	}
	return ev, nil
}
