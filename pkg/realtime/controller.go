package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mallard-ai/mallard/pkg/media"
)

// DefaultServiceURL is the realtime inference endpoint used when no URL
// option is given.
const DefaultServiceURL = "ws://localhost:5003/ws/video"

// State is the controller's connection state.
type State int

// Controller states. Streaming implies an open connection with live media
// producers; Connected means the socket is open but no media flows.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors for state violations.
var (
	// ErrInvalidState is returned when an operation is not legal in the
	// controller's current state.
	ErrInvalidState = errors.New("realtime: operation not valid in current state")

	// ErrStreamHeld is returned by StartStreaming when a capture stream is
	// already held. Callers must stop the current stream first.
	ErrStreamHeld = errors.New("realtime: capture stream already held")
)

// Callbacks carries the session event callbacks. All are optional and are
// invoked outside the controller's lock, one at a time.
type Callbacks struct {
	// OnStateChange fires on every state transition.
	OnStateChange func(State)

	// OnResponse fires after each text delta with the full accumulated
	// response text.
	OnResponse func(text string)

	// OnResponseDone fires when the model finishes a response, with the
	// accumulated text.
	OnResponseDone func(text string)

	// OnAudio fires with decoded PCM16 audio from the model.
	OnAudio func(pcm []byte)

	// OnTranscript fires with the latest input transcript. Each call replaces
	// the previous text rather than extending it.
	OnTranscript func(text string)

	// OnSpeechStarted fires when the service detects the user speaking.
	// Players typically flush queued model audio here.
	OnSpeechStarted func()

	// OnError fires for transport errors and server error events. Server
	// errors do not change the controller state.
	OnError func(error)
}

// Stats receives pipeline counters. Implemented by the observability layer;
// a nil Stats disables counting.
type Stats interface {
	FrameSent(bytes int)
	AudioChunkSent()
	EventReceived(eventType string)
}

// Controller drives one realtime inference session: it owns the transport,
// the capture stream and the media producers, and assembles streamed
// responses. A Controller is safe for concurrent use.
type Controller struct {
	url         string
	source      media.CaptureSource
	cb          Callbacks
	constraints media.Constraints
	interval    time.Duration
	quality     int
	corrector   func(string) string
	stats       Stats

	mu        sync.Mutex
	state     State
	transport *Transport
	stream    *media.Stream
	sampler   *FrameSampler
	encoder   *AudioChunkEncoder
	sessionID string
	response  strings.Builder
}

// ControllerOption is a functional option for Controller.
type ControllerOption func(*Controller)

// WithServiceURL overrides the inference service endpoint.
func WithServiceURL(url string) ControllerOption {
	return func(c *Controller) { c.url = url }
}

// WithConstraints sets the capture constraints used by StartStreaming.
func WithConstraints(con media.Constraints) ControllerOption {
	return func(c *Controller) { c.constraints = con }
}

// WithSamplerInterval overrides the video sampling interval.
func WithSamplerInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.interval = d }
}

// WithSamplerQuality overrides the JPEG quality.
func WithSamplerQuality(q int) ControllerOption {
	return func(c *Controller) { c.quality = q }
}

// WithTranscriptCorrector installs a post-processing function applied to
// every transcript before OnTranscript fires.
func WithTranscriptCorrector(fn func(string) string) ControllerOption {
	return func(c *Controller) { c.corrector = fn }
}

// WithStats installs a pipeline counter sink.
func WithStats(s Stats) ControllerOption {
	return func(c *Controller) { c.stats = s }
}

// NewController creates a controller capturing from source. The controller
// starts Disconnected; call Connect to open a session.
func NewController(source media.CaptureSource, cb Callbacks, opts ...ControllerOption) *Controller {
	c := &Controller{
		url:    DefaultServiceURL,
		source: source,
		cb:     cb,
		constraints: media.Constraints{
			Video:      media.SourceCamera,
			Audio:      true,
			SampleRate: TargetSampleRate,
		},
		interval: DefaultFrameInterval,
		quality:  DefaultJPEGQuality,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect opens a session to the inference service. Legal only from
// Disconnected; a second call while a session is live returns
// [ErrInvalidState]. After a close or error the controller returns to
// Disconnected and Connect may be called again.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, c.state)
	}
	c.state = StateConnecting
	t := NewTransport(Hooks{
		OnOpen:  c.handleOpen,
		OnEvent: c.handleEvent,
		OnError: c.handleTransportError,
		OnClose: c.handleTransportClose,
	})
	c.transport = t
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	t.Open(ctx, c.url)
	return nil
}

// StartStreaming acquires a capture stream and starts the video sampler and
// audio encoder. Legal only when Connected. If a stream is already held the
// call fails with [ErrStreamHeld]; capture failures are returned unchanged so
// callers can inspect the [*media.CaptureError] kind.
func (c *Controller) StartStreaming(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: start streaming from %s", ErrInvalidState, c.state)
	}
	if c.stream != nil {
		c.mu.Unlock()
		return ErrStreamHeld
	}
	transport := c.transport
	c.mu.Unlock()

	stream, err := c.source.Capture(ctx, c.constraints)
	if err != nil {
		return err
	}

	c.mu.Lock()
	// Connection may have dropped while the capture dialog was up.
	if c.state != StateConnected || c.transport != transport {
		c.mu.Unlock()
		stream.Stop()
		return fmt.Errorf("%w: connection lost during capture", ErrInvalidState)
	}
	if c.stream != nil {
		c.mu.Unlock()
		stream.Stop()
		return ErrStreamHeld
	}

	c.stream = stream
	c.sampler = NewFrameSampler(stream.Video, func(jpegData []byte) {
		c.sendFrame(transport, jpegData)
	}, WithFrameInterval(c.interval), WithJPEGQuality(c.quality))
	c.sampler.Start()

	if stream.Audio != nil {
		c.encoder = NewAudioChunkEncoder(stream.Audio, func(pcm []byte) {
			c.sendAudio(transport, pcm)
		})
		c.encoder.Start()
	}
	c.state = StateStreaming
	c.mu.Unlock()

	c.notifyState(StateStreaming)
	return nil
}

// StopStreaming stops the media producers and releases the capture stream,
// keeping the connection open. No-op unless Streaming.
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.teardownProducers()
	c.notifyState(StateConnected)
}

// Disconnect ends the session: producers stop, all tracks stop, the
// transport closes. Safe to call from any state, any number of times.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	c.teardownProducers()
	if t != nil {
		t.Close()
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session ID, or "" before the ready
// event arrives.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Response returns the accumulated response text for this session.
func (c *Controller) Response() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response.String()
}

// ── producers ──────────────────────────────────────────────────────────────

func (c *Controller) sendFrame(t *Transport, jpegData []byte) {
	env := Envelope{Type: EnvelopeVideo, Data: base64.StdEncoding.EncodeToString(jpegData)}
	if err := t.Send(env); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			slog.Warn("realtime: frame send failed", "error", err)
		}
		return
	}
	if c.stats != nil {
		c.stats.FrameSent(len(jpegData))
	}
}

func (c *Controller) sendAudio(t *Transport, pcm []byte) {
	env := Envelope{Type: EnvelopeAudio, Data: base64.StdEncoding.EncodeToString(pcm)}
	if err := t.Send(env); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			slog.Warn("realtime: audio send failed", "error", err)
		}
		return
	}
	if c.stats != nil {
		c.stats.AudioChunkSent()
	}
}

// teardownProducers stops the sampler and encoder and releases the stream.
// Stop on both producers blocks until their loops exit, so no envelope is
// sent after this returns.
func (c *Controller) teardownProducers() {
	c.mu.Lock()
	sampler := c.sampler
	encoder := c.encoder
	stream := c.stream
	c.sampler = nil
	c.encoder = nil
	c.stream = nil
	c.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}
	if encoder != nil {
		encoder.Stop()
	}
	if stream != nil {
		stream.Stop()
	}
}

// ── transport hooks ────────────────────────────────────────────────────────

func (c *Controller) handleOpen() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.notifyState(StateConnected)
}

func (c *Controller) handleTransportError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Controller) handleTransportClose() {
	c.mu.Lock()
	wasDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	c.transport = nil
	c.sessionID = ""
	c.mu.Unlock()

	c.teardownProducers()
	if !wasDisconnected {
		c.notifyState(StateDisconnected)
	}
}

func (c *Controller) handleEvent(ev Event) {
	if c.stats != nil {
		c.stats.EventReceived(string(ev.Type))
	}

	switch ev.Type {
	case EventReady:
		c.mu.Lock()
		c.sessionID = ev.SessionID
		c.mu.Unlock()
		slog.Info("realtime: session ready", "sessionID", ev.SessionID)

	case EventTextDelta:
		c.mu.Lock()
		c.response.WriteString(ev.Text)
		text := c.response.String()
		c.mu.Unlock()
		if c.cb.OnResponse != nil {
			c.cb.OnResponse(text)
		}

	case EventAudioDelta:
		pcm, err := base64.StdEncoding.DecodeString(ev.Audio)
		if err != nil || len(pcm) == 0 {
			slog.Debug("realtime: dropping undecodable audio delta", "error", err)
			return
		}
		if c.cb.OnAudio != nil {
			c.cb.OnAudio(pcm)
		}

	case EventTranscript:
		text := ev.Text
		if c.corrector != nil {
			text = c.corrector(text)
		}
		if c.cb.OnTranscript != nil {
			c.cb.OnTranscript(text)
		}

	case EventSpeechStarted:
		if c.cb.OnSpeechStarted != nil {
			c.cb.OnSpeechStarted()
		}

	case EventResponseDone:
		c.mu.Lock()
		text := c.response.String()
		c.mu.Unlock()
		if c.cb.OnResponseDone != nil {
			c.cb.OnResponseDone(text)
		}

	case EventError:
		if c.cb.OnError != nil {
			c.cb.OnError(fmt.Errorf("realtime: server error: %s", ev.Message))
		}
	}
}

func (c *Controller) notifyState(s State) {
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(s)
	}
}
