package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ErrNotConnected is returned by [Transport.Send] when the connection is not
// open. Producers treat it as a signal to stop, never as a panic.
var ErrNotConnected = errors.New("realtime: transport not connected")

// maxEventBytes bounds inbound messages. Audio deltas arrive base64-encoded
// and can run to hundreds of kilobytes per event.
const maxEventBytes = 1 << 24

// Hooks carries the transport lifecycle callbacks. All hooks are optional and
// are invoked from the transport's own goroutine, never concurrently with
// each other.
type Hooks struct {
	// OnOpen fires once when the connection is established.
	OnOpen func()

	// OnEvent fires for every validated server event. Malformed messages are
	// dropped before reaching this hook.
	OnEvent func(Event)

	// OnError fires for dial failures and read errors.
	OnError func(error)

	// OnClose fires exactly once when the connection ends, whatever the cause.
	OnClose func()
}

// Transport is a single-use WebSocket connection to the realtime inference
// service. Create one per session with [NewTransport]; after Close it cannot
// be reopened.
type Transport struct {
	hooks Hooks

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce   sync.Once
	onCloseOnce sync.Once
}

// NewTransport creates a transport with the given hooks.
func NewTransport(hooks Hooks) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{hooks: hooks, ctx: ctx, cancel: cancel}
}

// Open dials url asynchronously. On success OnOpen fires and the read loop
// starts; on failure OnError and OnClose fire. ctx only bounds the dial.
func (t *Transport) Open(ctx context.Context, url string) {
	go t.dial(ctx, url)
}

func (t *Transport) dial(ctx context.Context, url string) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.emitError(fmt.Errorf("realtime: dial %s: %w", url, err))
		t.emitClose()
		return
	}
	conn.SetReadLimit(maxEventBytes)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "closed before open")
		t.emitClose()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	if t.hooks.OnOpen != nil {
		t.hooks.OnOpen()
	}
	t.readLoop(conn)
}

// readLoop reads server messages until the connection ends. Messages that
// fail schema validation are logged and dropped; the session stays alive.
func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.emitClose()

	for {
		_, data, err := conn.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				t.emitError(fmt.Errorf("realtime: read: %w", err))
			}
			return
		}

		ev, err := ParseEvent(data)
		if err != nil {
			slog.Debug("realtime: dropping malformed server message", "error", err)
			continue
		}
		if t.hooks.OnEvent != nil {
			t.hooks.OnEvent(ev)
		}
	}
}

// Send writes an envelope as a text message. Returns [ErrNotConnected] when
// the connection is not open or already closed.
func (t *Transport) Send(env Envelope) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if closed || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: marshal envelope: %w", err)
	}
	if err := conn.Write(t.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: send %s: %w", env.Type, err)
	}
	return nil
}

// Close sends a best-effort close envelope and tears the connection down.
// Idempotent; OnClose still fires at most once.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		if conn != nil {
			// The server ends the session on the close envelope; the write may
			// fail if the connection already dropped.
			if data, err := json.Marshal(Envelope{Type: EnvelopeClose}); err == nil {
				_ = conn.Write(t.ctx, websocket.MessageText, data)
			}
		}
		t.cancel()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "client closed")
		}
	})
}

func (t *Transport) emitError(err error) {
	if t.hooks.OnError != nil {
		t.hooks.OnError(err)
	}
}

func (t *Transport) emitClose() {
	t.onCloseOnce.Do(func() {
		if t.hooks.OnClose != nil {
			t.hooks.OnClose()
		}
	})
}
