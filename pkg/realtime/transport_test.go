package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mallard-ai/mallard/pkg/realtime"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startRealtimeServer launches a test WebSocket server. The handler receives
// the accepted conn. The server is automatically closed when the test finishes.
func startRealtimeServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeRaw sends a raw text frame.
func writeRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		t.Logf("writeRaw: %v (may be expected on close)", err)
	}
}

func TestTransport_OpenFiresOnOpen(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		<-conn.CloseRead(context.Background()).Done()
	})

	opened := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	defer tr.Close()

	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnOpen")
	}
}

func TestTransport_DialFailureFiresErrorAndClose(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 1)
	closed := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnError: func(err error) { errCh <- err },
		OnClose: func() { closed <- struct{}{} },
	})

	// Nothing listens on this port.
	tr.Open(context.Background(), "ws://127.0.0.1:1/ws/video")

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("OnError called with nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for OnError")
	}
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnClose")
	}
}

func TestTransport_DeliversValidatedEvents(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		writeRaw(t, conn, `{"type":"ready","session_id":"s-1"}`)
		writeRaw(t, conn, `{"type":"text.delta","text":"hi"}`)
		<-conn.CloseRead(context.Background()).Done()
	})

	events := make(chan realtime.Event, 4)
	tr := realtime.NewTransport(realtime.Hooks{
		OnEvent: func(ev realtime.Event) { events <- ev },
	})
	defer tr.Close()
	tr.Open(context.Background(), wsURL(srv))

	want := []realtime.Event{
		{Type: realtime.EventReady, SessionID: "s-1"},
		{Type: realtime.EventTextDelta, Text: "hi"},
	}
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Errorf("event[%d] = %+v; want %+v", i, got, w)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestTransport_DropsMalformedMessages(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		writeRaw(t, conn, `this is not json`)
		writeRaw(t, conn, `{"type":"totally.unknown"}`)
		writeRaw(t, conn, `{"type":"ready"}`) // missing session_id
		writeRaw(t, conn, `{"type":"text.delta","text":"still alive"}`)
		<-conn.CloseRead(context.Background()).Done()
	})

	events := make(chan realtime.Event, 4)
	tr := realtime.NewTransport(realtime.Hooks{
		OnEvent: func(ev realtime.Event) { events <- ev },
	})
	defer tr.Close()
	tr.Open(context.Background(), wsURL(srv))

	// Only the valid trailing event arrives; the session survived the noise.
	select {
	case got := <-events:
		if got.Type != realtime.EventTextDelta || got.Text != "still alive" {
			t.Errorf("event = %+v; want trailing text.delta", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event after malformed messages")
	}
	select {
	case extra := <-events:
		t.Errorf("unexpected extra event %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_SendDeliversEnvelope(t *testing.T) {
	t.Parallel()

	received := make(chan realtime.Envelope, 1)
	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		received <- env
		<-conn.CloseRead(context.Background()).Done()
	})

	opened := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	defer tr.Close()
	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for open")
	}

	if err := tr.Send(realtime.Envelope{Type: realtime.EnvelopeVideo, Data: "ZnJhbWU="}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-received:
		if env.Type != realtime.EnvelopeVideo {
			t.Errorf("type = %q; want video", env.Type)
		}
		if env.Data != "ZnJhbWU=" {
			t.Errorf("data = %q; want ZnJhbWU=", env.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for envelope")
	}
}

func TestTransport_SendBeforeOpenReturnsErrNotConnected(t *testing.T) {
	t.Parallel()

	tr := realtime.NewTransport(realtime.Hooks{})
	err := tr.Send(realtime.Envelope{Type: realtime.EnvelopeAudio})
	if !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("Send before open = %v; want ErrNotConnected", err)
	}
}

func TestTransport_SendAfterCloseReturnsErrNotConnected(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		<-conn.CloseRead(context.Background()).Done()
	})

	opened := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for open")
	}

	tr.Close()
	err := tr.Send(realtime.Envelope{Type: realtime.EnvelopeAudio})
	if !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("Send after Close = %v; want ErrNotConnected", err)
	}
}

func TestTransport_CloseSendsCloseEnvelope(t *testing.T) {
	t.Parallel()

	gotClose := make(chan realtime.Envelope, 1)
	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var env realtime.Envelope
			if json.Unmarshal(data, &env) == nil && env.Type == realtime.EnvelopeClose {
				gotClose <- env
				return
			}
		}
	})

	opened := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for open")
	}

	tr.Close()

	select {
	case <-gotClose:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close envelope")
	}
}

func TestTransport_CloseIdempotentSingleOnClose(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		<-conn.CloseRead(context.Background()).Done()
	})

	opened := make(chan struct{}, 1)
	var closeCount atomic.Int32
	tr := realtime.NewTransport(realtime.Hooks{
		OnOpen:  func() { opened <- struct{}{} },
		OnClose: func() { closeCount.Add(1) },
	})
	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for open")
	}

	tr.Close()
	tr.Close()
	tr.Close()

	// Give the read loop time to unwind.
	time.Sleep(200 * time.Millisecond)
	if n := closeCount.Load(); n != 1 {
		t.Errorf("OnClose fired %d times; want exactly 1", n)
	}
}

func TestTransport_ServerDisconnectFiresOnClose(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn) {
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	closed := make(chan struct{}, 1)
	tr := realtime.NewTransport(realtime.Hooks{
		OnClose: func() { closed <- struct{}{} },
	})
	defer tr.Close()
	tr.Open(context.Background(), wsURL(srv))

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnClose after server disconnect")
	}
}
