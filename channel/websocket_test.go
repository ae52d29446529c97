package channel

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/aide-go/convo"
	"github.com/becomeliminal/aide-go/engine"
)

// echoRunner streams the message back in two chunks.
type echoRunner struct{}

func (echoRunner) HandleMessage(ctx context.Context, channel, content string, stream engine.StreamFunc) <-chan error {
	ch := make(chan error, 1)
	go func() {
		if stream != nil {
			half := len(content) / 2
			stream(content[:half], false)
			stream(content[half:], false)
			stream("", true)
		}
		ch <- nil
	}()
	return ch
}

type failRunner struct{}

func (failRunner) HandleMessage(ctx context.Context, channel, content string, stream engine.StreamFunc) <-chan error {
	ch := make(chan error, 1)
	ch <- context.DeadlineExceeded
	return ch
}

func dial(t *testing.T, runner TurnRunner) *websocket.Conn {
	t.Helper()
	m := convo.New("", convo.WithCoalesceWindow(20*time.Millisecond))
	h := NewWebSocketHandler(runner, m, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn, until string) []Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frames []Frame
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v (got %v)", err, frames)
		}
		frames = append(frames, f)
		if f.Type == until {
			return frames
		}
	}
}

func TestStreamedResponse(t *testing.T) {
	conn := dial(t, echoRunner{})

	if err := conn.WriteJSON(Frame{Type: "message", Content: "hello there"}); err != nil {
		t.Fatal(err)
	}

	frames := readFrames(t, conn, "done")
	var text strings.Builder
	for _, f := range frames {
		if f.Type == "chunk" {
			text.WriteString(f.Content)
		}
	}
	if text.String() != "hello there" {
		t.Fatalf("chunks did not reassemble: %q", text.String())
	}
}

func TestRapidFireCoalescesIntoOneTurn(t *testing.T) {
	conn := dial(t, echoRunner{})

	for _, msg := range []string{"wait", "actually", "make it Thursday"} {
		if err := conn.WriteJSON(Frame{Type: "message", Content: msg}); err != nil {
			t.Fatal(err)
		}
	}

	frames := readFrames(t, conn, "done")
	var text strings.Builder
	doneCount := 0
	for _, f := range frames {
		switch f.Type {
		case "chunk":
			text.WriteString(f.Content)
		case "done":
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Fatalf("expected one turn, got %d", doneCount)
	}
	if text.String() != "wait\n\nactually\n\nmake it Thursday" {
		t.Fatalf("batch not coalesced: %q", text.String())
	}
}

func TestTurnErrorSendsErrorFrame(t *testing.T) {
	conn := dial(t, failRunner{})

	if err := conn.WriteJSON(Frame{Type: "message", Content: "boom"}); err != nil {
		t.Fatal(err)
	}
	frames := readFrames(t, conn, "error")
	last := frames[len(frames)-1]
	if last.Content == "" {
		t.Fatal("error frame should carry a user-facing message")
	}
}

func TestMalformedFrameRejected(t *testing.T) {
	conn := dial(t, echoRunner{})

	if err := conn.WriteJSON(Frame{Type: "message"}); err != nil {
		t.Fatal(err)
	}
	frames := readFrames(t, conn, "error")
	if frames[len(frames)-1].Type != "error" {
		t.Fatal("empty message should be rejected")
	}
}
