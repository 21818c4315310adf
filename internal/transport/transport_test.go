package transport

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestMain verifies no transport pump goroutine outlives its Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInprocDeliversMessages(t *testing.T) {
	p := NewInproc(4)
	defer p.Close(1000, "test done")

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	p.OnMessage(func(data []byte, binary bool) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
		done <- struct{}{}
	})

	if err := p.Send([]byte("hello"), true); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestInprocClosedRejectsSend(t *testing.T) {
	p := NewInproc(1)
	p.Close(1000, "bye")
	if err := p.Send([]byte("x"), true); err != ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestInprocBackpressure(t *testing.T) {
	p := NewInproc(1)
	defer p.Close(1000, "test done")
	block := make(chan struct{})
	p.OnMessage(func(data []byte, binary bool) { <-block })

	if err := p.Send([]byte("a"), true); err != nil {
		t.Fatalf("first send: %v", err)
	}
	// Give the pump a moment to pick up the first message and block on it.
	time.Sleep(20 * time.Millisecond)
	if err := p.Send([]byte("b"), true); err != nil {
		t.Fatalf("second send should still fit queue: %v", err)
	}
	err := p.Send([]byte("c"), true)
	close(block)
	if err != ErrBackpressure {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
}

func TestInprocOnClose(t *testing.T) {
	p := NewInproc(1)
	called := make(chan struct{})
	p.OnClose(func(code int, reason string) { close(called) })
	p.Close(1001, "going away")
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("onClose not invoked")
	}
	// second close is a no-op, must not panic or double-invoke.
	p.Close(1001, "going away")
}
