package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gavi-dev/gavi/pkg/protocol"
)

func TestChannelPairOrder(t *testing.T) {
	ch := newChannelPair(8)

	for _, s := range []string{"one", "two", "three"} {
		if err := ch.deliver(protocol.Request{Body: []byte(s), More: s != "three"}); err != nil {
			t.Fatalf("deliver failed: %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"one", "two", "three"} {
		ev, err := ch.receive(ctx)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if got := string(ev.(protocol.Request).Body); got != want {
			t.Errorf("receive = %q, want %q", got, want)
		}
	}
}

func TestChannelPairDrainsBufferedAfterClose(t *testing.T) {
	ch := newChannelPair(8)
	if err := ch.deliver(protocol.Request{Body: []byte("queued")}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	ch.close(protocol.TransportFailure(errors.New("gone")))

	// The buffered event is still delivered in order before the close cause
	// surfaces.
	ev, err := ch.receive(context.Background())
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if got := string(ev.(protocol.Request).Body); got != "queued" {
		t.Errorf("receive = %q, want queued", got)
	}

	if _, err := ch.receive(context.Background()); !errors.Is(err, protocol.ErrTransportFailure) {
		t.Errorf("receive after drain = %v, want TransportFailure", err)
	}
}

func TestChannelPairCloseUnblocksPendingReceive(t *testing.T) {
	ch := newChannelPair(1)

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	ch.close(protocol.TransportFailure(errors.New("reset")))

	select {
	case err := <-errCh:
		if !errors.Is(err, protocol.ErrTransportFailure) {
			t.Errorf("receive error = %v, want TransportFailure", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending receive did not resolve after close")
	}
}

func TestChannelPairCloseUnblocksPendingDeliver(t *testing.T) {
	ch := newChannelPair(1)
	if err := ch.deliver(protocol.Request{More: true}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		// Buffer is full; this blocks until close.
		errCh <- ch.deliver(protocol.Request{})
	}()

	time.Sleep(10 * time.Millisecond)
	ch.close(nil)

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("deliver after close should report the close cause")
		}
	case <-time.After(time.Second):
		t.Fatal("pending deliver did not resolve after close")
	}
}

func TestChannelPairContextCancellation(t *testing.T) {
	ch := newChannelPair(1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.receive(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, protocol.ErrTransportFailure) {
			t.Errorf("receive error = %v, want TransportFailure wrapping ctx error", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("receive error = %v, should wrap context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending receive did not resolve after cancellation")
	}
}

func TestChannelPairCloseIsIdempotent(t *testing.T) {
	ch := newChannelPair(1)
	first := protocol.TransportFailure(errors.New("first"))
	ch.close(first)
	ch.close(protocol.TransportFailure(errors.New("second")))

	if got := ch.closeCause(); got != error(first) {
		t.Errorf("close cause = %v, want the first cause", got)
	}
}
