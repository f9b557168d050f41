package server

import (
	"context"
	"sync"

	"github.com/gavi-dev/gavi/pkg/protocol"
)

// channelPair carries events between the transport and the application for
// one connection. It is exclusively owned by that connection and must
// never be shared across connections.
//
// The inbound buffer is bounded: deliver blocks when the application falls
// behind, pushing backpressure onto the transport's read loop. Both
// deliver and receive resolve promptly on close, never hanging after the
// transport goes away.
type channelPair struct {
	inbound chan protocol.Event

	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	cause error
}

func newChannelPair(queue int) *channelPair {
	if queue < 1 {
		queue = 1
	}
	return &channelPair{
		inbound: make(chan protocol.Event, queue),
		done:    make(chan struct{}),
	}
}

// deliver queues an inbound event for the application. It blocks while the
// buffer is full and returns the close cause once the pair is closed.
func (c *channelPair) deliver(ev protocol.Event) error {
	select {
	case <-c.done:
		return c.closeCause()
	default:
	}
	select {
	case c.inbound <- ev:
		return nil
	case <-c.done:
		return c.closeCause()
	}
}

// receive returns the next inbound event. Events queued before close are
// still drained in order; afterwards receive resolves with the close
// cause. A canceled ctx resolves the call without consuming an event.
func (c *channelPair) receive(ctx context.Context) (protocol.Event, error) {
	select {
	case ev := <-c.inbound:
		return ev, nil
	default:
	}
	select {
	case ev := <-c.inbound:
		return ev, nil
	case <-c.done:
		// Late arrivals race the done signal; prefer the event.
		select {
		case ev := <-c.inbound:
			return ev, nil
		default:
		}
		return nil, c.closeCause()
	case <-ctx.Done():
		return nil, protocol.TransportFailure(ctx.Err())
	}
}

// close releases all pending deliver/receive calls. The first call wins;
// cause nil records a clean shutdown.
func (c *channelPair) close(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *channelPair) closeCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause != nil {
		return c.cause
	}
	return &protocol.Error{Code: protocol.CodeTransportFailure, Message: "connection closed"}
}
