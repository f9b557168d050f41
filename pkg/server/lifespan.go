package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Lifespan runs the startup/shutdown event exchange with an application
// around the server's accept loop. Applications that do not handle the
// lifespan protocol simply return from Serve (or error before answering
// startup); the exchange is then disabled and serving continues.
type Lifespan struct {
	drv    *Driver
	t      *lifespanTransport
	logger *slog.Logger

	runErr      chan error
	unsupported bool
	startupSent bool
}

// NewLifespan prepares a lifespan exchange for app. config may be nil for
// defaults.
func NewLifespan(app gavi.Application, config *Config) (*Lifespan, error) {
	config = config.withDefaults()

	scope, err := protocol.NewScope(protocol.Scope{Type: protocol.ProtocolLifespan})
	if err != nil {
		return nil, err
	}

	t := &lifespanTransport{
		startup:  make(chan error, 1),
		shutdown: make(chan error, 1),
	}
	drv := NewDriver(t, config.EventQueueSize, config.Logger)
	if err := drv.BindScope(scope); err != nil {
		return nil, err
	}

	l := &Lifespan{
		drv:    drv,
		t:      t,
		logger: config.Logger,
		runErr: make(chan error, 1),
	}
	go func() {
		l.runErr <- drv.Run(context.Background(), app)
	}()
	return l, nil
}

// Startup delivers lifespan.startup and waits for the application's
// answer. A startup failure is returned and the server must not accept
// connections. An application that exits without answering is treated as
// not supporting lifespan; that is not an error.
func (l *Lifespan) Startup(ctx context.Context) error {
	l.startupSent = true
	if err := l.drv.Deliver(protocol.LifespanStartup{}); err != nil {
		l.unsupported = true
		return nil
	}
	select {
	case err := <-l.t.startup:
		if err != nil {
			return fmt.Errorf("lifespan startup failed: %w", err)
		}
		return nil
	case err := <-l.runErr:
		l.unsupported = true
		if err != nil {
			l.logger.Debug("application does not support lifespan", "error", err)
		}
		return nil
	case <-ctx.Done():
		l.drv.Abort(protocol.TransportFailure(ctx.Err()))
		return fmt.Errorf("lifespan startup: %w", ctx.Err())
	}
}

// Shutdown delivers lifespan.shutdown and waits for the application to
// finish cleanup. Shutdown failures are reported but the server continues
// shutting down regardless.
func (l *Lifespan) Shutdown(ctx context.Context) error {
	if l.unsupported || !l.startupSent {
		return nil
	}
	if err := l.drv.Deliver(protocol.LifespanShutdown{}); err != nil {
		return nil
	}
	select {
	case err := <-l.t.shutdown:
		if err != nil {
			return fmt.Errorf("lifespan shutdown failed: %w", err)
		}
		// Let the application goroutine settle.
		select {
		case <-l.runErr:
		case <-ctx.Done():
		}
		return nil
	case err := <-l.runErr:
		return err
	case <-ctx.Done():
		l.drv.Abort(protocol.TransportFailure(ctx.Err()))
		return ctx.Err()
	}
}

// lifespanTransport turns the application's lifespan replies into channel
// signals the server blocks on.
type lifespanTransport struct {
	startup  chan error
	shutdown chan error
}

func (t *lifespanTransport) WriteEvent(ev protocol.Event) error {
	switch e := ev.(type) {
	case protocol.LifespanStartupComplete:
		t.signal(t.startup, nil)
	case protocol.LifespanStartupFailed:
		t.signal(t.startup, errors.New(e.Message))
	case protocol.LifespanShutdownComplete:
		t.signal(t.shutdown, nil)
	case protocol.LifespanShutdownFailed:
		t.signal(t.shutdown, errors.New(e.Message))
	default:
		return protocol.Violationf("lifespan transport cannot write %s", ev.Type())
	}
	return nil
}

func (t *lifespanTransport) signal(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
