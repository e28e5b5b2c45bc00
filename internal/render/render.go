// Package render exposes the headless-browser capability the scrapers depend
// on: load a URL, wait for a selector, return the rendered markup, release
// the session.
package render

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout reports that the ready selector did not appear within the
// bounded wait. Callers treat it as "no data", not a fault.
var ErrTimeout = errors.New("render: timed out waiting for selector")

// ErrEngine reports a failure of the rendering engine itself (navigation
// error, browser crash, session acquisition failure).
var ErrEngine = errors.New("render: engine failure")

// Request describes one page render.
type Request struct {
	URL          string
	WaitSelector string
	// Timeout bounds the wait for WaitSelector. Zero means 10 seconds.
	Timeout time.Duration
	// Settle is an optional pause after the selector appears, letting
	// late-rendering cells fill in.
	Settle time.Duration
}

// Engine renders pages in a JS-capable browser. Implementations must release
// the underlying session on every exit path.
type Engine interface {
	Render(ctx context.Context, req Request) (string, error)
	Close() error
}

// EngineFunc adapts a function to the Engine interface, used in tests.
type EngineFunc func(ctx context.Context, req Request) (string, error)

func (f EngineFunc) Render(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f EngineFunc) Close() error { return nil }
