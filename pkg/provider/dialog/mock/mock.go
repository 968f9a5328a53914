// Package mock provides a test double for the dialog.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/dialverse/dialcore/pkg/provider/dialog"
)

// Generator is a mock implementation of dialog.Generator.
type Generator struct {
	mu sync.Mutex

	// Response is returned by every Generate call.
	Response string

	// Err, if non-nil, is returned instead.
	Err error

	// Fn, if non-nil, overrides Response/Err entirely.
	Fn func(ctx context.Context, req dialog.Request) (string, error)

	// Calls records every request in order.
	Calls []dialog.Request
}

// Generate records the request and returns the scripted result.
func (g *Generator) Generate(ctx context.Context, req dialog.Request) (string, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, req)
	fn := g.Fn
	resp, err := g.Response, g.Err
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// Compile-time interface assertion.
var _ dialog.Generator = (*Generator)(nil)
