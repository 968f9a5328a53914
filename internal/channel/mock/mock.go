// Package mock provides in-memory test doubles for the channel.Transport and
// channel.Dialer interfaces.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/dialverse/dialcore/internal/channel"
	"github.com/dialverse/dialcore/pkg/audio"
)

// ErrTransportClosed is returned by operations on a closed mock transport.
var ErrTransportClosed = errors.New("mock transport closed")

// Transport is an in-memory channel.Transport. Tests feed inbound frames
// with Deliver and inspect outbound chunks via Sent.
type Transport struct {
	mu     sync.Mutex
	sent   [][]byte
	errs   []error // scripted Send results, nil = success
	closed bool

	frames chan audio.Frame
	rcvErr chan error
	done   chan struct{}
}

// NewTransport creates an open mock transport.
func NewTransport() *Transport {
	return &Transport{
		frames: make(chan audio.Frame, 64),
		rcvErr: make(chan error, 8),
		done:   make(chan struct{}),
	}
}

// FailReceive queues an error for the next Receive call. Queued errors take
// priority over delivered frames.
func (t *Transport) FailReceive(err error) {
	t.rcvErr <- err
}

// FailSends scripts the next Send calls: each entry is returned in order,
// nil meaning success.
func (t *Transport) FailSends(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, errs...)
}

// Deliver queues an inbound frame for Receive.
func (t *Transport) Deliver(frame audio.Frame) {
	select {
	case t.frames <- frame:
	case <-t.done:
	}
}

// Sent returns a copy of every chunk sent so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Send(_ context.Context, chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		if err != nil {
			return err
		}
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	t.sent = append(t.sent, cp)
	return nil
}

func (t *Transport) Receive(ctx context.Context) (audio.Frame, error) {
	select {
	case err := <-t.rcvErr:
		return audio.Frame{}, err
	default:
	}
	select {
	case err := <-t.rcvErr:
		return audio.Frame{}, err
	case frame := <-t.frames:
		return frame, nil
	case <-t.done:
		return audio.Frame{}, ErrTransportClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

// Dialer hands out mock transports and records dial attempts. Scripted
// errors fail dials in order before successes resume.
type Dialer struct {
	mu       sync.Mutex
	dialErrs []error
	dialed   []*Transport
	calls    int
}

// NewDialer creates a Dialer that succeeds every dial.
func NewDialer() *Dialer { return &Dialer{} }

// FailDials scripts errors for the next dial attempts.
func (d *Dialer) FailDials(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErrs = append(d.dialErrs, errs...)
}

// Dial implements channel.Dialer.
func (d *Dialer) Dial(context.Context, string) (channel.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	t := NewTransport()
	d.dialed = append(d.dialed, t)
	return t, nil
}

// DialCount returns the number of Dial calls.
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Transports returns every transport handed out, in dial order.
func (d *Dialer) Transports() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Transport, len(d.dialed))
	copy(out, d.dialed)
	return out
}

// Compile-time interface assertions.
var (
	_ channel.Transport = (*Transport)(nil)
	_ channel.Dialer    = (*Dialer)(nil)
)
