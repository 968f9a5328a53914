package channel

import (
	"context"
	"errors"

	"github.com/dialverse/dialcore/pkg/audio"
)

// ErrCallEnded is returned by Transport.Receive when the remote peer ended
// the call cleanly. The channel closes instead of attempting recovery.
var ErrCallEnded = errors.New("channel: call ended by peer")

// Transport is one telephony media leg. Implementations (the websocket
// bridge, test doubles) carry raw audio both ways and surface transport
// errors so the channel can decide whether to reconnect.
//
// Send and Receive may be called concurrently with each other but not with
// themselves.
type Transport interface {
	// Send writes one outbound audio chunk towards the customer.
	Send(ctx context.Context, chunk []byte) error

	// Receive blocks for the next inbound audio frame from the customer.
	Receive(ctx context.Context) (audio.Frame, error)

	// Close releases the leg. Further Send/Receive calls fail.
	Close() error
}

// Dialer establishes transports for a call. Reconnects dial again with the
// same call ID, so per-call state keyed by ID survives a transport swap.
type Dialer interface {
	Dial(ctx context.Context, callID string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, callID string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, callID string) (Transport, error) {
	return f(ctx, callID)
}
