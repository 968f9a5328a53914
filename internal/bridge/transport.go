package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/dialverse/dialcore/internal/channel"
	"github.com/dialverse/dialcore/pkg/audio"
)

// controlMessage is the JSON envelope for text frames on a media websocket.
type controlMessage struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id,omitempty"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Control message types.
const (
	msgStart = "start"
	msgStop  = "stop"
	msgPing  = "ping"
	msgPong  = "pong"
)

// ErrCallEnded is returned by Receive when the remote peer sent a stop
// control message. Aliased from the channel package so the channel's
// receive loop recognises a clean end without importing bridge.
var ErrCallEnded = channel.ErrCallEnded

// wsTransport adapts one accepted media websocket to channel.Transport.
type wsTransport struct {
	callID string
	conn   *websocket.Conn
	dec    *decoder

	closeOnce sync.Once
	done      chan struct{}
}

func newWSTransport(callID string, conn *websocket.Conn, dec *decoder) *wsTransport {
	return &wsTransport{
		callID: callID,
		conn:   conn,
		dec:    dec,
		done:   make(chan struct{}),
	}
}

// Send writes one outbound audio chunk as a binary message in the
// negotiated encoding.
func (t *wsTransport) Send(ctx context.Context, chunk []byte) error {
	if err := t.conn.Write(ctx, websocket.MessageBinary, t.dec.encode(chunk)); err != nil {
		return fmt.Errorf("bridge: send audio: %w", err)
	}
	return nil
}

// Receive blocks for the next inbound audio frame, handling interleaved
// control messages in place.
func (t *wsTransport) Receive(ctx context.Context) (audio.Frame, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return audio.Frame{}, fmt.Errorf("bridge: receive: %w", err)
		}

		if typ == websocket.MessageText {
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				// Malformed control frames are dropped, not fatal.
				continue
			}
			switch msg.Type {
			case msgStop:
				return audio.Frame{}, ErrCallEnded
			case msgPing:
				reply, _ := json.Marshal(controlMessage{Type: msgPong})
				_ = t.conn.Write(ctx, websocket.MessageText, reply)
			}
			continue
		}

		frame, err := t.dec.decode(data)
		if err != nil {
			return audio.Frame{}, err
		}
		return frame, nil
	}
}

// Close shuts the websocket down. Idempotent; unblocks pending reads.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return err
}

// Done is closed when the transport is torn down.
func (t *wsTransport) Done() <-chan struct{} { return t.done }
