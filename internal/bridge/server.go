package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dialverse/dialcore/internal/channel"
)

// Server timing defaults.
const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultClaimTimeout     = 30 * time.Second
	keepaliveInterval       = 25 * time.Second
)

// Server accepts telephony media websockets and hands them to the call
// pipeline through the channel.Dialer contract.
//
// The vendor connects inward, so dialing is a rendezvous: ServeHTTP parks
// each authenticated leg under its call ID, and Dial claims it. A reconnect
// is just the vendor connecting again with the same call ID.
type Server struct {
	// HandshakeTimeout bounds the wait for the start message.
	HandshakeTimeout time.Duration

	// ClaimTimeout bounds how long an unclaimed leg is held before it is
	// dropped.
	ClaimTimeout time.Duration

	// OnNewCall, when set, runs on its own goroutine for every leg that
	// completes the start handshake. Reconnecting legs fire it too; the
	// consumer tells them apart by call ID.
	OnNewCall func(callID string)

	mu      sync.Mutex
	pending map[string]chan *wsTransport
}

// NewServer creates a Server with default timeouts.
func NewServer() *Server {
	return &Server{
		HandshakeTimeout: defaultHandshakeTimeout,
		ClaimTimeout:     defaultClaimTimeout,
		pending:          make(map[string]chan *wsTransport),
	}
}

// ServeHTTP upgrades the request, performs the start handshake and parks the
// leg for Dial. It blocks until the transport is torn down so the hijacked
// connection stays serviced.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("media websocket accept failed", "error", err)
		return
	}

	t, err := s.handshake(r.Context(), conn)
	if err != nil {
		slog.Warn("media websocket handshake failed", "error", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "bad handshake")
		return
	}

	slog.Info("media leg connected", "call_id", t.callID, "codec", string(t.dec.codec))

	if s.OnNewCall != nil {
		go s.OnNewCall(t.callID)
	}

	if !s.offer(t) {
		slog.Warn("media leg never claimed", "call_id", t.callID)
		_ = t.Close()
		return
	}

	go s.keepalive(t)
	<-t.Done()
}

// handshake reads and validates the start message.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*wsTransport, error) {
	hctx, cancel := context.WithTimeout(ctx, s.HandshakeTimeout)
	defer cancel()

	typ, data, err := conn.Read(hctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: read start message: %w", err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("bridge: start message must be text, got %v", typ)
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("bridge: parse start message: %w", err)
	}
	if msg.Type != msgStart {
		return nil, fmt.Errorf("bridge: expected start message, got %q", msg.Type)
	}
	if msg.CallID == "" {
		return nil, fmt.Errorf("bridge: start message missing call_id")
	}
	sampleRate := msg.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	codec := Codec(msg.Codec)
	if codec == "" {
		codec = CodecMulaw
	}

	dec, err := newDecoder(codec, sampleRate)
	if err != nil {
		return nil, err
	}
	return newWSTransport(msg.CallID, conn, dec), nil
}

// offer parks t for its call ID until a Dial claims it or the claim timeout
// expires. Returns false when the leg was never claimed.
func (s *Server) offer(t *wsTransport) bool {
	slot := s.slot(t.callID)

	timer := time.NewTimer(s.ClaimTimeout)
	defer timer.Stop()
	select {
	case slot <- t:
		return true
	case <-timer.C:
		return false
	case <-t.done:
		return false
	}
}

// Dial claims the parked media leg for callID, waiting for the vendor to
// connect if it has not yet. Implements channel.Dialer.
func (s *Server) Dial(ctx context.Context, callID string) (channel.Transport, error) {
	slot := s.slot(callID)

	select {
	case t := <-slot:
		return t, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("bridge: dial %s: %w", callID, ctx.Err())
	}
}

// slot returns the rendezvous channel for callID, creating it on first use.
func (s *Server) slot(callID string) chan *wsTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.pending[callID]
	if !ok {
		slot = make(chan *wsTransport)
		s.pending[callID] = slot
	}
	return slot
}

// keepalive pings the peer until the transport closes.
func (s *Server) keepalive(t *wsTransport) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := t.conn.Ping(ctx)
			cancel()
			if err != nil {
				slog.Warn("media leg keepalive failed", "call_id", t.callID, "error", err)
				_ = t.Close()
				return
			}
		}
	}
}

// Compile-time interface assertion.
var _ channel.Dialer = (*Server)(nil)
