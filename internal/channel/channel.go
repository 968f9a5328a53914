// Package channel owns the per-call audio plumbing: a CallAudioChannel
// buffers inbound frames, paces outbound chunks, tracks who is speaking and
// survives transport drops, while the Registry enforces at most one live
// channel per call ID.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dialverse/dialcore/internal/event"
	"github.com/dialverse/dialcore/pkg/audio"
)

// Default channel tuning for 8 kHz 16-bit telephone audio.
const (
	defaultInboundBuffer    = 64
	defaultBackpressureWait = 250 * time.Millisecond
	defaultChunkSize        = 3200 // 200ms
	defaultChunkInterval    = 180 * time.Millisecond
	defaultMaxReconnects    = 5
	defaultReconnectBackoff = 500 * time.Millisecond
	defaultMaxBackoff       = 8 * time.Second
	defaultDialTimeout      = 10 * time.Second
	defaultIdleTimeout      = 5 * time.Minute
)

// ErrChannelClosed is returned by operations on a closed channel.
var ErrChannelClosed = errors.New("channel: closed")

// ErrFrameDropped is returned by PushInbound when the backpressure budget
// expired and a frame had to be discarded to keep the media loop live.
var ErrFrameDropped = errors.New("channel: inbound frame dropped under backpressure")

// ErrStreamAborted is returned by StreamOutbound when the in-flight stream
// was cancelled by an interruption.
var ErrStreamAborted = errors.New("channel: outbound stream aborted")

// State is a channel's lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config tunes a CallAudioChannel. Zero fields take defaults.
type Config struct {
	// InboundBuffer is the bounded inbound frame queue length.
	InboundBuffer int

	// BackpressureWait is how long PushInbound waits for the queue to drain
	// before dropping the oldest frame and marking the channel degraded.
	BackpressureWait time.Duration

	// ChunkSize and ChunkInterval shape outbound pacing: ChunkSize bytes
	// are sent every ChunkInterval.
	ChunkSize     int
	ChunkInterval time.Duration

	// MaxReconnectAttempts bounds transport recovery; exhausting it is
	// fatal for the call.
	MaxReconnectAttempts int

	// ReconnectBackoff doubles per attempt up to MaxReconnectBackoff.
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration

	// DialTimeout bounds a single dial attempt during recovery. Dialers
	// that wait for the peer to connect back would otherwise stall the
	// attempt budget forever.
	DialTimeout time.Duration

	// IdleTimeout closes a channel with no audio in either direction.
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = defaultInboundBuffer
	}
	if c.BackpressureWait <= 0 {
		c.BackpressureWait = defaultBackpressureWait
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = defaultChunkInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = defaultReconnectBackoff
	}
	if c.MaxReconnectBackoff <= 0 {
		c.MaxReconnectBackoff = defaultMaxBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return c
}

// CallAudioChannel is one call's audio duplex. Inbound frames flow through a
// bounded queue towards the recognition pipeline; outbound audio is paced in
// fixed chunks towards the transport. The channel object survives transport
// reconnects: everything keyed by call ID (speaking flags, counters) stays.
type CallAudioChannel struct {
	callID string
	cfg    Config
	dialer Dialer
	bus    *event.Bus

	// onFailure reports a fatal channel error (reconnect budget exhausted)
	// to call management. May be nil.
	onFailure func(callID string, err error)

	state            atomic.Int32
	customerSpeaking atomic.Bool
	systemSpeaking   atomic.Bool
	chunksDelivered  atomic.Int64
	framesDropped    atomic.Int64
	lastActivity     atomic.Int64 // unix nanos

	// speakMu serialises speaking-flag edges so each transition publishes
	// exactly one event.
	speakMu sync.Mutex

	// transportMu guards the transport pointer and its generation.
	transportMu sync.Mutex
	transport   Transport
	generation  int

	// reconnectMu serialises recovery so concurrent send/receive failures
	// trigger a single reconnect cycle.
	reconnectMu sync.Mutex

	inbound chan audio.Frame

	// streamMu admits one outbound stream at a time; a new stream aborts
	// the holder before taking it. abort is recreated per stream.
	streamMu  sync.Mutex
	abortMu   sync.Mutex
	abort     chan struct{}
	streaming atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unconnected channel for callID. Call Open to dial the
// transport and start the background pumps.
func New(callID string, cfg Config, dialer Dialer, bus *event.Bus, onFailure func(string, error)) *CallAudioChannel {
	c := &CallAudioChannel{
		callID:    callID,
		cfg:       cfg.withDefaults(),
		dialer:    dialer,
		bus:       bus,
		onFailure: onFailure,
		done:      make(chan struct{}),
	}
	c.inbound = make(chan audio.Frame, c.cfg.InboundBuffer)
	c.state.Store(int32(StateConnecting))
	c.touch()
	return c
}

// CallID returns the call this channel belongs to.
func (c *CallAudioChannel) CallID() string { return c.callID }

// State returns the channel's lifecycle phase. Lock-free.
func (c *CallAudioChannel) State() State { return State(c.state.Load()) }

// Open dials the transport and starts the inbound pump and idle monitor.
func (c *CallAudioChannel) Open(ctx context.Context) error {
	t, err := c.dialer.Dial(ctx, c.callID)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return fmt.Errorf("channel: open %s: %w", c.callID, err)
	}

	c.transportMu.Lock()
	c.transport = t
	c.generation = 1
	c.transportMu.Unlock()
	c.state.Store(int32(StateOpen))

	c.wg.Add(2)
	go c.receiveLoop()
	go c.idleLoop()

	slog.Info("call channel open", "call_id", c.callID)
	return nil
}

// Inbound exposes the buffered inbound frame stream for the recognition
// pipeline. The channel is never closed, so producers can race teardown
// safely; consumers select on Done to observe the end of the call.
func (c *CallAudioChannel) Inbound() <-chan audio.Frame { return c.inbound }

// Done is closed when the channel tears down. Consumers of Inbound select on
// it to stop reading.
func (c *CallAudioChannel) Done() <-chan struct{} { return c.done }

// PushInbound queues one inbound frame. When the queue is full it waits up to
// the backpressure budget for drain, then drops the oldest frame, marks the
// channel degraded, and returns ErrFrameDropped rather than blocking the
// media loop.
func (c *CallAudioChannel) PushInbound(frame audio.Frame) error {
	if c.State() == StateClosed {
		return ErrChannelClosed
	}
	c.touch()

	select {
	case c.inbound <- frame:
		// Fast path. A previously degraded channel that is draining again
		// recovers to open.
		if c.State() == StateDegraded && len(c.inbound) < cap(c.inbound)/2 {
			c.state.CompareAndSwap(int32(StateDegraded), int32(StateOpen))
			slog.Info("call channel recovered from backpressure", "call_id", c.callID)
		}
		return nil
	default:
	}

	timer := time.NewTimer(c.cfg.BackpressureWait)
	defer timer.Stop()
	select {
	case c.inbound <- frame:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-timer.C:
	}

	// Consumer is stalled: drop the oldest frame to keep the stream live.
	select {
	case <-c.inbound:
		c.framesDropped.Add(1)
	default:
	}
	select {
	case c.inbound <- frame:
	default:
		c.framesDropped.Add(1)
	}
	if c.state.CompareAndSwap(int32(StateOpen), int32(StateDegraded)) {
		slog.Warn("call channel degraded by backpressure",
			"call_id", c.callID,
			"frames_dropped", c.framesDropped.Load())
	}
	return ErrFrameDropped
}

// SetSpeaking updates one side's speaking flag, publishing an event only on
// an edge.
func (c *CallAudioChannel) SetSpeaking(who event.Speaker, speaking bool) {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	flag := &c.customerSpeaking
	if who == event.SpeakerSystem {
		flag = &c.systemSpeaking
	}
	if flag.Load() == speaking {
		return
	}
	flag.Store(speaking)

	if c.bus != nil {
		c.bus.Publish(event.Event{
			Type:     event.TypeSpeakingChanged,
			CallID:   c.callID,
			Speaker:  who,
			Speaking: speaking,
		})
	}
}

// CustomerSpeaking reports the customer flag. Lock-free.
func (c *CallAudioChannel) CustomerSpeaking() bool { return c.customerSpeaking.Load() }

// SystemSpeaking reports the system flag. Lock-free.
func (c *CallAudioChannel) SystemSpeaking() bool { return c.systemSpeaking.Load() }

// StreamOutbound paces pcm towards the customer in fixed-size chunks,
// flagging the system as speaking for the duration. It returns the number of
// chunks delivered and ErrStreamAborted when an interruption cancelled the
// remainder. Only one stream runs at a time: starting a new one cancels the
// stream in flight, whose caller sees ErrStreamAborted within one chunk
// interval.
func (c *CallAudioChannel) StreamOutbound(ctx context.Context, pcm []byte) (int, error) {
	if len(pcm) == 0 {
		return 0, nil
	}
	// Evict the in-flight stream before queueing on the lock. The holder
	// observes the abort at its next pacing tick, so the wait here is
	// bounded by one chunk interval instead of the remainder of its audio.
	c.Abort()
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.State() == StateClosed {
		return 0, ErrChannelClosed
	}

	abort := make(chan struct{})
	c.abortMu.Lock()
	c.abort = abort
	c.abortMu.Unlock()
	c.streaming.Store(true)
	defer func() {
		c.streaming.Store(false)
		c.abortMu.Lock()
		c.abort = nil
		c.abortMu.Unlock()
	}()

	c.SetSpeaking(event.SpeakerSystem, true)
	defer c.SetSpeaking(event.SpeakerSystem, false)

	delivered := 0
	for off := 0; off < len(pcm); off += c.cfg.ChunkSize {
		select {
		case <-abort:
			return delivered, ErrStreamAborted
		case <-ctx.Done():
			return delivered, ctx.Err()
		case <-c.done:
			return delivered, ErrChannelClosed
		default:
		}

		end := off + c.cfg.ChunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := c.send(ctx, pcm[off:end]); err != nil {
			return delivered, err
		}
		delivered++
		c.chunksDelivered.Add(1)
		c.touch()

		if end == len(pcm) {
			break
		}
		timer := time.NewTimer(c.cfg.ChunkInterval)
		select {
		case <-abort:
			timer.Stop()
			return delivered, ErrStreamAborted
		case <-ctx.Done():
			timer.Stop()
			return delivered, ctx.Err()
		case <-c.done:
			timer.Stop()
			return delivered, ErrChannelClosed
		case <-timer.C:
		}
	}
	return delivered, nil
}

// Abort cancels the in-flight outbound stream, if any, and lowers the system
// speaking flag with it. Pending chunks are discarded; chunks already sent
// are unaffected. Safe to call at any time.
func (c *CallAudioChannel) Abort() {
	c.abortMu.Lock()
	abort := c.abort
	c.abort = nil
	c.abortMu.Unlock()

	if abort != nil {
		close(abort)
		slog.Info("outbound stream aborted", "call_id", c.callID)
	}
	// The flag drops immediately rather than waiting for the pacing loop to
	// observe the abort, so barge-in handling sees a consistent state.
	c.SetSpeaking(event.SpeakerSystem, false)
}

// Streaming reports whether an outbound stream is in flight. Lock-free.
func (c *CallAudioChannel) Streaming() bool { return c.streaming.Load() }

// Close tears the channel down. Idempotent.
func (c *CallAudioChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.Abort()

		c.transportMu.Lock()
		t := c.transport
		c.transport = nil
		c.transportMu.Unlock()
		if t != nil {
			err = t.Close()
		}

		c.wg.Wait()
		slog.Info("call channel closed", "call_id", c.callID)
	})
	return err
}

// Metrics is a lock-free snapshot of a channel's counters.
type Metrics struct {
	CallID          string
	State           State
	ChunksDelivered int64
	FramesDropped   int64
	InboundQueued   int
}

// Metrics returns a best-effort snapshot without taking locks.
func (c *CallAudioChannel) Metrics() Metrics {
	return Metrics{
		CallID:          c.callID,
		State:           c.State(),
		ChunksDelivered: c.chunksDelivered.Load(),
		FramesDropped:   c.framesDropped.Load(),
		InboundQueued:   len(c.inbound),
	}
}

func (c *CallAudioChannel) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// send writes one chunk, recovering the transport once if the write fails.
func (c *CallAudioChannel) send(ctx context.Context, chunk []byte) error {
	t, gen := c.currentTransport()
	if t == nil {
		return ErrChannelClosed
	}
	err := t.Send(ctx, chunk)
	if err == nil {
		return nil
	}

	t, _, rerr := c.reconnect(ctx, gen)
	if rerr != nil {
		return rerr
	}
	if err := t.Send(ctx, chunk); err != nil {
		return fmt.Errorf("channel: send after reconnect: %w", err)
	}
	return nil
}

// receiveLoop pumps inbound frames from the transport into the bounded
// queue, reconnecting on transport errors.
func (c *CallAudioChannel) receiveLoop() {
	defer c.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		t, gen := c.currentTransport()
		if t == nil {
			return
		}
		frame, err := t.Receive(ctx)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if errors.Is(err, ErrCallEnded) {
				slog.Info("call ended by peer", "call_id", c.callID)
				// Close waits for this goroutine, so tear down elsewhere.
				go c.Close()
				return
			}
			if _, _, rerr := c.reconnect(ctx, gen); rerr != nil {
				return
			}
			continue
		}
		_ = c.PushInbound(frame)
	}
}

// idleLoop closes the channel when no audio has moved in either direction
// for the idle timeout.
func (c *CallAudioChannel) idleLoop() {
	defer c.wg.Done()

	interval := c.cfg.IdleTimeout / 4
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastActivity.Load())
			if time.Since(last) < c.cfg.IdleTimeout {
				continue
			}
			slog.Warn("closing idle call channel",
				"call_id", c.callID,
				"idle", time.Since(last))
			// Close waits for this goroutine, so tear down elsewhere.
			go c.Close()
			return
		}
	}
}

func (c *CallAudioChannel) currentTransport() (Transport, int) {
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	return c.transport, c.generation
}

// reconnect re-dials the transport with capped exponential backoff and a
// bounded attempt budget. failedGen identifies the transport the caller saw
// fail; if recovery already replaced it, the current transport is returned
// without dialing again. Budget exhaustion is fatal for the call.
func (c *CallAudioChannel) reconnect(ctx context.Context, failedGen int) (Transport, int, error) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	t, gen := c.currentTransport()
	if t != nil && gen > failedGen {
		return t, gen, nil
	}
	if c.State() == StateClosed {
		return nil, 0, ErrChannelClosed
	}

	c.state.Store(int32(StateConnecting))
	backoff := c.cfg.ReconnectBackoff

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil, 0, ErrChannelClosed
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		slog.Info("reconnecting call transport",
			"call_id", c.callID,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"backoff", backoff,
		)

		dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		nt, err := c.dialer.Dial(dctx, c.callID)
		cancel()
		if err == nil {
			c.transportMu.Lock()
			old := c.transport
			c.transport = nt
			c.generation++
			gen = c.generation
			c.transportMu.Unlock()
			if old != nil {
				_ = old.Close()
			}
			c.state.Store(int32(StateOpen))
			slog.Info("call transport reconnected",
				"call_id", c.callID,
				"attempt", attempt)
			return nt, gen, nil
		}

		slog.Warn("reconnect attempt failed",
			"call_id", c.callID,
			"attempt", attempt,
			"error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return nil, 0, ErrChannelClosed
		case <-ctx.Done():
			timer.Stop()
			return nil, 0, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > c.cfg.MaxReconnectBackoff {
			backoff = c.cfg.MaxReconnectBackoff
		}
	}

	err := fmt.Errorf("channel: reconnect budget exhausted after %d attempts", c.cfg.MaxReconnectAttempts)
	slog.Error("call transport unrecoverable",
		"call_id", c.callID,
		"max_attempts", c.cfg.MaxReconnectAttempts)

	if c.bus != nil {
		c.bus.Publish(event.Event{
			Type:   event.TypeCallFailed,
			CallID: c.callID,
			Reason: err.Error(),
		})
	}
	if c.onFailure != nil {
		c.onFailure(c.callID, err)
	}
	go c.Close()
	return nil, 0, err
}
