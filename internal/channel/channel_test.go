package channel_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dialverse/dialcore/internal/channel"
	"github.com/dialverse/dialcore/internal/channel/mock"
	"github.com/dialverse/dialcore/internal/event"
	"github.com/dialverse/dialcore/pkg/audio"
)

func openChannel(t *testing.T, cfg channel.Config, dialer channel.Dialer, bus *event.Bus) *channel.CallAudioChannel {
	t.Helper()
	ch := channel.New("call-1", cfg, dialer, bus, nil)
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func frame(b ...byte) audio.Frame {
	return audio.Frame{PCM: b, SampleRate: 8000, Channels: 1}
}

func TestOpenDialFailure(t *testing.T) {
	dialer := mock.NewDialer()
	dialer.FailDials(errors.New("no route"))

	ch := channel.New("call-1", channel.Config{}, dialer, nil, nil)
	if err := ch.Open(context.Background()); err == nil {
		t.Fatal("Open() error = nil, want dial error")
	}
	if got := ch.State(); got != channel.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestInboundPump(t *testing.T) {
	dialer := mock.NewDialer()
	ch := openChannel(t, channel.Config{}, dialer, nil)

	tr := dialer.Transports()[0]
	tr.Deliver(frame(1))
	tr.Deliver(frame(2))

	for want := byte(1); want <= 2; want++ {
		select {
		case f := <-ch.Inbound():
			if f.PCM[0] != want {
				t.Errorf("inbound frame = %d, want %d", f.PCM[0], want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for inbound frame")
		}
	}
}

func TestBackpressureDropsOldest(t *testing.T) {
	cfg := channel.Config{
		InboundBuffer:    2,
		BackpressureWait: 10 * time.Millisecond,
	}
	ch := openChannel(t, cfg, mock.NewDialer(), nil)

	// Nobody consumes: the third and fourth pushes must evict the oldest
	// instead of blocking, and report the loss.
	for i := byte(1); i <= 2; i++ {
		if err := ch.PushInbound(frame(i)); err != nil {
			t.Fatalf("PushInbound(%d) error = %v", i, err)
		}
	}
	for i := byte(3); i <= 4; i++ {
		if err := ch.PushInbound(frame(i)); !errors.Is(err, channel.ErrFrameDropped) {
			t.Fatalf("PushInbound(%d) error = %v, want ErrFrameDropped", i, err)
		}
	}

	if got := ch.State(); got != channel.StateDegraded {
		t.Errorf("State() = %v, want degraded", got)
	}
	m := ch.Metrics()
	if m.FramesDropped == 0 {
		t.Error("FramesDropped = 0, want > 0")
	}

	// The survivors are the newest frames, still in order.
	f := <-ch.Inbound()
	if f.PCM[0] == 1 {
		t.Error("oldest frame survived backpressure, want it dropped")
	}
}

func TestStreamOutboundChunking(t *testing.T) {
	cfg := channel.Config{ChunkSize: 4, ChunkInterval: time.Millisecond}
	dialer := mock.NewDialer()
	bus := event.NewBus()

	var mu sync.Mutex
	var speaking []bool
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.TypeSpeakingChanged && ev.Speaker == event.SpeakerSystem {
			mu.Lock()
			speaking = append(speaking, ev.Speaking)
			mu.Unlock()
		}
	})

	ch := openChannel(t, cfg, dialer, bus)

	pcm := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	delivered, err := ch.StreamOutbound(context.Background(), pcm)
	if err != nil {
		t.Fatalf("StreamOutbound() error = %v", err)
	}
	if delivered != 3 {
		t.Errorf("delivered = %d, want 3", delivered)
	}

	sent := dialer.Transports()[0].Sent()
	if len(sent) != 3 {
		t.Fatalf("len(sent) = %d, want 3", len(sent))
	}
	if !bytes.Equal(sent[0], []byte{0, 1, 2, 3}) || !bytes.Equal(sent[2], []byte{8, 9}) {
		t.Errorf("sent chunks = %v, want 4-byte chunks with 2-byte tail", sent)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Errorf("system speaking edges = %v, want [true false]", speaking)
	}
}

// Aborting mid-stream stops delivery between chunks: everything already sent
// stays sent exactly once and in order, nothing after the abort goes out.
func TestChunkOrderingUnderAbort(t *testing.T) {
	cfg := channel.Config{ChunkSize: 2, ChunkInterval: 40 * time.Millisecond}
	dialer := mock.NewDialer()
	ch := openChannel(t, cfg, dialer, nil)

	pcm := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9} // 5 chunks

	done := make(chan struct{})
	var delivered int
	var err error
	go func() {
		defer close(done)
		delivered, err = ch.StreamOutbound(context.Background(), pcm)
	}()

	time.Sleep(60 * time.Millisecond)
	ch.Abort()
	<-done

	if !errors.Is(err, channel.ErrStreamAborted) {
		t.Fatalf("StreamOutbound() error = %v, want ErrStreamAborted", err)
	}
	if delivered == 0 || delivered >= 5 {
		t.Fatalf("delivered = %d, want partial delivery", delivered)
	}
	sent := dialer.Transports()[0].Sent()
	if len(sent) != delivered {
		t.Fatalf("len(sent) = %d, delivered = %d, want equal", len(sent), delivered)
	}
	for i, chunk := range sent {
		want := pcm[i*2 : i*2+2]
		if !bytes.Equal(chunk, want) {
			t.Errorf("sent[%d] = %v, want %v", i, chunk, want)
		}
	}
	if ch.SystemSpeaking() {
		t.Error("SystemSpeaking() = true after abort, want false")
	}
}

func TestNewStreamPreemptsInFlight(t *testing.T) {
	cfg := channel.Config{ChunkSize: 2, ChunkInterval: 50 * time.Millisecond}
	dialer := mock.NewDialer()
	ch := openChannel(t, cfg, dialer, nil)
	tr := dialer.Transports()[0]

	// 32 chunks of slow pacing: left alone this stream runs for well over a
	// second.
	first := make(chan error, 1)
	go func() {
		_, err := ch.StreamOutbound(context.Background(), bytes.Repeat(
			[]byte{1}, 64))
		first <- err
	}()

	deadline := time.Now().Add(time.Second)
	for len(tr.Sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(tr.Sent()) == 0 {
		t.Fatal("first stream never reached the wire")
	}

	start := time.Now()
	if _, err := ch.StreamOutbound(context.Background(), []byte{9, 9}); err != nil {
		t.Fatalf("second StreamOutbound() error = %v", err)
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Errorf("second stream waited %v behind the first, want prompt preemption", waited)
	}

	select {
	case err := <-first:
		if !errors.Is(err, channel.ErrStreamAborted) {
			t.Errorf("first StreamOutbound() error = %v, want ErrStreamAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first stream still running after preemption")
	}

	sent := tr.Sent()
	if last := sent[len(sent)-1]; !bytes.Equal(last, []byte{9, 9}) {
		t.Errorf("last chunk on wire = %v, want the second stream's %v", last, []byte{9, 9})
	}
}

func TestCloseDuringBlockedPushInbound(t *testing.T) {
	cfg := channel.Config{
		InboundBuffer:    1,
		BackpressureWait: 5 * time.Second,
	}
	ch := openChannel(t, cfg, mock.NewDialer(), nil)

	if err := ch.PushInbound(frame(1)); err != nil {
		t.Fatalf("PushInbound() error = %v", err)
	}

	// The queue is full and nobody consumes, so this push parks inside the
	// backpressure wait while the channel tears down underneath it.
	pushed := make(chan error, 1)
	go func() { pushed <- ch.PushInbound(frame(2)) }()

	time.Sleep(20 * time.Millisecond)
	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-pushed:
		if !errors.Is(err, channel.ErrChannelClosed) {
			t.Errorf("PushInbound() error = %v, want ErrChannelClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("PushInbound still blocked after Close")
	}

	select {
	case <-ch.Done():
	default:
		t.Error("Done() not closed after Close")
	}

	// Frames queued before teardown stay readable.
	select {
	case f := <-ch.Inbound():
		if f.PCM[0] != 1 {
			t.Errorf("inbound frame = %d, want 1", f.PCM[0])
		}
	default:
		t.Error("buffered inbound frame lost on close")
	}
}

func TestSendReconnectsAndResends(t *testing.T) {
	cfg := channel.Config{
		ChunkSize:            4,
		ChunkInterval:        time.Millisecond,
		MaxReconnectAttempts: 3,
		ReconnectBackoff:     time.Millisecond,
	}
	dialer := mock.NewDialer()
	ch := openChannel(t, cfg, dialer, nil)

	dialer.Transports()[0].FailSends(errors.New("pipe broken"))

	delivered, err := ch.StreamOutbound(context.Background(), []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("StreamOutbound() error = %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if dialer.DialCount() != 2 {
		t.Errorf("DialCount() = %d, want 2 (initial + reconnect)", dialer.DialCount())
	}
	// The chunk went out on the replacement transport.
	if sent := dialer.Transports()[1].Sent(); len(sent) != 1 {
		t.Errorf("replacement transport sent %d chunks, want 1", len(sent))
	}
}

func TestReconnectBudgetExhaustionIsFatal(t *testing.T) {
	cfg := channel.Config{
		MaxReconnectAttempts: 2,
		ReconnectBackoff:     time.Millisecond,
		ChunkInterval:        time.Millisecond,
	}
	dialer := mock.NewDialer()
	bus := event.NewBus()

	var mu sync.Mutex
	var failedCall string
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.TypeCallFailed {
			mu.Lock()
			failedCall = ev.CallID
			mu.Unlock()
		}
	})

	var reported string
	ch := channel.New("call-1", cfg, dialer, bus, func(callID string, err error) {
		reported = callID
	})
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	dialer.Transports()[0].FailSends(errors.New("pipe broken"))
	dialer.FailDials(errors.New("down"), errors.New("down"), errors.New("down"))

	_, err := ch.StreamOutbound(context.Background(), []byte{1, 2})
	if err == nil {
		t.Fatal("StreamOutbound() error = nil, want fatal reconnect error")
	}
	if reported != "call-1" {
		t.Errorf("onFailure callID = %q, want call-1", reported)
	}

	// Teardown runs asynchronously after the fatal report.
	deadline := time.Now().Add(time.Second)
	for ch.State() != channel.StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("channel never closed after fatal reconnect failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if failedCall != "call-1" {
		t.Errorf("call_failed event callID = %q, want call-1", failedCall)
	}
}

func TestIdleTimeoutClosesChannel(t *testing.T) {
	cfg := channel.Config{IdleTimeout: 40 * time.Millisecond}
	ch := openChannel(t, cfg, mock.NewDialer(), nil)

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != channel.StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("idle channel never closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPeerEndingCallClosesWithoutReconnect(t *testing.T) {
	dialer := mock.NewDialer()
	ch := openChannel(t, channel.Config{}, dialer, nil)

	dialer.Transports()[0].FailReceive(channel.ErrCallEnded)

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != channel.StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("channel never closed after peer ended the call")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := dialer.DialCount(); got != 1 {
		t.Errorf("DialCount() = %d, want 1 (clean end must not reconnect)", got)
	}
}

func TestSetSpeakingEdgeTriggered(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	events := 0
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.TypeSpeakingChanged {
			mu.Lock()
			events++
			mu.Unlock()
		}
	})
	ch := openChannel(t, channel.Config{}, mock.NewDialer(), bus)

	ch.SetSpeaking(event.SpeakerCustomer, true)
	ch.SetSpeaking(event.SpeakerCustomer, true) // no edge
	ch.SetSpeaking(event.SpeakerCustomer, false)

	mu.Lock()
	defer mu.Unlock()
	if events != 2 {
		t.Errorf("speaking events = %d, want 2", events)
	}
	if ch.CustomerSpeaking() {
		t.Error("CustomerSpeaking() = true, want false")
	}
}
