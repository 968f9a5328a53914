package callstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder tuning.
const (
	recorderQueueLen    = 256
	recorderWriteBudget = 3 * time.Second
)

// Recorder bridges the event bus to a Store. Events are queued and written
// from a dedicated goroutine; when the queue is full the event is dropped
// with a log line rather than stalling the publisher.
type Recorder struct {
	store Store

	queue     chan Record
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64
	mu      sync.Mutex
}

// NewRecorder starts a Recorder writing to store. Subscribe its Handle
// method on the event bus.
func NewRecorder(store Store) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan Record, recorderQueueLen),
		done:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r
}

// Handle enqueues one event for persistence. Never blocks.
func (r *Recorder) Handle(rec Record) {
	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		n := r.dropped
		r.mu.Unlock()
		slog.Warn("call event dropped, store queue full",
			"call_id", rec.CallID,
			"type", rec.Type,
			"dropped_total", n)
	}
}

// Dropped returns how many events were discarded due to a full queue.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops the recorder after draining queued events.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteBudget)
	defer cancel()
	if err := r.store.RecordEvent(ctx, rec); err != nil {
		slog.Warn("call event persist failed",
			"call_id", rec.CallID,
			"type", rec.Type,
			"error", err)
	}
}
