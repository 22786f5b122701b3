package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/metrics"
)

const appendTimeout = 5 * time.Second

// Recorder decouples audit writes from the request hot path. Record never
// blocks: entries go through a bounded queue drained by a single worker, and
// when the queue is full the entry is dropped and counted rather than
// delaying a reply.
type Recorder struct {
	store   Store
	queue   chan Entry
	dropped atomic.Uint64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewRecorder(store Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}

	r := &Recorder{
		store: store,
		queue: make(chan Entry, queueSize),
	}

	r.wg.Add(1)
	go r.drain()

	return r
}

// Record enqueues an audit entry. Failures never propagate to the caller.
func (r *Recorder) Record(e Entry) {
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
		metrics.AuditDropped.Inc()
		log.Warn().Str("path", e.Path).Msg("audit queue full, dropping record")
	}
}

// Dropped returns how many records were discarded due to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting records and waits for the queue to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()

	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if _, err := r.store.Append(ctx, e); err != nil {
			log.Error().Err(err).Str("path", e.Path).Msg("failed to append audit record")
		}
		cancel()
	}
}
