package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the capacity of the queue between Emit and the sinks.
	BufferSize int
	// MaxBatch flushes a batch as soon as it holds this many records.
	MaxBatch int
	// MaxBatchWait bounds how long a partial batch waits for more records.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultBufferSize   = 1024
	defaultMaxBatch     = 256
	defaultMaxBatchWait = 500 * time.Millisecond
	defaultSinkTimeout  = 10 * time.Second
	dropLogInterval     = 5 * time.Second
)

// Stats are cumulative Hub counters.
type Stats struct {
	Forwarded int64
	Dropped   int64
}

// Hub batches Records and fans them out to sinks from a single goroutine.
// Emit never blocks. A batch is flushed when it is full, when MaxBatchWait
// passes, or when a scan's final event arrives so sinks see finished scans
// without waiting for the timer.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Record
	stop   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	dropLog   rate.Sometimes
	pending   atomic.Int64
	dropped   atomic.Int64
	forwarded atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub delivering to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		events:  make(chan Record, cfg.BufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.Named("progress"),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.run()
	return h
}

// Emit queues rec for delivery. Invalid records are discarded. When the
// queue is full the record is dropped and a warning is logged at most once
// per dropLogInterval.
func (h *Hub) Emit(rec Record) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := rec.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress record", zap.Error(err))
		return
	}
	select {
	case h.events <- rec:
	default:
		h.pending.Add(1)
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress records dropped", zap.Int64("dropped", h.pending.Swap(0)))
		})
	}
}

// Stats returns the counters accumulated so far.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{Forwarded: h.forwarded.Load(), Dropped: h.dropped.Load()}
}

// Close stops accepting records, flushes what is queued, closes the sinks
// and waits for the delivery goroutine. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)

	b := batcher{max: h.cfg.MaxBatch, wait: h.cfg.MaxBatchWait}
	defer b.stopTimer()
	for {
		select {
		case rec := <-h.events:
			if b.add(rec) {
				h.flush(b.take())
			}
		case <-b.expired():
			h.flush(b.take())
		case <-h.stop:
			h.drain(&b)
			return
		}
	}
}

// drain delivers whatever is still queued once Close was called.
func (h *Hub) drain(b *batcher) {
	for {
		select {
		case rec := <-h.events:
			if b.add(rec) {
				h.flush(b.take())
			}
		default:
			h.flush(b.take())
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		cancel()
	}
	h.forwarded.Add(int64(len(batch)))
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

// batcher accumulates records for the delivery goroutine. It is not safe
// for concurrent use.
type batcher struct {
	max   int
	wait  time.Duration
	buf   []Record
	timer *time.Timer
}

// add appends rec and reports whether the batch should be flushed now.
func (b *batcher) add(rec Record) bool {
	b.buf = append(b.buf, rec)
	if len(b.buf) >= b.max || rec.Event.Final() {
		return true
	}
	if len(b.buf) == 1 {
		b.startTimer()
	}
	return false
}

// take hands the current batch to the caller and resets the batcher.
func (b *batcher) take() []Record {
	b.stopTimer()
	out := b.buf
	b.buf = nil
	return out
}

// expired returns the timer channel, or nil while no batch is pending.
func (b *batcher) expired() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

func (b *batcher) startTimer() {
	if b.timer == nil {
		b.timer = time.NewTimer(b.wait)
		return
	}
	b.timer.Reset(b.wait)
}

func (b *batcher) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
	}
}
