package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"monistor/internal/logging"
)

const (
	defaultRecorderBuffer = 128
	defaultPruneEvery     = 100
	appendTimeout         = 5 * time.Second
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Buffer is the channel capacity. Entries beyond it are dropped.
	Buffer int
	// Keep bounds the table size; zero keeps everything.
	Keep int
	// PruneEvery is how many appends happen between prunes.
	PruneEvery int
	// Session is stamped on entries that carry none.
	Session string
}

// Recorder writes entries to a Store from its own goroutine. Record never
// blocks. A nil *Recorder accepts and discards everything.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	opts    RecorderOptions
	entries chan Entry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
}

func NewRecorder(store *Store, logger *slog.Logger, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultRecorderBuffer
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = defaultPruneEvery
	}
	r := &Recorder{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "history"),
		opts:    opts,
		entries: make(chan Entry, opts.Buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues e. It reports false when the entry was dropped.
func (r *Recorder) Record(e Entry) bool {
	if r == nil {
		return false
	}
	if e.Session == "" {
		e.Session = r.opts.Session
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.entries <- e:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Close flushes queued entries and stops the writer.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
}

// Written is the number of entries persisted.
func (r *Recorder) Written() uint64 {
	if r == nil {
		return 0
	}
	return r.written.Load()
}

// Dropped is the number of entries discarded because the buffer was full or
// the recorder was closed.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		_, err := r.store.Append(ctx, e)
		cancel()
		if err != nil {
			logging.WarnWithContext(r.logger, "history append failed", "history_append_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "event missing from history"),
			)
			continue
		}
		if n := r.written.Add(1); r.opts.Keep > 0 && n%uint64(r.opts.PruneEvery) == 0 {
			r.prune()
		}
	}
	if r.opts.Keep > 0 {
		r.prune()
	}
}

func (r *Recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	removed, err := r.store.Prune(ctx, r.opts.Keep)
	if err != nil {
		logging.WarnWithContext(r.logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history database keeps growing"),
		)
		return
	}
	if removed > 0 {
		r.logger.Debug("history pruned", logging.Int64("removed", removed), logging.Int("keep", r.opts.Keep))
	}
}
