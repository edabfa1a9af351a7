// Package writeback persists freshly fetched catalog data in the background.
//
// Submitting never blocks the request that produced the data: jobs go onto a
// bounded queue and a small worker pool writes them on a context detached
// from the request, each with its own timeout. When the queue is full the
// job is dropped and counted. The Writer runs as a suture service; Close
// stops it after the queue has drained.
package writeback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/metrics"
	"github.com/jonathan/pikflix/internal/types"
)

// Sink is where jobs are written. *catalog.Gateway implements it.
type Sink interface {
	UpsertRecords(ctx context.Context, records []types.Movie)
	UpsertProviders(ctx context.Context, itemID int, regions map[string]types.RegionAvailability)
}

// Options tunes the Writer.
type Options struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
	// DrainTimeout bounds how long shutdown waits for queued jobs.
	DrainTimeout time.Duration
}

// DefaultOptions returns the defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		Workers:      2,
		QueueSize:    256,
		WriteTimeout: 15 * time.Second,
		DrainTimeout: 30 * time.Second,
	}
}

// Job kinds, used as metric labels.
const (
	KindRecords   = "records"
	KindProviders = "providers"
)

type job struct {
	kind string
	ctx  context.Context // detached from the request, carries its values
	run  func(ctx context.Context)
}

// Writer is the background persistence queue.
type Writer struct {
	sink  Sink
	opts  Options
	queue chan job
	now   func() time.Time

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// New creates a Writer. It does nothing until Serve or Start is called.
func New(sink Sink, opts Options) *Writer {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	return &Writer{
		sink:  sink,
		opts:  opts,
		queue: make(chan job, opts.QueueSize),
		now:   time.Now,
	}
}

// SubmitRecords queues movies for persistence. The records are copied and
// normalised first, so the caller may keep using its slice.
func (w *Writer) SubmitRecords(ctx context.Context, records []types.Movie) {
	if len(records) == 0 {
		return
	}
	normalized := Normalize(records, w.now())
	w.submit(ctx, KindRecords, func(ctx context.Context) {
		w.sink.UpsertRecords(ctx, normalized)
	})
}

// SubmitProviders queues provider data for persistence.
func (w *Writer) SubmitProviders(ctx context.Context, itemID int, regions map[string]types.RegionAvailability) {
	copied := make(map[string]types.RegionAvailability, len(regions))
	for k, v := range regions {
		copied[k] = v
	}
	w.submit(ctx, KindProviders, func(ctx context.Context) {
		w.sink.UpsertProviders(ctx, itemID, copied)
	})
}

func (w *Writer) submit(ctx context.Context, kind string, run func(context.Context)) {
	j := job{kind: kind, ctx: context.WithoutCancel(ctx), run: run}
	select {
	case w.queue <- j:
		metrics.WritebackQueueDepth.Set(float64(len(w.queue)))
	default:
		metrics.RecordWriteback(kind, "dropped")
		logging.Ctx(ctx).Warn().Str("kind", kind).Int("queue_size", w.opts.QueueSize).
			Msg("persistence queue full, dropping job")
	}
}

// Serve runs the workers until ctx is cancelled, then drains what is left in
// the queue within DrainTimeout. It implements suture.Service.
func (w *Writer) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case j := <-w.queue:
					w.run(j)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()

	w.drain()
	return ctx.Err()
}

func (w *Writer) drain() {
	deadline := time.NewTimer(w.opts.DrainTimeout)
	defer deadline.Stop()

	for {
		select {
		case j := <-w.queue:
			w.run(j)
		case <-deadline.C:
			if n := len(w.queue); n > 0 {
				logging.Warn().Int("pending", n).Msg("persistence drain timed out")
			}
			return
		default:
			return
		}
	}
}

func (w *Writer) run(j job) {
	metrics.WritebackQueueDepth.Set(float64(len(w.queue)))

	ctx, cancel := context.WithTimeout(j.ctx, w.opts.WriteTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWriteback(j.kind, "error")
			logging.Ctx(ctx).Error().Interface("panic", r).Str("kind", j.kind).Msg("persistence job panicked")
		}
	}()

	j.run(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.RecordWriteback(j.kind, "timeout")
		logging.Ctx(ctx).Warn().Str("kind", j.kind).Dur("timeout", w.opts.WriteTimeout).Msg("persistence job timed out")
		return
	}
	metrics.RecordWriteback(j.kind, "ok")
}

// Start runs Serve in the background for callers without a supervisor.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.stop = cancel
	w.done = make(chan struct{})
	w.running = true
	go func() {
		defer close(w.done)
		_ = w.Serve(ctx)
	}()
}

// Close stops a Writer started with Start after draining its queue.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	stop()
	<-done
}

// String implements fmt.Stringer for suture logs.
func (w *Writer) String() string {
	return "writeback"
}

// Normalize returns copies of records in stored form: last_updated set to now
// and the release date reduced to a calendar date.
func Normalize(records []types.Movie, now time.Time) []types.Movie {
	stamp := now.UTC()
	out := make([]types.Movie, len(records))
	for i, m := range records {
		if !m.ReleaseDate.IsZero() {
			y, mo, d := m.ReleaseDate.Date()
			m.ReleaseDate = types.NewDate(y, mo, d)
		}
		ts := stamp
		m.LastUpdated = &ts
		out[i] = m
	}
	return out
}
