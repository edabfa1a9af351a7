// Package pipeline turns a free-text request into resolved movie records.
//
// Candidates proposed by the recommendation source are reconciled against
// the catalog, missing or stale ones are fetched from the metadata provider,
// fresh fetches are handed to the write-back queue, and the results are
// delivered either as one ordered batch or as a stream in resolution order.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/metrics"
	"github.com/jonathan/pikflix/internal/types"
)

// ErrNoRecommendations is returned when the source proposes nothing.
var ErrNoRecommendations = errors.New("no recommendations produced")

// Source proposes candidate titles for a request.
type Source interface {
	Propose(ctx context.Context, query string) []types.Suggestion
	ProposeStream(ctx context.Context, query string) iter.Seq[types.Suggestion]
}

// Persister accepts freshly fetched records for background persistence.
// SubmitRecords must not block on the store.
type Persister interface {
	SubmitRecords(ctx context.Context, records []types.Movie)
}

// StreamHandler receives streaming output. OnInit is called once before any
// item. A non-nil error from either method ends the stream.
type StreamHandler interface {
	OnInit(query string) error
	OnItem(rec types.Recommendation) error
}

// Deps are the collaborators of an Orchestrator, built once per process.
type Deps struct {
	Source    Source
	Catalog   Catalog
	Metadata  Metadata
	Persister Persister
}

// Options tunes an Orchestrator.
type Options struct {
	TTL               time.Duration
	FetchConcurrency  int
	StreamConcurrency int
}

// DefaultOptions returns the defaults used for zero fields.
func DefaultOptions() Options {
	return Options{
		TTL:               DefaultTTL,
		FetchConcurrency:  4,
		StreamConcurrency: 4,
	}
}

// Orchestrator runs recommendation requests.
type Orchestrator struct {
	source      Source
	persister   Persister
	reconciler  *Reconciler
	coordinator *Coordinator
	opts        Options
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = def.FetchConcurrency
	}
	if opts.StreamConcurrency <= 0 {
		opts.StreamConcurrency = def.StreamConcurrency
	}
	return &Orchestrator{
		source:      deps.Source,
		persister:   deps.Persister,
		reconciler:  NewReconciler(deps.Catalog, opts.TTL, opts.FetchConcurrency),
		coordinator: NewCoordinator(deps.Metadata, opts.FetchConcurrency),
		opts:        opts,
	}
}

const (
	modeBatch  = "batch"
	modeStream = "stream"
)

func observe(ctx context.Context, mode string, c types.Candidate, s State) {
	metrics.RecordCandidate(mode, s.String())
	logging.Ctx(ctx).Debug().Str("mode", mode).Int("rank", c.Rank).Str("title", c.Title).
		Str("state", s.String()).Msg("candidate state")
}

// Recommend runs the batched mode: every candidate is resolved before the
// response is built, and the response keeps the source's order.
func (o *Orchestrator) Recommend(ctx context.Context, query string) (*types.RecommendationResponse, error) {
	start := time.Now()
	defer func() { metrics.RecommendationDuration.WithLabelValues(modeBatch).Observe(time.Since(start).Seconds()) }()

	suggestions := o.source.Propose(ctx, query)
	if len(suggestions) == 0 {
		return nil, ErrNoRecommendations
	}

	candidates := make([]types.Candidate, len(suggestions))
	for i, s := range suggestions {
		candidates[i] = types.NewCandidate(s, i+1)
		observe(ctx, modeBatch, candidates[i], Proposed)
	}

	fromCache, toFetch := o.reconciler.Reconcile(ctx, candidates)
	for _, item := range fromCache {
		observe(ctx, modeBatch, types.Candidate{Title: item.Record.Title, Rank: item.Rank}, CacheFresh)
	}
	for _, task := range toFetch {
		state := CacheMiss
		if task.KnownID != nil {
			state = CacheStale
		}
		observe(ctx, modeBatch, task.Candidate, state)
		observe(ctx, modeBatch, task.Candidate, Resolving)
	}

	fetched := o.coordinator.FetchAll(ctx, toFetch)
	o.persist(ctx, fetched)

	resolvedRanks := make(map[int]bool, len(fromCache)+len(fetched))
	for _, item := range fromCache {
		resolvedRanks[item.Rank] = true
	}
	for _, item := range fetched {
		resolvedRanks[item.Rank] = true
	}
	for _, c := range candidates {
		if resolvedRanks[c.Rank] {
			observe(ctx, modeBatch, c, Resolved)
		} else {
			observe(ctx, modeBatch, c, Unresolved)
		}
	}

	ordered := Ordered(append(fromCache, fetched...))
	resp := &types.RecommendationResponse{
		Recommendations: make([]types.Recommendation, 0, len(ordered)),
		Query:           query,
	}
	for _, item := range ordered {
		resp.Recommendations = append(resp.Recommendations, types.NewRecommendation(item))
	}

	logging.Ctx(ctx).Info().Int("proposed", len(candidates)).Int("cached", len(fromCache)).
		Int("fetched", len(fetched)).Int("returned", len(resp.Recommendations)).
		Msg("recommendations resolved")
	return resp, nil
}

func (o *Orchestrator) persist(ctx context.Context, items []types.ResolvedItem) {
	if len(items) == 0 || o.persister == nil {
		return
	}
	records := make([]types.Movie, len(items))
	for i, item := range items {
		records[i] = item.Record
	}
	o.persister.SubmitRecords(ctx, records)
}

// resolve takes one candidate through the state machine and returns its item,
// or nil when it ends Unresolved.
func (o *Orchestrator) resolve(ctx context.Context, c types.Candidate, mode string) *types.ResolvedItem {
	d := o.reconciler.decide(ctx, c)
	observe(ctx, mode, c, d.State)
	if d.Item != nil {
		observe(ctx, mode, c, Resolved)
		return d.Item
	}

	observe(ctx, mode, c, Resolving)
	item, err := o.coordinator.fetchOne(ctx, *d.Task)
	if err != nil {
		logUnresolved(ctx, *d.Task, err)
		observe(ctx, mode, c, Unresolved)
		return nil
	}
	o.persist(ctx, []types.ResolvedItem{*item})
	observe(ctx, mode, c, Resolved)
	return item
}

// Stream runs the streaming mode. Candidates are consumed as the source
// produces them and each resolved item is handed to h as soon as it is ready,
// so items arrive in resolution order. Items carry their rank.
//
// When ctx is cancelled or h fails, no further candidates are started.
// Records already fetched are still persisted.
func (o *Orchestrator) Stream(ctx context.Context, query string, h StreamHandler) error {
	start := time.Now()
	defer func() { metrics.RecommendationDuration.WithLabelValues(modeStream).Observe(time.Since(start).Seconds()) }()

	// The source shares the stream's cancellation, so a failed frame write
	// also stops generation.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	next, stop := iter.Pull(o.source.ProposeStream(ctx, query))
	defer stop()

	// The first candidate is awaited before anything is written, so an empty
	// source can still fail the whole request.
	first, ok := next()
	if !ok {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		return ErrNoRecommendations
	}
	if err := h.OnInit(query); err != nil {
		return err
	}

	results := make(chan types.ResolvedItem)
	emitDone := make(chan error, 1)
	seq := &streamSequencer{}
	go func() {
		var emitErr error
		for item := range results {
			if emitErr != nil {
				continue
			}
			if seq.observe(item.Rank) {
				metrics.StreamOutOfOrder.Inc()
			}
			if emitErr = h.OnItem(types.NewRecommendation(item)); emitErr != nil {
				cancel()
			}
		}
		emitDone <- emitErr
	}()

	var g errgroup.Group
	g.SetLimit(o.opts.StreamConcurrency)

	proposed := 0
	for s := first; ctx.Err() == nil; {
		proposed++
		c := types.NewCandidate(s, proposed)
		observe(ctx, modeStream, c, Proposed)

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if item := o.resolve(ctx, c, modeStream); item != nil {
				select {
				case results <- *item:
				case <-ctx.Done():
				}
			}
			return nil
		})

		var more bool
		if s, more = next(); !more {
			break
		}
	}
	_ = g.Wait()
	close(results)
	emitErr := <-emitDone

	logging.Ctx(ctx).Info().Int("proposed", proposed).Int("emitted", seq.emitted).
		Int("out_of_order", seq.outOfOrder).Msg("recommendation stream finished")

	if emitErr != nil {
		return emitErr
	}
	return context.Cause(ctx)
}
