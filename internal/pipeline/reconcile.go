package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/types"
)

// Catalog is the read side of the catalog gateway.
type Catalog interface {
	LookupByTitle(ctx context.Context, title string, year *int) (*types.Movie, error)
}

// Reconciler decides, per candidate, whether the catalog already satisfies it.
// It is the only place that lets a candidate skip the metadata provider.
type Reconciler struct {
	catalog     Catalog
	ttl         time.Duration
	concurrency int
	now         func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(catalog Catalog, ttl time.Duration, concurrency int) *Reconciler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{catalog: catalog, ttl: ttl, concurrency: concurrency, now: time.Now}
}

// decision is the outcome for one candidate: exactly one of Item and Task is set.
type decision struct {
	State State
	Item  *types.ResolvedItem
	Task  *types.FetchTask
}

// decide looks the candidate up. A lookup failure is treated as a miss.
func (r *Reconciler) decide(ctx context.Context, c types.Candidate) decision {
	record, err := r.catalog.LookupByTitle(ctx, c.Title, c.Year)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("title", c.Title).Int("rank", c.Rank).
			Msg("catalog lookup failed, treating as miss")
		record = nil
	}

	switch {
	case record == nil:
		return decision{State: CacheMiss, Task: &types.FetchTask{Candidate: c}}
	case IsFresh(record.LastUpdated, r.ttl, r.now()):
		return decision{State: CacheFresh, Item: &types.ResolvedItem{Record: *record, Reason: c.Reason, Rank: c.Rank}}
	default:
		id := record.ID
		return decision{State: CacheStale, Task: &types.FetchTask{Candidate: c, KnownID: &id}}
	}
}

// Reconcile splits candidates into items served from the catalog and tasks
// that need a fetch. Both lists keep the candidates' arrival order.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []types.Candidate) ([]types.ResolvedItem, []types.FetchTask) {
	decisions := make([]decision, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			decisions[i] = r.decide(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var (
		fromCache []types.ResolvedItem
		toFetch   []types.FetchTask
	)
	for _, d := range decisions {
		if d.Item != nil {
			fromCache = append(fromCache, *d.Item)
		} else {
			toFetch = append(toFetch, *d.Task)
		}
	}
	return fromCache, toFetch
}
