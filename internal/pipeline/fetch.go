package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/types"
)

// Metadata is the part of the metadata gateway the pipeline uses.
type Metadata interface {
	ResolveID(ctx context.Context, title string, year *int) (*int, error)
	FetchByID(ctx context.Context, id int) (*types.Movie, error)
}

// errNoMatch reports that the provider has nothing for a task.
var errNoMatch = errors.New("no match")

// Coordinator runs fetch tasks against the metadata gateway. Tasks are
// independent: one failing never stops the others.
type Coordinator struct {
	metadata    Metadata
	concurrency int
}

// NewCoordinator creates a Coordinator running at most concurrency tasks at once.
func NewCoordinator(metadata Metadata, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{metadata: metadata, concurrency: concurrency}
}

// FetchAll resolves every task it can and returns the results in task order.
// Tasks not yet started when ctx is done are skipped.
func (c *Coordinator) FetchAll(ctx context.Context, tasks []types.FetchTask) []types.ResolvedItem {
	results := make([]*types.ResolvedItem, len(tasks))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			item, err := c.fetchOne(ctx, task)
			if err != nil {
				logUnresolved(ctx, task, err)
				return nil
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.ResolvedItem, 0, len(tasks))
	for _, item := range results {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

// fetchOne resolves a single task. A task with a known id skips the search.
// Every failure, including "not found", comes back as an error.
func (c *Coordinator) fetchOne(ctx context.Context, task types.FetchTask) (*types.ResolvedItem, error) {
	id := task.KnownID
	if id == nil {
		resolved, err := c.metadata.ResolveID(ctx, task.Title, task.Year)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", task.Title, err)
		}
		if resolved == nil {
			return nil, fmt.Errorf("resolve %q: %w", task.Title, errNoMatch)
		}
		id = resolved
	}

	record, err := c.metadata.FetchByID(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("fetch %d: %w", *id, err)
	}
	if record == nil {
		return nil, fmt.Errorf("fetch %d: %w", *id, errNoMatch)
	}
	if record.ID == 0 || record.Title == "" {
		return nil, fmt.Errorf("fetch %d: record missing id or title", *id)
	}

	return &types.ResolvedItem{Record: *record, Reason: task.Reason, Rank: task.Rank}, nil
}

func logUnresolved(ctx context.Context, task types.FetchTask, err error) {
	ev := logging.Ctx(ctx).Info()
	if !errors.Is(err, errNoMatch) {
		ev = logging.Ctx(ctx).Warn()
	}
	ev.Err(err).Str("title", task.Title).Int("rank", task.Rank).Bool("stale", task.KnownID != nil).
		Msg("candidate unresolved")
}
