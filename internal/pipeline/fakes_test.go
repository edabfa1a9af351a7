package pipeline

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/pikflix/internal/types"
)

func yearPtr(y int) *int { return &y }

type fakeSource struct {
	suggestions []types.Suggestion
	// pulled counts suggestions handed out by ProposeStream.
	mu     sync.Mutex
	pulled int
}

func (f *fakeSource) Propose(context.Context, string) []types.Suggestion {
	return f.suggestions
}

func (f *fakeSource) ProposeStream(context.Context, string) iter.Seq[types.Suggestion] {
	return func(yield func(types.Suggestion) bool) {
		for _, s := range f.suggestions {
			f.mu.Lock()
			f.pulled++
			f.mu.Unlock()
			if !yield(s) {
				return
			}
		}
	}
}

// fakeCatalog matches titles case-insensitively and exactly.
type fakeCatalog struct {
	mu      sync.Mutex
	records map[string]types.Movie
	err     error
	lookups int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{records: map[string]types.Movie{}}
}

func (f *fakeCatalog) put(m types.Movie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[strings.ToLower(m.Title)] = m
}

func (f *fakeCatalog) LookupByTitle(_ context.Context, title string, _ *int) (*types.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.records[strings.ToLower(title)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// fakeMetadata resolves titles to ids and ids to records.
type fakeMetadata struct {
	mu       sync.Mutex
	ids      map[string]int
	records  map[int]types.Movie
	delays   map[int]time.Duration
	failIDs  map[int]bool
	resolves map[string]int
	fetches  map[int]int
	inFlight int
	maxSeen  int
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		ids:      map[string]int{},
		records:  map[int]types.Movie{},
		delays:   map[int]time.Duration{},
		failIDs:  map[int]bool{},
		resolves: map[string]int{},
		fetches:  map[int]int{},
	}
}

func (f *fakeMetadata) add(id int, title string) {
	f.ids[title] = id
	f.records[id] = types.Movie{ID: id, Title: title, Popularity: float64(id)}
}

func (f *fakeMetadata) ResolveID(ctx context.Context, title string, _ *int) (*int, error) {
	f.mu.Lock()
	f.resolves[title]++
	id, ok := f.ids[title]
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (f *fakeMetadata) FetchByID(ctx context.Context, id int) (*types.Movie, error) {
	f.mu.Lock()
	f.fetches[id]++
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	delay := f.delays[id]
	fail := f.failIDs[id]
	m, ok := f.records[id]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("upstream 502")
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeMetadata) totalResolves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.resolves {
		n += c
	}
	return n
}

func (f *fakeMetadata) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

// loopbackPersister writes submitted records straight into a fakeCatalog,
// stamped the way the write-back queue stamps them.
type loopbackPersister struct {
	mu        sync.Mutex
	catalog   *fakeCatalog
	submitted []types.Movie
	now       func() time.Time
}

func (p *loopbackPersister) SubmitRecords(_ context.Context, records []types.Movie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, records...)
	if p.catalog == nil {
		return
	}
	now := time.Now()
	if p.now != nil {
		now = p.now()
	}
	for _, m := range records {
		ts := now
		m.LastUpdated = &ts
		p.catalog.put(m)
	}
}

func (p *loopbackPersister) submittedIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, len(p.submitted))
	for i, m := range p.submitted {
		ids[i] = m.ID
	}
	return ids
}

type frame struct {
	kind  string
	query string
	rec   types.Recommendation
}

type recordingHandler struct {
	mu      sync.Mutex
	frames  []frame
	failOn  int // fail on the n-th item, 0 never
	itemErr error
}

func (h *recordingHandler) OnInit(query string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame{kind: "init", query: query})
	return nil
}

func (h *recordingHandler) OnItem(rec types.Recommendation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame{kind: "movie", rec: rec})
	if h.failOn > 0 && len(h.frames)-1 == h.failOn {
		return h.itemErr
	}
	return nil
}

func (h *recordingHandler) movieRanks() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ranks []int
	for _, f := range h.frames {
		if f.kind == "movie" {
			ranks = append(ranks, f.rec.Rank)
		}
	}
	return ranks
}
