package acquisition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"jobmate/acquisition-service/internal/acquisition"
	"jobmate/acquisition-service/internal/identity"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/store"
)

const (
	searchCtx = "go developer @ paris"
	profile1  = "fp-1111"
	profile2  = "fp-2222"
)

var fastOpts = acquisition.Options{
	MaxAttempts: 3,
	BaseBackoff: time.Millisecond,
	MaxBackoff:  2 * time.Millisecond,
	PageTimeout: time.Second,
	Concurrency: 4,
}

func newController(f acquisition.PageFetcher, s acquisition.ExistenceStore, l acquisition.Ledger) *acquisition.Controller {
	return acquisition.NewController(f, s, l, identity.NewNormalizer(identity.DefaultRules()), fastOpts, nil)
}

func request(profile string, maxPages int) acquisition.RunRequest {
	return acquisition.RunRequest{
		SearchContext:   searchCtx,
		ProfileIdentity: profile,
		Source:          model.SourceConfig{Name: "test", Query: "go developer", Location: "paris"},
		MaxPages:        maxPages,
	}
}

// ── Scenarios ───────────────────────────────────────────────────────────────

func TestRun_ScenarioA_StopsOnAllDuplicatePage(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 10; i++ {
		st.seed(canonical("c", i), searchCtx, profile1)
	}
	f := newFetcher(map[int][]model.RawItem{
		1: items("a", 10),
		2: items("b", 10),
		3: items("c", 10),
		4: items("d", 10),
	})
	l := &memLedger{}

	res, err := newController(f, st, l).Run(context.Background(), request(profile1, 10))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopEarlyExit, res.StoppedReason)
	assert.Equal(t, 3, res.CompletedPages)
	assert.Len(t, res.NewItems, 20)
	assert.Equal(t, 10, res.DuplicateCount)
	assert.Equal(t, []int{1, 2, 3}, f.servedPages(), "page 4 must not be fetched")

	entries := l.all()
	require.Len(t, entries, 3)
	assert.Equal(t, 10, entries[0].NewCount)
	assert.Equal(t, 10, entries[2].DuplicateCount)
	assert.Equal(t, "EARLY_EXIT", entries[2].StopReason)
	assert.Empty(t, entries[0].StopReason)
	for _, e := range entries {
		assert.Equal(t, res.RunID, e.RunID)
		assert.Equal(t, model.PageOK, e.Outcome)
	}
}

func TestRun_ScenarioB_MixedPageContinues(t *testing.T) {
	st := newMemStore()
	page1 := append(items("new", 5), items("old", 5)...)
	for i := 0; i < 5; i++ {
		st.seed(canonical("old", i), searchCtx, profile1)
	}
	f := newFetcher(map[int][]model.RawItem{1: page1, 2: {}})

	res, err := newController(f, st, &memLedger{}).Run(context.Background(), request(profile1, 10))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, f.servedPages())
	assert.Equal(t, acquisition.StopExhausted, res.StoppedReason)
	assert.Len(t, res.NewItems, 5)
	assert.Equal(t, 5, res.DuplicateCount)
}

func TestRun_ScenarioC_SecondRunStopsAtFirstPage(t *testing.T) {
	st := newMemStore()
	pages := map[int][]model.RawItem{1: items("a", 10), 2: items("b", 10), 3: {}}
	c := newController(newFetcher(pages), st, &memLedger{})

	first, err := c.Run(context.Background(), request(profile1, 10))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopExhausted, first.StoppedReason)
	assert.Len(t, first.NewItems, 20)

	f := newFetcher(pages)
	second, err := newController(f, st, &memLedger{}).Run(context.Background(), request(profile1, 10))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopEarlyExit, second.StoppedReason)
	assert.Equal(t, 1, second.CompletedPages)
	assert.Empty(t, second.NewItems)
	assert.Equal(t, []int{1}, f.servedPages())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_ScenarioD_NewProfileSeesEverythingAgain(t *testing.T) {
	st := newMemStore()
	pages := map[int][]model.RawItem{1: items("a", 10), 2: {}}

	old, err := newController(newFetcher(pages), st, nil).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	require.Len(t, old.NewItems, 10)

	fresh, err := newController(newFetcher(pages), st, nil).Run(context.Background(), request(profile2, 5))
	require.NoError(t, err)
	assert.Len(t, fresh.NewItems, 10)
	for _, j := range fresh.NewItems {
		assert.Equal(t, profile2, j.ProfileIdentity)
	}
	assert.Equal(t, 20, st.len())
}

// ── Decision rule ───────────────────────────────────────────────────────────

func TestRun_EmptyFirstPageIsExhaustion(t *testing.T) {
	l := &memLedger{}
	res, err := newController(newFetcher(map[int][]model.RawItem{}), newMemStore(), l).
		Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopExhausted, res.StoppedReason)
	assert.Equal(t, 1, res.CompletedPages)
	require.Len(t, l.all(), 1)
	assert.Equal(t, 0, l.all()[0].ItemsSeen)
	assert.Equal(t, "EXHAUSTED", l.all()[0].StopReason)
}

func TestRun_StopsAtMaxPages(t *testing.T) {
	f := newFetcher(map[int][]model.RawItem{1: items("a", 3), 2: items("b", 3), 3: items("c", 3)})
	res, err := newController(f, newMemStore(), nil).Run(context.Background(), request(profile1, 2))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopMaxPages, res.StoppedReason)
	assert.Equal(t, []int{1, 2}, f.servedPages())
	assert.Len(t, res.NewItems, 6)
}

func TestRun_EarlyExitWinsOnLastPage(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 3; i++ {
		st.seed(canonical("b", i), searchCtx, profile1)
	}
	f := newFetcher(map[int][]model.RawItem{1: items("a", 3), 2: items("b", 3)})
	res, err := newController(f, st, nil).Run(context.Background(), request(profile1, 2))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopEarlyExit, res.StoppedReason)
}

func TestRun_InvalidItemsAreSkipped(t *testing.T) {
	page1 := append(items("a", 2),
		model.RawItem{URL: ""},
		model.RawItem{URL: "http://exa mple.com/job"},
		model.RawItem{URL: "https://www.example.com/jobs/bad", Payload: []byte("{not json")},
	)
	// An all-invalid page carries no evidence either way, so the run goes on.
	page2 := []model.RawItem{{URL: "https://"}, {URL: "   "}}
	l := &memLedger{}
	f := newFetcher(map[int][]model.RawItem{1: page1, 2: page2, 3: items("c", 1)})

	res, err := newController(f, newMemStore(), l).Run(context.Background(), request(profile1, 3))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopMaxPages, res.StoppedReason)
	assert.Len(t, res.NewItems, 3)
	assert.Equal(t, 5, res.InvalidCount)
	entries := l.all()
	require.Len(t, entries, 3)
	assert.Equal(t, 3, entries[0].InvalidCount)
	assert.Equal(t, 2, entries[1].InvalidCount)
	assert.Equal(t, 0, entries[1].NewCount+entries[1].DuplicateCount)
}

func TestRun_AlreadyExistsCountsAsDuplicate(t *testing.T) {
	st := newMemStore()
	st.blindExists = true
	for i := 0; i < 4; i++ {
		st.seed(canonical("a", i), searchCtx, profile1)
	}
	f := newFetcher(map[int][]model.RawItem{1: items("a", 4), 2: items("b", 4)})

	res, err := newController(f, st, nil).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopEarlyExit, res.StoppedReason)
	assert.Equal(t, 4, res.DuplicateCount)
	assert.Empty(t, res.NewItems)
}

func TestRun_DuplicateURLsWithinOnePage(t *testing.T) {
	page := []model.RawItem{
		{URL: "http://example.com/jobs/x/"},
		{URL: "https://www.example.com/jobs/x?utm_source=feed"},
	}
	res, err := newController(newFetcher(map[int][]model.RawItem{1: page}), newMemStore(), nil).
		Run(context.Background(), request(profile1, 1))
	require.NoError(t, err)
	assert.Len(t, res.NewItems, 1)
	assert.Equal(t, 1, res.DuplicateCount)
}

func TestRun_NewItemsKeepPageOrder(t *testing.T) {
	f := newFetcher(map[int][]model.RawItem{1: items("a", 25), 2: items("b", 25)})
	res, err := newController(f, newMemStore(), nil).Run(context.Background(), request(profile1, 2))
	require.NoError(t, err)
	require.Len(t, res.NewItems, 50)
	assert.Equal(t, canonical("a", 0), res.NewItems[0].Identity)
	assert.Equal(t, canonical("a", 24), res.NewItems[24].Identity)
	assert.Equal(t, canonical("b", 0), res.NewItems[25].Identity)
	assert.Equal(t, canonical("b", 24), res.NewItems[49].Identity)
}

// ── Fetch failures ──────────────────────────────────────────────────────────

func TestRun_RetriesTransientFetchErrors(t *testing.T) {
	f := newFetcher(map[int][]model.RawItem{1: items("a", 2), 2: {}})
	f.failures[1] = 2

	res, err := newController(f, newMemStore(), nil).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, f.attemptsFor(1))
	assert.Equal(t, acquisition.StopExhausted, res.StoppedReason)
	assert.Len(t, res.NewItems, 2)
}

func TestRun_FetchFailureStopsAndIsRecorded(t *testing.T) {
	f := newFetcher(map[int][]model.RawItem{1: items("a", 2), 3: items("c", 2)})
	f.failures[2] = -1
	l := &memLedger{}

	res, err := newController(f, newMemStore(), l).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopFetchFailure, res.StoppedReason)
	assert.ErrorIs(t, res.Err, errSourceDown)
	assert.Equal(t, 1, res.CompletedPages)
	assert.Len(t, res.NewItems, 2)
	assert.Equal(t, fastOpts.MaxAttempts, f.attemptsFor(2))
	assert.Zero(t, f.attemptsFor(3), "must not skip past an unknown page")

	entries := l.all()
	require.Len(t, entries, 2)
	assert.Equal(t, model.PageFetchFailed, entries[1].Outcome)
	assert.Equal(t, 2, entries[1].PageNumber)
	assert.Equal(t, "FETCH_FAILURE", entries[1].StopReason)
}

func TestRun_PermanentFetchErrorIsNotRetried(t *testing.T) {
	f := newFetcher(nil)
	f.failures[1] = -1
	f.failWith = backoff.Permanent(errors.New("401 unauthorized"))

	res, err := newController(f, newMemStore(), nil).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopFetchFailure, res.StoppedReason)
	assert.Equal(t, 1, f.attemptsFor(1))
}

func TestRun_FetchTimeoutIsFetchFailure(t *testing.T) {
	f := newFetcher(nil)
	f.block = true
	opts := fastOpts
	opts.PageTimeout = 20 * time.Millisecond
	opts.MaxAttempts = 2
	c := acquisition.NewController(f, newMemStore(), nil, identity.NewNormalizer(identity.DefaultRules()), opts, nil)

	res, err := c.Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopFetchFailure, res.StoppedReason)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, 2, f.attemptsFor(1))
}

// ── Store failures ──────────────────────────────────────────────────────────

func TestRun_StoreFailureAbortsRun(t *testing.T) {
	st := newMemStore()
	st.existsErr = errors.New("connection reset")
	l := &memLedger{}
	f := newFetcher(map[int][]model.RawItem{1: items("a", 3), 2: items("b", 3)})

	res, err := newController(f, st, l).Run(context.Background(), request(profile1, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, acquisition.StopStoreFailure, res.StoppedReason)
	assert.Equal(t, 0, res.CompletedPages)
	assert.Empty(t, l.all(), "a partially classified page is never recorded")
	assert.Equal(t, []int{1}, f.servedPages())
}

func TestRun_InsertFailureAbortsRun(t *testing.T) {
	st := newMemStore()
	st.insertErr = errors.New("disk full")
	f := newFetcher(map[int][]model.RawItem{1: items("a", 3)})

	res, err := newController(f, st, nil).Run(context.Background(), request(profile1, 5))
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, acquisition.StopStoreFailure, res.StoppedReason)
}

func TestRun_StoreFailureKeepsSiblingInserts(t *testing.T) {
	st := newMemStore()
	st.failInsert = map[string]bool{canonical("a", 0): true}
	st.commitDelay = 20 * time.Millisecond
	f := newFetcher(map[int][]model.RawItem{1: items("a", 4)})

	res, err := newController(f, st, nil).Run(context.Background(), request(profile1, 5))
	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, acquisition.StopStoreFailure, res.StoppedReason)

	require.Equal(t, 3, st.len())
	var got []string
	for _, j := range res.NewItems {
		got = append(got, j.Identity)
	}
	assert.Equal(t, []string{canonical("a", 1), canonical("a", 2), canonical("a", 3)}, got,
		"every committed insert is handed downstream")
}

// ── Cancellation & ledger ───────────────────────────────────────────────────

func TestRun_CancelHonoredAfterPageCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFetcher(map[int][]model.RawItem{1: items("a", 5), 2: items("b", 5)})
	f.onFetch = func(page int) {
		if page == 1 {
			cancel()
		}
	}
	l := &memLedger{}

	res, err := newController(f, newMemStore(), l).Run(ctx, request(profile1, 5))
	require.NoError(t, err)

	assert.Equal(t, acquisition.StopCanceled, res.StoppedReason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.CompletedPages)
	assert.Len(t, res.NewItems, 5)
	assert.Equal(t, []int{1}, f.servedPages())
	require.Len(t, l.all(), 1)
	assert.Equal(t, 5, l.all()[0].NewCount)
}

func TestRun_LedgerFailureDoesNotFailRun(t *testing.T) {
	l := &mockLedger{}
	l.On("Append", mock.Anything, mock.Anything).Return(errors.New("ledger down"))
	f := newFetcher(map[int][]model.RawItem{1: items("a", 2), 2: {}})

	res, err := newController(f, newMemStore(), l).Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopExhausted, res.StoppedReason)
	assert.Len(t, res.NewItems, 2)
	l.AssertNumberOfCalls(t, "Append", 2)
	l.AssertCalled(t, "Append", mock.Anything, mock.MatchedBy(func(e model.LedgerEntry) bool {
		return e.PageNumber == 2 && e.StopReason == "EXHAUSTED"
	}))
}

func TestRun_LedgerWriteIsBoundedByController(t *testing.T) {
	l := &mockLedger{}
	l.On("Append", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil)
	opts := fastOpts
	opts.LedgerTimeout = 50 * time.Millisecond
	f := newFetcher(map[int][]model.RawItem{1: items("a", 2), 2: {}})
	c := acquisition.NewController(f, newMemStore(), l, identity.NewNormalizer(identity.DefaultRules()), opts, nil)

	res, err := c.Run(context.Background(), request(profile1, 5))
	require.NoError(t, err)
	assert.Equal(t, acquisition.StopExhausted, res.StoppedReason)
	l.AssertNumberOfCalls(t, "Append", 2)
}

// ── Requests & lookups ──────────────────────────────────────────────────────

func TestRun_RejectsInvalidRequests(t *testing.T) {
	c := newController(newFetcher(nil), newMemStore(), nil)
	ctx := context.Background()

	_, err := c.Run(ctx, acquisition.RunRequest{ProfileIdentity: profile1, MaxPages: 1})
	assert.ErrorIs(t, err, acquisition.ErrInvalidRequest)

	_, err = c.Run(ctx, acquisition.RunRequest{SearchContext: searchCtx, MaxPages: 1})
	assert.ErrorIs(t, err, acquisition.ErrInvalidRequest)

	_, err = c.Run(ctx, request(profile1, 0))
	assert.ErrorIs(t, err, acquisition.ErrInvalidRequest)
}

func TestRun_DefaultsSearchContextFromSource(t *testing.T) {
	req := request(profile1, 1)
	req.SearchContext = ""
	req.Source = model.SourceConfig{Query: "  Go Developer ", Location: "Paris"}

	res, err := newController(newFetcher(map[int][]model.RawItem{1: items("a", 1)}), newMemStore(), nil).
		Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "go developer @ paris", res.SearchContext)
	assert.Equal(t, "go developer @ paris", res.NewItems[0].SearchContext)
}

func TestExistsForContext(t *testing.T) {
	st := newMemStore()
	f := newFetcher(map[int][]model.RawItem{1: items("a", 1)})
	c := newController(f, st, nil)
	ctx := context.Background()

	_, err := c.Run(ctx, request(profile1, 1))
	require.NoError(t, err)

	for _, u := range []string{
		"http://example.com/jobs/a-0/",
		"https://www.example.com/jobs/a-0",
		"example.com/jobs/a-0?utm_campaign=x",
	} {
		ok, err := c.ExistsForContext(ctx, u, searchCtx, profile1)
		require.NoError(t, err)
		assert.True(t, ok, u)
	}

	ok, err := c.ExistsForContext(ctx, "https://www.example.com/jobs/a-0", searchCtx, profile2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.ExistsForContext(ctx, "", searchCtx, profile1)
	assert.ErrorIs(t, err, identity.ErrNormalization)
}
