package acquisition_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/store"
)

// ── Existence store ─────────────────────────────────────────────────────────

type memStore struct {
	mu   sync.Mutex
	rows map[[3]string]model.CapturedJob

	existsErr error
	insertErr error
	// failInsert makes InsertIfAbsent fail for these identities only.
	failInsert map[string]bool
	// commitDelay holds a successful insert after it committed; a context
	// cancelled meanwhile is reported like a driver would.
	commitDelay time.Duration
	// blindExists makes Exists always answer false so InsertIfAbsent has to
	// resolve duplicates, like two runs racing on the same key.
	blindExists bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[[3]string]model.CapturedJob)}
}

func (s *memStore) Exists(_ context.Context, identity, searchContext, profileIdentity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, &store.Error{Op: "exists", Err: s.existsErr}
	}
	if s.blindExists {
		return false, nil
	}
	_, ok := s.rows[[3]string{identity, searchContext, profileIdentity}]
	return ok, nil
}

func (s *memStore) InsertIfAbsent(ctx context.Context, job model.CapturedJob) (store.InsertResult, error) {
	s.mu.Lock()
	if s.insertErr != nil {
		s.mu.Unlock()
		return 0, &store.Error{Op: "insert", Err: s.insertErr}
	}
	if s.failInsert[job.Identity] {
		s.mu.Unlock()
		return 0, &store.Error{Op: "insert", Err: errors.New("connection reset")}
	}
	k := [3]string{job.Identity, job.SearchContext, job.ProfileIdentity}
	if _, ok := s.rows[k]; ok {
		s.mu.Unlock()
		return store.AlreadyExists, nil
	}
	s.rows[k] = job
	delay := s.commitDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, &store.Error{Op: "insert", Err: ctx.Err()}
		}
	}
	return store.Inserted, nil
}

func (s *memStore) seed(identity, searchContext, profileIdentity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[[3]string{identity, searchContext, profileIdentity}] = model.CapturedJob{Identity: identity}
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ── Page fetcher ────────────────────────────────────────────────────────────

var errSourceDown = errors.New("source returned 503")

type scriptedFetcher struct {
	mu    sync.Mutex
	pages map[int][]model.RawItem
	// failures is how many attempts on a page fail before it succeeds; a
	// negative value fails forever.
	failures map[int]int
	failWith error
	// onFetch runs after a successful fetch of the page.
	onFetch func(page int)
	// block makes every attempt wait for its context.
	block bool

	attempts map[int]int
	served   []int
}

func newFetcher(pages map[int][]model.RawItem) *scriptedFetcher {
	return &scriptedFetcher{
		pages:    pages,
		failures: map[int]int{},
		failWith: errSourceDown,
		attempts: map[int]int{},
	}
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, _ model.SourceConfig, page int) ([]model.RawItem, error) {
	f.mu.Lock()
	f.attempts[page]++
	attempt := f.attempts[page]
	fails := f.failures[page]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fails < 0 || attempt <= fails {
		return nil, f.failWith
	}

	f.mu.Lock()
	f.served = append(f.served, page)
	items := f.pages[page]
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(page)
	}
	return items, nil
}

func (f *scriptedFetcher) servedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.served...)
}

func (f *scriptedFetcher) attemptsFor(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[page]
}

// ── Ledger ──────────────────────────────────────────────────────────────────

type memLedger struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

func (l *memLedger) Append(_ context.Context, e model.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) all() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LedgerEntry(nil), l.entries...)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Append(ctx context.Context, e model.LedgerEntry) error {
	return m.Called(ctx, e).Error(0)
}

// ── Items ───────────────────────────────────────────────────────────────────

// items builds n raw items whose URLs are deliberately non-canonical; they
// normalize to https://www.example.com/jobs/<prefix>-<i>.
func items(prefix string, n int) []model.RawItem {
	out := make([]model.RawItem, n)
	for i := range out {
		out[i] = model.RawItem{
			URL:     fmt.Sprintf("http://example.com/jobs/%s-%d/", prefix, i),
			Title:   fmt.Sprintf("Job %s %d", prefix, i),
			Company: "Acme",
			Payload: []byte(fmt.Sprintf(`{"id":"%s-%d"}`, prefix, i)),
		}
	}
	return out
}

func canonical(prefix string, i int) string {
	return fmt.Sprintf("https://www.example.com/jobs/%s-%d", prefix, i)
}
