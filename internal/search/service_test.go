package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/testutil"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	return NewService(opts, testutil.TestLogger(t))
}

func adapters(sources ...*testutil.FakeSource) map[books.Platform]books.Source {
	m := make(map[books.Platform]books.Source, len(sources))
	for _, s := range sources {
		m[s.PlatformName] = s
	}
	return m
}

func TestSearchMergesAllPlatforms(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "alpha", testutil.ScoreOf(2)),
		}, nil
	}
	b := testutil.NewFakeSource(books.PlatformLiber3)
	b.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformLiber3, "beta", nil),
		}, nil
	}

	svc := newService(t, Options{})
	results, err := svc.Search(context.Background(), adapters(a, b), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if a.SearchCalls.Load() != 1 || b.SearchCalls.Load() != 1 {
		t.Errorf("expected each adapter searched once")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newService(t, Options{})
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)

	_, err := svc.Search(context.Background(), adapters(a), "   ", 10)
	if !errors.Is(err, books.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if a.SearchCalls.Load() != 0 {
		t.Errorf("empty query must not reach adapters")
	}
}

func TestSearchNoPlatforms(t *testing.T) {
	svc := newService(t, Options{})
	_, err := svc.Search(context.Background(), nil, "golang", 10)
	if !errors.Is(err, books.ErrNoPlatforms) {
		t.Fatalf("expected ErrNoPlatforms, got %v", err)
	}
}

func TestSearchPartialFailure(t *testing.T) {
	good := testutil.NewFakeSource(books.PlatformArchiveOrg)
	good.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "alpha", nil),
		}, nil
	}
	bad := testutil.NewFakeSource(books.PlatformZLibrary)
	bad.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return nil, books.ErrNetwork
	}

	svc := newService(t, Options{})
	results, err := svc.Search(context.Background(), adapters(good, bad), "golang", 10)
	if err != nil {
		t.Fatalf("partial failure must not error the whole search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the surviving platform's result, got %d", len(results))
	}
}

func TestSearchTotalFailure(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return nil, books.ErrNetwork
	}
	b := testutil.NewFakeSource(books.PlatformZLibrary)
	b.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return nil, books.ErrAuthRejected
	}

	svc := newService(t, Options{})
	_, err := svc.Search(context.Background(), adapters(a, b), "golang", 10)

	var agg *books.AggregateSearchError
	if !errors.As(err, &agg) {
		t.Fatalf("expected AggregateSearchError, got %v", err)
	}
	if len(agg.Failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(agg.Failures))
	}
	if !errors.Is(err, books.ErrNetwork) || !errors.Is(err, books.ErrAuthRejected) {
		t.Errorf("aggregate must unwrap to its member errors")
	}
}

func TestSearchScoreOrdering(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "low", testutil.ScoreOf(1)),
			testutil.Result(books.PlatformArchiveOrg, "high", testutil.ScoreOf(9)),
			testutil.Result(books.PlatformArchiveOrg, "unscored", nil),
		}, nil
	}

	svc := newService(t, Options{})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	titles := make([]string, len(results))
	for i, r := range results {
		titles[i] = r.Book.Title
	}
	want := []string{"high", "low", "unscored"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, titles)
		}
	}
}

func TestSearchStableForEqualScores(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "first", testutil.ScoreOf(5)),
			testutil.Result(books.PlatformArchiveOrg, "second", testutil.ScoreOf(5)),
		}, nil
	}

	svc := newService(t, Options{})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if results[0].Book.Title != "first" || results[1].Book.Title != "second" {
		t.Errorf("equal scores must keep arrival order")
	}
}

func TestSearchLimitTruncation(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		var out []books.SearchResult
		for _, title := range []string{"a", "b", "c", "d", "e"} {
			out = append(out, testutil.Result(books.PlatformArchiveOrg, title, nil))
		}
		return out, nil
	}

	svc := newService(t, Options{MaxResults: 10})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 3)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected truncation to 3, got %d", len(results))
	}
}

func TestSearchMaxResultsCapsLimit(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		var out []books.SearchResult
		for _, title := range []string{"a", "b", "c", "d", "e"} {
			out = append(out, testutil.Result(books.PlatformArchiveOrg, title, nil))
		}
		return out, nil
	}

	svc := newService(t, Options{MaxResults: 2})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 100)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("configured max must cap the caller limit, got %d", len(results))
	}
}

func TestSearchDropsForeignPlatformResults(t *testing.T) {
	// A buggy adapter claiming another platform's results must not leak.
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "mine", nil),
			testutil.Result(books.PlatformZLibrary, "impostor", nil),
		}, nil
	}

	svc := newService(t, Options{})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 1 || results[0].Book.Title != "mine" {
		t.Fatalf("expected foreign results dropped, got %+v", results)
	}
}

func TestSearchDedupe(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "dup", nil),
			testutil.Result(books.PlatformArchiveOrg, "dup", nil),
			testutil.Result(books.PlatformArchiveOrg, "unique", nil),
		}, nil
	}

	svc := newService(t, Options{Dedupe: true})
	results, err := svc.Search(context.Background(), adapters(a), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected exact duplicates removed, got %d results", len(results))
	}
}

func TestSearchContextCancellation(t *testing.T) {
	a := testutil.NewFakeSource(books.PlatformArchiveOrg)
	a.SearchFunc = func(ctx context.Context, _ string, _ int) ([]books.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	svc := newService(t, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Search(ctx, adapters(a), "golang", 10)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Search did not return after context cancellation")
	}
}

func TestSearchCancellationDiscardsPartialResults(t *testing.T) {
	fast := testutil.NewFakeSource(books.PlatformArchiveOrg)
	fast.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{
			testutil.Result(books.PlatformArchiveOrg, "already-arrived", nil),
		}, nil
	}
	slowReturned := make(chan struct{})
	slow := testutil.NewFakeSource(books.PlatformZLibrary)
	slow.SearchFunc = func(ctx context.Context, _ string, _ int) ([]books.SearchResult, error) {
		defer close(slowReturned)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	svc := newService(t, Options{})
	results, err := svc.Search(ctx, adapters(fast, slow), "golang", 10)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("cancelled search must discard results that arrived before the cancel, got %d", len(results))
	}

	// The slow adapter's call must have been aborted, not abandoned.
	select {
	case <-slowReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight adapter call still running after cancellation")
	}
	if fast.SearchCalls.Load() != 1 || slow.SearchCalls.Load() != 1 {
		t.Errorf("expected each adapter dispatched exactly once")
	}
}

type fakeHealth struct {
	disabled  map[books.Platform]bool
	successes []books.Platform
	failures  []books.Platform
}

func (f *fakeHealth) IsDisabled(p books.Platform) (bool, *time.Time) {
	if f.disabled[p] {
		till := time.Now().Add(time.Minute)
		return true, &till
	}
	return false, nil
}
func (f *fakeHealth) RecordSuccess(p books.Platform)          { f.successes = append(f.successes, p) }
func (f *fakeHealth) RecordFailure(p books.Platform, _ error) { f.failures = append(f.failures, p) }

func TestSearchSkipsDisabledPlatforms(t *testing.T) {
	healthy := testutil.NewFakeSource(books.PlatformArchiveOrg)
	healthy.SearchFunc = func(context.Context, string, int) ([]books.SearchResult, error) {
		return []books.SearchResult{testutil.Result(books.PlatformArchiveOrg, "alpha", nil)}, nil
	}
	benched := testutil.NewFakeSource(books.PlatformZLibrary)

	svc := newService(t, Options{})
	svc.SetHealthChecker(&fakeHealth{disabled: map[books.Platform]bool{books.PlatformZLibrary: true}})

	results, err := svc.Search(context.Background(), adapters(healthy, benched), "golang", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if benched.SearchCalls.Load() != 0 {
		t.Errorf("benched platform must not be queried")
	}
}
