package mediasource

import (
	"context"
	"testing"
	"time"

	"tunefetch/internal/cache"
	"tunefetch/internal/domain"
)

func TestCachedSearcherServesRepeatQueriesFromStore(t *testing.T) {
	inner := &fakeSearcher{results: []domain.Candidate{{SourceID: "a", Title: "A", Rank: 1}}}
	cs := NewCachedSearcher("ytmusic", inner, cache.NewMemoryStore(), time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cands, err := cs.Search(ctx, "q", 5)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(cands) != 1 || cands[0].SourceID != "a" {
			t.Fatalf("unexpected candidates %+v", cands)
		}
	}
	if len(inner.queries) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(inner.queries))
	}
}

func TestCachedSearcherSkipsEmptyResults(t *testing.T) {
	inner := &fakeSearcher{}
	cs := NewCachedSearcher("ytdlp", inner, cache.NewMemoryStore(), time.Minute, nil)
	ctx := context.Background()

	_, _ = cs.Search(ctx, "q", 5)
	_, _ = cs.Search(ctx, "q", 5)
	if len(inner.queries) != 2 {
		t.Fatalf("expected empty results to bypass cache, got %d calls", len(inner.queries))
	}
}
