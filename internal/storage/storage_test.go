package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *SQLStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func classified(id, community string, class domain.Classification, age time.Duration) domain.ClassifiedPost {
	return domain.ClassifiedPost{
		Post: domain.Post{
			ID:           id,
			Title:        "title " + id,
			Author:       "author_" + community,
			Community:    community,
			Score:        10,
			CommentCount: 2,
			CreatedAt:    epoch.Add(-age),
			Permalink:    "https://www.reddit.com/r/" + community + "/comments/" + id,
			URL:          "https://example.com/" + id,
		},
		Classification: class,
		Signals:        []domain.Signal{},
		CollectedAt:    epoch,
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStorage{dialect: dialectPostgres}
	lite := &SQLStorage{dialect: dialectSQLite}
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestNewStorage_UnknownType(t *testing.T) {
	_, err := NewStorage(Config{Type: "cassandra"})
	assert.Error(t, err)
}

func TestNewStorage_PostgresNeedsURI(t *testing.T) {
	_, err := NewStorage(Config{Type: TypePostgres})
	assert.Error(t, err)
}

func TestUpsertPost_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	p := classified("abc", "deals", domain.ClassificationContentPromotional, time.Hour)
	p.Body = strPtr("20% off today")
	p.Flair = strPtr("Deal")
	p.Pinned = true
	p.Distinguished = domain.DistinguishedModerator
	p.NSFW = true
	p.Signals = []domain.Signal{"promo_keywords", "price_pattern"}
	require.NoError(t, s.UpsertPost(ctx, p))

	got, err := s.GetPost(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	require.NotNil(t, got.Body)
	assert.Equal(t, "20% off today", *got.Body)
	require.NotNil(t, got.Flair)
	assert.Equal(t, "Deal", *got.Flair)
	assert.True(t, got.Pinned)
	assert.True(t, got.NSFW)
	assert.False(t, got.PlatformPromoted)
	assert.Equal(t, domain.DistinguishedModerator, got.Distinguished)
	assert.Equal(t, p.Signals, got.Signals)
	assert.Equal(t, domain.ClassificationContentPromotional, got.Classification)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, p.CollectedAt.Equal(got.CollectedAt))
}

func TestUpsertPost_NullOptionalFields(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPost(ctx, classified("plain", "golang", domain.ClassificationNone, time.Hour)))
	got, err := s.GetPost(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, got.Body)
	assert.Nil(t, got.Flair)
	assert.Equal(t, domain.DistinguishedNone, got.Distinguished)
}

func TestUpsertPost_Overwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	p := classified("abc", "deals", domain.ClassificationNone, time.Hour)
	require.NoError(t, s.UpsertPost(ctx, p))
	p.Score = 999
	p.Classification = domain.ClassificationPlatformPromoted
	require.NoError(t, s.UpsertPost(ctx, p))

	got, err := s.GetPost(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 999, got.Score)
	assert.Equal(t, domain.ClassificationPlatformPromoted, got.Classification)

	all, err := s.QueryPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetPost_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertPosts_Batch(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var batch []domain.ClassifiedPost
	for i := 0; i < 25; i++ {
		batch = append(batch, classified(fmt.Sprintf("p%02d", i), "deals", domain.ClassificationNone, time.Duration(i)*time.Minute))
	}
	require.NoError(t, s.UpsertPosts(ctx, batch))
	require.NoError(t, s.UpsertPosts(ctx, nil))

	all, err := s.QueryPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 25)
}

func TestUpsertPosts_RollsBackOnCancel(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.UpsertPosts(ctx, []domain.ClassifiedPost{classified("x", "deals", domain.ClassificationNone, 0)})
	assert.Error(t, err)

	all, err := s.QueryPosts(context.Background(), PostFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestQueryPosts_Filters(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertPosts(ctx, []domain.ClassifiedPost{
		classified("a", "Deals", domain.ClassificationContentPromotional, 1*time.Hour),
		classified("b", "deals", domain.ClassificationNone, 2*time.Hour),
		classified("c", "golang", domain.ClassificationPlatformPromoted, 3*time.Hour),
		classified("d", "golang", domain.ClassificationNone, 48*time.Hour),
	}))

	byCommunity, err := s.QueryPosts(ctx, PostFilter{Community: "DEALS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, postIDs(byCommunity))

	byClass, err := s.QueryPosts(ctx, PostFilter{Classification: domain.ClassificationNone})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, postIDs(byClass))

	since := epoch.Add(-24 * time.Hour)
	recent, err := s.QueryPosts(ctx, PostFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, postIDs(recent))

	until := epoch.Add(-2 * time.Hour)
	older, err := s.QueryPosts(ctx, PostFilter{Until: &until})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, postIDs(older))

	page, err := s.QueryPosts(ctx, PostFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, postIDs(page))
}

func TestSearchHistory_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	req := domain.SearchRequest{Keywords: []string{"deal"}, Communities: []string{"deals"}, Limit: 10, Sort: domain.SortNew}
	rec := &domain.SearchHistoryRecord{ID: "h1", Request: req, Status: domain.SearchInProgress, CreatedAt: epoch}
	require.NoError(t, s.RecordSearchHistory(ctx, rec))

	got, err := s.GetSearchHistory(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.SearchInProgress, got.Status)
	assert.Equal(t, req, got.Request)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.CompleteSearchHistory(ctx, "h1", domain.SearchCompleted, 7, ""))
	got, err = s.GetSearchHistory(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.SearchCompleted, got.Status)
	assert.Equal(t, 7, got.ResultCount)
	assert.NotNil(t, got.CompletedAt)

	err = s.CompleteSearchHistory(ctx, "h1", domain.SearchFailed, 0, "late")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetSearchHistory(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSearchHistory_NewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordSearchHistory(ctx, &domain.SearchHistoryRecord{
			ID:        fmt.Sprintf("h%d", i),
			Request:   domain.SearchRequest{Keywords: []string{"x"}},
			CreatedAt: epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := s.ListSearchHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "h4", recs[0].ID)
	assert.Equal(t, "h2", recs[2].ID)
	assert.Equal(t, domain.SearchInProgress, recs[0].Status)
}

func TestStats(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalPosts)
	assert.Equal(t, 0.0, empty.StdDevResultsPerSearch)
	assert.Empty(t, empty.TopCommunities)

	require.NoError(t, s.UpsertPosts(ctx, []domain.ClassifiedPost{
		classified("a", "deals", domain.ClassificationContentPromotional, time.Hour),
		classified("b", "deals", domain.ClassificationPlatformPromoted, time.Hour),
		classified("c", "golang", domain.ClassificationNone, time.Hour),
	}))
	for i, n := range []int{2, 4, 6} {
		id := fmt.Sprintf("h%d", i)
		require.NoError(t, s.RecordSearchHistory(ctx, &domain.SearchHistoryRecord{ID: id, CreatedAt: epoch}))
		require.NoError(t, s.CompleteSearchHistory(ctx, id, domain.SearchCompleted, n, ""))
	}
	require.NoError(t, s.RecordSearchHistory(ctx, &domain.SearchHistoryRecord{ID: "bad", CreatedAt: epoch}))
	require.NoError(t, s.CompleteSearchHistory(ctx, "bad", domain.SearchFailed, 0, "boom"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalPosts)
	assert.Equal(t, 2, st.UniqueCommunities)
	assert.Equal(t, 2, st.UniqueAuthors)
	assert.Equal(t, 1, st.ByClassification[domain.ClassificationContentPromotional])
	assert.Equal(t, 1, st.ByClassification[domain.ClassificationPlatformPromoted])
	assert.Equal(t, 1, st.ByClassification[domain.ClassificationNone])
	assert.Equal(t, 4, st.TotalSearches)
	assert.Equal(t, 3, st.CompletedSearches)
	assert.Equal(t, 1, st.FailedSearches)
	assert.InDelta(t, 4.0, st.AvgResultsPerSearch, 1e-9)
	assert.InDelta(t, 2.0, st.StdDevResultsPerSearch, 1e-9)
	assert.Equal(t, []CommunityCount{{"deals", 2}, {"golang", 1}}, st.TopCommunities)
}

func TestPostgresStorage(t *testing.T) {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		t.Skip("POSTGRES_URI not set")
	}
	s, err := NewPostgresStorage(uri)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	id := fmt.Sprintf("pgtest_%d", time.Now().UnixNano())
	require.NoError(t, s.UpsertPosts(ctx, []domain.ClassifiedPost{classified(id, "deals", domain.ClassificationNone, time.Hour)}))
	got, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func postIDs(posts []domain.ClassifiedPost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
