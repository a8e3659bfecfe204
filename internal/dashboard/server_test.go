package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

type fakeSource struct {
	stats *storage.Stats
	posts []domain.ClassifiedPost
	err   error
}

func (f *fakeSource) QueryPosts(context.Context, storage.PostFilter) ([]domain.ClassifiedPost, error) {
	return f.posts, f.err
}

func (f *fakeSource) Stats(context.Context) (*storage.Stats, error) {
	return f.stats, f.err
}

func TestSignalCounts(t *testing.T) {
	posts := []domain.ClassifiedPost{
		{Signals: []domain.Signal{"price_pattern", "promo_keywords"}},
		{Signals: []domain.Signal{"promo_keywords"}},
		{Signals: []domain.Signal{"admin_distinguished"}},
	}
	got := signalCounts(posts)
	assert.Equal(t, []signalCount{
		{"promo_keywords", 2},
		{"admin_distinguished", 1},
		{"price_pattern", 1},
	}, got)
}

func TestHandler_RendersCharts(t *testing.T) {
	src := &fakeSource{
		stats: &storage.Stats{
			ByClassification: map[domain.Classification]int{domain.ClassificationPlatformPromoted: 3},
			TopCommunities:   []storage.CommunityCount{{Community: "deals", Posts: 3}},
		},
		posts: []domain.ClassifiedPost{{Signals: []domain.Signal{"admin_distinguished"}}},
	}
	logger, _ := test.NewNullLogger()

	rec := httptest.NewRecorder()
	Handler(src, logger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Classification Mix")
	assert.Contains(t, body, "Top Communities")
	assert.Contains(t, body, "admin_distinguished")
}

func TestHandler_StorageError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := httptest.NewRecorder()
	Handler(&fakeSource{err: errors.New("db down")}, logger).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, hook.Entries, 1)
}
