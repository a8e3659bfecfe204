package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// MockClient implements domain.Collector but returns deterministic fixtures.
type MockClient struct {
	// Latency simulates network delay per call.
	Latency time.Duration
	// Epoch anchors fixture timestamps.
	Epoch time.Time
}

func NewMockClient() *MockClient {
	return &MockClient{Epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (mc *MockClient) Fetch(ctx context.Context, params domain.FetchParams) ([]domain.Post, error) {
	if mc.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: targetName(params), Err: ctx.Err()}
		case <-time.After(mc.Latency):
		}
	}

	sub := targetName(params)
	limit := params.Limit
	if limit <= 0 || limit > MaxPerCall {
		limit = MaxPageSize
	}

	posts := make([]domain.Post, 0, limit)
	for i := 0; i < limit; i++ {
		p := domain.Post{
			ID:           fmt.Sprintf("mock_%s_%d", sub, i),
			Author:       "simulated_user",
			Community:    sub,
			Score:        (i * 37) % 500,
			CommentCount: (i * 11) % 120,
			CreatedAt:    mc.Epoch.Add(-time.Duration(i) * time.Hour),
			Permalink:    fmt.Sprintf("%s/r/%s/comments/mock_%d/", permalinkHost, sub, i),
			URL:          "http://localhost/mock-url",
			NSFW:         i%10 == 9,
		}
		switch i % 4 {
		case 0:
			p.Title = fmt.Sprintf("[%s] Community update #%d", sub, i)
			p.Distinguished = domain.DistinguishedAdmin
		case 1:
			body := "Weekend only, use the coupon at checkout https://shop.example.com/kb?ref=mock"
			p.Title = fmt.Sprintf("Keyboard sale: 40%% off #%d", i)
			p.Body = &body
			p.Author = "keyswitch_store"
		case 2:
			p.Title = fmt.Sprintf("[%s] Discussion thread #%d", sub, i)
		case 3:
			p.Title = fmt.Sprintf("Budget better with a new app #%d", i)
			p.PlatformPromoted = true
		}
		posts = append(posts, p)
	}
	return posts, nil
}
