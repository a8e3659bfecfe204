package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const defaultPublicBaseURL = "https://www.reddit.com"

// PublicConfig configures the anonymous JSON client.
type PublicConfig struct {
	BaseURL   string
	UserAgent string
	// Interval is the minimum spacing between requests.
	Interval time.Duration
	Timeout  time.Duration
	Retry    RetryPolicy
}

// PublicClient reads Reddit's public .json listings without credentials.
type PublicClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	retry      RetryPolicy
	logger     logrus.FieldLogger
}

func NewPublicClient(cfg PublicConfig, logger logrus.FieldLogger) (*PublicClient, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("user agent is required for public mode")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPublicBaseURL
	}
	if cfg.Interval <= 0 {
		// Public JSON Limit: 1 req / 2 seconds (Stricter)
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &PublicClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.Interval), 1),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		retry:      cfg.Retry,
		logger:     logger,
	}, nil
}

func (pc *PublicClient) Fetch(ctx context.Context, params domain.FetchParams) ([]domain.Post, error) {
	target := targetName(params)
	posts, err := paginate(ctx, params, func(ctx context.Context, path string, q url.Values) (*listing, error) {
		var l *listing
		err := pc.retry.Do(ctx, target, func(ctx context.Context) error {
			var err error
			l, err = pc.page(ctx, target, path, q)
			return err
		})
		return l, err
	})
	if err != nil {
		if len(posts) > 0 {
			pc.logger.WithError(err).WithFields(logrus.Fields{"target": target, "count": len(posts)}).Warn("public fetch stopped early")
		}
		return posts, err
	}
	pc.logger.WithFields(logrus.Fields{"target": target, "count": len(posts)}).Debug("public fetch complete")
	return posts, nil
}

func (pc *PublicClient) page(ctx context.Context, target, path string, q url.Values) (*listing, error) {
	if err := pc.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}

	u := pc.baseURL + "/" + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(target, resp); err != nil {
		return nil, err
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderDecode, Target: target, Err: err}
	}
	return &l, nil
}

// statusError maps a non-2xx response onto the provider error taxonomy.
func statusError(target string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &throttledError{retryAfter: RetryAfter(resp.Header)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.ProviderError{Kind: domain.ProviderAuthFailed, Target: target, StatusCode: resp.StatusCode}
	default:
		return &domain.ProviderError{Kind: domain.ProviderStatus, Target: target, StatusCode: resp.StatusCode}
	}
}
