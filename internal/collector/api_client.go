package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// AuthMode is the access level an APIClient settled on.
type AuthMode string

const (
	AuthUnresolved AuthMode = ""
	AuthFull       AuthMode = "full"
	AuthReadonly   AuthMode = "readonly"
)

// authTimeout bounds credential verification and client setup.
const authTimeout = 30 * time.Second

// APIConfig holds script-app credentials. Missing credentials mean read-only access.
type APIConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	// Interval is the minimum spacing between requests.
	Interval time.Duration
	Retry    RetryPolicy
}

func (c APIConfig) hasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// requester is the slice of *reddit.Client the collector needs.
type requester interface {
	NewRequest(method string, path string, form url.Values) (*http.Request, error)
	Do(ctx context.Context, req *http.Request, v interface{}) (*reddit.Response, error)
}

type dialFunc func(ctx context.Context) (requester, error)

// APIClient talks to Reddit through go-reddit. Credentials are verified once;
// on failure the client downgrades to read-only for the rest of its life.
type APIClient struct {
	cfg     APIConfig
	limiter *rate.Limiter
	retry   RetryPolicy
	logger  logrus.FieldLogger

	dialFull     dialFunc
	dialReadonly dialFunc

	once    sync.Once
	mode    AuthMode
	client  requester
	dialErr error
}

func NewAPIClient(cfg APIConfig, logger logrus.FieldLogger) *APIClient {
	opts := []reddit.Opt{reddit.WithUserAgent(cfg.UserAgent)}
	return newAPIClient(cfg, logger,
		func(ctx context.Context) (requester, error) {
			creds := reddit.Credentials{ID: cfg.ClientID, Secret: cfg.ClientSecret, Username: cfg.Username, Password: cfg.Password}
			client, err := reddit.NewClient(creds, opts...)
			if err != nil {
				return nil, err
			}
			if _, _, err := client.Account.Info(ctx); err != nil {
				return nil, fmt.Errorf("verify credentials: %w", err)
			}
			return client, nil
		},
		func(context.Context) (requester, error) {
			return reddit.NewReadonlyClient(opts...)
		},
	)
}

func newAPIClient(cfg APIConfig, logger logrus.FieldLogger, full, readonly dialFunc) *APIClient {
	if cfg.Interval <= 0 {
		// API Rate Limit: ~60 reqs/min (safe buffer)
		cfg.Interval = time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &APIClient{
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Every(cfg.Interval), 1),
		retry:        cfg.Retry,
		logger:       logger,
		dialFull:     full,
		dialReadonly: readonly,
	}
}

// Mode resolves the auth mode if no call has done so yet and returns it.
func (ac *APIClient) Mode() AuthMode {
	ac.resolve(context.Background())
	return ac.mode
}

// resolve settles the auth mode once, detached from the caller's cancellation.
func (ac *APIClient) resolve(ctx context.Context) {
	ac.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), authTimeout)
		defer cancel()

		if ac.cfg.hasCredentials() {
			client, err := ac.dialFull(ctx)
			if err == nil {
				ac.mode, ac.client = AuthFull, client
				ac.logger.Info("reddit client authenticated")
				return
			}
			ac.logger.WithError(err).Warn("reddit credentials rejected, falling back to read-only access")
		} else {
			ac.logger.Info("reddit credentials not configured, using read-only access")
		}

		client, err := ac.dialReadonly(ctx)
		if err != nil {
			ac.dialErr = &domain.ProviderError{Kind: domain.ProviderAuthFailed, Err: err}
			return
		}
		ac.mode, ac.client = AuthReadonly, client
	})
}

func (ac *APIClient) Fetch(ctx context.Context, params domain.FetchParams) ([]domain.Post, error) {
	ac.resolve(ctx)
	if ac.dialErr != nil {
		return nil, ac.dialErr
	}

	target := targetName(params)
	return paginate(ctx, params, func(ctx context.Context, path string, q url.Values) (*listing, error) {
		var l *listing
		err := ac.retry.Do(ctx, target, func(ctx context.Context) error {
			var err error
			l, err = ac.page(ctx, target, path, q)
			return err
		})
		return l, err
	})
}

func (ac *APIClient) page(ctx context.Context, target, path string, q url.Values) (*listing, error) {
	if err := ac.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}

	req, err := ac.client.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}

	var l listing
	resp, err := ac.client.Do(ctx, req, &l)
	if err != nil {
		return nil, classifyAPIError(target, resp, err)
	}
	return &l, nil
}

// classifyAPIError maps go-reddit failures onto the provider error taxonomy.
func classifyAPIError(target string, resp *reddit.Response, err error) error {
	var rle *reddit.RateLimitError
	if errors.As(err, &rle) {
		return &throttledError{retryAfter: time.Until(rle.Rate.Reset)}
	}
	if resp == nil || resp.Response == nil {
		if strings.Contains(err.Error(), "oauth2") {
			return &domain.ProviderError{Kind: domain.ProviderAuthFailed, Target: target, Err: err}
		}
		return &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
	}
	if serr := statusError(target, resp.Response); serr != nil {
		var pe *domain.ProviderError
		if errors.As(serr, &pe) {
			pe.Err = err
		}
		return serr
	}
	return &domain.ProviderError{Kind: domain.ProviderDecode, Target: target, Err: err}
}
