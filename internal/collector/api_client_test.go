package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// fakeRequester replays scripted responses in order, repeating the last one.
type fakeRequester struct {
	mu        sync.Mutex
	responses []fakeResponse
	paths     []string
}

type fakeResponse struct {
	status int
	header http.Header
	body   []byte
	err    error
}

func (f *fakeRequester) NewRequest(method string, path string, _ url.Values) (*http.Request, error) {
	return http.NewRequest(method, "https://oauth.reddit.com/"+path, nil)
}

func (f *fakeRequester) Do(_ context.Context, req *http.Request, v interface{}) (*reddit.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, req.URL.Path)
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}

	if r.status == 0 {
		return nil, r.err
	}
	resp := &reddit.Response{Response: &http.Response{StatusCode: r.status, Header: r.header}}
	if r.status >= 300 {
		return resp, errors.New(http.StatusText(r.status))
	}
	return resp, json.Unmarshal(r.body, v)
}

func (f *fakeRequester) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func testAPIClient(cfg APIConfig, logger logrus.FieldLogger, full, readonly dialFunc) *APIClient {
	cfg.Interval = time.Millisecond
	cfg.Retry = NoDelayRetryPolicy()
	return newAPIClient(cfg, logger, full, readonly)
}

var fullCreds = APIConfig{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p", UserAgent: "ua"}

func TestAPIClient_FallsBackToReadonlyOnce(t *testing.T) {
	logger, hook := test.NewNullLogger()
	readonly := &fakeRequester{responses: []fakeResponse{{status: 200, body: listingJSON(t, "", rawChild("r1"))}}}

	var fullDials, roDials int32
	ac := testAPIClient(fullCreds, logger,
		func(context.Context) (requester, error) {
			atomic.AddInt32(&fullDials, 1)
			return nil, errors.New("invalid_grant")
		},
		func(context.Context) (requester, error) {
			atomic.AddInt32(&roDials, 1)
			return readonly, nil
		},
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			posts, err := ac.Fetch(context.Background(), domain.FetchParams{Community: "deals", Limit: 1})
			assert.NoError(t, err)
			assert.Len(t, posts, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fullDials))
	assert.Equal(t, int32(1), atomic.LoadInt32(&roDials))
	assert.Equal(t, AuthReadonly, ac.Mode())
	assert.Equal(t, 5, readonly.calls())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAPIClient_UsesFullModeWhenCredentialsWork(t *testing.T) {
	logger, _ := test.NewNullLogger()
	full := &fakeRequester{responses: []fakeResponse{{status: 200, body: listingJSON(t, "", rawChild("f1"))}}}
	ac := testAPIClient(fullCreds, logger,
		func(context.Context) (requester, error) { return full, nil },
		func(context.Context) (requester, error) {
			t.Fatal("read-only client should not be dialed")
			return nil, nil
		},
	)

	posts, err := ac.Fetch(context.Background(), domain.FetchParams{Community: "deals", Keywords: []string{"sale"}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, AuthFull, ac.Mode())
	assert.Equal(t, []string{"/r/deals/search.json"}, full.paths)
}

func TestAPIClient_CancelledFirstCallKeepsCredentials(t *testing.T) {
	logger, _ := test.NewNullLogger()
	full := &fakeRequester{responses: []fakeResponse{{status: 200, body: listingJSON(t, "", rawChild("f1"))}}}
	ac := testAPIClient(fullCreds, logger,
		func(ctx context.Context) (requester, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return full, nil
		},
		func(context.Context) (requester, error) {
			t.Fatal("read-only client should not be dialed")
			return nil, nil
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ac.Fetch(ctx, domain.FetchParams{Community: "deals", Limit: 1})
	assert.Error(t, err)

	posts, err := ac.Fetch(context.Background(), domain.FetchParams{Community: "deals", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, AuthFull, ac.Mode())
}

func TestAPIClient_NoCredentialsSkipsFullDial(t *testing.T) {
	logger, _ := test.NewNullLogger()
	readonly := &fakeRequester{responses: []fakeResponse{{status: 200, body: listingJSON(t, "")}}}
	ac := testAPIClient(APIConfig{UserAgent: "ua"}, logger,
		func(context.Context) (requester, error) {
			t.Fatal("full client should not be dialed without credentials")
			return nil, nil
		},
		func(context.Context) (requester, error) { return readonly, nil },
	)

	posts, err := ac.Fetch(context.Background(), domain.FetchParams{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, AuthReadonly, ac.Mode())
}

func TestAPIClient_ReadonlyDialFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ac := testAPIClient(APIConfig{}, logger, nil,
		func(context.Context) (requester, error) { return nil, errors.New("no network") },
	)
	_, err := ac.Fetch(context.Background(), domain.FetchParams{Community: "deals"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ProviderAuthFailed, pe.Kind)
}

func TestAPIClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		responses []fakeResponse
		calls     int
		check     func(t *testing.T, err error)
	}{
		{
			name: "second 429 is rate limited",
			responses: []fakeResponse{
				{status: 429, header: http.Header{"X-Ratelimit-Reset": []string{"30"}}},
			},
			calls: 2,
			check: func(t *testing.T, err error) {
				var rl *domain.RateLimitedError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 30*time.Second, rl.RetryAfter)
			},
		},
		{
			name:      "unauthorized",
			responses: []fakeResponse{{status: 401}},
			calls:     1,
			check: func(t *testing.T, err error) {
				var pe *domain.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, domain.ProviderAuthFailed, pe.Kind)
			},
		},
		{
			name:      "server error",
			responses: []fakeResponse{{status: 503}},
			calls:     1,
			check: func(t *testing.T, err error) {
				var pe *domain.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, domain.ProviderStatus, pe.Kind)
				assert.Equal(t, 503, pe.StatusCode)
			},
		},
		{
			name:      "transport failure",
			responses: []fakeResponse{{err: errors.New("connection reset")}},
			calls:     1,
			check: func(t *testing.T, err error) {
				var pe *domain.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, domain.ProviderNetwork, pe.Kind)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			fake := &fakeRequester{responses: tt.responses}
			ac := testAPIClient(APIConfig{}, logger, nil,
				func(context.Context) (requester, error) { return fake, nil },
			)
			_, err := ac.Fetch(context.Background(), domain.FetchParams{Community: "deals", Limit: 5})
			tt.check(t, err)
			assert.Equal(t, tt.calls, fake.calls())
		})
	}
}
