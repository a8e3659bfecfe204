package collector

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const (
	ModeAPI    = "api"
	ModePublic = "public"
	ModeMock   = "mock"
)

// Config selects and configures the provider client.
type Config struct {
	Mode          string        `mapstructure:"mode"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	UserAgent     string        `mapstructure:"user_agent"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Backoff       time.Duration `mapstructure:"backoff"`
}

func (c Config) retryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.Backoff > 0 {
		p.DefaultBackoff = c.Backoff
	}
	return p
}

// NewCollector selects the correct implementation based on the mode
func NewCollector(cfg Config, logger logrus.FieldLogger) (domain.Collector, error) {
	logger = logger.WithField("collector_mode", cfg.Mode)

	switch cfg.Mode {
	case ModeAPI, "":
		return NewAPIClient(APIConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Username:     cfg.Username,
			Password:     cfg.Password,
			UserAgent:    cfg.UserAgent,
			Interval:     cfg.Interval,
			Retry:        cfg.retryPolicy(),
		}, logger), nil
	case ModePublic:
		return NewPublicClient(PublicConfig{
			BaseURL:   cfg.PublicBaseURL,
			UserAgent: cfg.UserAgent,
			Interval:  cfg.Interval,
			Retry:     cfg.retryPolicy(),
		}, logger)
	case ModeMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown collector mode: %s (use 'api', 'public', or 'mock')", cfg.Mode)
	}
}
