// Package orchestrator turns one search request into provider calls, then
// merges, classifies, filters and ranks what comes back.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/classifier"
	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 8

	// persistTimeout bounds the storage writes that follow the fan-out.
	persistTimeout = 10 * time.Second
)

// Config tunes fan-out and request validation.
type Config struct {
	Workers              int               `mapstructure:"workers"`
	Timeout              time.Duration     `mapstructure:"timeout"`
	PerCallLimit         int               `mapstructure:"per_call_limit"`
	DiscoveryCommunities []string          `mapstructure:"discovery_communities"`
	DiscoveryKeywords    []string          `mapstructure:"discovery_keywords"`
	DefaultTimeWindow    domain.TimeWindow `mapstructure:"default_time_window"`
	MaxKeywords          int               `mapstructure:"max_keywords"`
	MaxKeywordLength     int               `mapstructure:"max_keyword_length"`
}

// DefaultConfig mirrors the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:              DefaultWorkers,
		Timeout:              60 * time.Second,
		PerCallLimit:         domain.MaxLimit,
		DiscoveryCommunities: []string{"all", "popular", "deals"},
		DiscoveryKeywords:    []string{"promoted OR sponsored OR advertisement"},
		DefaultTimeWindow:    domain.TimeWeek,
		MaxKeywords:          20,
		MaxKeywordLength:     100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	switch {
	case c.Workers <= 0:
		c.Workers = def.Workers
	case c.Workers > MaxWorkers:
		c.Workers = MaxWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PerCallLimit <= 0 {
		c.PerCallLimit = def.PerCallLimit
	}
	if len(c.DiscoveryCommunities) == 0 {
		c.DiscoveryCommunities = def.DiscoveryCommunities
	}
	if len(c.DiscoveryKeywords) == 0 {
		c.DiscoveryKeywords = def.DiscoveryKeywords
	}
	if c.DefaultTimeWindow == "" {
		c.DefaultTimeWindow = def.DefaultTimeWindow
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = def.MaxKeywords
	}
	if c.MaxKeywordLength <= 0 {
		c.MaxKeywordLength = def.MaxKeywordLength
	}
	return c
}

// Store is the persistence the orchestrator writes to. Any storage.Gateway satisfies it.
type Store interface {
	RecordSearchHistory(ctx context.Context, rec *domain.SearchHistoryRecord) error
	CompleteSearchHistory(ctx context.Context, id string, status domain.SearchStatus, resultCount int, errMsg string) error
	GetSearchHistory(ctx context.Context, id string) (*domain.SearchHistoryRecord, error)
	UpsertPosts(ctx context.Context, posts []domain.ClassifiedPost) error
}

type Orchestrator struct {
	cfg        Config
	collector  domain.Collector
	classifier *classifier.Classifier
	store      Store
	logger     logrus.FieldLogger
	now        func() time.Time
}

// New wires an orchestrator. store may be nil, in which case nothing is persisted.
func New(cfg Config, collector domain.Collector, cls *classifier.Classifier, store Store, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		collector:  collector,
		classifier: cls,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Search runs one orchestrated search.
func (o *Orchestrator) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	start := o.now()

	req, err := o.Normalize(req)
	if err != nil {
		return nil, err
	}

	targets := o.Targets(req)
	budgets := Allocate(req.Limit, len(targets), o.cfg.PerCallLimit)
	searchID := uuid.NewString()
	log := o.logger.WithFields(logrus.Fields{"search_id": searchID, "mode": req.Mode, "targets": len(targets)})
	log.Info("search started")

	var warnings []string
	recorded := false
	if o.store != nil {
		rec := &domain.SearchHistoryRecord{
			ID:        searchID,
			Request:   req,
			Status:    domain.SearchInProgress,
			CreatedAt: start.UTC(),
		}
		if err := o.store.RecordSearchHistory(ctx, rec); err != nil {
			warnings = append(warnings, o.persistWarning(log, "record_history", err))
		} else {
			recorded = true
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	outcomes, timedOut := o.fanOut(fetchCtx, req, targets, budgets)
	cancel()

	var failed []string
	var causes []error
	for _, oc := range outcomes {
		if oc.err != nil || !oc.settled {
			failed = append(failed, oc.target)
			causes = append(causes, oc.err)
		}
	}

	// History and posts are written even when the caller has gone away, so
	// the record always leaves in_progress.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	merged := merge(outcomes)
	if len(failed) == len(targets) && len(merged) == 0 {
		perr := &domain.ProviderUnavailableError{FailedTargets: failed, Causes: causes}
		log.WithError(perr).Error("all targets failed")
		if recorded {
			if err := o.store.CompleteSearchHistory(persistCtx, searchID, domain.SearchFailed, 0, perr.Error()); err != nil {
				o.persistWarning(log, "complete_history", err)
			}
		}
		return nil, perr
	}

	collectedAt := o.now().UTC()
	classified := make([]domain.ClassifiedPost, 0, len(merged))
	skipped := 0
	for i, p := range merged {
		cp, err := o.classifier.Annotate(p, collectedAt)
		if err != nil {
			skipped++
			log.WithError(err).WithField("post_id", p.ID).Warn("skipping invalid post")
			continue
		}
		cp.Rank = i
		classified = append(classified, cp)
	}

	posts := Filter(classified, req)
	SortPosts(posts, req.Sort)
	if len(posts) > req.Limit {
		posts = posts[:req.Limit]
	}

	result := &domain.SearchResult{
		Status:                 domain.StatusSuccess,
		Posts:                  posts,
		TotalFound:             len(merged),
		TotalProcessed:         len(posts),
		CountsByClassification: countByClassification(posts),
		FailedTargets:          failed,
		Partial:                len(failed) > 0 || timedOut,
		SkippedPosts:           skipped,
	}
	if result.FailedTargets == nil {
		result.FailedTargets = []string{}
	}
	if result.Partial {
		result.Status = domain.StatusPartial
	}

	if recorded {
		result.SearchID = searchID
		if err := o.store.UpsertPosts(persistCtx, posts); err != nil {
			warnings = append(warnings, o.persistWarning(log, "upsert_posts", err))
		}
		if err := o.store.CompleteSearchHistory(persistCtx, searchID, domain.SearchCompleted, len(posts), ""); err != nil {
			warnings = append(warnings, o.persistWarning(log, "complete_history", err))
		}
	}
	result.StorageWarning = strings.Join(warnings, "; ")
	result.ExecutionTimeSeconds = o.now().Sub(start).Seconds()

	log.WithFields(logrus.Fields{
		"total_found":     result.TotalFound,
		"total_processed": result.TotalProcessed,
		"failed_targets":  len(failed),
		"skipped_posts":   skipped,
		"elapsed":         result.ExecutionTimeSeconds,
	}).Info("search complete")
	return result, nil
}

// CollectPromotional runs a discovery search over the configured high-yield communities.
func (o *Orchestrator) CollectPromotional(ctx context.Context, communities []string, limit int) (*domain.SearchResult, error) {
	return o.Search(ctx, domain.SearchRequest{
		Communities: communities,
		Limit:       limit,
		Mode:        domain.ModeDiscovery,
	})
}

// Replay re-runs the request stored in a history record.
func (o *Orchestrator) Replay(ctx context.Context, historyID string) (*domain.SearchResult, error) {
	if o.store == nil {
		return nil, fmt.Errorf("replay %s: %w", historyID, domain.ErrNotFound)
	}
	rec, err := o.store.GetSearchHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	return o.Search(ctx, rec.Request)
}

func (o *Orchestrator) persistWarning(log logrus.FieldLogger, op string, err error) string {
	werr := &domain.PersistenceWriteError{Op: op, Err: err}
	log.WithError(werr).Error("persistence failed")
	return werr.Error()
}
