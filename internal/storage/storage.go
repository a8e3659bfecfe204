package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"

	DefaultSQLitePath = "./data/promoscout.db"
)

// Config selects and locates the backing database.
type Config struct {
	Type        string `mapstructure:"type"`
	Path        string `mapstructure:"path"`
	PostgresURI string `mapstructure:"postgres_uri"`
}

// PostFilter narrows QueryPosts. Zero values match everything; a non-positive
// Limit returns every matching row.
type PostFilter struct {
	Community      string
	Classification domain.Classification
	Author         string
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

// CommunityCount is one row of the top-communities table.
type CommunityCount struct {
	Community string `json:"community"`
	Posts     int    `json:"posts"`
}

// Stats summarizes everything stored so far.
type Stats struct {
	TotalPosts             int                           `json:"total_posts"`
	ByClassification       map[domain.Classification]int `json:"by_classification"`
	UniqueCommunities      int                           `json:"unique_communities"`
	UniqueAuthors          int                           `json:"unique_authors"`
	TotalSearches          int                           `json:"total_searches"`
	CompletedSearches      int                           `json:"completed_searches"`
	FailedSearches         int                           `json:"failed_searches"`
	AvgResultsPerSearch    float64                       `json:"avg_results_per_search"`
	StdDevResultsPerSearch float64                       `json:"stddev_results_per_search"`
	TopCommunities         []CommunityCount              `json:"top_communities"`
}

// Gateway is the persistence contract shared by every backend.
type Gateway interface {
	UpsertPost(ctx context.Context, post domain.ClassifiedPost) error
	UpsertPosts(ctx context.Context, posts []domain.ClassifiedPost) error
	RecordSearchHistory(ctx context.Context, rec *domain.SearchHistoryRecord) error
	CompleteSearchHistory(ctx context.Context, id string, status domain.SearchStatus, resultCount int, errMsg string) error
	GetSearchHistory(ctx context.Context, id string) (*domain.SearchHistoryRecord, error)
	ListSearchHistory(ctx context.Context, limit int) ([]domain.SearchHistoryRecord, error)
	QueryPosts(ctx context.Context, filter PostFilter) ([]domain.ClassifiedPost, error)
	GetPost(ctx context.Context, id string) (*domain.ClassifiedPost, error)
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg Config) (Gateway, error) {
	switch cfg.Type {
	case "", TypeSQLite:
		return NewSQLiteStorage(cfg.Path)
	case TypePostgres:
		return NewPostgresStorage(cfg.PostgresURI)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
