package domain

import (
	"context"
	"time"
)

const (
	// MaxLimit is the largest result set a single search may return.
	MaxLimit     = 500
	DefaultLimit = 100

	// AllCommunities is the unrestricted search marker.
	AllCommunities = "all"
)

// Classification is the verdict the classifier assigns to a post.
type Classification string

const (
	ClassificationNone               Classification = "none"
	ClassificationContentPromotional Classification = "content_promotional"
	ClassificationPlatformPromoted   Classification = "platform_promoted"
)

// Classifications lists every verdict in reporting order.
var Classifications = []Classification{
	ClassificationNone,
	ClassificationContentPromotional,
	ClassificationPlatformPromoted,
}

// Distinguished mirrors Reddit's distinguished marker. The empty value means none.
type Distinguished string

const (
	DistinguishedNone      Distinguished = ""
	DistinguishedModerator Distinguished = "moderator"
	DistinguishedAdmin     Distinguished = "admin"
)

// ParseDistinguished maps the provider value onto the known set; anything else is none.
func ParseDistinguished(s string) Distinguished {
	switch Distinguished(s) {
	case DistinguishedModerator, DistinguishedAdmin:
		return Distinguished(s)
	default:
		return DistinguishedNone
	}
}

// Signal identifies a classifier rule that fired.
type Signal string

// Post is a provider record before classification. Body and Flair are nil when
// the provider did not supply them.
type Post struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Body             *string       `json:"body,omitempty"`
	Author           string        `json:"author"`
	Community        string        `json:"community"`
	Score            int           `json:"score"`
	CommentCount     int           `json:"num_comments"`
	CreatedAt        time.Time     `json:"created_at"`
	Permalink        string        `json:"permalink"`
	URL              string        `json:"url"`
	Flair            *string       `json:"flair,omitempty"`
	Pinned           bool          `json:"is_pinned"`
	Distinguished    Distinguished `json:"distinguished,omitempty"`
	PlatformPromoted bool          `json:"platform_promoted"`
	NSFW             bool          `json:"over_18"`
}

// ClassifiedPost is a Post annotated with the classifier verdict.
type ClassifiedPost struct {
	Post
	Classification Classification `json:"classification"`
	Signals        []Signal       `json:"signals"`
	CollectedAt    time.Time      `json:"collected_at"`

	// Rank is the merged provider position, used to order relevance/hot results.
	Rank int `json:"-"`
}

// Sort is the requested result ordering.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortHot       Sort = "hot"
	SortNew       Sort = "new"
	SortTop       Sort = "top"
	SortComments  Sort = "comments"
)

// TimeWindow bounds how far back the provider searches.
type TimeWindow string

const (
	TimeHour  TimeWindow = "hour"
	TimeDay   TimeWindow = "day"
	TimeWeek  TimeWindow = "week"
	TimeMonth TimeWindow = "month"
	TimeYear  TimeWindow = "year"
	TimeAll   TimeWindow = "all"
)

// SearchMode picks between a plain search and the official-promotion discovery fan-out.
type SearchMode string

const (
	ModeGeneral   SearchMode = "general"
	ModeDiscovery SearchMode = "discovery"
)

// SearchRequest is what a caller asks the orchestrator for.
type SearchRequest struct {
	Keywords    []string   `json:"keywords"`
	Communities []string   `json:"communities"`
	Sort        Sort       `json:"sort"`
	TimeWindow  TimeWindow `json:"time_window"`
	Limit       int        `json:"limit"`
	MinScore    int        `json:"min_score"`
	MinComments int        `json:"min_comments"`
	IncludeNSFW bool       `json:"include_nsfw"`
	Mode        SearchMode `json:"mode,omitempty"`
}

// SearchStatus is the lifecycle state of a history record.
type SearchStatus string

const (
	SearchInProgress SearchStatus = "in_progress"
	SearchCompleted  SearchStatus = "completed"
	SearchFailed     SearchStatus = "failed"
)

// SearchHistoryRecord is the persisted trace of one orchestrated search.
type SearchHistoryRecord struct {
	ID          string        `json:"id"`
	Request     SearchRequest `json:"request"`
	ResultCount int           `json:"result_count"`
	Status      SearchStatus  `json:"status"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// ResultStatus is the top-level outcome reported to callers.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusError   ResultStatus = "error"
)

// SearchResult is the orchestrator response.
type SearchResult struct {
	SearchID               string                 `json:"search_id,omitempty"`
	Status                 ResultStatus           `json:"status"`
	Posts                  []ClassifiedPost       `json:"posts"`
	TotalFound             int                    `json:"total_found"`
	TotalProcessed         int                    `json:"total_processed"`
	CountsByClassification map[Classification]int `json:"counts_by_classification"`
	ExecutionTimeSeconds   float64                `json:"execution_time_seconds"`
	FailedTargets          []string               `json:"failed_targets"`
	Partial                bool                   `json:"partial"`
	SkippedPosts           int                    `json:"skipped_posts"`
	StorageWarning         string                 `json:"storage_warning,omitempty"`
}

// FetchParams describes one provider call.
type FetchParams struct {
	Community  string
	Keywords   []string
	Sort       Sort
	TimeWindow TimeWindow
	Limit      int
}

// Collector defines the interface for data fetching. Fetch may return the
// posts it already gathered alongside an error when a later page fails.
type Collector interface {
	Fetch(ctx context.Context, params FetchParams) ([]Post, error)
}
