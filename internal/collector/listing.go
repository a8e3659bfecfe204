package collector

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const (
	// MaxPageSize is the largest page Reddit returns for a listing.
	MaxPageSize = 100
	// MaxPerCall caps how many posts a single Fetch collects across pages.
	MaxPerCall = domain.MaxLimit

	permalinkHost = "https://www.reddit.com"
)

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string  `json:"kind"`
			Data rawPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type rawPost struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	LinkFlairText *string `json:"link_flair_text"`
	Stickied      bool    `json:"stickied"`
	Distinguished *string `json:"distinguished"`
	Promoted      *bool   `json:"promoted"`
	Over18        bool    `json:"over_18"`
}

func (r rawPost) toDomain() domain.Post {
	p := domain.Post{
		ID:           r.ID,
		Title:        r.Title,
		Author:       r.Author,
		Community:    r.Subreddit,
		Score:        r.Score,
		CommentCount: r.NumComments,
		CreatedAt:    time.Unix(int64(r.CreatedUTC), 0).UTC(),
		URL:          r.URL,
		Pinned:       r.Stickied,
		NSFW:         r.Over18,
	}
	if r.Selftext != "" {
		body := r.Selftext
		p.Body = &body
	}
	if r.LinkFlairText != nil && *r.LinkFlairText != "" {
		flair := *r.LinkFlairText
		p.Flair = &flair
	}
	if r.Distinguished != nil {
		p.Distinguished = domain.ParseDistinguished(*r.Distinguished)
	}
	if r.Promoted != nil {
		p.PlatformPromoted = *r.Promoted
	}
	if r.Permalink != "" && strings.HasPrefix(r.Permalink, "/") {
		p.Permalink = permalinkHost + r.Permalink
	} else {
		p.Permalink = r.Permalink
	}
	return p
}

func (l *listing) posts() []domain.Post {
	out := make([]domain.Post, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Kind != "" && c.Kind != "t3" {
			continue
		}
		out = append(out, c.Data.toDomain())
	}
	return out
}

// isUnrestricted reports whether community means "search everything".
func isUnrestricted(community string) bool {
	c := strings.TrimSpace(strings.ToLower(community))
	return c == "" || c == domain.AllCommunities
}

// listingPath builds the relative path and base query for one fetch. Keyword
// fetches use the search endpoint; others use the community listing.
func listingPath(params domain.FetchParams) (string, url.Values) {
	q := url.Values{}
	q.Set("raw_json", "1")
	if params.TimeWindow != "" {
		q.Set("t", string(params.TimeWindow))
	}

	community := strings.TrimPrefix(strings.TrimSpace(params.Community), "r/")
	if len(params.Keywords) > 0 {
		q.Set("q", strings.Join(params.Keywords, " "))
		if params.Sort != "" {
			q.Set("sort", string(params.Sort))
		}
		if isUnrestricted(community) {
			return "search.json", q
		}
		q.Set("restrict_sr", "1")
		return "r/" + community + "/search.json", q
	}

	if isUnrestricted(community) {
		community = domain.AllCommunities
	}
	kind := "hot"
	switch params.Sort {
	case domain.SortNew:
		kind = "new"
	case domain.SortTop:
		kind = "top"
	}
	return "r/" + community + "/" + kind + ".json", q
}

// pageFunc fetches one listing page for the given relative path and query.
type pageFunc func(ctx context.Context, path string, q url.Values) (*listing, error)

// paginate walks the after cursor until limit posts are collected or the listing ends.
// When a page fails, the posts gathered so far come back together with the error.
func paginate(ctx context.Context, params domain.FetchParams, page pageFunc) ([]domain.Post, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = MaxPageSize
	}
	if limit > MaxPerCall {
		limit = MaxPerCall
	}

	path, base := listingPath(params)
	var out []domain.Post
	after := ""
	for len(out) < limit {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		size := limit - len(out)
		if size > MaxPageSize {
			size = MaxPageSize
		}
		q.Set("limit", strconv.Itoa(size))
		if after != "" {
			q.Set("after", after)
		}

		l, err := page(ctx, path, q)
		if err != nil {
			return out, err
		}
		batch := l.posts()
		if len(batch) > size {
			batch = batch[:size]
		}
		out = append(out, batch...)
		if l.Data.After == "" || len(batch) == 0 {
			break
		}
		after = l.Data.After
	}
	return out, nil
}

// targetName labels a fetch in errors and logs.
func targetName(params domain.FetchParams) string {
	if isUnrestricted(params.Community) {
		return domain.AllCommunities
	}
	return strings.TrimPrefix(strings.TrimSpace(params.Community), "r/")
}
