package orchestrator

import (
	"sort"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// merge concatenates settled results in target order, keeping the first
// occurrence of every post ID. A target that failed part way still
// contributes the posts it returned.
func merge(outcomes []outcome) []domain.Post {
	seen := map[string]bool{}
	var merged []domain.Post
	for _, oc := range outcomes {
		if !oc.settled {
			continue
		}
		for _, p := range oc.posts {
			if p.ID != "" {
				if seen[p.ID] {
					continue
				}
				seen[p.ID] = true
			}
			merged = append(merged, p)
		}
	}
	return merged
}

// Filter keeps posts that satisfy the request's score, comment and NSFW constraints.
func Filter(posts []domain.ClassifiedPost, req domain.SearchRequest) []domain.ClassifiedPost {
	out := make([]domain.ClassifiedPost, 0, len(posts))
	for _, p := range posts {
		if p.Score < req.MinScore || p.CommentCount < req.MinComments {
			continue
		}
		if p.NSFW && !req.IncludeNSFW {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortPosts orders posts in place. Relevance and hot keep the merged provider
// order; ties fall back to newest first, then ID.
func SortPosts(posts []domain.ClassifiedPost, by domain.Sort) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		switch by {
		case domain.SortNew:
			// created_at is the primary key and the first tie-break.
		case domain.SortTop:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case domain.SortComments:
			if a.CommentCount != b.CommentCount {
				return a.CommentCount > b.CommentCount
			}
		default:
			if a.Rank != b.Rank {
				return a.Rank < b.Rank
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// countByClassification tallies posts per verdict, with every verdict present.
func countByClassification(posts []domain.ClassifiedPost) map[domain.Classification]int {
	counts := make(map[domain.Classification]int, len(domain.Classifications))
	for _, c := range domain.Classifications {
		counts[c] = 0
	}
	for _, p := range posts {
		counts[p.Classification]++
	}
	return counts
}
