package orchestrator

import (
	"strings"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// Targets expands a normalized request into the ordered list of communities to
// query. Earlier targets win when duplicate posts are merged.
func (o *Orchestrator) Targets(req domain.SearchRequest) []string {
	var candidates []string
	if req.Mode == domain.ModeDiscovery {
		candidates = append(candidates, o.cfg.DiscoveryCommunities...)
	}
	candidates = append(candidates, req.Communities...)

	seen := map[string]bool{}
	var targets []string
	for _, c := range candidates {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, c)
	}
	if len(targets) == 0 {
		targets = []string{domain.AllCommunities}
	}
	return targets
}

// Allocate splits limit across n calls. Call i gets ceil(remaining/(n-i)),
// at least 1 and at most ceiling.
func Allocate(limit, n, ceiling int) []int {
	if n <= 0 {
		return nil
	}
	budgets := make([]int, n)
	remaining := limit
	for i := 0; i < n; i++ {
		left := n - i
		share := 0
		if remaining > 0 {
			share = (remaining + left - 1) / left
		}
		if share < 1 {
			share = 1
		}
		if ceiling > 0 && share > ceiling {
			share = ceiling
		}
		budgets[i] = share
		remaining -= share
	}
	return budgets
}
