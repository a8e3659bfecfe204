package orchestrator

import (
	"fmt"
	"strings"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

var validSorts = map[domain.Sort]bool{
	domain.SortRelevance: true,
	domain.SortHot:       true,
	domain.SortNew:       true,
	domain.SortTop:       true,
	domain.SortComments:  true,
}

var validWindows = map[domain.TimeWindow]bool{
	domain.TimeHour:  true,
	domain.TimeDay:   true,
	domain.TimeWeek:  true,
	domain.TimeMonth: true,
	domain.TimeYear:  true,
	domain.TimeAll:   true,
}

// Normalize trims, defaults and clamps req, returning an InvalidRequestError
// listing every problem found.
func (o *Orchestrator) Normalize(req domain.SearchRequest) (domain.SearchRequest, error) {
	var problems []string
	out := req

	out.Keywords = nil
	for _, kw := range req.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if len(kw) > o.cfg.MaxKeywordLength {
			problems = append(problems, fmt.Sprintf("keyword exceeds %d characters", o.cfg.MaxKeywordLength))
			continue
		}
		out.Keywords = append(out.Keywords, kw)
	}
	if len(out.Keywords) > o.cfg.MaxKeywords {
		problems = append(problems, fmt.Sprintf("at most %d keywords are allowed", o.cfg.MaxKeywords))
	}

	out.Communities = nil
	seen := map[string]bool{}
	for _, c := range req.Communities {
		c = domain.NormalizeCommunity(c)
		if c == "" {
			continue
		}
		if !domain.ValidCommunity(c) {
			problems = append(problems, fmt.Sprintf("invalid community name %q", c))
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Communities = append(out.Communities, c)
	}

	switch out.Mode {
	case "":
		out.Mode = domain.ModeGeneral
	case domain.ModeGeneral, domain.ModeDiscovery:
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", out.Mode))
	}

	if out.Mode == domain.ModeDiscovery {
		if len(out.Keywords) == 0 {
			out.Keywords = append([]string(nil), o.cfg.DiscoveryKeywords...)
		}
		if out.Sort == "" {
			out.Sort = domain.SortNew
		}
		if out.TimeWindow == "" {
			out.TimeWindow = domain.TimeMonth
		}
	} else if len(out.Keywords) == 0 && len(out.Communities) == 0 {
		problems = append(problems, "at least one keyword or community is required")
	}

	if out.Sort == "" {
		out.Sort = domain.SortRelevance
	} else if !validSorts[out.Sort] {
		problems = append(problems, fmt.Sprintf("unknown sort %q", out.Sort))
	}
	if out.TimeWindow == "" {
		out.TimeWindow = o.cfg.DefaultTimeWindow
	} else if !validWindows[out.TimeWindow] {
		problems = append(problems, fmt.Sprintf("unknown time window %q", out.TimeWindow))
	}

	switch {
	case out.Limit == 0:
		out.Limit = domain.DefaultLimit
	case out.Limit < 1:
		out.Limit = 1
	case out.Limit > domain.MaxLimit:
		out.Limit = domain.MaxLimit
	}
	if out.MinScore < 0 {
		out.MinScore = 0
	}
	if out.MinComments < 0 {
		out.MinComments = 0
	}

	if len(problems) > 0 {
		return req, &domain.InvalidRequestError{Problems: problems}
	}
	return out, nil
}
