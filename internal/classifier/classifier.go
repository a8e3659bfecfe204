// Package classifier decides whether a post is an official platform promotion,
// content-based promotion, or neither. It is a pure transform with no I/O.
package classifier

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// Tier orders signal groups by confidence. Platform signals always win.
type Tier int

const (
	TierPlatform Tier = iota
	TierContent
)

func (t Tier) String() string {
	if t == TierPlatform {
		return "platform"
	}
	return "content"
}

// Category groups content signals; the threshold counts distinct categories.
type Category string

const (
	CategoryPlatform  Category = "platform"
	CategoryKeywords  Category = "keywords"
	CategoryPricing   Category = "pricing"
	CategoryURL       Category = "url"
	CategoryAuthor    Category = "author"
	CategoryStructure Category = "structure"
)

const (
	SignalPlatformPromotedFlag domain.Signal = "platform_promoted_flag"
	SignalAdminDistinguished   domain.Signal = "admin_distinguished"
	SignalPlatformMarker       domain.Signal = "platform_marker"
	SignalPinnedDistinguished  domain.Signal = "pinned_distinguished"
	SignalPromotedFlair        domain.Signal = "promoted_flair"
	SignalPromotedURL          domain.Signal = "promoted_url"

	SignalPromoKeywords    domain.Signal = "promo_keywords"
	SignalPricePattern     domain.Signal = "price_pattern"
	SignalAffiliateURL     domain.Signal = "affiliate_url"
	SignalShortenedURL     domain.Signal = "shortened_url"
	SignalCommercialAuthor domain.Signal = "commercial_author"
	SignalCallToAction     domain.Signal = "call_to_action"
)

// Rule is one row of the signal table.
type Rule struct {
	Signal   domain.Signal
	Tier     Tier
	Category Category
	Match    func(c *Classifier, p *domain.Post) bool
}

// table is evaluated top to bottom; signal order in a verdict follows it.
var table = []Rule{
	{SignalPlatformPromotedFlag, TierPlatform, CategoryPlatform, func(_ *Classifier, p *domain.Post) bool {
		return p.PlatformPromoted
	}},
	{SignalAdminDistinguished, TierPlatform, CategoryPlatform, func(_ *Classifier, p *domain.Post) bool {
		return p.Distinguished == domain.DistinguishedAdmin
	}},
	{SignalPlatformMarker, TierPlatform, CategoryPlatform, func(_ *Classifier, p *domain.Post) bool {
		return platformMarkerRe.MatchString(p.Title) || (p.Body != nil && platformMarkerRe.MatchString(*p.Body))
	}},
	{SignalPinnedDistinguished, TierPlatform, CategoryPlatform, func(_ *Classifier, p *domain.Post) bool {
		return p.Pinned && p.Distinguished != domain.DistinguishedNone
	}},
	{SignalPromotedFlair, TierPlatform, CategoryPlatform, func(_ *Classifier, p *domain.Post) bool {
		return p.Flair != nil && promotedFlairRe.MatchString(*p.Flair)
	}},
	{SignalPromotedURL, TierPlatform, CategoryPlatform, (*Classifier).promotedURL},

	{SignalPromoKeywords, TierContent, CategoryKeywords, (*Classifier).promoKeywords},
	{SignalPricePattern, TierContent, CategoryPricing, func(_ *Classifier, p *domain.Post) bool {
		return priceRe.MatchString(p.Title) || (p.Body != nil && priceRe.MatchString(*p.Body))
	}},
	{SignalAffiliateURL, TierContent, CategoryURL, (*Classifier).affiliateURL},
	{SignalShortenedURL, TierContent, CategoryURL, (*Classifier).shortenedURL},
	{SignalCommercialAuthor, TierContent, CategoryAuthor, (*Classifier).commercialAuthor},
	{SignalCallToAction, TierContent, CategoryStructure, func(_ *Classifier, p *domain.Post) bool {
		return callToActionRe.MatchString(p.Title) || (p.Body != nil && callToActionRe.MatchString(*p.Body))
	}},
}

// Table returns a copy of the signal table.
func Table() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

// Verdict is the classifier output for one post.
type Verdict struct {
	Classification    domain.Classification
	Signals           []domain.Signal
	ContentCategories int
}

// Classifier holds the compiled, immutable rule configuration. Safe for concurrent use.
type Classifier struct {
	rules    Rules
	keywords []*regexp.Regexp
	markers  []string
	denylist map[string]struct{}
}

// New compiles rules; zero-valued fields fall back to DefaultRules.
func New(rules Rules) *Classifier {
	rules = rules.withDefaults()
	c := &Classifier{
		rules:    rules,
		denylist: lowerSet(rules.AuthorDenylist),
	}
	seen := map[string]bool{}
	for _, kw := range rules.Keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if seen[key] {
			continue
		}
		seen[key] = true
		if re := compileKeyword(kw); re != nil {
			c.keywords = append(c.keywords, re)
		}
	}
	for _, m := range rules.AuthorMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			c.markers = append(c.markers, m)
		}
	}
	return c
}

// Rules returns the effective configuration.
func (c *Classifier) Rules() Rules { return c.rules }

// Classify evaluates every rule against p and applies tier precedence.
func (c *Classifier) Classify(p domain.Post) (Verdict, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Verdict{}, &domain.InvalidPostError{Field: "id"}
	}
	if strings.TrimSpace(p.Title) == "" {
		return Verdict{}, &domain.InvalidPostError{PostID: p.ID, Field: "title"}
	}

	v := Verdict{Classification: domain.ClassificationNone, Signals: []domain.Signal{}}
	platform := false
	categories := map[Category]bool{}
	for _, r := range table {
		if !r.Match(c, &p) {
			continue
		}
		v.Signals = append(v.Signals, r.Signal)
		if r.Tier == TierPlatform {
			platform = true
		} else {
			categories[r.Category] = true
		}
	}
	v.ContentCategories = len(categories)

	switch {
	case platform:
		v.Classification = domain.ClassificationPlatformPromoted
	case v.ContentCategories >= c.rules.ContentThreshold:
		v.Classification = domain.ClassificationContentPromotional
	}
	return v, nil
}

// Annotate classifies p and returns it as a ClassifiedPost stamped with collectedAt.
func (c *Classifier) Annotate(p domain.Post, collectedAt time.Time) (domain.ClassifiedPost, error) {
	v, err := c.Classify(p)
	if err != nil {
		return domain.ClassifiedPost{}, err
	}
	return domain.ClassifiedPost{
		Post:           p,
		Classification: v.Classification,
		Signals:        v.Signals,
		CollectedAt:    collectedAt,
	}, nil
}

func (c *Classifier) promoKeywords(p *domain.Post) bool {
	text := p.Title
	if p.Body != nil {
		text += "\n" + *p.Body
	}
	matches := 0
	for _, re := range c.keywords {
		if re.MatchString(text) {
			matches++
			if matches >= c.rules.MinKeywordMatches {
				return true
			}
		}
	}
	return false
}

func (c *Classifier) commercialAuthor(p *domain.Post) bool {
	handle := strings.ToLower(strings.TrimSpace(p.Author))
	if handle == "" || handle == "[deleted]" {
		return false
	}
	if _, ok := c.denylist[handle]; ok {
		return true
	}
	for _, m := range c.markers {
		if strings.Contains(handle, m) {
			return true
		}
	}
	return false
}

func (c *Classifier) promotedURL(p *domain.Post) bool {
	u := parseURL(p.URL)
	if u == nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)
	switch {
	case host == "ads.reddit.com":
		return true
	case (host == "reddit.com" || host == "redd.it") && strings.HasPrefix(path, "/promoted"):
		return true
	}
	return false
}

func (c *Classifier) affiliateURL(p *domain.Post) bool {
	for _, u := range outboundURLs(p) {
		if hostMatches(u.Hostname(), c.rules.SelfDomains) {
			continue
		}
		for key := range u.Query() {
			k := strings.ToLower(key)
			switch {
			case k == "ref", k == "aff", k == "affiliate", k == "tag", strings.HasPrefix(k, "utm_"):
				return true
			}
		}
	}
	return false
}

func (c *Classifier) shortenedURL(p *domain.Post) bool {
	for _, u := range outboundURLs(p) {
		if hostMatches(u.Hostname(), c.rules.Shorteners) {
			return true
		}
	}
	return false
}

// outboundURLs collects the link target and any URLs embedded in the body.
func outboundURLs(p *domain.Post) []*url.URL {
	var out []*url.URL
	if u := parseURL(p.URL); u != nil {
		out = append(out, u)
	}
	if p.Body != nil {
		for _, raw := range bodyURLRe.FindAllString(*p.Body, -1) {
			if u := parseURL(strings.TrimRight(raw, ".,;:!?")); u != nil {
				out = append(out, u)
			}
		}
	}
	return out
}

func parseURL(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
