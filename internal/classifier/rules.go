package classifier

import (
	"regexp"
	"strings"
)

// Rules is the externally configured part of the classifier.
type Rules struct {
	// Keywords is the promotional keyword list matched against title and body.
	Keywords []string `mapstructure:"keywords"`
	// MinKeywordMatches is how many distinct keywords must appear for promo_keywords to fire.
	MinKeywordMatches int `mapstructure:"min_keyword_matches"`
	// AuthorMarkers are substrings of a handle that suggest a commercial account.
	AuthorMarkers []string `mapstructure:"author_markers"`
	// AuthorDenylist holds exact handles treated as commercial accounts.
	AuthorDenylist []string `mapstructure:"author_denylist"`
	// ContentThreshold is the number of distinct content categories required for content_promotional.
	ContentThreshold int `mapstructure:"content_threshold"`
	// SelfDomains are hosts that never count as outbound links.
	SelfDomains []string `mapstructure:"self_domains"`
	// Shorteners are link shortener hosts.
	Shorteners []string `mapstructure:"shorteners"`
}

// DefaultRules returns the rule set used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		Keywords: []string{
			"deal", "discount", "sale", "promo", "promo code", "coupon", "% off",
			"special offer", "free trial", "limited offer", "free shipping", "giveaway",
		},
		MinKeywordMatches: 1,
		AuthorMarkers:     []string{"official", "store", "shop"},
		ContentThreshold:  2,
		SelfDomains:       []string{"reddit.com", "redd.it", "redditmedia.com", "redditstatic.com"},
		Shorteners: []string{
			"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "amzn.to", "is.gd", "buff.ly", "rebrand.ly",
		},
	}
}

// withDefaults fills zero-valued fields from DefaultRules.
func (r Rules) withDefaults() Rules {
	def := DefaultRules()
	if len(r.Keywords) == 0 {
		r.Keywords = def.Keywords
	}
	if r.MinKeywordMatches <= 0 {
		r.MinKeywordMatches = def.MinKeywordMatches
	}
	if len(r.AuthorMarkers) == 0 {
		r.AuthorMarkers = def.AuthorMarkers
	}
	if r.ContentThreshold <= 0 {
		r.ContentThreshold = def.ContentThreshold
	}
	if len(r.SelfDomains) == 0 {
		r.SelfDomains = def.SelfDomains
	}
	if len(r.Shorteners) == 0 {
		r.Shorteners = def.Shorteners
	}
	r.SelfDomains = hostList(r.SelfDomains)
	r.Shorteners = hostList(r.Shorteners)
	return r
}

var (
	platformMarkerRe = regexp.MustCompile(`(?i)\b(?:promoted|sponsored)\b|\[(?:ad|sponsored|promoted)\]`)
	promotedFlairRe  = regexp.MustCompile(`(?i)\b(?:promoted|sponsored|ad|advertisement)\b`)
	priceRe          = regexp.MustCompile(`[$€£¥]\s?\d|\d(?:[.,]\d+)?\s?(?:[$€£¥]|%)`)
	callToActionRe   = regexp.MustCompile(`(?i)\b(?:buy now|click here|limited time|act now|shop now|order now|don'?t miss)\b`)
	bodyURLRe        = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
)

// compileKeyword matches a keyword case-insensitively, with word boundaries on
// whichever ends are word characters.
func compileKeyword(kw string) *regexp.Regexp {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return nil
	}
	pattern := regexp.QuoteMeta(strings.ToLower(kw))
	if isWordByte(kw[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(kw[len(kw)-1]) {
		pattern += `\b`
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// hostList lower-cases configured hosts and drops a leading "www.".
func hostList(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// hostMatches reports whether host equals one of domains or is a subdomain of one.
func hostMatches(host string, domains []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
