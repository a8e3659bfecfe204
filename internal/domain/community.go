package domain

import (
	"regexp"
	"strings"
)

// Regex for valid subreddit names
var communityNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// NormalizeCommunity trims whitespace and a leading r/ prefix.
func NormalizeCommunity(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	return strings.TrimSpace(name)
}

// ValidCommunity reports whether name (already normalized) is a legal community name.
func ValidCommunity(name string) bool {
	return communityNameRegex.MatchString(name)
}
