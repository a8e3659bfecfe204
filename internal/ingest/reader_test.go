package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommunities(t *testing.T) {
	in := "\uFEFFsubreddit,min_score\n" +
		"r/Deals,10\n" +
		"golang\n" +
		"deals,5\n" +
		"bad name!,1\n" +
		"# comment line\n" +
		"\n" +
		"/r/buildapcsales,0\n"

	got, rejected, err := ParseCommunities(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Deals", "golang", "buildapcsales"}, got)
	assert.Equal(t, []string{"bad name!"}, rejected)
}

func TestParseKeywords(t *testing.T) {
	in := "keyword\nPromo Code\n  DISCOUNT \npromo code\n\n"
	got, err := ParseKeywords(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"promo code", "discount"}, got)
}

func TestParseKeywords_HeaderOnly(t *testing.T) {
	got, err := ParseKeywords(strings.NewReader("keyword\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	kwPath := filepath.Join(dir, "keywords.csv")
	require.NoError(t, os.WriteFile(kwPath, []byte("keyword\ncoupon\n"), 0o644))
	subPath := filepath.Join(dir, "subreddits.csv")
	require.NoError(t, os.WriteFile(subPath, []byte("subreddit\ndeals\n"), 0o644))

	kws, err := LoadKeywords(kwPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"coupon"}, kws)

	subs, _, err := LoadCommunities(subPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"deals"}, subs)

	_, err = LoadKeywords(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
