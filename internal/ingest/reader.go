// Package ingest loads keyword and community lists from CSV files.
package ingest

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// LoadCommunities reads the first column of a CSV with a header row. Names are
// normalized ("r/deals" -> "deals"); malformed names are returned in rejected
// instead of failing the whole file.
func LoadCommunities(path string) (communities, rejected []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ParseCommunities(f)
}

func ParseCommunities(r io.Reader) (communities, rejected []string, err error) {
	seen := map[string]bool{}
	err = eachRecord(r, func(rec []string) {
		name := domain.NormalizeCommunity(rec[0])
		if name == "" {
			return
		}
		if !domain.ValidCommunity(name) {
			rejected = append(rejected, name)
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		communities = append(communities, name)
	})
	return communities, rejected, err
}

// LoadKeywords reads the first column of a CSV with a header row, lowercased and deduplicated.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeywords(f)
}

func ParseKeywords(r io.Reader) ([]string, error) {
	var kws []string
	seen := map[string]bool{}
	err := eachRecord(r, func(rec []string) {
		kw := strings.ToLower(strings.TrimSpace(rec[0]))
		if kw == "" || seen[kw] {
			return
		}
		seen[kw] = true
		kws = append(kws, kw)
	})
	return kws, err
}

// eachRecord calls fn for every non-empty data row. Malformed rows are skipped.
func eachRecord(r io.Reader, fn func([]string)) error {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				continue
			}
			return err
		}
		line++
		if line == 1 {
			continue // header
		}
		if len(rec) == 0 {
			continue
		}
		fn(rec)
	}
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		br.UnreadRune()
	}
	return br
}
