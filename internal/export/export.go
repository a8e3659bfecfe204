// Package export renders stored posts as CSV, JSON or NDJSON and optionally
// keeps a copy in a FileStore.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// MaxExportSize caps the number of posts in one export.
const MaxExportSize = 50000

type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat accepts csv, json or ndjson case-insensitively; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatNDJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (supported: csv, json, ndjson)", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName builds the timestamped export file name.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("reddit_data_export_%s.%s", now.Format("20060102_150405"), f)
}

// Info describes an export; it heads JSON exports.
type Info struct {
	ExportedAt     time.Time         `json:"timestamp"`
	TotalPosts     int               `json:"total_posts"`
	Format         Format            `json:"format"`
	FiltersApplied map[string]string `json:"filters_applied"`
}

// Write renders posts to w in the given format.
func Write(w io.Writer, f Format, posts []domain.ClassifiedPost, info Info) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, posts)
	case FormatJSON:
		return WriteJSON(w, posts, info)
	case FormatNDJSON:
		return WriteNDJSON(w, posts)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

var csvHeader = []string{
	"id", "title", "body", "author", "community", "score", "num_comments",
	"created_at", "permalink", "url", "flair", "is_pinned", "distinguished",
	"platform_promoted", "over_18", "classification", "signals", "collected_at",
}

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\uFEFF"

// WriteCSV writes a BOM, a header row and one row per post. Signals are joined with ";".
func WriteCSV(w io.Writer, posts []domain.ClassifiedPost) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range posts {
		signals := make([]string, len(p.Signals))
		for i, s := range p.Signals {
			signals[i] = string(s)
		}
		row := []string{
			p.ID,
			p.Title,
			deref(p.Body),
			p.Author,
			p.Community,
			strconv.Itoa(p.Score),
			strconv.Itoa(p.CommentCount),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.Permalink,
			p.URL,
			deref(p.Flair),
			strconv.FormatBool(p.Pinned),
			string(p.Distinguished),
			strconv.FormatBool(p.PlatformPromoted),
			strconv.FormatBool(p.NSFW),
			string(p.Classification),
			strings.Join(signals, ";"),
			p.CollectedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes {"export_info": ..., "posts": [...]}.
func WriteJSON(w io.Writer, posts []domain.ClassifiedPost, info Info) error {
	if posts == nil {
		posts = []domain.ClassifiedPost{}
	}
	info.TotalPosts = len(posts)
	if info.Format == "" {
		info.Format = FormatJSON
	}
	if info.FiltersApplied == nil {
		info.FiltersApplied = map[string]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ExportInfo Info                    `json:"export_info"`
		Posts      []domain.ClassifiedPost `json:"posts"`
	}{info, posts})
}

// WriteNDJSON writes one JSON object per line.
func WriteNDJSON(w io.Writer, posts []domain.ClassifiedPost) error {
	enc := json.NewEncoder(w)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
