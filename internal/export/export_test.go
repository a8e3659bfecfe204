package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func samplePosts() []domain.ClassifiedPost {
	body := "Use code SAVE20, 20% off"
	return []domain.ClassifiedPost{
		{
			Post: domain.Post{
				ID: "p1", Title: "Big sale, today only", Body: &body, Author: "gear_store",
				Community: "deals", Score: 12, CommentCount: 3, CreatedAt: epoch,
				URL: "https://shop.example.com/?ref=abc",
			},
			Classification: domain.ClassificationContentPromotional,
			Signals:        []domain.Signal{"promo_keywords", "price_pattern"},
			CollectedAt:    epoch,
		},
		{
			Post: domain.Post{
				ID: "p2", Title: "Ask: best \"budget\" keyboard?", Author: "someone",
				Community: "keyboards", CreatedAt: epoch.Add(-time.Hour),
			},
			Classification: domain.ClassificationNone,
			Signals:        []domain.Signal{},
			CollectedAt:    epoch,
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "reddit_data_export_20240301_120000.csv", FileName(FormatCSV, epoch))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samplePosts()))

	raw := buf.String()
	require.True(t, strings.HasPrefix(raw, "\uFEFF"), "missing BOM")

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\uFEFF"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "p1", records[1][0])
	assert.Equal(t, "Use code SAVE20, 20% off", records[1][2])
	assert.Equal(t, "promo_keywords;price_pattern", records[1][16])
	assert.Equal(t, `Ask: best "budget" keyboard?`, records[2][1])
	assert.Equal(t, "", records[2][2])
}

func TestWriteCSV_EmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\uFEFF"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	info := Info{ExportedAt: epoch, FiltersApplied: map[string]string{"community": "deals"}}
	require.NoError(t, WriteJSON(&buf, samplePosts(), info))

	var out struct {
		ExportInfo struct {
			TotalPosts     int               `json:"total_posts"`
			Format         string            `json:"format"`
			FiltersApplied map[string]string `json:"filters_applied"`
		} `json:"export_info"`
		Posts []domain.ClassifiedPost `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 2, out.ExportInfo.TotalPosts)
	assert.Equal(t, "json", out.ExportInfo.Format)
	assert.Equal(t, "deals", out.ExportInfo.FiltersApplied["community"])
	require.Len(t, out.Posts, 2)
	assert.Equal(t, domain.ClassificationContentPromotional, out.Posts[0].Classification)
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatNDJSON, samplePosts(), Info{}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var p domain.ClassifiedPost
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &p))
	assert.Equal(t, "p2", p.ID)
}

func TestWriterService_AppendsAcrossRuns(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "data", "current.json")

	for run := 0; run < 2; run++ {
		w := &WriterService{FilePath: path, Logger: logger}
		input := make(chan domain.ClassifiedPost)
		var wg sync.WaitGroup
		wg.Add(1)
		go w.Start(&wg, input)
		for _, p := range samplePosts() {
			input <- p
		}
		close(input)
		wg.Wait()
		require.NoError(t, w.Err())
		assert.Equal(t, 2, w.Written())
	}

	store, err := NewLocalFileStore(filepath.Dir(path))
	require.NoError(t, err)
	rc, err := store.Open(context.Background(), "current.json")
	require.NoError(t, err)
	defer rc.Close()
	n := 0
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		n++
	}
	assert.Equal(t, 4, n)
}

func TestWriterService_DrainsOnOpenFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := t.TempDir()
	w := &WriterService{FilePath: dir, Logger: logger}

	input := make(chan domain.ClassifiedPost)
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Start(&wg, input)
	for _, p := range samplePosts() {
		input <- p
	}
	close(input)
	wg.Wait()

	assert.Error(t, w.Err())
	assert.Equal(t, 0, w.Written())
	assert.NotEmpty(t, hook.Entries)
}

func TestLocalFileStore(t *testing.T) {
	store, err := NewLocalFileStore(filepath.Join(t.TempDir(), "exports"))
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Save(ctx, "a.csv", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, "a.csv"))

	rc, err := store.Open(ctx, "a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Open(ctx, "missing.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Save(ctx, "../escape.csv", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Open(ctx, "sub/a.csv")
	assert.Error(t, err)
}

func TestNewFileStore(t *testing.T) {
	_, err := NewFileStore(StoreConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = NewFileStore(StoreConfig{Type: StoreS3})
	assert.Error(t, err, "bucket is required")

	s, err := NewFileStore(StoreConfig{Type: StoreS3, Bucket: "exports", Region: "us-west-1", Prefix: "/reports/"})
	require.NoError(t, err)
	assert.Equal(t, "reports/x.csv", s.(*S3FileStore).key("x.csv"))
}
