package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/export"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

const (
	defaultPageSize    = 100
	maxPageSize        = 1000
	defaultHistorySize = 50
)

func (s *Server) handleSearch(c *gin.Context) {
	var req domain.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("malformed request body: "+err.Error()))
		return
	}
	res, err := s.searcher.Search(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type collectBody struct {
	Communities []string `json:"communities"`
	Limit       int      `json:"limit"`
}

func (s *Server) handleCollectPromotional(c *gin.Context) {
	var body collectBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.fail(c, badRequest("malformed request body: "+err.Error()))
			return
		}
	}
	res, err := s.searcher.CollectPromotional(c.Request.Context(), body.Communities, body.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListPosts(c *gin.Context) {
	filter, applied, err := parsePostFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	filter.Limit, err = intParam(c, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	filter.Offset, err = intParam(c, "offset", 0, 0, -1)
	if err != nil {
		s.fail(c, err)
		return
	}

	posts, err := s.store.QueryPosts(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"posts":           posts,
		"count":           len(posts),
		"limit":           filter.Limit,
		"offset":          filter.Offset,
		"filters_applied": applied,
	})
}

func (s *Server) handleGetPost(c *gin.Context) {
	post, err := s.store.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "post": post})
}

func (s *Server) handleListHistory(c *gin.Context) {
	limit, err := intParam(c, "limit", defaultHistorySize, 1, maxPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	records, err := s.store.ListSearchHistory(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "history": records, "count": len(records)})
}

func (s *Server) handleReplay(c *gin.Context) {
	res, err := s.searcher.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, badRequest(err.Error()))
		return
	}
	filter, applied, err := parsePostFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	filter.Limit = s.opts.ExportMaxSize

	posts, err := s.store.QueryPosts(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}

	now := s.now().UTC()
	name := export.FileName(format, now)
	info := export.Info{ExportedAt: now, Format: format, FiltersApplied: applied}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, posts, info); err != nil {
		s.fail(c, err)
		return
	}

	if save, _ := strconv.ParseBool(c.Query("save")); save {
		if s.files == nil {
			s.fail(c, badRequest("export storage is not configured"))
			return
		}
		location, err := s.files.Save(c.Request.Context(), name, &buf)
		if err != nil {
			s.fail(c, &domain.PersistenceWriteError{Op: "save_export", Err: err})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Data exported successfully",
			"export_info": gin.H{
				"filename":        name,
				"location":        location,
				"format":          format,
				"total_posts":     len(posts),
				"filters_applied": applied,
				"download_url":    "/api/download/" + name,
			},
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("filename")
	if !export.ValidName(name) {
		s.fail(c, badRequest("invalid filename"))
		return
	}
	if s.files == nil {
		s.fail(c, domain.ErrNotFound)
		return
	}
	rc, err := s.files.Open(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer rc.Close()

	format, _ := export.ParseFormat(strings.TrimPrefix(extension(name), "."))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		s.logger.WithError(err).WithField("file", name).Warn("download interrupted")
	}
}

func (s *Server) handleStatistics(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"statistics":     stats,
		"uptime_seconds": s.now().Sub(s.started).Seconds(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	components := gin.H{"storage": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		components["storage"] = err.Error()
	}
	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  s.now().UTC().Format(time.RFC3339),
	})
}

// parsePostFilter reads community, classification, author, start_date and
// end_date. Dates accept any layout dateparse understands and default to UTC.
func parsePostFilter(c *gin.Context) (storage.PostFilter, map[string]string, error) {
	var f storage.PostFilter
	applied := map[string]string{}

	if v := strings.TrimSpace(c.Query("community")); v != "" {
		f.Community = domain.NormalizeCommunity(v)
		applied["community"] = f.Community
	}
	if v := strings.TrimSpace(c.Query("classification")); v != "" {
		class := domain.Classification(v)
		if !validClassification(class) {
			return f, nil, badRequest("unknown classification " + strconv.Quote(v))
		}
		f.Classification = class
		applied["classification"] = v
	}
	if v := strings.TrimSpace(c.Query("author")); v != "" {
		f.Author = v
		applied["author"] = v
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &f.Since}, {"end_date", &f.Until}} {
		v := strings.TrimSpace(c.Query(p.name))
		if v == "" {
			continue
		}
		t, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			return f, nil, badRequest("invalid " + p.name + " " + strconv.Quote(v))
		}
		t = t.UTC()
		*p.dst = &t
		applied[p.name] = t.Format(time.RFC3339)
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return f, nil, badRequest("end_date is before start_date")
	}
	return f, applied, nil
}

func validClassification(c domain.Classification) bool {
	for _, known := range domain.Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// intParam reads an integer query parameter clamped to [lo, hi]; hi < 0 means unbounded.
func intParam(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name + " must be an integer")
	}
	if n < lo {
		n = lo
	}
	if hi >= 0 && n > hi {
		n = hi
	}
	return n, nil
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
