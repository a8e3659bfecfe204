package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const topCommunities = 10

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		body              TEXT,
		author            TEXT NOT NULL DEFAULT '',
		community         TEXT NOT NULL DEFAULT '',
		score             INTEGER NOT NULL DEFAULT 0,
		num_comments      INTEGER NOT NULL DEFAULT 0,
		created_utc       BIGINT NOT NULL,
		permalink         TEXT NOT NULL DEFAULT '',
		url               TEXT NOT NULL DEFAULT '',
		flair             TEXT,
		is_pinned         BOOLEAN NOT NULL DEFAULT FALSE,
		distinguished     TEXT NOT NULL DEFAULT '',
		platform_promoted BOOLEAN NOT NULL DEFAULT FALSE,
		over_18           BOOLEAN NOT NULL DEFAULT FALSE,
		classification    TEXT NOT NULL,
		signals           TEXT NOT NULL DEFAULT '[]',
		collected_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_classification ON posts(classification)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc)`,
	`CREATE TABLE IF NOT EXISTS search_history (
		id           TEXT PRIMARY KEY,
		request      TEXT NOT NULL,
		result_count INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		created_at   BIGINT NOT NULL,
		completed_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_created ON search_history(created_at)`,
}

const postColumns = `id, title, body, author, community, score, num_comments, created_utc,
	permalink, url, flair, is_pinned, distinguished, platform_promoted, over_18,
	classification, signals, collected_at`

const upsertPostSQL = `
	INSERT INTO posts (` + postColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		author = excluded.author,
		community = excluded.community,
		score = excluded.score,
		num_comments = excluded.num_comments,
		created_utc = excluded.created_utc,
		permalink = excluded.permalink,
		url = excluded.url,
		flair = excluded.flair,
		is_pinned = excluded.is_pinned,
		distinguished = excluded.distinguished,
		platform_promoted = excluded.platform_promoted,
		over_18 = excluded.over_18,
		classification = excluded.classification,
		signals = excluded.signals,
		collected_at = excluded.collected_at
	`

// SQLStorage implements Gateway on top of database/sql. The same statements
// serve SQLite and PostgreSQL; only placeholder syntax differs.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStorage(db *sql.DB, d dialect) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initDB initializes the database schema
func (s *SQLStorage) initDB() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) UpsertPost(ctx context.Context, post domain.ClassifiedPost) error {
	args, err := postArgs(post)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(upsertPostSQL), args...)
	return errors.Wrapf(err, "upsert post %s", post.ID)
}

// UpsertPosts writes the batch in one transaction; either every post lands or none does.
func (s *SQLStorage) UpsertPosts(ctx context.Context, posts []domain.ClassifiedPost) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert batch")
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(upsertPostSQL))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare upsert")
	}
	defer stmt.Close()

	for _, p := range posts {
		args, err := postArgs(p)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "upsert post %s", p.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit upsert batch")
}

func (s *SQLStorage) RecordSearchHistory(ctx context.Context, rec *domain.SearchHistoryRecord) error {
	req, err := json.Marshal(rec.Request)
	if err != nil {
		return errors.Wrap(err, "encode search request")
	}
	status := rec.Status
	if status == "" {
		status = domain.SearchInProgress
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO search_history (id, request, result_count, status, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, string(req), rec.ResultCount, string(status), rec.Error,
		rec.CreatedAt.UnixNano(), nullTime(rec.CompletedAt),
	)
	return errors.Wrapf(err, "record search history %s", rec.ID)
}

// CompleteSearchHistory moves an in-progress record to its final status. A
// record transitions once; completing it again reports ErrNotFound.
func (s *SQLStorage) CompleteSearchHistory(ctx context.Context, id string, status domain.SearchStatus, resultCount int, errMsg string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE search_history
		SET status = ?, result_count = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?`),
		string(status), resultCount, errMsg, time.Now().UTC().UnixNano(),
		id, string(domain.SearchInProgress),
	)
	if err != nil {
		return errors.Wrapf(err, "complete search history %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "complete search history %s", id)
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "in-progress search history %s", id)
	}
	return nil
}

func (s *SQLStorage) GetSearchHistory(ctx context.Context, id string) (*domain.SearchHistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, request, result_count, status, error, created_at, completed_at
		FROM search_history WHERE id = ?`), id)
	rec, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "search history %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get search history %s", id)
	}
	return rec, nil
}

func (s *SQLStorage) ListSearchHistory(ctx context.Context, limit int) ([]domain.SearchHistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, request, result_count, status, error, created_at, completed_at
		FROM search_history ORDER BY created_at DESC, id ASC LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list search history")
	}
	defer rows.Close()

	records := []domain.SearchHistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan search history")
		}
		records = append(records, *rec)
	}
	return records, errors.Wrap(rows.Err(), "list search history")
}

func (s *SQLStorage) QueryPosts(ctx context.Context, f PostFilter) ([]domain.ClassifiedPost, error) {
	var where []string
	var args []interface{}
	if f.Community != "" {
		where = append(where, "LOWER(community) = LOWER(?)")
		args = append(args, f.Community)
	}
	if f.Classification != "" {
		where = append(where, "classification = ?")
		args = append(args, string(f.Classification))
	}
	if f.Author != "" {
		where = append(where, "LOWER(author) = LOWER(?)")
		args = append(args, f.Author)
	}
	if f.Since != nil {
		where = append(where, "created_utc >= ?")
		args = append(args, f.Since.Unix())
	}
	if f.Until != nil {
		where = append(where, "created_utc <= ?")
		args = append(args, f.Until.Unix())
	}

	query := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_utc DESC, id ASC"
	if f.Limit > 0 {
		offset := f.Offset
		if offset < 0 {
			offset = 0
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query posts")
	}
	defer rows.Close()

	posts := []domain.ClassifiedPost{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan post")
		}
		posts = append(posts, *p)
	}
	return posts, errors.Wrap(rows.Err(), "query posts")
}

func (s *SQLStorage) GetPost(ctx context.Context, id string) (*domain.ClassifiedPost, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+postColumns+" FROM posts WHERE id = ?"), id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "post %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get post %s", id)
	}
	return p, nil
}

// Stats aggregates post and search counters. Result-count spread is computed
// over completed searches only.
func (s *SQLStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByClassification: make(map[domain.Classification]int, len(domain.Classifications)),
		TopCommunities:   []CommunityCount{},
	}
	for _, c := range domain.Classifications {
		st.ByClassification[c] = 0
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT community), COUNT(DISTINCT author) FROM posts`,
	).Scan(&st.TotalPosts, &st.UniqueCommunities, &st.UniqueAuthors)
	if err != nil {
		return nil, errors.Wrap(err, "count posts")
	}

	err = s.eachRow(ctx, `SELECT classification, COUNT(*) FROM posts GROUP BY classification`, nil,
		func(rows *sql.Rows) error {
			var c string
			var n int
			if err := rows.Scan(&c, &n); err != nil {
				return err
			}
			st.ByClassification[domain.Classification(c)] = n
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "count classifications")
	}

	err = s.eachRow(ctx, `SELECT status, COUNT(*) FROM search_history GROUP BY status`, nil,
		func(rows *sql.Rows) error {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			st.TotalSearches += n
			switch domain.SearchStatus(status) {
			case domain.SearchCompleted:
				st.CompletedSearches = n
			case domain.SearchFailed:
				st.FailedSearches = n
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "count searches")
	}

	var counts []float64
	err = s.eachRow(ctx, `SELECT result_count FROM search_history WHERE status = ?`,
		[]interface{}{string(domain.SearchCompleted)},
		func(rows *sql.Rows) error {
			var n int
			if err := rows.Scan(&n); err != nil {
				return err
			}
			counts = append(counts, float64(n))
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load result counts")
	}
	switch len(counts) {
	case 0:
	case 1:
		st.AvgResultsPerSearch = counts[0]
	default:
		st.AvgResultsPerSearch, st.StdDevResultsPerSearch = stat.MeanStdDev(counts, nil)
	}

	err = s.eachRow(ctx, `
		SELECT community, COUNT(*) AS n FROM posts
		GROUP BY community ORDER BY n DESC, community ASC LIMIT ?`,
		[]interface{}{topCommunities},
		func(rows *sql.Rows) error {
			var cc CommunityCount
			if err := rows.Scan(&cc.Community, &cc.Posts); err != nil {
				return err
			}
			st.TopCommunities = append(st.TopCommunities, cc)
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "top communities")
	}
	return st, nil
}

func (s *SQLStorage) eachRow(ctx context.Context, query string, args []interface{}, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func postArgs(p domain.ClassifiedPost) ([]interface{}, error) {
	signals := p.Signals
	if signals == nil {
		signals = []domain.Signal{}
	}
	encoded, err := json.Marshal(signals)
	if err != nil {
		return nil, errors.Wrapf(err, "encode signals for %s", p.ID)
	}
	return []interface{}{
		p.ID,
		p.Title,
		nullString(p.Body),
		p.Author,
		p.Community,
		p.Score,
		p.CommentCount,
		p.CreatedAt.Unix(),
		p.Permalink,
		p.URL,
		nullString(p.Flair),
		p.Pinned,
		string(p.Distinguished),
		p.PlatformPromoted,
		p.NSFW,
		string(p.Classification),
		string(encoded),
		p.CollectedAt.UnixNano(),
	}, nil
}

func scanPost(row scanner) (*domain.ClassifiedPost, error) {
	var (
		p                      domain.ClassifiedPost
		body, flair            sql.NullString
		distinguished, class   string
		signals                string
		createdUTC, collectedN int64
	)
	err := row.Scan(
		&p.ID,
		&p.Title,
		&body,
		&p.Author,
		&p.Community,
		&p.Score,
		&p.CommentCount,
		&createdUTC,
		&p.Permalink,
		&p.URL,
		&flair,
		&p.Pinned,
		&distinguished,
		&p.PlatformPromoted,
		&p.NSFW,
		&class,
		&signals,
		&collectedN,
	)
	if err != nil {
		return nil, err
	}
	if body.Valid {
		p.Body = &body.String
	}
	if flair.Valid {
		p.Flair = &flair.String
	}
	p.Distinguished = domain.ParseDistinguished(distinguished)
	p.Classification = domain.Classification(class)
	p.CreatedAt = time.Unix(createdUTC, 0).UTC()
	p.CollectedAt = time.Unix(0, collectedN).UTC()
	if err := json.Unmarshal([]byte(signals), &p.Signals); err != nil {
		return nil, errors.Wrapf(err, "decode signals for %s", p.ID)
	}
	return &p, nil
}

func scanHistory(row scanner) (*domain.SearchHistoryRecord, error) {
	var (
		rec       domain.SearchHistoryRecord
		request   string
		status    string
		createdN  int64
		completed sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &request, &rec.ResultCount, &status, &rec.Error, &createdN, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(request), &rec.Request); err != nil {
		return nil, errors.Wrapf(err, "decode request for %s", rec.ID)
	}
	rec.Status = domain.SearchStatus(status)
	rec.CreatedAt = time.Unix(0, createdN).UTC()
	if completed.Valid {
		t := time.Unix(0, completed.Int64).UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
