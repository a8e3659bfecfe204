package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// NewPostgresStorage connects to PostgreSQL using a lib/pq connection string.
func NewPostgresStorage(uri string) (*SQLStorage, error) {
	if uri == "" {
		return nil, errors.New("postgres storage requires a connection URI")
	}
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return newSQLStorage(db, dialectPostgres)
}
