package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

// StoreConfig picks where saved exports go.
type StoreConfig struct {
	Type      string `mapstructure:"type"`
	Directory string `mapstructure:"directory"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
}

// FileStore keeps export files addressable by name.
type FileStore interface {
	Save(ctx context.Context, name string, body io.Reader) (location string, err error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// NewFileStore builds the configured store. An empty type means local.
func NewFileStore(cfg StoreConfig) (FileStore, error) {
	switch cfg.Type {
	case "", StoreLocal:
		return NewLocalFileStore(cfg.Directory)
	case StoreS3:
		return NewS3FileStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported export store type: %s", cfg.Type)
	}
}

// ValidName rejects names that could escape the store's namespace.
func ValidName(name string) bool {
	return name != "" && name != "." && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

type LocalFileStore struct {
	dir string
}

func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalFileStore{dir: dir}, nil
}

func (s *LocalFileStore) Save(_ context.Context, name string, body io.Reader) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func (s *LocalFileStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid export name %q", name)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("export %s: %w", name, domain.ErrNotFound)
	}
	return f, err
}

type S3FileStore struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
	svc      *s3.S3
}

func NewS3FileStore(cfg StoreConfig) (*S3FileStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 export store requires a bucket")
	}
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3FileStore{
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		uploader: s3manager.NewUploader(sess),
		svc:      s3.New(sess),
	}, nil
}

func (s *S3FileStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3FileStore) Save(ctx context.Context, name string, body io.Reader) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return out.Location, nil
}

func (s *S3FileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid export name %q", name)
	}
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("export %s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return out.Body, nil
}
