// Package storage implements the photo storage boundary. The workflow only
// ever stores and forwards the returned path; the bytes live on local disk
// or in an S3-compatible bucket depending on configuration.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dkachan/go-passport-office/internal/domain"
)

// Store persists uploaded photo bytes under a deterministic name and
// returns the stored path.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

// ObjectName builds the deterministic photo name for a citizen's request:
// citizen id, surname, name, the task kind slug, and a short uniqueness
// token, prefixed with a date-partitioned directory.
func ObjectName(citizen *domain.Citizen, kind domain.Kind, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	now := time.Now().UTC()
	token := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("photos/%04d/%02d/%02d/%d-%s-%s-%s-%s%s",
		now.Year(), now.Month(), now.Day(),
		citizen.ID, citizen.Surname, citizen.Name, kind.Slug(), token, ext)
}

// LocalStore writes photos under a base directory.
type LocalStore struct {
	BaseDir string
}

// NewLocalStore constructs a disk-backed store rooted at baseDir.
func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{BaseDir: baseDir}
}

// Save writes the bytes to BaseDir/name, creating parent directories.
func (s *LocalStore) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	full := filepath.Join(s.BaseDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return name, nil
}

// MinioConfig holds the S3-compatible backend settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore stores photos in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Save uploads the bytes as an object named name.
func (s *MinioStore) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}
