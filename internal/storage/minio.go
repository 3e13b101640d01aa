// Package storage exports archived documents to object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/doctrack/doctrack/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveStore receives a JSON snapshot of every archived document,
// audit trail included.
type ArchiveStore interface {
	PutArchive(ctx context.Context, d *document.Document) (string, error)
}

// ObjectKey is the key an archived document is stored under.
func ObjectKey(prefix string, d *document.Document) string {
	return path.Join(prefix, d.CreatedAt.UTC().Format("2006/01"), d.ID+".json")
}

// MinIOArchive writes archive snapshots to a MinIO/S3 bucket.
type MinIOArchive struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOArchive creates the client and ensures the bucket exists.
func NewMinIOArchive(ctx context.Context, o Options) (*MinIOArchive, error) {
	if !o.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOArchive{client: mc, bucket: o.Bucket, prefix: o.Prefix}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// already exists is fine
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func (s *MinIOArchive) PutArchive(ctx context.Context, d *document.Document) (string, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	key := ObjectKey(s.prefix, d)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", err
	}
	return key, nil
}

// PresignedURL returns a time limited GET URL for an archived object.
func (s *MinIOArchive) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// MemoryArchive keeps snapshots in memory. Used in tests and when no
// object storage is configured but exports should still be inspectable.
type MemoryArchive struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{Objects: map[string][]byte{}}
}

func (m *MemoryArchive) PutArchive(_ context.Context, d *document.Document) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	key := ObjectKey("", d)
	m.mu.Lock()
	m.Objects[key] = b
	m.mu.Unlock()
	return key, nil
}

// Get returns a stored snapshot.
func (m *MemoryArchive) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Objects[key]
	return b, ok
}
