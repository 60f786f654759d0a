// Package archive stores frozen copies of historicalized versions in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dealdesk/api/internal/deal"
)

var ErrNotArchived = errors.New("snapshot not archived")

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type objectStore interface {
	put(ctx context.Context, key string, data []byte) error
	get(ctx context.Context, key string) ([]byte, error)
}

type Archive struct {
	objects objectStore
}

// NewMinio connects to the bucket, creating it when missing.
func NewMinio(ctx context.Context, opts Options) (*Archive, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return &Archive{objects: &minioObjects{client: client, bucket: opts.Bucket}}, nil
}

// Put writes the snapshot to <propertyId>/<version>.json, overwriting any
// earlier copy.
func (a *Archive) Put(ctx context.Context, snap deal.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := a.objects.put(ctx, ObjectKey(snap.PropertyID, snap.Version), payload); err != nil {
		return fmt.Errorf("archive %s@%s: %w", snap.PropertyID, snap.Version, err)
	}
	return nil
}

func (a *Archive) Get(ctx context.Context, propertyID, version string) (deal.Snapshot, error) {
	payload, err := a.objects.get(ctx, ObjectKey(propertyID, version))
	if err != nil {
		return deal.Snapshot{}, err
	}
	var snap deal.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return deal.Snapshot{}, fmt.Errorf("decode archived snapshot: %w", err)
	}
	return snap, nil
}

func ObjectKey(propertyID, version string) string {
	return strings.ReplaceAll(propertyID, "/", "_") + "/" + strings.ReplaceAll(version, "/", "_") + ".json"
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (m *minioObjects) put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioObjects) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotArchived
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
