package payload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
)

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectAPI is the subset of the MinIO client the store calls.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, name string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, name string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// ObjectStore keeps payloads in an S3 compatible bucket under the same
// content-derived references as LocalStore.
type ObjectStore struct {
	client objectAPI
	bucket string
	// read fetches a whole object; replaced in tests.
	read func(ctx context.Context, name string) ([]byte, error)
}

// NewObjectStore connects to the endpoint and creates the bucket if it does
// not exist yet.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to reach object storage at %s: %w", cfg.Endpoint, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newObjectStore(client, cfg.Bucket), nil
}

func newObjectStore(client objectAPI, bucket string) *ObjectStore {
	s := &ObjectStore{client: client, bucket: bucket}
	s.read = s.readObject
	return s
}

func (s *ObjectStore) Put(ctx context.Context, data []byte, ext string) (string, error) {
	ref := ContentRef(data, ext)

	if _, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{}); err == nil {
		return ref, nil
	} else if !isNoSuchKey(err) {
		return "", fmt.Errorf("failed to store payload: %w", err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, ref, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: MIMEType(ref, data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	return ref, nil
}

func (s *ObjectStore) Read(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", broker.ErrInvalidPayload)
	}
	data, err := s.read(ctx, ref)
	if isNoSuchKey(err) {
		return nil, fmt.Errorf("%w: %s", broker.ErrPayloadNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s: %w", ref, err)
	}
	return data, nil
}

func (s *ObjectStore) readObject(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// GetObject is lazy; a missing key surfaces on the first read.
	return io.ReadAll(obj)
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.Code == "NoSuchKey"
}
