package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"admissions/internal/platform/config"
	"admissions/pkg/platform/sentinel"
)

// Archive stores rendered receipts by key.
type Archive interface {
	Put(ctx context.Context, key string, pdf []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// MemoryArchive keeps receipts in process.
type MemoryArchive struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{files: make(map[string][]byte)}
}

func (a *MemoryArchive) Put(_ context.Context, key string, pdf []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[key] = bytes.Clone(pdf)
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pdf, ok := a.files[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return bytes.Clone(pdf), nil
}

// S3Archive stores receipts as objects under a key prefix.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archive loads AWS credentials from the default chain.
func NewS3Archive(ctx context.Context, cfg config.ReceiptConfig) (*S3Archive, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Archive{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *S3Archive) Put(ctx context.Context, key string, pdf []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.prefix + key),
		Body:        bytes.NewReader(pdf),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("put receipt %s: %w", key, err)
	}
	return nil
}

func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.prefix + key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
