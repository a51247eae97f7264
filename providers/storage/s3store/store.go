// Package s3store uploads rendered skeleton overlays to S3 and returns a
// public URL. An unconfigured bucket is an expected state: Put reports "no
// URL" without error so the skeleton stage can fall back to inlining.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
)

type putClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads overlay images keyed by content hash, so identical renders
// map onto identical object URLs.
type Store struct {
	mu     sync.Mutex
	client putClient
	cfg    config.BucketConfig
}

// New builds a store; an empty bucket yields a nil (unconfigured) store.
func New(cfg config.BucketConfig) *Store {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil
	}
	return &Store{cfg: cfg}
}

// NewWithClient injects an S3 client; used by tests.
func NewWithClient(cfg config.BucketConfig, client putClient) *Store {
	store := New(cfg)
	if store != nil {
		store.client = client
	}
	return store
}

// Put uploads the bytes and returns the object URL. A nil receiver reports
// ("", nil): storage absent is not an error.
func (s *Store) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	if s == nil {
		return "", nil
	}
	client, err := s.resolveClient(ctx)
	if err != nil {
		return "", fmt.Errorf("s3 client: %w", err)
	}

	key := s.objectKey(data, mimeType)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key), nil
}

func (s *Store) objectKey(data []byte, mimeType string) string {
	sum := sha256.Sum256(data)
	ext := "jpg"
	if strings.HasSuffix(mimeType, "png") {
		ext = "png"
	}
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s.%s", hex.EncodeToString(sum[:]), ext)
	}
	return fmt.Sprintf("%s/%s.%s", prefix, hex.EncodeToString(sum[:]), ext)
}

func (s *Store) resolveClient(ctx context.Context) (putClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg)
	return s.client, nil
}
