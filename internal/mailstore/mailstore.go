// Package mailstore fetches raw inbound messages that the SES receipt rule
// wrote to S3.
package mailstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GetObjectAPI is the subset of the S3 client used by Store.
// Used for testing with mock implementations.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StoreConfig holds the configuration for creating a Store.
type StoreConfig struct {
	Region    string
	Bucket    string
	KeyPrefix string
}

// Store reads raw messages by message id.
type Store struct {
	bucket    string
	keyPrefix string
	client    GetObjectAPI
}

// New creates a Store backed by the default AWS credential chain.
func New(ctx context.Context, cfg StoreConfig) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg, s3.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Store with a custom client, used for testing.
func NewWithClient(cfg StoreConfig, client GetObjectAPI) *Store {
	return &Store{
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		client:    client,
	}
}

// Key returns the object key for a message id.
func (s *Store) Key(messageID string) string {
	return s.keyPrefix + messageID
}

// Fetch returns the raw bytes of the message. A nil slice with a nil error
// means the object exists but has no retrievable body. A zero-length object
// yields an empty slice.
func (s *Store) Fetch(ctx context.Context, messageID string) ([]byte, error) {
	key := s.Key(messageID)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	if out == nil || out.Body == nil {
		return nil, nil
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return raw, nil
}
