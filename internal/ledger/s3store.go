package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/raphaelgruber/reelfacts/internal/models"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds configuration for the S3 ledger backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers (MinIO, R2).
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// maxIndexAttempts bounds optimistic retries of the index update.
const maxIndexAttempts = 8

// S3Store keeps run documents and the index as S3 objects. Index updates use
// conditional writes (If-Match / If-None-Match) and retry on conflict.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StoreFromClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client S3API, bucket, prefix string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3Store) runKey(id string) string {
	return path.Join(s.prefix, "runs", id+".json")
}

func (s *S3Store) indexKey() string {
	return path.Join(s.prefix, "runs", indexFileName)
}

// SaveRun uploads the run document, then merges its summary into the index.
func (s *S3Store) SaveRun(ctx context.Context, run *models.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.runKey(run.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("put run %s: %w", run.ID, err)
	}

	summary := run.Summary()
	for attempt := 1; attempt <= maxIndexAttempts; attempt++ {
		index, etag, err := s.getIndex(ctx)
		if err != nil {
			return err
		}

		body, err := json.Marshal(mergeIndex(index, summary))
		if err != nil {
			return fmt.Errorf("encode index: %w", err)
		}
		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.indexKey()),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		}
		if etag == "" {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(etag)
		}

		_, err = s.client.PutObject(ctx, input)
		if err == nil {
			return nil
		}
		if !isConditionalConflict(err) {
			return fmt.Errorf("put index: %w", err)
		}

		s.logger.Debug("index write conflict, retrying", "run_id", run.ID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("put index: gave up after %d conflicting writes", maxIndexAttempts)
}

// LoadRun downloads one run document.
func (s *S3Store) LoadRun(ctx context.Context, id string) (*models.Run, error) {
	data, _, err := s.get(ctx, s.runKey(id))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRecent downloads the index.
func (s *S3Store) ListRecent(ctx context.Context) ([]models.RunSummary, error) {
	index, _, err := s.getIndex(ctx)
	return index, err
}

// getIndex returns the index and its ETag. A missing index yields an empty list and no ETag.
func (s *S3Store) getIndex(ctx context.Context) ([]models.RunSummary, string, error) {
	data, etag, err := s.get(ctx, s.indexKey())
	if err != nil {
		if isNotFound(err) {
			return []models.RunSummary{}, "", nil
		}
		return nil, "", fmt.Errorf("get index: %w", err)
	}

	var index []models.RunSummary
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, "", fmt.Errorf("decode index: %w", err)
	}
	if index == nil {
		index = []models.RunSummary{}
	}
	return index, etag, nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}
	return data, aws.ToString(out.ETag), nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isConditionalConflict(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
