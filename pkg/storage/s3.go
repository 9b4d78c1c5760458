package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used by S3Storage.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config carries the bucket location and static credentials.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	URLTTL          time.Duration
}

// S3Storage stores uploads in a private bucket and serves presigned GET links.
type S3Storage struct {
	client    s3API
	presigner s3Presigner
	bucket    string
	ttl       time.Duration
}

// NewS3Storage loads AWS configuration and builds an S3 backed store.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return newS3Storage(client, s3.NewPresignClient(client), cfg.Bucket, cfg.URLTTL), nil
}

func newS3Storage(client s3API, presigner s3Presigner, bucket string, ttl time.Duration) *S3Storage {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Storage{client: client, presigner: presigner, bucket: bucket, ttl: ttl}
}

// Put uploads r under key.
func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

// Open streams the object body. Callers must close it.
func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	return out.Body, nil
}

// URL returns a presigned GET link valid for the configured TTL.
func (s *S3Storage) URL(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign s3 object: %w", err)
	}
	return req.URL, nil
}

// KeyFromURL extracts the object key from a virtual-hosted or path-style bucket URL.
func (s *S3Storage) KeyFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if !strings.HasPrefix(parsed.Host, s.bucket+".") {
		key = strings.TrimPrefix(key, s.bucket+"/")
	}
	if key == "" {
		return "", fmt.Errorf("file url has no object key")
	}
	return key, nil
}

// Delete removes key from the bucket.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}
