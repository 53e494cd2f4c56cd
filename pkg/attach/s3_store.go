package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements ObjectStore using AWS S3 or an S3-compatible service.
type S3Store struct {
	client   *s3.Client
	region   string
	endpoint string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Region          string
	Endpoint        string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	AccessKeyID     string // Optional; the default credential chain is used when empty
	SecretAccessKey string
}

// NewS3Store creates a new S3-backed object store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})
	return &S3Store{client: client, region: cfg.Region, endpoint: cfg.Endpoint}, nil
}

func (s *S3Store) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, s.wrap("head", bucket, key, err)
	}
	info := ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap("get", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// Put uploads data with If-None-Match so a concurrent writer cannot be clobbered.
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if statusOf(err) == http.StatusPreconditionFailed {
			return fmt.Errorf("%w: s3 object %s/%s exists", ErrStorageConflict, bucket, key)
		}
		return s.wrap("put", bucket, key, err)
	}
	return nil
}

// Delete removes the object. S3 does not report deletes of absent keys.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap("delete", bucket, key, err)
	}
	return nil
}

// URL is the path-style address on a custom endpoint, else the virtual-hosted AWS address.
func (s *S3Store) URL(bucket, key string) *url.URL {
	if s.endpoint != "" {
		u, err := url.Parse(strings.TrimRight(s.endpoint, "/"))
		if err != nil {
			return nil
		}
		return u.JoinPath(bucket, key)
	}
	host := bucket + ".s3.amazonaws.com"
	if s.region != "" && s.region != "us-east-1" {
		host = bucket + ".s3." + s.region + ".amazonaws.com"
	}
	return (&url.URL{Scheme: "https", Host: host, Path: "/"}).JoinPath(key)
}

func (s *S3Store) wrap(op, bucket, key string, err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) || statusOf(err) == http.StatusNotFound {
		return missing(fmt.Sprintf("s3 object %s/%s", bucket, key), err)
	}
	return fmt.Errorf("s3 %s failed for %s/%s: %w", op, bucket, key, err)
}

func statusOf(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
