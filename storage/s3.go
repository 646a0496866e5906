package storage

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/version"
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps one object per key in an S3-compatible bucket.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store creates an S3 store. If cfg.Endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Store(ctx context.Context, cfg am.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithAppID(version.Get().AppID()),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Store(s3.NewFromConfig(awsCfg, s3opts...), cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key + ".json"
	}
	return path.Join(s.prefix, key+".json")
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, errors.NewNotFoundError("graph %s", key)
		}
		return nil, errors.Wrapf(err, "s3 get object %s", s.objectKey(key))
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %s", s.objectKey(key))
	}
	return blob, nil
}

// Set implements Store.
func (s *S3Store) Set(ctx context.Context, key string, blob []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, "s3 put object %s", s.objectKey(key))
	}
	return nil
}
