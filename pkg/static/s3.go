package static

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Source serves files from an S3 bucket.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	src := static.NewS3Source(s3.NewFromConfig(cfg), "my-bucket", "assets/")
//	r.Get("/static/*", static.App(src, static.Config{Prefix: "/static/"}))
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Source creates a source reading from bucket. prefix, when
// non-empty, is prepended to every object key.
func NewS3Source(client *s3.Client, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, FileInfo, error) {
	key := s.prefix + strings.TrimPrefix(name, "/")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, FileInfo{}, ErrNotFound
		}
		return nil, FileInfo{}, err
	}

	info := FileInfo{Size: -1}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	return out.Body, info, nil
}
