package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Sink stores a finished export and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, data io.Reader) (string, error)
}

// DirSink writes exports into a local directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	dst := filepath.Join(s.Dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// S3Sink uploads exports to a bucket. Credentials come from the default AWS
// chain (environment, shared config or instance role).
type S3Sink struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

func NewS3Sink(region, bucket, prefix string) (*S3Sink, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Sink{bucket: bucket, prefix: prefix, uploader: s3manager.NewUploader(sess)}, nil
}

func (s *S3Sink) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	key := path.Join(s.prefix, name)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return out.Location, nil
}
