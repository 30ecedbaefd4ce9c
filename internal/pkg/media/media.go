package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const uploadTimeout = 30 * time.Second

// MaxFileSize is the per-file upload limit for logos and photos.
const MaxFileSize = 10 << 20 // 10 MiB

// Store persists listing media (logo, gallery photos) in an S3-compatible
// bucket and hands back object keys.
type Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStoreFromEnv creates a media store from environment configuration.
func NewStoreFromEnv() (*Store, error) {
	region := env.GetEnv("MEDIA_S3_REGION", "us-east-1")
	endpoint := env.GetEnv("MEDIA_S3_ENDPOINT", "")
	bucket := env.GetEnv("MEDIA_S3_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("MEDIA_S3_BUCKET is not configured")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			env.GetEnv("MEDIA_S3_ACCESS_KEY_ID", ""),
			env.GetEnv("MEDIA_S3_SECRET_ACCESS_KEY", ""),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // MinIO / B2 style endpoints
		}
	})

	log.Infof("[Media] S3 media store initialized for bucket: %s", bucket)
	return &Store{s3Client: s3Client, bucket: bucket}, nil
}

// SaveUpload streams one multipart upload into the bucket and returns the
// generated object key. The write is bounded by its own timeout so a slow
// media host delays only this request.
func (s *Store) SaveUpload(ctx context.Context, kind string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxFileSize {
		return "", fmt.Errorf("file %s exceeds the %d byte limit", fh.Filename, MaxFileSize)
	}

	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	key := buildObjectKey(kind, fh.Filename)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          io.LimitReader(file, MaxFileSize),
		ContentLength: aws.Int64(fh.Size),
		ContentType:   aws.String(fh.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("media upload failed for %s: %w", key, err)
	}
	return key, nil
}

// Delete removes one object. Used when a listing is purged.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func buildObjectKey(kind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 8 {
		ext = ".bin"
	}
	return fmt.Sprintf("media/%s/%s%s", kind, uuid.NewString(), ext)
}
