package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type S3Options struct {
	// Endpoint overrides the AWS endpoint for S3-compatible stores
	// (MinIO, R2). Empty means real AWS.
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	BaseURL        string
	MaxUploadBytes int64
}

type S3Uploader struct {
	client         *s3.Client
	bucket         string
	baseURL        string
	maxUploadBytes int64
}

func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("media bucket is required")
	}
	if opts.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	return &S3Uploader{
		client:         client,
		bucket:         opts.Bucket,
		baseURL:        baseURL,
		maxUploadBytes: opts.MaxUploadBytes,
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, blob Blob) (string, error) {
	data, mimeType, err := readAndValidate(blob, u.maxUploadBytes)
	if err != nil {
		return "", err
	}

	key := objectKey(blob.Kind, blob.OriginalName)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3: %w", blob.Kind, err)
	}

	return u.baseURL + "/" + key, nil
}

func objectKey(kind Kind, originalName string) string {
	ext := strings.ToLower(path.Ext(path.Base(originalName)))
	if len(ext) > 8 {
		ext = ""
	}
	return path.Join(string(kind), uuid.NewString()+ext)
}
