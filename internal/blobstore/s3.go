package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config mirrors the storage section of the config file. Endpoint is
// optional and enables S3-compatible backends (MinIO).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	// PublicBaseURL is the prefix of returned URLs. Defaults to the
	// virtual-hosted AWS form when empty.
	PublicBaseURL string
}

// S3Store implements Store on a single bucket. Object keys map to the
// path part of the public URL, so Delete can recover the key without
// any stored state.
type S3Store struct {
	client *s3.Client
	bucket string
	base   string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	base := cfg.PublicBaseURL
	if base == "" {
		if cfg.Endpoint != "" {
			base = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket, base: strings.TrimSuffix(base, "/")}, nil
}

func (s *S3Store) Upload(ctx context.Context, data []byte, pathHint string) (string, error) {
	key := strings.TrimPrefix(pathHint, "/")
	if key == "" {
		return "", fmt.Errorf("empty path hint")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", s.base, key), nil
}

func (s *S3Store) Delete(ctx context.Context, publicURL string) error {
	key, err := s.keyFromURL(publicURL)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) keyFromURL(publicURL string) (string, error) {
	if rest, ok := strings.CutPrefix(publicURL, s.base+"/"); ok {
		return rest, nil
	}
	// Fall back to the URL path for URLs minted under an older base.
	u, err := url.Parse(publicURL)
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("unrecognized blob url %q", publicURL)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}
