// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// AWS S3 storage backend for the media proxy.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/config"
)

// uploadURLExpiry bounds presigned direct-to-client upload URLs.
const uploadURLExpiry = 15 * time.Minute

// requestTimeout is the hard deadline on every outbound bucket call,
// matching the Bunny backend's HTTP client.
const requestTimeout = 10 * time.Second

func s3HTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

type S3Backend struct {
	bucket   string
	region   string
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
}

// NewS3Backend constructs a new S3 backend based on the configured
// environment variables.
func NewS3Backend(cfg config.S3Config) (*S3Backend, error) {
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(s3HTTPClient()),
	)
	if err != nil {
		log.WithError(err).Error("failed to load AWS configuration")
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	// Probe bucket access before accepting traffic.
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		log.WithError(err).WithField("bucket", cfg.Bucket).
			Error("could not access configured S3 bucket")
		return nil, err
	}

	return &S3Backend{
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
	}, nil
}

func (b *S3Backend) Name() string {
	return "AWS S3 (" + b.bucket + ")"
}

func (b *S3Backend) Capabilities() Capabilities {
	return Capabilities{
		NativeTransform:     false,
		DerivativeDiscovery: true,
	}
}

func (b *S3Backend) Put(ctx context.Context, data []byte, p, contentType string) (string, error) {
	if !validObjectPath(p) {
		return "", ErrInvalidPath
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(p),
		Body:   bytes.NewReader(data),
		// Objects are served straight from the bucket URL, so
		// every upload is tagged publicly readable.
		ACL: types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		log.WithError(err).WithField("path", p).Error("failed to upload to S3")
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return b.PublicURLFor(p), nil
}

func (b *S3Backend) Fetch(ctx context.Context, p string) ([]byte, error) {
	if !validObjectPath(p) {
		return nil, ErrInvalidPath
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (b *S3Backend) Exists(ctx context.Context, p string) (bool, error) {
	if !validObjectPath(p) {
		return false, ErrInvalidPath
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (b *S3Backend) Delete(ctx context.Context, p string) error {
	if !validObjectPath(p) {
		return ErrInvalidPath
	}

	// DeleteObject succeeds for absent keys, which is exactly the
	// idempotency the cleanup sweep relies on.
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(p),
	})

	return err
}

func (b *S3Backend) ListByPattern(ctx context.Context, pattern string) ([]string, error) {
	// Everything up to the first metacharacter narrows the listing
	// server-side; the glob is applied to the returned keys.
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		prefix = pattern[:i]
	}

	var matches []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			dir, name := path.Split(key)
			patDir, patName := path.Split(pattern)
			if dir != patDir {
				continue
			}
			if ok, _ := path.Match(patName, name); ok {
				matches = append(matches, key)
			}
		}
	}

	return matches, nil
}

func (b *S3Backend) PublicURLFor(p string) string {
	if strings.Contains(b.bucket, ".") {
		// Path-style URL for buckets with dots.
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", b.region, b.bucket, p)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, p)
}

// PresignUpload returns a time-boxed URL that lets a client PUT an
// object directly into the bucket without passing through the proxy.
func (b *S3Backend) PresignUpload(ctx context.Context, p, contentType string) (string, error) {
	if !validObjectPath(p) {
		return "", ErrInvalidPath
	}

	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(p),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLExpiry
	})
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
