// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Bunny edge-storage backend for the media proxy.
//
// This backend is a thin HTTP wrapper around the storage-zone API:
// PUT/DELETE/GET against the zone endpoint with a pre-shared access
// key. The pull zone in front of the storage zone performs image
// transformations itself via URL query parameters, so the pipeline
// redirects transform requests instead of producing derivatives
// locally. The flip side is that derivatives created before a zone
// migration cannot be discovered: the storage API has no pattern
// search, and cleanup reports the gap instead of hiding it.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/config"
)

type BunnyBackend struct {
	zone      string
	accessKey string
	endpoint  string
	pullZone  string
	client    *http.Client
}

func NewBunnyBackend(cfg config.BunnyConfig) (*BunnyBackend, error) {
	return &BunnyBackend{
		zone:      cfg.StorageZone,
		accessKey: cfg.AccessKey,
		endpoint:  cfg.Endpoint,
		pullZone:  cfg.PullZone,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (b *BunnyBackend) Name() string {
	return "Bunny Storage (" + b.zone + ")"
}

func (b *BunnyBackend) Capabilities() Capabilities {
	return Capabilities{
		NativeTransform:     true,
		DerivativeDiscovery: false,
	}
}

func (b *BunnyBackend) storageURL(p string) string {
	return fmt.Sprintf("https://%s/%s/%s", b.endpoint, b.zone, p)
}

func (b *BunnyBackend) do(ctx context.Context, method, p string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.storageURL(p), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("AccessKey", b.accessKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return b.client.Do(req)
}

func (b *BunnyBackend) Put(ctx context.Context, data []byte, p, contentType string) (string, error) {
	if !validObjectPath(p) {
		return "", ErrInvalidPath
	}

	resp, err := b.do(ctx, http.MethodPut, p, bytes.NewReader(data), contentType)
	if err != nil {
		log.WithError(err).WithField("path", p).Error("failed to upload to Bunny storage")
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{
			"path":   p,
			"status": resp.StatusCode,
		}).Error("Bunny storage rejected upload")
		return "", fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}

	return b.PublicURLFor(p), nil
}

func (b *BunnyBackend) Fetch(ctx context.Context, p string) ([]byte, error) {
	if !validObjectPath(p) {
		return nil, ErrInvalidPath
	}

	resp, err := b.do(ctx, http.MethodGet, p, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("bunny storage fetch for %q: status %d", p, resp.StatusCode)
	}
}

func (b *BunnyBackend) Exists(ctx context.Context, p string) (bool, error) {
	if !validObjectPath(p) {
		return false, ErrInvalidPath
	}

	resp, err := b.do(ctx, http.MethodHead, p, nil, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("bunny storage probe for %q: status %d", p, resp.StatusCode)
	}
}

func (b *BunnyBackend) Delete(ctx context.Context, p string) error {
	if !validObjectPath(p) {
		return ErrInvalidPath
	}

	resp, err := b.do(ctx, http.MethodDelete, p, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// A 404 means the object was already gone; delete is idempotent.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("bunny storage delete for %q: status %d", p, resp.StatusCode)
	}

	return nil
}

func (b *BunnyBackend) ListByPattern(ctx context.Context, pattern string) ([]string, error) {
	log.WithFields(log.Fields{
		"backend": b.Name(),
		"pattern": pattern,
	}).Warn("backend does not support derivative discovery")

	return nil, nil
}

func (b *BunnyBackend) PublicURLFor(p string) string {
	return "https://" + b.pullZone + "/" + p
}

// Hostnames returns every hostname this backend may be fetched from,
// for seeding the outbound allowlist.
func (b *BunnyBackend) Hostnames() []string {
	return []string{b.endpoint, b.pullZone}
}
