// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Filesystem storage backend for the media proxy.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/xattr"
	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/config"
)

// contentTypeAttr stores the upload-time content type on the file
// itself, so a later Fetch can report it without guessing.
const contentTypeAttr = "user.mediaproxy.content-type"

type FSBackend struct {
	base      string
	publicURL string
}

func NewFSBackend(cfg config.FSConfig) (*FSBackend, error) {
	base, err := filepath.Abs(filepath.Clean(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &FSBackend{
		base:      base,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

func (b *FSBackend) Name() string {
	return fmt.Sprintf("Filesystem (%s)", b.base)
}

func (b *FSBackend) Capabilities() Capabilities {
	return Capabilities{
		NativeTransform:     false,
		DerivativeDiscovery: true,
	}
}

// resolve maps a relative object path to an absolute filesystem path
// and verifies it stays inside the base directory. The containment
// check holds even if upstream validation was bypassed.
func (b *FSBackend) resolve(p string) (string, error) {
	if !validObjectPath(p) {
		return "", ErrInvalidPath
	}

	full, err := filepath.Abs(filepath.Join(b.base, filepath.FromSlash(p)))
	if err != nil {
		return "", ErrInvalidPath
	}

	if !strings.HasPrefix(full, b.base+string(os.PathSeparator)) {
		return "", ErrInvalidPath
	}

	return full, nil
}

func (b *FSBackend) Put(ctx context.Context, data []byte, p, contentType string) (string, error) {
	full, err := b.resolve(p)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		log.WithError(err).WithField("path", filepath.Dir(full)).
			Error("failed to create storage directory")
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if err := os.WriteFile(full, data, 0644); err != nil {
		log.WithError(err).WithField("file", full).Error("failed to write file")
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if contentType != "" {
		if err := xattr.Set(full, contentTypeAttr, []byte(contentType)); err != nil {
			// Not all filesystems carry xattrs; the extension
			// fallback in ContentType covers those.
			log.WithError(err).WithField("file", full).
				Debug("failed to store content type attribute")
		}
	}

	return b.PublicURLFor(p), nil
}

func (b *FSBackend) Fetch(ctx context.Context, p string) ([]byte, error) {
	full, err := b.resolve(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}

	return data, err
}

func (b *FSBackend) Exists(ctx context.Context, p string) (bool, error) {
	full, err := b.resolve(p)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !info.IsDir(), nil
}

func (b *FSBackend) Delete(ctx context.Context, p string) error {
	full, err := b.resolve(p)
	if err != nil {
		return err
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return ErrInvalidPath
	}

	err = os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (b *FSBackend) ListByPattern(ctx context.Context, pattern string) ([]string, error) {
	dir, namePattern := path.Split(pattern)

	root := b.base
	if dir != "" {
		resolved, err := filepath.Abs(filepath.Join(b.base, filepath.FromSlash(dir)))
		if err != nil || !strings.HasPrefix(resolved, b.base) {
			return nil, ErrInvalidPath
		}
		root = resolved
	}

	var matches []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		ok, err := path.Match(namePattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			rel, err := filepath.Rel(b.base, p)
			if err != nil {
				return err
			}
			matches = append(matches, filepath.ToSlash(rel))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return matches, nil
}

func (b *FSBackend) PublicURLFor(p string) string {
	return b.publicURL + "/" + p
}

// ContentType reports the stored content type of an object, falling
// back to the extension when no xattr was recorded.
func (b *FSBackend) ContentType(p string) string {
	full, err := b.resolve(p)
	if err == nil {
		if v, err := xattr.Get(full, contentTypeAttr); err == nil && len(v) > 0 {
			return string(v)
		}
	}

	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}

	return "application/octet-stream"
}
