// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Package storage implements an interface that can be implemented by
// media storage backends, such as Bunny edge storage, S3 or the local
// filesystem.
//
// Backends differ in capability: some can transform images at the
// edge themselves, some can enumerate stored objects by pattern (which
// is what derivative cleanup relies on), and some can do neither.
// Capabilities are static per implementation and drive which code path
// the transformation pipeline takes.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrInvalidPath is returned for paths that name a directory,
	// lack a file extension or resolve outside the backend's root.
	ErrInvalidPath = errors.New("storage: invalid object path")

	// ErrNotFound is returned when the requested object does not
	// exist at the backend.
	ErrNotFound = errors.New("storage: object not found")

	// ErrUploadFailed wraps backend-side upload failures.
	ErrUploadFailed = errors.New("storage: upload failed")
)

// Capabilities describes what a backend implementation can do beyond
// the basic object operations.
type Capabilities struct {
	// NativeTransform indicates that the backend accepts image
	// transformation parameters on its public URLs, so transform
	// requests can be redirected instead of processed locally.
	NativeTransform bool

	// DerivativeDiscovery indicates that ListByPattern performs a
	// real search. Backends without it return an empty list and the
	// cleanup subsystem reports derivatives as unsupported.
	DerivativeDiscovery bool
}

// Backend is the uniform contract over a concrete object store.
type Backend interface {
	// Name returns the name of the storage backend, for use in log
	// messages and such.
	Name() string

	// Capabilities returns the backend's static capability flags.
	Capabilities() Capabilities

	// Put stores data under the given relative path and returns the
	// public URL of the stored object.
	Put(ctx context.Context, data []byte, path, contentType string) (string, error)

	// Fetch retrieves the full object contents. Returns ErrNotFound
	// if the object does not exist.
	Fetch(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at path. Deleting an absent object
	// is not an error; delete is idempotent.
	Delete(ctx context.Context, path string) error

	// ListByPattern returns the paths of all objects matching a
	// glob-like pattern. Backends without derivative discovery log
	// a capability warning and return an empty list.
	ListByPattern(ctx context.Context, pattern string) ([]string, error)

	// PublicURLFor returns the externally reachable URL of path.
	PublicURLFor(path string) string
}

// validObjectPath enforces the path rules shared by all backends: a
// relative, extension-carrying file path with no traversal segments.
func validObjectPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return false
	}
	if strings.Contains(p, "..") || strings.Contains(p, "\\") {
		return false
	}
	if path.Ext(p) == "" {
		return false
	}

	return true
}
