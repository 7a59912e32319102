// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0
package storage

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/terashift/mediaproxy/config"
)

func newTestFS(t *testing.T) *FSBackend {
	t.Helper()

	b, err := NewFSBackend(config.FSConfig{
		Path:      t.TempDir(),
		PublicURL: "http://localhost:8080/media/",
	})
	if err != nil {
		t.Fatalf("NewFSBackend failed: %s", err)
	}

	return b
}

func TestFSRoundTrip(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	content := []byte("not really a jpeg")

	url, err := b.Put(ctx, content, "listings/photo.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Put failed: %s", err)
	}
	if url != "http://localhost:8080/media/listings/photo.jpg" {
		t.Fatalf("unexpected public URL %q", url)
	}

	got, err := b.Fetch(ctx, "listings/photo.jpg")
	if err != nil {
		t.Fatalf("Fetch failed: %s", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Fetch returned %q, want %q", got, content)
	}

	ok, err := b.Exists(ctx, "listings/photo.jpg")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}
}

func TestFSFetchMissing(t *testing.T) {
	b := newTestFS(t)

	_, err := b.Fetch(context.Background(), "missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch of missing object = %v, want ErrNotFound", err)
	}
}

func TestFSDeleteIdempotent(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()

	if _, err := b.Put(ctx, []byte("x"), "a.jpg", "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %s", err)
	}

	if err := b.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("Delete failed: %s", err)
	}

	// Deleting an already-absent object must succeed.
	if err := b.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("repeated Delete failed: %s", err)
	}
}

func TestFSRejectsEscapingPaths(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()

	for _, p := range []string{
		"../outside.jpg",
		"a/../../outside.jpg",
		"/etc/passwd.jpg",
		"noextension",
		"dir/",
	} {
		if _, err := b.Put(ctx, []byte("x"), p, ""); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(%q) = %v, want ErrInvalidPath", p, err)
		}
		if err := b.Delete(ctx, p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Delete(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestFSListByPattern(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()

	for _, p := range []string{
		"_cache/listings/photo_w400.jpg",
		"_cache/listings/photo_w800_h600.webp",
		"_cache/listings/other_w400.jpg",
		"listings/photo.jpg",
	} {
		if _, err := b.Put(ctx, []byte("x"), p, ""); err != nil {
			t.Fatalf("Put(%q) failed: %s", p, err)
		}
	}

	got, err := b.ListByPattern(ctx, "_cache/listings/photo_*")
	if err != nil {
		t.Fatalf("ListByPattern failed: %s", err)
	}
	sort.Strings(got)

	expected := []string{
		"_cache/listings/photo_w400.jpg",
		"_cache/listings/photo_w800_h600.webp",
	}

	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("ListByPattern mismatch:\n%s", diff)
	}
}

func TestFSListByPatternMissingDir(t *testing.T) {
	b := newTestFS(t)

	got, err := b.ListByPattern(context.Background(), "_cache/nothing/here_*")
	if err != nil {
		t.Fatalf("ListByPattern failed: %s", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestFSContentTypeFallback(t *testing.T) {
	b := newTestFS(t)

	if _, err := b.Put(context.Background(), []byte("x"), "a.png", ""); err != nil {
		t.Fatalf("Put failed: %s", err)
	}

	if got := b.ContentType("a.png"); got != "image/png" {
		t.Fatalf("ContentType = %q, want \"image/png\"", got)
	}
}
