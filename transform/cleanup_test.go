// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0
package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/terashift/mediaproxy/storage"
)

// fakeBackend is an in-memory storage.Backend with optional per-path
// delete failures.
type fakeBackend struct {
	objects    map[string][]byte
	caps       storage.Capabilities
	failDelete map[string]bool
	deleted    []string
}

func newFakeBackend(discovery bool, paths ...string) *fakeBackend {
	objects := make(map[string][]byte)
	for _, p := range paths {
		objects[p] = []byte("x")
	}

	return &fakeBackend{
		objects:    objects,
		caps:       storage.Capabilities{DerivativeDiscovery: discovery},
		failDelete: make(map[string]bool),
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Capabilities() storage.Capabilities { return b.caps }

func (b *fakeBackend) Put(ctx context.Context, data []byte, path, contentType string) (string, error) {
	b.objects[path] = data
	return "https://fake/" + path, nil
}

func (b *fakeBackend) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, ok := b.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (b *fakeBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func (b *fakeBackend) Delete(ctx context.Context, path string) error {
	if b.failDelete[path] {
		return errors.New("delete failed")
	}
	delete(b.objects, path)
	b.deleted = append(b.deleted, path)
	return nil
}

func (b *fakeBackend) ListByPattern(ctx context.Context, pattern string) ([]string, error) {
	if !b.caps.DerivativeDiscovery {
		return nil, nil
	}

	var matches []string
	for p := range b.objects {
		if matchGlob(pattern, p) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (b *fakeBackend) PublicURLFor(path string) string {
	return "https://fake/" + path
}

// matchGlob supports the single trailing-star patterns the cleaner
// emits.
func matchGlob(pattern, s string) bool {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	}
	return pattern == s
}

func TestCleanupSweep(t *testing.T) {
	backend := newFakeBackend(true,
		"listings/photo.jpg",
		"_cache/listings/photo_w400.jpg",
		"_cache/listings/photo_w400_h300_fwebp.webp",
		"_cache/listings/other_w400.jpg",
	)

	c := Cleaner{Backend: backend}
	result, err := c.DeleteOriginalAndDerivatives(context.Background(), "listings/photo.jpg")
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}

	expected := CleanupResult{DerivativesRemoved: 2}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Fatalf("cleanup result mismatch:\n%s", diff)
	}

	if _, ok := backend.objects["listings/photo.jpg"]; ok {
		t.Fatal("original survived cleanup")
	}
	if _, ok := backend.objects["_cache/listings/other_w400.jpg"]; !ok {
		t.Fatal("unrelated derivative was deleted")
	}
}

// A sibling original whose stem extends the deleted one's matches the
// same glob; its derivatives must survive the sweep.
func TestCleanupSparesSiblingDerivatives(t *testing.T) {
	backend := newFakeBackend(true,
		"listings/photo.jpg",
		"listings/photo_2.jpg",
		"_cache/listings/photo_w400.jpg",
		"_cache/listings/photo_2_w400.jpg",
		"_cache/listings/photo_2_w400_h300_fwebp.webp",
	)

	c := Cleaner{Backend: backend}
	result, err := c.DeleteOriginalAndDerivatives(context.Background(), "listings/photo.jpg")
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}

	if result.DerivativesRemoved != 1 {
		t.Fatalf("DerivativesRemoved = %d, want 1", result.DerivativesRemoved)
	}

	for _, p := range []string{
		"listings/photo_2.jpg",
		"_cache/listings/photo_2_w400.jpg",
		"_cache/listings/photo_2_w400_h300_fwebp.webp",
	} {
		if _, ok := backend.objects[p]; !ok {
			t.Fatalf("%s belongs to a sibling original and must survive", p)
		}
	}
}

func TestIsDerivativeOf(t *testing.T) {
	cases := []struct {
		candidate string
		original  string
		want      bool
	}{
		{"_cache/listings/photo_w400.jpg", "listings/photo.jpg", true},
		{"_cache/listings/photo_w400_h300_fwebp_q80_fitcover_poscenter.webp", "listings/photo.jpg", true},
		{"_cache/listings/photo_2_w400.jpg", "listings/photo.jpg", false},
		{"_cache/listings/photo_2_w400.jpg", "listings/photo_2.jpg", true},
		{"_cache/listings/photo_wide_w400.jpg", "listings/photo.jpg", false},
		{"_cache/listings/photo_.jpg", "listings/photo.jpg", false},
		{"_cache/other/photo_w400.jpg", "listings/photo.jpg", false},
	}

	for _, c := range cases {
		if got := IsDerivativeOf(c.candidate, c.original); got != c.want {
			t.Errorf("IsDerivativeOf(%q, %q) = %v, want %v",
				c.candidate, c.original, got, c.want)
		}
	}
}

func TestCleanupBestEffort(t *testing.T) {
	backend := newFakeBackend(true,
		"a.jpg",
		"_cache/a_w100.jpg",
		"_cache/a_w200.jpg",
	)
	backend.failDelete["_cache/a_w100.jpg"] = true

	c := Cleaner{Backend: backend}
	result, err := c.DeleteOriginalAndDerivatives(context.Background(), "a.jpg")
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}

	// One derivative failed, the sweep continued past it.
	if result.DerivativesRemoved != 1 {
		t.Fatalf("DerivativesRemoved = %d, want 1", result.DerivativesRemoved)
	}
}

func TestCleanupUnsupportedBackend(t *testing.T) {
	backend := newFakeBackend(false, "a.jpg", "_cache/a_w100.jpg")

	c := Cleaner{Backend: backend}
	result, err := c.DeleteOriginalAndDerivatives(context.Background(), "a.jpg")
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}

	expected := CleanupResult{Unsupported: true}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Fatalf("cleanup result mismatch:\n%s", diff)
	}

	if _, ok := backend.objects["a.jpg"]; ok {
		t.Fatal("original must be deleted even without derivative discovery")
	}
}

func TestCleanupOriginalDeleteFails(t *testing.T) {
	backend := newFakeBackend(true, "a.jpg", "_cache/a_w100.jpg")
	backend.failDelete["a.jpg"] = true

	c := Cleaner{Backend: backend}
	if _, err := c.DeleteOriginalAndDerivatives(context.Background(), "a.jpg"); err == nil {
		t.Fatal("expected error when the original cannot be deleted")
	}

	if _, ok := backend.objects["_cache/a_w100.jpg"]; !ok {
		t.Fatal("derivatives must not be swept when the original delete fails")
	}
}
