// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0
package transform

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBunnyTranslateResize(t *testing.T) {
	q := BunnyDialect{}.Translate(Params{Width: 400, Height: 300, Quality: 80, Format: "webp"})

	expected := url.Values{
		"width":   {"400"},
		"height":  {"300"},
		"quality": {"80"},
		"format":  {"webp"},
	}

	if diff := cmp.Diff(expected, q); diff != "" {
		t.Fatalf("Translate mismatch:\n%s", diff)
	}
}

func TestBunnyTranslateFormatFallback(t *testing.T) {
	// The optimizer cannot encode AVIF; the nearest supported
	// format is used instead.
	q := BunnyDialect{}.Translate(Params{Width: 100, Format: "avif"})

	if got := q.Get("format"); got != "webp" {
		t.Fatalf("avif should fall back to webp, got %q", got)
	}
}

func TestBunnyTranslateCover(t *testing.T) {
	q := BunnyDialect{}.Translate(Params{Width: 400, Height: 300, Fit: "cover", Position: "top"})

	if got := q.Get("crop"); got != "400,300" {
		t.Fatalf("crop = %q, want \"400,300\"", got)
	}
	if got := q.Get("crop_gravity"); got != "north" {
		t.Fatalf("crop_gravity = %q, want \"north\"", got)
	}
}

func TestBunnyTranslateCoverSingleDimension(t *testing.T) {
	// Cover with one dimension degrades to a plain resize.
	q := BunnyDialect{}.Translate(Params{Width: 400, Fit: "cover"})

	if q.Get("crop") != "" {
		t.Fatalf("single-dimension cover must not emit a crop box, got %q", q.Get("crop"))
	}
	if q.Get("width") != "400" {
		t.Fatalf("width = %q, want \"400\"", q.Get("width"))
	}
}
