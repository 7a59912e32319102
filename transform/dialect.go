// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"net/url"
	"strconv"
)

// A Dialect translates normalized Params into the query-string
// vocabulary of a backend that performs image transformation itself.
// Translations are pure; the active backend's identity selects one.
type Dialect interface {
	// Translate renders p into backend-native query parameters.
	Translate(p Params) url.Values
}

// BunnyDialect maps Params onto the Bunny Optimizer vocabulary.
type BunnyDialect struct{}

// bunnyFormats are the output formats the optimizer can encode.
// Unsupported formats fall back to the nearest supported one.
var bunnyFormats = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"webp": "webp",
	"avif": "webp",
}

// bunnyGravity maps crop anchors onto the optimizer's crop_gravity
// values. The optimizer has no smart gravity, so smart falls back to
// center.
var bunnyGravity = map[string]string{
	"center": "center",
	"top":    "north",
	"bottom": "south",
	"left":   "west",
	"right":  "east",
	"smart":  "center",
}

func (BunnyDialect) Translate(p Params) url.Values {
	q := url.Values{}

	if p.Width > 0 {
		q.Set("width", strconv.Itoa(p.Width))
	}
	if p.Height > 0 {
		q.Set("height", strconv.Itoa(p.Height))
	}
	if p.Quality > 0 {
		q.Set("quality", strconv.Itoa(p.Quality))
	}
	if p.Format != "" {
		q.Set("format", bunnyFormats[p.Format])
	}

	switch p.Fit {
	case "cover":
		// The optimizer expresses cover-cropping as an explicit
		// crop box; both dimensions are required for it, so a
		// single-dimension cover degrades to a plain resize.
		if p.Width > 0 && p.Height > 0 {
			q.Set("crop", strconv.Itoa(p.Width)+","+strconv.Itoa(p.Height))
			gravity := "center"
			if p.Position != "" {
				gravity = bunnyGravity[p.Position]
			}
			q.Set("crop_gravity", gravity)
		}
	case "contain":
		q.Set("aspect_ratio", "keep")
	case "fill":
		q.Set("aspect_ratio", "ignore")
	}

	return q
}

