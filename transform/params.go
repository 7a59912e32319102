// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Package transform implements the media proxy's derivative engine:
// normalized transformation parameters, deterministic derivative
// naming and cache keys, per-provider parameter dialects, the image
// operation itself and the derivative cleanup sweep.
package transform

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	MinDimension = 1
	MaxDimension = 4096
	MinQuality   = 10
	MaxQuality   = 95
)

var ErrInvalidParameters = errors.New("transform: invalid parameters")

// Formats a derivative can be encoded into.
var validFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"avif": true,
}

// Fit modes. "cover" crops to fill the box, "contain" letterboxes
// inside it, "fill" stretches ignoring the aspect ratio.
var validFits = map[string]bool{
	"cover":   true,
	"contain": true,
	"fill":    true,
}

// Crop anchors used together with the cover fit.
var validPositions = map[string]bool{
	"center": true,
	"top":    true,
	"bottom": true,
	"left":   true,
	"right":  true,
	"smart":  true,
}

// Params is the normalized, immutable description of a requested
// variant. A zero value means "serve the original unmodified".
type Params struct {
	Width    int
	Height   int
	Quality  int
	Format   string
	Fit      string
	Position string
}

// IsZero reports whether no transformation was requested at all.
func (p Params) IsZero() bool {
	return p == Params{}
}

// queryKeys are the transform-affecting query parameters.
var queryKeys = []string{"w", "h", "f", "fit", "q", "position"}

// ParseQuery builds Params from raw query values, bound-checking
// every field. The error returned carries the specific reason for
// server-side logging; callers must not echo it to clients.
func ParseQuery(q url.Values) (Params, error) {
	var p Params
	var err error

	if p.Width, err = parseDimension(q.Get("w")); err != nil {
		return Params{}, fmt.Errorf("%w: width: %v", ErrInvalidParameters, err)
	}
	if p.Height, err = parseDimension(q.Get("h")); err != nil {
		return Params{}, fmt.Errorf("%w: height: %v", ErrInvalidParameters, err)
	}

	if v := q.Get("q"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinQuality || n > MaxQuality {
			return Params{}, fmt.Errorf("%w: quality %q out of [%d,%d]",
				ErrInvalidParameters, v, MinQuality, MaxQuality)
		}
		p.Quality = n
	}

	if v := q.Get("f"); v != "" {
		if v == "jpg" {
			v = "jpeg"
		}
		if !validFormats[v] {
			return Params{}, fmt.Errorf("%w: unknown format %q", ErrInvalidParameters, v)
		}
		p.Format = v
	}

	if v := q.Get("fit"); v != "" {
		if !validFits[v] {
			return Params{}, fmt.Errorf("%w: unknown fit mode %q", ErrInvalidParameters, v)
		}
		p.Fit = v
	}

	if v := q.Get("position"); v != "" {
		if !validPositions[v] {
			return Params{}, fmt.Errorf("%w: unknown crop position %q", ErrInvalidParameters, v)
		}
		p.Position = v
	}

	// Any transform-affecting parameter requires a target dimension;
	// re-encoding without one is not a supported operation.
	if !p.IsZero() && p.Width == 0 && p.Height == 0 {
		return Params{}, fmt.Errorf("%w: at least one of w/h is required", ErrInvalidParameters)
	}

	return p, nil
}

func parseDimension(v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < MinDimension || n > MaxDimension {
		return 0, fmt.Errorf("dimension %q out of [%d,%d]", v, MinDimension, MaxDimension)
	}

	return n, nil
}
