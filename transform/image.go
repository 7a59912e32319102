// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/h2non/bimg"
	"github.com/h2non/filetype"
)

const (
	// MaxInputBytes bounds the size of an original accepted for
	// transformation.
	MaxInputBytes = 20 << 20

	// MaxInputPixels bounds the decoded size of an original.
	MaxInputPixels = MaxDimension * MaxDimension

	// ProcessTimeout bounds the transform step independently of the
	// overall request deadline. A malformed input must not be able
	// to stall a worker past this.
	ProcessTimeout = 10 * time.Second
)

var (
	ErrPayloadTooLarge   = errors.New("transform: input exceeds size limits")
	ErrProcessingTimeout = errors.New("transform: processing timed out")
	ErrContentMismatch   = errors.New("transform: content does not match extension")
)

// imageTypes maps recognized image extensions to the format name
// reported by magic-byte detection.
var imageTypes = map[string]string{
	".jpg":  "jpg",
	".jpeg": "jpg",
	".png":  "png",
	".webp": "webp",
	".gif":  "gif",
	".avif": "avif",
	".tiff": "tif",
	".bmp":  "bmp",
}

// VerifyMagic checks that the leading bytes of buf identify the same
// image format the path extension claims. A mismatch means the stored
// object was uploaded with a spoofed extension and must not be fed to
// the decoder.
func VerifyMagic(buf []byte, originalPath string) error {
	want, ok := imageTypes[strings.ToLower(path.Ext(originalPath))]
	if !ok {
		return fmt.Errorf("%w: unrecognized extension %q", ErrContentMismatch, path.Ext(originalPath))
	}

	kind, err := filetype.Match(buf)
	if err != nil || kind == filetype.Unknown {
		return fmt.Errorf("%w: undetectable content", ErrContentMismatch)
	}

	if kind.Extension != want {
		return fmt.Errorf("%w: extension %q but magic bytes say %q",
			ErrContentMismatch, path.Ext(originalPath), kind.Extension)
	}

	return nil
}

var bimgTypes = map[string]bimg.ImageType{
	"jpeg": bimg.JPEG,
	"png":  bimg.PNG,
	"webp": bimg.WEBP,
	"avif": bimg.AVIF,
}

func bimgGravity(position string) bimg.Gravity {
	switch position {
	case "top":
		return bimg.GravityNorth
	case "bottom":
		return bimg.GravitySouth
	case "left":
		return bimg.GravityWest
	case "right":
		return bimg.GravityEast
	case "smart":
		return bimg.GravitySmart
	default:
		return bimg.GravityCentre
	}
}

func bimgOptions(p Params) bimg.Options {
	opts := bimg.Options{
		Width:   p.Width,
		Height:  p.Height,
		Quality: p.Quality,
		Embed:   true,
	}

	if p.Format != "" {
		opts.Type = bimgTypes[p.Format]
	}

	switch p.Fit {
	case "cover":
		opts.Crop = true
		opts.Gravity = bimgGravity(p.Position)
	case "fill":
		opts.Force = true
	}

	return opts
}

type result struct {
	body []byte
	err  error
}

// Apply runs the resize/re-encode operation described by p on buf and
// returns the derivative bytes together with their content type.
//
// The libvips call cannot be interrupted once started, so the timeout
// races it: on expiry the request is failed and the worker goroutine
// is abandoned to finish in the background.
func Apply(ctx context.Context, buf []byte, p Params) ([]byte, string, error) {
	if len(buf) > MaxInputBytes {
		return nil, "", ErrPayloadTooLarge
	}

	size, err := bimg.Size(buf)
	if err != nil {
		return nil, "", fmt.Errorf("transform: cannot read image dimensions: %w", err)
	}
	if size.Width*size.Height > MaxInputPixels {
		return nil, "", fmt.Errorf("%w: %dx%d pixels", ErrPayloadTooLarge, size.Width, size.Height)
	}

	ch := make(chan result, 1)
	go func() {
		body, err := process(buf, bimgOptions(p))
		ch <- result{body, err}
	}()

	timer := time.NewTimer(ProcessTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, "", res.err
		}
		return res.body, contentTypeFor(res.body), nil
	case <-timer.C:
		return nil, "", ErrProcessingTimeout
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// process wraps the libvips call with panic recovery, since libvips
// signals some internal failures by panicking through cgo.
func process(buf []byte, opts bimg.Options) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch value := r.(type) {
			case error:
				err = value
			case string:
				err = errors.New(value)
			default:
				err = errors.New("libvips internal error")
			}
			out = nil
		}
	}()

	out, err = bimg.Resize(buf, opts)
	if err != nil {
		// Modern encoder support varies by libvips build; fall
		// back to JPEG when the requested format cannot encode.
		if strings.Contains(err.Error(), "encode") &&
			(opts.Type == bimg.WEBP || opts.Type == bimg.AVIF) {
			opts.Type = bimg.JPEG
			out, err = bimg.Resize(buf, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}
	}

	return out, nil
}

func contentTypeFor(buf []byte) string {
	switch bimg.DetermineImageType(buf) {
	case bimg.PNG:
		return "image/png"
	case bimg.WEBP:
		return "image/webp"
	case bimg.GIF:
		return "image/gif"
	case bimg.AVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}
