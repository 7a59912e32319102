// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0
package transform

import (
	"context"
	"errors"
	"testing"
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
)

func TestVerifyMagic(t *testing.T) {
	if err := VerifyMagic(jpegMagic, "listings/photo.jpg"); err != nil {
		t.Fatalf("VerifyMagic rejected a valid jpeg: %s", err)
	}
	if err := VerifyMagic(jpegMagic, "photo.JPEG"); err != nil {
		t.Fatalf("VerifyMagic is extension-case sensitive: %s", err)
	}
	if err := VerifyMagic(pngMagic, "photo.png"); err != nil {
		t.Fatalf("VerifyMagic rejected a valid png: %s", err)
	}
}

func TestVerifyMagicMismatch(t *testing.T) {
	// PNG content behind a .jpg extension is content-type
	// confusion and must never reach the decoder.
	if err := VerifyMagic(pngMagic, "photo.jpg"); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("VerifyMagic = %v, want ErrContentMismatch", err)
	}

	if err := VerifyMagic([]byte("plain text"), "photo.jpg"); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("VerifyMagic = %v, want ErrContentMismatch", err)
	}

	if err := VerifyMagic(jpegMagic, "archive.zip"); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("VerifyMagic = %v, want ErrContentMismatch", err)
	}
}

func TestApplyRejectsOversizedInput(t *testing.T) {
	buf := make([]byte, MaxInputBytes+1)

	_, _, err := Apply(context.Background(), buf, Params{Width: 100})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Apply = %v, want ErrPayloadTooLarge", err)
	}
}
