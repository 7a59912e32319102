// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// filenameAllowed is the conservative character set kept when a
// caller-supplied filename is preserved. Everything else is stripped,
// not escaped.
func filenameAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}

	return false
}

// ObjectName derives the stored filename for an uploaded object.
//
// With preserveName set, the original filename is sanitized against
// the allow-set and its extension is forced to ext. Otherwise a
// collision-resistant name is synthesized from the current timestamp
// plus a short random suffix.
func ObjectName(original string, ext string, preserveName bool) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	if preserveName {
		base := strings.TrimSuffix(path.Base(original), path.Ext(original))
		var b strings.Builder
		for _, r := range base {
			if filenameAllowed(r) {
				b.WriteRune(r)
			}
		}
		name := b.String()
		if name == "" {
			name = "file"
		}
		return name + "." + ext
	}

	suffix := make([]byte, 2)
	if _, err := io.ReadFull(rand.Reader, suffix); err != nil {
		// Without entropy the timestamp alone still names the
		// object; same-nanosecond collisions are accepted.
		return fmt.Sprintf("%d.%s", time.Now().UnixNano(), ext)
	}

	return fmt.Sprintf("%d_%s.%s", time.Now().UnixNano(), hex.EncodeToString(suffix), ext)
}
