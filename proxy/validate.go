// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/terashift/mediaproxy/transform"
)

const maxPathLength = 500

var errInvalidPath = errors.New("proxy: invalid media path")

// MediaClass is the coarse content classification derived from the
// file extension. Transformations apply to images only; everything
// else is served verbatim.
type MediaClass int

const (
	ClassUnknown MediaClass = iota
	ClassImage
	ClassAudio
	ClassVideo
	ClassDocument
)

var extensionClasses = map[string]MediaClass{
	".jpg":  ClassImage,
	".jpeg": ClassImage,
	".png":  ClassImage,
	".webp": ClassImage,
	".gif":  ClassImage,
	".avif": ClassImage,
	".mp3":  ClassAudio,
	".ogg":  ClassAudio,
	".wav":  ClassAudio,
	".m4a":  ClassAudio,
	".mp4":  ClassVideo,
	".webm": ClassVideo,
	".mov":  ClassVideo,
	".pdf":  ClassDocument,
	".txt":  ClassDocument,
	".csv":  ClassDocument,
}

func pathCharAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '/' || r == '_' || r == '.' || r == '-':
		return true
	}

	return false
}

// ValidatePath sanitizes the untrusted path component of a media
// request. The returned error names the exact rejection reason for
// logging; clients only ever see the generic message.
func ValidatePath(raw string) (string, MediaClass, error) {
	// Exactly one decoding pass. Anything still encoded afterwards
	// is treated as hostile rather than decoded again.
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", ClassUnknown, fmt.Errorf("%w: undecodable path", errInvalidPath)
	}

	lower := strings.ToLower(decoded)
	for _, marker := range []string{"..", "\\", "//", "%2e", "%2f", "%5c"} {
		if strings.Contains(lower, marker) {
			return "", ClassUnknown, fmt.Errorf("%w: traversal marker %q", errInvalidPath, marker)
		}
	}
	if strings.HasPrefix(decoded, "/") {
		return "", ClassUnknown, fmt.Errorf("%w: absolute path", errInvalidPath)
	}

	if len(decoded) > maxPathLength {
		return "", ClassUnknown, fmt.Errorf("%w: length %d exceeds %d", errInvalidPath, len(decoded), maxPathLength)
	}

	for _, r := range decoded {
		if !pathCharAllowed(r) {
			return "", ClassUnknown, fmt.Errorf("%w: character %q outside allowlist", errInvalidPath, r)
		}
	}

	class, ok := extensionClasses[strings.ToLower(path.Ext(decoded))]
	if !ok {
		return "", ClassUnknown, fmt.Errorf("%w: unrecognized extension %q", errInvalidPath, path.Ext(decoded))
	}

	// The derivative namespace is reserved; clients can neither
	// request transforms of derivatives nor inject into it.
	if strings.HasPrefix(decoded, transform.CachePrefix) ||
		strings.Contains(decoded, "/"+transform.CachePrefix) {
		return "", ClassUnknown, fmt.Errorf("%w: reserved prefix", errInvalidPath)
	}

	return decoded, class, nil
}

// metadataHosts are cloud metadata endpoints that are rejected
// unconditionally, regardless of the configured allowlist.
var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"fd00:ec2::254":            true,
	"100.100.100.200":          true,
}

// OutboundGuard validates every storage URL before the proxy fetches
// from or redirects to it. The allowlist is assembled once at startup
// from the hostnames of the configured backends, never hardcoded.
type OutboundGuard struct {
	allowed map[string]bool
}

func NewOutboundGuard(hosts []string) *OutboundGuard {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if host, _, err := net.SplitHostPort(h); err == nil {
			h = host
		}
		allowed[strings.ToLower(h)] = true
	}

	return &OutboundGuard{allowed: allowed}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}

	return false
}

// CheckURL rejects URLs whose host is a metadata service, is not in
// the allowlist, or is a non-loopback host reached without TLS.
func (g *OutboundGuard) CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("proxy: unparseable outbound url: %w", err)
	}

	host := strings.ToLower(u.Hostname())
	if metadataHosts[host] {
		return fmt.Errorf("proxy: outbound url targets metadata service %q", host)
	}

	if u.Scheme != "https" && !isLoopback(host) {
		return fmt.Errorf("proxy: outbound url %q is not https", raw)
	}

	if !g.allowed[host] && !isLoopback(host) {
		return fmt.Errorf("proxy: host %q not in outbound allowlist", host)
	}

	return nil
}
