// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// CachePrefix is the reserved path prefix under which derivatives are
// stored. Inbound requests must never reference it directly.
const CachePrefix = "_cache/"

// tokenString renders the fixed-order, field-stable token sequence
// that encodes the parameters into a filename. Field order is fixed
// by construction, so two identical parameter sets always produce the
// same tokens regardless of how the request spelled them.
func (p Params) tokenString() string {
	var tokens []string

	if p.Width > 0 {
		tokens = append(tokens, fmt.Sprintf("w%d", p.Width))
	}
	if p.Height > 0 {
		tokens = append(tokens, fmt.Sprintf("h%d", p.Height))
	}
	if p.Format != "" {
		tokens = append(tokens, "f"+p.Format)
	}
	if p.Quality > 0 {
		tokens = append(tokens, fmt.Sprintf("q%d", p.Quality))
	}
	if p.Fit != "" {
		tokens = append(tokens, "fit"+p.Fit)
	}
	if p.Position != "" {
		tokens = append(tokens, "pos"+p.Position)
	}

	return strings.Join(tokens, "_")
}

// TargetExtension returns the file extension of the derivative,
// which follows the requested output format when one is present.
func (p Params) TargetExtension(originalPath string) string {
	if p.Format != "" {
		return "." + p.Format
	}

	return strings.ToLower(path.Ext(originalPath))
}

// DerivativePath derives the deterministic storage path of the
// variant described by p for the given original.
func DerivativePath(originalPath string, p Params) string {
	dir, file := path.Split(originalPath)
	stem := strings.TrimSuffix(file, path.Ext(file))

	name := stem + "_" + p.tokenString() + p.TargetExtension(originalPath)

	return CachePrefix + dir + name
}

// DerivativePattern returns the glob pattern matching every
// derivative ever produced for the given original, used by the
// cleanup sweep.
func DerivativePattern(originalPath string) string {
	dir, file := path.Split(originalPath)
	stem := strings.TrimSuffix(file, path.Ext(file))

	return CachePrefix + dir + stem + "_*"
}

// IsDerivativeOf reports whether candidate was produced from the
// given original. The glob from DerivativePattern also matches
// derivatives of sibling originals whose stem extends this one's
// (photo_2_w400.jpg matches photo_*), so callers must re-check every
// match: the residue after the stem has to parse as a token sequence.
func IsDerivativeOf(candidate, originalPath string) bool {
	dir, file := path.Split(originalPath)
	stem := strings.TrimSuffix(file, path.Ext(file))

	rest, ok := strings.CutPrefix(candidate, CachePrefix+dir+stem+"_")
	if !ok {
		return false
	}

	rest = strings.TrimSuffix(rest, path.Ext(rest))
	if rest == "" {
		return false
	}

	for _, tok := range strings.Split(rest, "_") {
		if !validToken(tok) {
			return false
		}
	}

	return true
}

func validToken(tok string) bool {
	switch {
	case strings.HasPrefix(tok, "fit"):
		return validFits[tok[3:]]
	case strings.HasPrefix(tok, "pos"):
		return validPositions[tok[3:]]
	case strings.HasPrefix(tok, "w"), strings.HasPrefix(tok, "h"), strings.HasPrefix(tok, "q"):
		return allDigits(tok[1:])
	case strings.HasPrefix(tok, "f"):
		return validFormats[tok[1:]]
	}

	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// ETag derives the response validation tag for (path, params). It is
// stable across requests with identical inputs and changes whenever
// any input changes, which is what lets If-None-Match short-circuit
// before any storage I/O.
func ETag(originalPath string, p Params) string {
	h := sha256.New()
	h.Write([]byte(originalPath))
	if !p.IsZero() {
		h.Write([]byte("|"))
		h.Write([]byte(p.tokenString()))
	}

	return `"` + hex.EncodeToString(h.Sum(nil))[:32] + `"`
}
