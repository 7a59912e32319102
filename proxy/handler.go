// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/im7mortal/kmutex"
	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/storage"
	"github.com/terashift/mediaproxy/transform"
)

// cacheControl is sent on every successful media response. Derivative
// URLs are content-addressed by their parameters, so responses never
// change and can be cached indefinitely.
const cacheControl = "public, max-age=31536000, immutable"

// maxQueryParams bounds distinct query parameters per request as a
// defense against parameter-pollution probing.
const maxQueryParams = 10

// Handler serves media paths from the active storage backend,
// producing and caching derivatives on demand.
type Handler struct {
	Backend storage.Backend
	Guard   *OutboundGuard

	// Dialect translates parameters for backends with native
	// transform capability; nil otherwise.
	Dialect transform.Dialect

	// Transform runs the resize/re-encode operation. Overridable
	// for tests; defaults to transform.Apply.
	Transform func(ctx context.Context, buf []byte, p transform.Params) ([]byte, string, error)

	// flight collapses concurrent first requests for the same
	// not-yet-cached derivative into one transform.
	flight *kmutex.Kmutex
}

func NewHandler(backend storage.Backend, guard *OutboundGuard, dialect transform.Dialect) *Handler {
	return &Handler{
		Backend:   backend,
		Guard:     guard,
		Dialect:   dialect,
		Transform: transform.Apply,
		flight:    kmutex.New(),
	}
}

// contentTyper is implemented by backends that record an object's
// content type at upload time.
type contentTyper interface {
	ContentType(path string) string
}

// contentTypeFor prefers the type the backend recorded for the object
// over one derived from the extension.
func (h *Handler) contentTypeFor(p string) string {
	if ct, ok := h.Backend.(contentTyper); ok {
		return ct.ContentType(p)
	}

	return contentTypeByExtension(p)
}

// ServeMedia handles GET /media/{path...}?w=&h=&f=&fit=&q=&position=.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")

	mediaPath, class, err := ValidatePath(raw)
	if err != nil {
		log.WithError(err).WithField("path", raw).Info("rejected media path")
		writeError(w, errInvalidRequest)
		return
	}

	if len(r.URL.Query()) > maxQueryParams {
		log.WithField("path", mediaPath).Info("rejected request with excessive query parameters")
		writeError(w, errInvalidRequest)
		return
	}

	params, err := transform.ParseQuery(r.URL.Query())
	if err != nil {
		log.WithError(err).WithField("path", mediaPath).Info("rejected transform parameters")
		writeError(w, errInvalidRequest)
		return
	}

	if !params.IsZero() && class != ClassImage {
		log.WithField("path", mediaPath).Info("rejected transform of non-image media")
		writeError(w, errInvalidRequest)
		return
	}

	// The client cache check happens before any storage I/O; that
	// is the whole point of the validation tag.
	etag := transform.ETag(mediaPath, params)
	if ifNoneMatchesETag(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", cacheControl)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	switch {
	case params.IsZero():
		h.serveOriginal(w, r, mediaPath, etag)
	case h.Backend.Capabilities().NativeTransform:
		h.redirectNative(w, r, mediaPath, params, etag)
	default:
		h.serveDerivative(w, r, mediaPath, params, etag)
	}
}

func (h *Handler) serveOriginal(w http.ResponseWriter, r *http.Request, mediaPath, etag string) {
	if err := h.Guard.CheckURL(h.Backend.PublicURLFor(mediaPath)); err != nil {
		log.WithError(err).WithField("path", mediaPath).Warn("blocked outbound storage fetch")
		writeError(w, errForbidden)
		return
	}

	data, err := h.Backend.Fetch(r.Context(), mediaPath)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"path":    mediaPath,
			"backend": h.Backend.Name(),
		}).Error("failed to fetch original")
		writeError(w, errNotFound)
		return
	}

	h.serveBytes(w, data, h.contentTypeFor(mediaPath), etag)
}

// redirectNative translates the parameters into the backend's own
// vocabulary and redirects, letting the edge produce the variant.
func (h *Handler) redirectNative(w http.ResponseWriter, r *http.Request, mediaPath string, params transform.Params, etag string) {
	target := h.Backend.PublicURLFor(mediaPath) + "?" + h.Dialect.Translate(params).Encode()

	if err := h.Guard.CheckURL(target); err != nil {
		log.WithError(err).WithField("path", mediaPath).Warn("blocked transform redirect target")
		writeError(w, errForbidden)
		return
	}

	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("ETag", etag)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) serveDerivative(w http.ResponseWriter, r *http.Request, mediaPath string, params transform.Params, etag string) {
	ctx := r.Context()
	derivPath := transform.DerivativePath(mediaPath, params)

	ok, err := h.Backend.Exists(ctx, derivPath)
	if err != nil {
		log.WithError(err).WithField("path", derivPath).Error("derivative existence check failed")
		writeError(w, errInternal)
		return
	}

	if ok {
		data, err := h.Backend.Fetch(ctx, derivPath)
		if err != nil {
			log.WithError(err).WithField("path", derivPath).Error("failed to fetch derivative")
			writeError(w, errNotFound)
			return
		}

		h.serveBytes(w, data, h.contentTypeFor(derivPath), etag)
		return
	}

	// First request for this variant. The keyed lock collapses a
	// concurrent stampede into one transform; losers re-check the
	// cache once they acquire the lock.
	h.flight.Lock(derivPath)
	defer h.flight.Unlock(derivPath)

	if ok, err := h.Backend.Exists(ctx, derivPath); err == nil && ok {
		data, err := h.Backend.Fetch(ctx, derivPath)
		if err == nil {
			h.serveBytes(w, data, h.contentTypeFor(derivPath), etag)
			return
		}
	}

	if err := h.Guard.CheckURL(h.Backend.PublicURLFor(mediaPath)); err != nil {
		log.WithError(err).WithField("path", mediaPath).Warn("blocked outbound storage fetch")
		writeError(w, errForbidden)
		return
	}

	original, err := h.Backend.Fetch(ctx, mediaPath)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).WithField("path", mediaPath).Error("failed to fetch original")
		}
		writeError(w, errNotFound)
		return
	}

	if err := transform.VerifyMagic(original, mediaPath); err != nil {
		log.WithError(err).WithField("path", mediaPath).Warn("content type mismatch on original")
		writeError(w, errInvalidRequest)
		return
	}

	body, contentType, err := h.Transform(ctx, original, params)
	if err != nil {
		h.replyTransformError(w, mediaPath, err)
		return
	}

	if _, err := h.Backend.Put(ctx, body, derivPath, contentType); err != nil {
		// The derivative could not be cached but was produced;
		// serve it anyway and let a later request retry the
		// upload.
		log.WithError(err).WithField("path", derivPath).Error("failed to store derivative")
	}

	h.serveBytes(w, body, contentType, etag)
}

func (h *Handler) replyTransformError(w http.ResponseWriter, mediaPath string, err error) {
	entry := log.WithError(err).WithField("path", mediaPath)

	switch {
	case errors.Is(err, transform.ErrPayloadTooLarge):
		entry.Warn("original exceeds transform limits")
		writeError(w, errTooLarge)
	case errors.Is(err, transform.ErrProcessingTimeout):
		entry.Error("transform timed out")
		writeError(w, errInternal)
	default:
		entry.Error("transform failed")
		writeError(w, errInternal)
	}
}

func (h *Handler) serveBytes(w http.ResponseWriter, data []byte, contentType, etag string) {
	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	header.Set("Cache-Control", cacheControl)
	header.Set("ETag", etag)

	w.Write(data)
}

// ifNoneMatchesETag implements the weak comparison of RFC 9110 for
// the single tag the proxy ever emits.
func ifNoneMatchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}

	return false
}

var extraContentTypes = map[string]string{
	".webp": "image/webp",
	".avif": "image/avif",
	".m4a":  "audio/mp4",
}

func contentTypeByExtension(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if t, ok := extraContentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}

	return "application/octet-stream"
}
