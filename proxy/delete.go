// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/transform"
)

// DeleteHandler is the collaborator surface for record deletion: it
// removes an original together with its derivatives. Authorization of
// who may delete happens upstream; this endpoint is expected to be
// reachable only from the owning application.
type DeleteHandler struct {
	Cleaner *transform.Cleaner
}

type deleteResponse struct {
	DerivativesRemoved int  `json:"derivativesRemoved"`
	CleanupUnsupported bool `json:"cleanupUnsupported,omitempty"`
}

// ServeDelete handles DELETE /media/{path...}.
func (h *DeleteHandler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")

	mediaPath, _, err := ValidatePath(raw)
	if err != nil {
		log.WithError(err).WithField("path", raw).Info("rejected delete path")
		writeError(w, errInvalidRequest)
		return
	}

	result, err := h.Cleaner.DeleteOriginalAndDerivatives(r.Context(), mediaPath)
	if err != nil {
		log.WithError(err).WithField("path", mediaPath).Error("failed to delete media")
		writeError(w, errInternal)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deleteResponse{
		DerivativesRemoved: result.DerivativesRemoved,
		CleanupUnsupported: result.Unsupported,
	})
}
