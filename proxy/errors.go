// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the HTTP surface of the media proxy: the
// request validator, the SSRF guard on outbound storage URLs, rate
// limiting and the produce-once-serve-many transformation handler.
package proxy

import (
	"encoding/json"
	"net/http"
)

// Error is a client-facing error. The message is deliberately
// generic: the specific rejection reason may contain attacker-supplied
// input and is only ever logged server-side.
type Error struct {
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e Error) Error() string {
	return e.Message
}

var (
	errInvalidRequest = Error{"invalid media request", http.StatusBadRequest}
	errForbidden      = Error{"forbidden", http.StatusForbidden}
	errNotFound       = Error{"not found", http.StatusNotFound}
	errTooLarge       = Error{"media too large", http.StatusRequestEntityTooLarge}
	errRateLimited    = Error{"too many requests", http.StatusTooManyRequests}
	errInternal       = Error{"internal error", http.StatusInternalServerError}
)

func writeError(w http.ResponseWriter, e Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}
