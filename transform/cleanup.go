// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/terashift/mediaproxy/storage"
)

// Cleaner removes originals together with every derivative that was
// generated from them.
type Cleaner struct {
	Backend storage.Backend
}

// CleanupResult reports the outcome of a cleanup sweep.
type CleanupResult struct {
	// DerivativesRemoved counts the derivatives actually deleted.
	DerivativesRemoved int

	// Unsupported is set when the active backend cannot enumerate
	// derivatives, meaning none were cleaned and the caller should
	// not assume otherwise.
	Unsupported bool
}

// DeleteOriginalAndDerivatives deletes the original first, then
// best-effort sweeps its derivatives. Per-derivative failures are
// logged individually and do not roll back completed deletions;
// partial derivative leakage costs storage, not correctness.
func (c *Cleaner) DeleteOriginalAndDerivatives(ctx context.Context, path string) (CleanupResult, error) {
	if err := c.Backend.Delete(ctx, path); err != nil {
		return CleanupResult{}, err
	}

	if !c.Backend.Capabilities().DerivativeDiscovery {
		log.WithFields(log.Fields{
			"backend": c.Backend.Name(),
			"path":    path,
		}).Warn("backend cannot discover derivatives, skipping cleanup")

		return CleanupResult{Unsupported: true}, nil
	}

	pattern := DerivativePattern(path)
	matches, err := c.Backend.ListByPattern(ctx, pattern)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"path":    path,
			"pattern": pattern,
		}).Error("derivative discovery failed")

		return CleanupResult{}, err
	}

	var removed int
	for _, m := range matches {
		// The glob over-matches when a sibling original's stem starts
		// with this one's; only sweep paths whose suffix parses as a
		// parameter token sequence.
		if !IsDerivativeOf(m, path) {
			continue
		}
		if err := c.Backend.Delete(ctx, m); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"original":   path,
				"derivative": m,
			}).Warn("failed to delete derivative")
			continue
		}
		removed++
	}

	log.WithFields(log.Fields{
		"path":    path,
		"removed": removed,
	}).Info("cleaned up derivatives")

	return CleanupResult{DerivativesRemoved: removed}, nil
}
