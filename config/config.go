// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Package config implements the runtime configuration of the media
// proxy and the logic for assembling it from the environment.
//
// Storage backend selection is implicit: each backend type has a
// sentinel variable (BUNNY_STORAGE_ZONE, S3_BUCKET, STORAGE_PATH) and
// the first sentinel present wins, probed in that order. A selected
// backend with an incomplete companion set is a fatal misconfiguration
// rather than a fallthrough to the next type, so a typo never silently
// switches the storage target. Exactly one backend is active per
// process.
package config

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

func getConfig(key, desc, def string) string {
	value := os.Getenv(key)
	if value == "" && def == "" {
		log.WithFields(log.Fields{
			"option":      key,
			"description": desc,
		}).Fatal("missing required configuration envvar")
	} else if value == "" {
		return def
	}

	return value
}

func getIntConfig(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		log.WithField("option", key).WithError(err).
			Fatal("configuration envvar must be numeric")
	}

	return n
}

// Backend represents the possible storage backend types.
type Backend int

const (
	Bunny Backend = iota
	S3
	FileSystem
)

// BunnyConfig holds the settings of the Bunny edge-storage backend.
type BunnyConfig struct {
	StorageZone string // Name of the storage zone
	AccessKey   string // Storage zone API access key
	PullZone    string // Public pull-zone hostname, e.g. cdn.example.com
	Endpoint    string // Storage API hostname
}

// S3Config holds the settings of the generic object-store backend.
type S3Config struct {
	Bucket string
	Region string
}

// FSConfig holds the settings of the local filesystem backend.
type FSConfig struct {
	Path      string // Base directory for stored objects
	PublicURL string // External base URL under which objects are served
}

// Config holds the media proxy configuration options.
type Config struct {
	Port    string  // Port on which to launch the HTTP server
	Backend Backend // Active storage backend type

	Bunny BunnyConfig
	S3    S3Config
	FS    FSConfig

	// Rate limiting: requests allowed per client identifier within
	// one fixed window.
	RateLimitRequests int
	RateLimitWindow   int // seconds

	// Global throughput ceiling in requests per second; zero
	// disables the throttle.
	Throughput int
}

// FromEnv probes the environment for backend configuration in fixed
// priority order and assembles the process configuration.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:              getConfig("PORT", "HTTP port", "8080"),
		RateLimitRequests: getIntConfig("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getIntConfig("RATE_LIMIT_WINDOW", 60),
		Throughput:        getIntConfig("MAX_REQUESTS_PER_SECOND", 0),
	}

	switch {
	case os.Getenv("BUNNY_STORAGE_ZONE") != "":
		cfg.Backend = Bunny
		cfg.Bunny = BunnyConfig{
			StorageZone: getConfig("BUNNY_STORAGE_ZONE", "Bunny storage zone name", ""),
			AccessKey:   getConfig("BUNNY_ACCESS_KEY", "Bunny storage access key", ""),
			PullZone:    getConfig("BUNNY_PULL_ZONE", "Bunny pull zone hostname", ""),
			Endpoint:    getConfig("BUNNY_ENDPOINT", "Bunny storage endpoint", "storage.bunnycdn.com"),
		}
	case os.Getenv("S3_BUCKET") != "":
		cfg.Backend = S3
		cfg.S3 = S3Config{
			Bucket: getConfig("S3_BUCKET", "S3 bucket name", ""),
			Region: getConfig("AWS_REGION", "AWS region", "us-east-1"),
		}
	case os.Getenv("STORAGE_PATH") != "":
		cfg.Backend = FileSystem
		cfg.FS = FSConfig{
			Path:      getConfig("STORAGE_PATH", "Filesystem storage directory", ""),
			PublicURL: getConfig("STORAGE_PUBLIC_URL", "Public base URL for stored files", "http://localhost:8080/media"),
		}
	default:
		return Config{}, fmt.Errorf("no storage backend configured (set BUNNY_STORAGE_ZONE, S3_BUCKET or STORAGE_PATH)")
	}

	return cfg, nil
}
