// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0
package config

import "testing"

func TestFromEnvSentinelPriority(t *testing.T) {
	// With both sentinels present the earlier probe wins.
	t.Setenv("BUNNY_STORAGE_ZONE", "media")
	t.Setenv("BUNNY_ACCESS_KEY", "key")
	t.Setenv("BUNNY_PULL_ZONE", "cdn.example.com")
	t.Setenv("S3_BUCKET", "media-bucket")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %s", err)
	}
	if cfg.Backend != Bunny {
		t.Fatalf("backend = %v, want Bunny", cfg.Backend)
	}
	if cfg.Bunny.Endpoint != "storage.bunnycdn.com" {
		t.Fatalf("endpoint default not applied: %q", cfg.Bunny.Endpoint)
	}
}

func TestFromEnvS3(t *testing.T) {
	t.Setenv("BUNNY_STORAGE_ZONE", "")
	t.Setenv("S3_BUCKET", "media-bucket")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %s", err)
	}
	if cfg.Backend != S3 {
		t.Fatalf("backend = %v, want S3", cfg.Backend)
	}
	if cfg.S3.Region != "us-east-1" {
		t.Fatalf("region default not applied: %q", cfg.S3.Region)
	}
}

func TestFromEnvNoBackend(t *testing.T) {
	t.Setenv("BUNNY_STORAGE_ZONE", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("STORAGE_PATH", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error with no backend sentinel set")
	}
}
