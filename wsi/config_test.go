package wsi

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	c := DefaultConfig()
	c.Store.Bucket = "s3://test-slides"
	return c
}

func TestDefaultConfigValid(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("default config with a bucket should validate: %v\n", err)
	}
	if c.Cache.BlockSizeBytes != 262144 {
		t.Errorf("default block size %d, want 262144\n", c.Cache.BlockSizeBytes)
	}
	if c.Cache.TileCacheBytes != 104857600 {
		t.Errorf("default tile cache %d, want 104857600\n", c.Cache.TileCacheBytes)
	}
	if c.Cache.SlideRegistryCapacity != 100 {
		t.Errorf("default registry capacity %d, want 100\n", c.Cache.SlideRegistryCapacity)
	}
	if c.Cache.DefaultJPEGQuality != 80 {
		t.Errorf("default quality %d, want 80\n", c.Cache.DefaultJPEGQuality)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing bucket", func(c *Config) { c.Store.Bucket = "" }},
		{"tiny block size", func(c *Config) { c.Cache.BlockSizeBytes = 512 }},
		{"huge block size", func(c *Config) { c.Cache.BlockSizeBytes = 32 << 20 }},
		{"no block capacity", func(c *Config) { c.Cache.BlockCacheBytes = 0; c.Cache.BlockCacheBlocks = 0 }},
		{"zero registry", func(c *Config) { c.Cache.SlideRegistryCapacity = 0 }},
		{"zero tile cache", func(c *Config) { c.Cache.TileCacheBytes = 0 }},
		{"quality zero", func(c *Config) { c.Cache.DefaultJPEGQuality = 0 }},
		{"quality 101", func(c *Config) { c.Cache.DefaultJPEGQuality = 101 }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true; c.Auth.SecretKey = "" }},
	}
	for _, tc := range cases {
		c := validConfig()
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation failure\n", tc.name)
		}
	}
}

func TestLoadConfigTOML(t *testing.T) {
	content := `
[server]
http_address = "0.0.0.0:8080"
cache_max_age = 600

[store]
bucket = "s3://slides?region=eu-west-1"
prefix = "wsi/"

[cache]
block_size_bytes = 131072
block_cache_capacity_bytes = 134217728
slide_registry_capacity = 50
tile_cache_capacity_bytes = 52428800
default_jpeg_quality = 75

[auth]
enabled = true
secret_key = "shhh"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("unable to write temp config: %v\n", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v\n", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v\n", err)
	}
	if c.Server.HTTPAddress != "0.0.0.0:8080" || c.Server.CacheMaxAge != 600 {
		t.Errorf("server section not loaded: %+v\n", c.Server)
	}
	if c.Store.Bucket != "s3://slides?region=eu-west-1" || c.Store.Prefix != "wsi/" {
		t.Errorf("store section not loaded: %+v\n", c.Store)
	}
	if c.Cache.BlockSizeBytes != 131072 || c.Cache.SlideRegistryCapacity != 50 ||
		c.Cache.DefaultJPEGQuality != 75 {
		t.Errorf("cache section not loaded: %+v\n", c.Cache)
	}
	if !c.Auth.Enabled || c.Auth.SecretKey != "shhh" {
		t.Errorf("auth section not loaded: %+v\n", c.Auth)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.toml"); err == nil {
		t.Errorf("missing config file should fail\n")
	}
}
