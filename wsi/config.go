/*
	This file handles the TOML configuration for the tile server.  All settings
	have defaults so a minimal config only needs the store section.
*/

package wsi

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

const (
	// DefaultWebAddress is the default address of the tile web server.
	DefaultWebAddress = "localhost:3000"

	// DefaultBlockSize is the size in bytes of a block cache block.
	DefaultBlockSize = 262144 // 256 KiB

	// DefaultBlockCacheBytes is the default total block cache budget.
	DefaultBlockCacheBytes = 256 << 20 // 256 MB

	// DefaultSlideRegistryCapacity is the default number of open slides kept.
	DefaultSlideRegistryCapacity = 100

	// DefaultTileCacheBytes is the default encoded-tile cache budget.
	DefaultTileCacheBytes = 104857600 // 100 MB

	// DefaultJPEGQuality is the JPEG quality used when a request gives none.
	DefaultJPEGQuality = 80

	// DefaultCacheMaxAge is the Cache-Control max-age for tile responses.
	DefaultCacheMaxAge = 3600
)

// Config holds all server configuration, normally parsed from a TOML file
// and overridable by command-line flags.
type Config struct {
	Server  ServerConfig `toml:"server"`
	Store   StoreConfig  `toml:"store"`
	Cache   CacheConfig  `toml:"cache"`
	Auth    AuthConfig   `toml:"auth"`
	Logging LogConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPAddress string   `toml:"http_address"`
	CorsOrigins []string `toml:"cors_origins"`
	CacheMaxAge int      `toml:"cache_max_age"`
}

// StoreConfig locates the object store holding the slides.  Bucket is a
// gocloud.dev URL, e.g. "s3://my-slides?region=us-east-1" or, for
// S3-compatible services, "s3://my-slides?endpoint=http://minio:9000".
// A "file:///path" URL serves slides from a local directory for development.
type StoreConfig struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// CacheConfig bounds the in-memory caches.  BlockCacheBlocks, when nonzero,
// takes precedence over BlockCacheBytes.
type CacheConfig struct {
	BlockSizeBytes        int   `toml:"block_size_bytes"`
	BlockCacheBytes       int64 `toml:"block_cache_capacity_bytes"`
	BlockCacheBlocks      int   `toml:"block_cache_capacity_blocks"`
	SlideRegistryCapacity int   `toml:"slide_registry_capacity"`
	TileCacheBytes        int   `toml:"tile_cache_capacity_bytes"`
	DefaultJPEGQuality    int   `toml:"default_jpeg_quality"`
}

// AuthConfig configures signed tile-URL authentication.  When Enabled, tile
// and DZI routes require a "token" query parameter carrying an HS256 JWT
// signed with SecretKey.
type AuthConfig struct {
	Enabled   bool   `toml:"enabled"`
	SecretKey string `toml:"secret_key"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress: DefaultWebAddress,
			CacheMaxAge: DefaultCacheMaxAge,
		},
		Cache: CacheConfig{
			BlockSizeBytes:        DefaultBlockSize,
			BlockCacheBytes:       DefaultBlockCacheBytes,
			SlideRegistryCapacity: DefaultSlideRegistryCapacity,
			TileCacheBytes:        DefaultTileCacheBytes,
			DefaultJPEGQuality:    DefaultJPEGQuality,
		},
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("unable to read config file %q: %v", path, err)
	}
	if _, err := toml.Decode(string(data), &c); err != nil {
		return c, fmt.Errorf("unable to parse config file %q: %v", path, err)
	}
	return c, nil
}

// Validate checks the configuration, returning an error naming the first
// offending setting.
func (c *Config) Validate() error {
	if c.Store.Bucket == "" {
		return fmt.Errorf("store bucket is required, e.g. bucket = \"s3://my-slides\"")
	}
	if c.Cache.BlockSizeBytes < 1024 || c.Cache.BlockSizeBytes > 16<<20 {
		return fmt.Errorf("block_size_bytes must be between 1 KB and 16 MB, got %d", c.Cache.BlockSizeBytes)
	}
	if c.Cache.BlockCacheBytes <= 0 && c.Cache.BlockCacheBlocks <= 0 {
		return fmt.Errorf("block cache capacity must be positive")
	}
	if c.Cache.SlideRegistryCapacity <= 0 {
		return fmt.Errorf("slide_registry_capacity must be positive, got %d", c.Cache.SlideRegistryCapacity)
	}
	if c.Cache.TileCacheBytes <= 0 {
		return fmt.Errorf("tile_cache_capacity_bytes must be positive, got %d", c.Cache.TileCacheBytes)
	}
	if c.Cache.DefaultJPEGQuality < 1 || c.Cache.DefaultJPEGQuality > 100 {
		return fmt.Errorf("default_jpeg_quality must be between 1 and 100, got %d", c.Cache.DefaultJPEGQuality)
	}
	if c.Auth.Enabled && c.Auth.SecretKey == "" {
		return fmt.Errorf("auth is enabled but no secret_key is set")
	}
	return nil
}

// LogStartup writes the effective settings to the log.
func (c *Config) LogStartup() {
	Infof("Serving slides from %s\n", c.Store.Bucket)
	Infof("Block cache: %s blocks, budget %s\n",
		humanize.IBytes(uint64(c.Cache.BlockSizeBytes)), humanize.IBytes(uint64(c.Cache.BlockCacheBytes)))
	Infof("Tile cache budget: %s\n", humanize.IBytes(uint64(c.Cache.TileCacheBytes)))
	Infof("Slide registry capacity: %d slides\n", c.Cache.SlideRegistryCapacity)
	if c.Auth.Enabled {
		Infof("Signed-URL authentication enabled.\n")
	} else {
		Warningf("Signed-URL authentication disabled; all tile requests are allowed.\n")
	}
}
