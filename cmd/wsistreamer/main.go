// Command-line interface to the WSI tile server.
// Provides the core serve command plus sign and check utilities.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/PABannier/WSIStreamer/server"
	"github.com/PABannier/WSIStreamer/slide"
	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/tile"
	"github.com/PABannier/WSIStreamer/wsi"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to a TOML configuration file.
	configFile = flag.String("config", "", "")

	// Address for HTTP communication; overrides the config file.
	httpAddress = flag.String("http", "", "")

	// Bucket URL; overrides the config file.
	bucket = flag.String("bucket", "", "")

	// Slide id for the sign command.
	signSlide = flag.String("slide", "", "")

	// Token lifetime for the sign command.
	signTTL = flag.Duration("ttl", time.Hour, "")
)

const helpMessage = `
wsistreamer serves JPEG tiles of whole slide images straight from object storage

Usage: wsistreamer [options] <command>

      -config     =string   Path to TOML configuration file.
      -http       =string   Address for HTTP communication, e.g. "localhost:3000".
      -bucket     =string   Slide bucket URL, e.g. "s3://my-slides?region=us-east-1".
      -slide      =string   Slide id for the sign command.
      -ttl        =duration Token lifetime for the sign command (default 1h).
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message.

Commands:

      serve       Start the tile server (default command).
      sign        Print a signed viewer URL for a slide.
      check       Verify bucket connectivity and list its objects.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		wsi.SetLogLevel(wsi.LogDebug)
	}

	config := wsi.DefaultConfig()
	if *configFile != "" {
		var err error
		config, err = wsi.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	if *bucket != "" {
		config.Store.Bucket = *bucket
	}

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	var err error
	switch command {
	case "serve":
		err = doServe(config)
	case "sign":
		err = doSign(config)
	case "check":
		err = doCheck(config)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		wsi.Criticalf("%v\n", err)
		wsi.Shutdown()
		os.Exit(1)
	}
}

// doServe wires the caches, registry, and tile service, then runs the HTTP
// server until it fails.
func doServe(config wsi.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	config.Logging.Start()
	config.LogStartup()

	ctx := context.Background()
	store, err := storage.OpenStore(ctx, config.Store.Bucket, config.Store.Prefix)
	if err != nil {
		return err
	}
	defer store.Close()

	blocks := storage.NewBlockCache(
		int64(config.Cache.BlockSizeBytes),
		config.Cache.BlockCacheBytes,
		config.Cache.BlockCacheBlocks,
	)
	registry := slide.NewRegistry(slide.StoreSource{Store: store}, blocks, config.Cache.SlideRegistryCapacity)
	tiles := tile.NewService(registry, config.Cache.TileCacheBytes, config.Cache.DefaultJPEGQuality)

	svc := server.New(config, store, tiles)
	defer wsi.Shutdown()
	return svc.Serve()
}

// doSign prints a signed viewer URL for one slide.
func doSign(config wsi.Config) error {
	if config.Auth.SecretKey == "" {
		return fmt.Errorf("signing requires auth secret_key in the config file")
	}
	if *signSlide == "" {
		return fmt.Errorf("sign requires -slide <id>")
	}
	token, err := server.SignToken(config.Auth.SecretKey, *signSlide, *signTTL)
	if err != nil {
		return err
	}
	fmt.Printf("http://%s/viewer/%s?token=%s\n", config.Server.HTTPAddress, *signSlide, token)
	return nil
}

// doCheck verifies bucket connectivity and lists every object under the
// configured prefix.
func doCheck(config wsi.Config) error {
	if config.Store.Bucket == "" {
		return fmt.Errorf("check requires a bucket, e.g. -bucket s3://my-slides")
	}
	ctx := context.Background()
	store, err := storage.OpenStore(ctx, config.Store.Bucket, config.Store.Prefix)
	if err != nil {
		return err
	}
	defer store.Close()

	objects, err := store.List(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Bucket %s reachable, %d objects:\n", config.Store.Bucket, len(objects))
	for _, obj := range objects {
		fmt.Printf("  %-60s %s\n", obj.Key, humanize.IBytes(uint64(obj.Size)))
	}
	return nil
}
