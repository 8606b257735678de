/*
	Package server exposes the tile service over HTTP.  Routing uses a goji
	mux; every error leaves as a JSON body with a stable error code, and tile
	responses carry cache headers so browsers and CDNs can do their part.
*/
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/blang/semver"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"

	"github.com/PABannier/WSIStreamer/slide"
	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/tile"
	"github.com/PABannier/WSIStreamer/wsi"
)

// Version is the server release, reported by /health.
const Version = "1.2.0"

func init() {
	if _, err := semver.Make(Version); err != nil {
		wsi.Criticalf("Bad server version %q: %v\n", Version, err)
	}
}

// Service holds the wired request-processing state.  It is created once at
// startup and shared by all requests; passing it explicitly (rather than via
// package globals) keeps tests hermetic.
type Service struct {
	config wsi.Config
	store  *storage.Store
	tiles  *tile.Service

	buildOnce sync.Once
	handler   http.Handler
}

// New wires a server Service from its collaborators.
func New(config wsi.Config, store *storage.Store, tiles *tile.Service) *Service {
	return &Service{config: config, store: store, tiles: tiles}
}

// Registry returns the slide registry behind the tile service.
func (s *Service) Registry() *slide.Registry {
	return s.tiles.Registry()
}

// Handler returns the routed HTTP handler, including CORS and, when
// configured, signed-URL authentication.  It is built once.
func (s *Service) Handler() http.Handler {
	s.buildOnce.Do(func() {
		s.handler = s.buildHandler()
	})
	return s.handler
}

func (s *Service) buildHandler() http.Handler {
	mux := web.New()
	mux.Use(s.logRequests)
	if s.config.Auth.Enabled {
		mux.Use(s.checkToken)
	}

	mux.Get("/health", s.healthHandler)
	mux.Get("/slides", s.slidesHandler)
	mux.Get("/slides/:slide/metadata", s.metadataHandler)
	mux.Get("/slides/:slide/dzi", s.dziHandler)
	mux.Get("/tiles/:slide/:level/:x/:file", s.tileHandler)
	mux.Get("/viewer/:slide", s.viewerHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.CorsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return c.Handler(mux)
}

// ServeHTTP lets the Service be used directly as an http.Handler in tests.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Serve runs the HTTP server until it fails.  Stay-alive connections are
// bounded so they don't hog goroutines indefinitely.
func (s *Service) Serve() error {
	address := s.config.Server.HTTPAddress
	if address == "" {
		address = wsi.DefaultWebAddress
	}
	wsi.Infof("Web server listening at %s ...\n", address)
	src := &http.Server{
		Addr:        address,
		Handler:     s.Handler(),
		ReadTimeout: 1 * time.Hour,
	}
	return src.ListenAndServe()
}

// logRequests writes one timed log line per request and converts panics in
// handlers into 500s instead of dropped connections.
func (s *Service) logRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer wsi.LogDuration(wsi.LogDebug, time.Now(), "%s %s", r.Method, r.URL.Path)
		defer func() {
			if e := recover(); e != nil {
				wsi.Criticalf("Panic serving %s %s: %v\n", r.Method, r.URL.Path, e)
				writeError(w, wsi.NewError(wsi.ErrIO, "internal error"))
			}
		}()
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
