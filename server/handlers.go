package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/zenazn/goji/web"

	"github.com/PABannier/WSIStreamer/tile"
	"github.com/PABannier/WSIStreamer/wsi"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		wsi.Errorf("Unable to write JSON response: %v\n", err)
	}
}

// writeError maps an error onto its status code and stable error string.
// Client errors carry their message; server-side failures get a generic one
// so offsets, object ids, and store details stay in the log.
func writeError(w http.ResponseWriter, err error) {
	kind := wsi.KindOf(err)
	status := kind.HTTPStatus()
	message := err.Error()
	if status >= http.StatusInternalServerError {
		wsi.Errorf("Request failed: %v\n", err)
		switch kind {
		case wsi.ErrDecode:
			message = "unable to decode the stored tile"
		case wsi.ErrEncode:
			message = "unable to encode the tile"
		case wsi.ErrTransport, wsi.ErrConnection:
			message = "the object store could not be reached"
		default:
			message = "internal error reading the slide"
		}
	}
	writeJSON(w, status, errorBody{
		Error:   kind.Code(),
		Message: message,
		Status:  status,
	})
}

// slideParam returns the validated slide id URL parameter.
func slideParam(c web.C) (string, error) {
	id := c.URLParams["slide"]
	if id == "" || strings.Contains(id, "..") || strings.HasPrefix(id, "/") {
		return "", wsi.NewError(wsi.ErrNotFound, "no such slide")
	}
	return id, nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Service) healthHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: Version})
}

type slideEntry struct {
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

type slidesResponse struct {
	Slides []slideEntry `json:"slides"`
	Count  int          `json:"count"`
}

func (s *Service) slidesHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	objects, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := slidesResponse{Slides: []slideEntry{}}
	for _, obj := range objects {
		if isSlideKey(obj.Key) {
			resp.Slides = append(resp.Slides, slideEntry{ID: obj.Key, Size: obj.Size})
		}
	}
	resp.Count = len(resp.Slides)
	writeJSON(w, http.StatusOK, resp)
}

// isSlideKey filters bucket listings down to slide files.
func isSlideKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".svs") || strings.HasSuffix(lower, ".tif") ||
		strings.HasSuffix(lower, ".tiff")
}

type levelMetadata struct {
	Level      int    `json:"level"`
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	TileWidth  uint32 `json:"tile_width"`
	TileHeight uint32 `json:"tile_height"`
	TilesX     uint32 `json:"tiles_x"`
	TilesY     uint32 `json:"tiles_y"`

	// Tiles in the last column and row are truncated to the level edge;
	// clients sizing a canvas need the true pixel dimensions.
	EdgeTileWidth  uint32 `json:"edge_tile_width"`
	EdgeTileHeight uint32 `json:"edge_tile_height"`

	Downsample float64 `json:"downsample"`
}

type slideMetadataResponse struct {
	ID            string          `json:"id"`
	Format        string          `json:"format"`
	Width         uint32          `json:"width"`
	Height        uint32          `json:"height"`
	LevelCount    int             `json:"level_count"`
	Levels        []levelMetadata `json:"levels"`
	MPP           float64         `json:"mpp,omitempty"`
	Magnification float64         `json:"magnification,omitempty"`
}

func (s *Service) metadataHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := slideParam(c)
	if err != nil {
		writeError(w, err)
		return
	}
	sl, err := s.Registry().Slide(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	desc := sl.Desc
	resp := slideMetadataResponse{
		ID:            id,
		Format:        desc.Format.String(),
		Width:         desc.Width,
		Height:        desc.Height,
		LevelCount:    desc.LevelCount(),
		Levels:        make([]levelMetadata, 0, desc.LevelCount()),
		MPP:           desc.Metadata.MPP,
		Magnification: desc.Metadata.Magnification,
	}
	for i := range desc.Levels {
		lvl := &desc.Levels[i]
		edgeW, edgeH := lvl.TileDimensions(lvl.TilesX-1, lvl.TilesY-1)
		resp.Levels = append(resp.Levels, levelMetadata{
			Level:          i,
			Width:          lvl.Width,
			Height:         lvl.Height,
			TileWidth:      lvl.TileWidth,
			TileHeight:     lvl.TileHeight,
			TilesX:         lvl.TilesX,
			TilesY:         lvl.TilesY,
			EdgeTileWidth:  edgeW,
			EdgeTileHeight: edgeH,
			Downsample:     lvl.Downsample,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) tileHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := slideParam(c)
	if err != nil {
		writeError(w, err)
		return
	}
	level, err := strconv.Atoi(c.URLParams["level"])
	if err != nil || level < 0 {
		writeError(w, wsi.NewError(wsi.ErrInvalidLevel, "level must be a non-negative integer"))
		return
	}
	x, err := strconv.ParseUint(c.URLParams["x"], 10, 32)
	if err != nil {
		writeError(w, wsi.NewError(wsi.ErrTileOutOfBounds, "tile x must be a non-negative integer"))
		return
	}
	yStr := strings.TrimSuffix(strings.TrimSuffix(c.URLParams["file"], ".jpg"), ".jpeg")
	y, err := strconv.ParseUint(yStr, 10, 32)
	if err != nil {
		writeError(w, wsi.NewError(wsi.ErrTileOutOfBounds, "tile y must be a non-negative integer"))
		return
	}

	quality := 0 // 0 selects the server default
	if q := r.URL.Query().Get("quality"); q != "" {
		quality, err = strconv.Atoi(q)
		if err != nil || quality < 1 || quality > 100 {
			writeError(w, wsi.NewError(wsi.ErrInvalidQuality, "quality must be an integer between 1 and 100"))
			return
		}
	}

	resp, err := s.tiles.GetTile(r.Context(), tile.Request{
		SlideID: id,
		Level:   level,
		X:       uint32(x),
		Y:       uint32(y),
		Quality: quality,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.config.Server.CacheMaxAge))
	w.Header().Set("X-Tile-Cache-Hit", strconv.FormatBool(resp.CacheHit))
	w.Header().Set("X-Tile-Quality", strconv.Itoa(resp.Quality))
	if _, err := w.Write(resp.Data); err != nil {
		wsi.Debugf("Unable to write tile response: %v\n", err)
	}
}
