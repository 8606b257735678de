/*
	This file serves DeepZoom (DZI) descriptors so standard DZI clients can
	negotiate slide geometry.  Tiles themselves are served through the
	pyramid-level tile routes; the viewer page maps DeepZoom levels onto
	pyramid levels client-side.
*/

package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/zenazn/goji/web"
)

// dziXML renders a DeepZoom image descriptor.
func dziXML(width, height, tileSize uint32) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Image xmlns="http://schemas.microsoft.com/deepzoom/2008"
       TileSize="%d"
       Overlap="0"
       Format="jpg">
  <Size Width="%d" Height="%d" />
</Image>`, tileSize, width, height)
}

// maxDZILevel returns the top DeepZoom level for an image, where level N has
// scale 2^(N - max) and the top level is full resolution.
func maxDZILevel(width, height uint32) int {
	maxDim := float64(width)
	if float64(height) > maxDim {
		maxDim = float64(height)
	}
	if maxDim <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(maxDim)))
}

func (s *Service) dziHandler(c web.C, w http.ResponseWriter, r *http.Request) {
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
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, dziXML(desc.Width, desc.Height, desc.Levels[0].TileWidth))
}
