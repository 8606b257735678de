/*
	This file serves a minimal OpenSeadragon viewer page.  The page uses a
	custom tile source mapping OpenSeadragon's DeepZoom-style levels onto the
	slide's actual pyramid levels, so only stored resolutions are requested.
*/

package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zenazn/goji/web"

	"github.com/PABannier/WSIStreamer/wsi"
)

const viewerTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Slide viewer - {{.SlideID}}</title>
<script src="https://cdn.jsdelivr.net/npm/openseadragon@4.1/build/openseadragon.min.js"></script>
<style>
body { margin: 0; background: #111; font-family: sans-serif; overflow: hidden; }
#viewer { width: 100vw; height: 100vh; }
.info { position: absolute; top: 12px; left: 12px; color: #eee;
        background: rgba(0,0,0,.75); padding: 10px 14px; border-radius: 6px;
        font-size: 13px; z-index: 1000; }
</style>
</head>
<body>
<div id="viewer"></div>
<div class="info">
  <b>{{.SlideID}}</b><br>
  {{.Width}} x {{.Height}} px, {{.LevelCount}} levels<br>
  {{.Format}}
</div>
<script>
const levelDims = [{{.LevelDims}}];
const maxLevel = {{.MaxLevel}};
const viewer = OpenSeadragon({
  id: "viewer",
  prefixUrl: "https://cdn.jsdelivr.net/npm/openseadragon@4.1/build/openseadragon/images/",
  showNavigator: true,
  tileSources: {
    width: {{.Width}},
    height: {{.Height}},
    tileSize: {{.TileSize}},
    minLevel: 0,
    maxLevel: maxLevel,
    getLevelScale: function(level) {
      const ours = maxLevel - level;
      if (ours < 0 || ours >= levelDims.length) return 0;
      return levelDims[ours].w / {{.Width}};
    },
    getNumTiles: function(level) {
      const ours = maxLevel - level;
      if (ours < 0 || ours >= levelDims.length) return { x: 0, y: 0 };
      return {
        x: Math.ceil(levelDims[ours].w / {{.TileSize}}),
        y: Math.ceil(levelDims[ours].h / {{.TileSize}})
      };
    },
    getTileUrl: function(level, x, y) {
      const ours = maxLevel - level;
      return "/tiles/{{.EncodedID}}/" + ours + "/" + x + "/" + y + ".jpg{{.AuthQuery}}";
    }
  }
});
</script>
</body>
</html>`

var viewerPage = template.Must(template.New("viewer").Parse(viewerTemplate))

type viewerData struct {
	SlideID    string
	EncodedID  string
	Width      uint32
	Height     uint32
	LevelCount int
	TileSize   uint32
	MaxLevel   int
	Format     string
	LevelDims  template.JS
	AuthQuery  template.JS
}

func (s *Service) viewerHandler(c web.C, w http.ResponseWriter, r *http.Request) {
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

	dims := make([]string, 0, len(desc.Levels))
	for i := range desc.Levels {
		dims = append(dims, fmt.Sprintf("{w:%d,h:%d}", desc.Levels[i].Width, desc.Levels[i].Height))
	}

	// Viewer pages mint their own short-lived token so the embedded tile
	// URLs work when auth is enabled.
	var authQuery string
	if s.config.Auth.Enabled {
		token, err := SignToken(s.config.Auth.SecretKey, id, time.Hour)
		if err != nil {
			writeError(w, err)
			return
		}
		authQuery = "?token=" + token
	}

	w.Header().Set("Content-Type", "text/html")
	err = viewerPage.Execute(w, viewerData{
		SlideID:    id,
		EncodedID:  url.PathEscape(id),
		Width:      desc.Width,
		Height:     desc.Height,
		LevelCount: desc.LevelCount(),
		TileSize:   desc.Levels[0].TileWidth,
		MaxLevel:   len(desc.Levels) - 1,
		Format:     desc.Format.String(),
		LevelDims:  template.JS(strings.Join(dims, ",")),
		AuthQuery:  template.JS(authQuery),
	})
	if err != nil {
		wsi.Errorf("Unable to render viewer page: %v\n", err)
	}
}
