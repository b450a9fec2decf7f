package naming

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// ROI picks the region tag of a file name: the site code when given, else
// the top-left corner of the geometry, else the tile.
func ROI(codeSite string, geom orb.Geometry, tile string) string {
	switch {
	case codeSite != "":
		return codeSite
	case geom != nil:
		return TopLeft(geom)
	}
	return tile
}

// TopLeft formats the top-left corner of the geometry bounds as "[x,y]",
// rounded to 5 decimals.
func TopLeft(geom orb.Geometry) string {
	p := geom.Bound().LeftTop()
	return fmt.Sprintf("[%s,%s]", formatFloat(round5(p.X())), formatFloat(round5(p.Y())))
}

// ParseWKT reads a WKT geometry.
func ParseWKT(s string) (orb.Geometry, error) {
	geom, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return nil, config.InputError("invalid WKT: %v", err)
	}
	return geom, nil
}

// LoadGeometry reads the first geometry of a WKT or GeoJSON file.
func LoadGeometry(path string) (orb.Geometry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry file: %w", err)
	}
	text := strings.TrimSpace(string(content))
	if !strings.HasPrefix(text, "{") {
		first, _, _ := strings.Cut(text, "\n")
		return ParseWKT(first)
	}
	if fc, err := geojson.UnmarshalFeatureCollection(content); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(content); err == nil && f.Geometry != nil {
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(content)
	if err != nil {
		return nil, config.InputError("invalid GeoJSON in %s: %v", path, err)
	}
	return g.Coordinates, nil
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
