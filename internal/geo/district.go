// Package geo resolves listing coordinates and addresses to administrative
// districts using static boundary reference data.
package geo

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"gopkg.in/yaml.v3"
)

// District is one named administrative boundary: one or more polygons plus an
// optional street gazetteer for text fallback. Loaded once per process,
// immutable thereafter.
type District struct {
	Name     string
	Polygons []*geom.Polygon
	Streets  []string // normalized street-name substrings
}

// BoundingBox is the metropolitan extent; coordinates outside it never match
// a polygon.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether a coordinate lies within the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// polygonContains tests point-in-polygon over the exterior ring, excluding
// holes. Coordinates are XY = lon,lat.
func polygonContains(p *geom.Polygon, lon, lat float64) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	pt := geom.Coord{lon, lat}
	if !xy.IsPointInRing(p.Layout(), pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// boundaryFile is the YAML reference-data schema. Rings are lon,lat pairs;
// the first ring of each polygon is the exterior.
type boundaryFile struct {
	Districts []struct {
		Name     string        `yaml:"name"`
		Polygons [][][]float64 `yaml:"polygons"`
		Streets  []string      `yaml:"streets"`
	} `yaml:"districts"`
}

// LoadYAML reads district boundaries from a YAML file, preserving file order.
// Order matters: overlapping polygons tie-break to the first match in load
// order.
func LoadYAML(path string) ([]District, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read boundary file %s", path)
	}
	return ParseYAML(data)
}

// ParseYAML parses boundary YAML bytes.
func ParseYAML(data []byte) ([]District, error) {
	var bf boundaryFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, eris.Wrap(err, "geo: parse boundary yaml")
	}

	districts := make([]District, 0, len(bf.Districts))
	for _, d := range bf.Districts {
		if d.Name == "" {
			return nil, eris.New("geo: district without a name")
		}

		if len(d.Polygons) == 0 {
			return nil, eris.Errorf("geo: district %q has no polygons", d.Name)
		}

		dist := District{Name: d.Name}
		for _, ring := range d.Polygons {
			if len(ring) < 3 {
				return nil, eris.Errorf("geo: district %q: ring with %d points", d.Name, len(ring))
			}
			flat := make([]float64, 0, (len(ring)+1)*2)
			for _, pt := range ring {
				if len(pt) != 2 {
					return nil, eris.Errorf("geo: district %q: malformed coordinate", d.Name)
				}
				flat = append(flat, pt[0], pt[1])
			}
			// Close the ring if the file leaves it open.
			if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
				flat = append(flat, flat[0], flat[1])
			}

			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				return nil, eris.Wrapf(err, "geo: district %q: bad ring", d.Name)
			}
			dist.Polygons = append(dist.Polygons, poly)
		}

		for _, s := range d.Streets {
			dist.Streets = append(dist.Streets, NormalizeAddress(s))
		}

		districts = append(districts, dist)
	}

	if len(districts) == 0 {
		return nil, eris.New("geo: boundary file has no districts")
	}
	return districts, nil
}

// containsFold reports whether normalized haystack contains needle.
func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
