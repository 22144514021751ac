package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseYAML_ClosesOpenRings(t *testing.T) {
	districts, err := ParseYAML([]byte(boundaryYAML))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(districts) != 2 {
		t.Fatalf("districts = %d, want 2", len(districts))
	}
	if districts[0].Name != "Кировский" || districts[1].Name != "Октябрьский" {
		t.Errorf("load order not preserved: %q, %q", districts[0].Name, districts[1].Name)
	}

	ring := districts[0].Polygons[0].LinearRing(0)
	coords := ring.FlatCoords()
	n := len(coords)
	if coords[0] != coords[n-2] || coords[1] != coords[n-1] {
		t.Error("exterior ring not closed")
	}
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty districts", "districts: []"},
		{"missing name", "districts:\n  - polygons:\n      - [[55.9, 54.7], [56.0, 54.7], [56.0, 54.8]]"},
		{"no polygons", "districts:\n  - name: Пустой"},
		{"degenerate ring", "districts:\n  - name: Линия\n    polygons:\n      - [[55.9, 54.7], [56.0, 54.7]]"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadYAML_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "districts.yaml")
	if err := os.WriteFile(path, []byte(boundaryYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	districts, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if len(districts) != 2 {
		t.Errorf("districts = %d, want 2", len(districts))
	}

	if _, err := LoadYAML(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	} else if !strings.Contains(err.Error(), "geo") {
		t.Errorf("error not package-prefixed: %v", err)
	}
}

func TestBoundingBox_Contains(t *testing.T) {
	box := BoundingBox{MinLat: 54.50, MaxLat: 54.95, MinLon: 55.75, MaxLon: 56.25}
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{54.73, 55.95, true},
		{54.50, 55.75, true}, // inclusive edges
		{54.49, 55.95, false},
		{54.73, 56.26, false},
		{55.75, 37.61, false},
	}
	for _, tt := range tests {
		if got := box.Contains(tt.lat, tt.lon); got != tt.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}
