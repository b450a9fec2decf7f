// Package geotiff reads extracted bands from multi-band GeoTIFFs and writes
// L3 products as GeoTIFFs. Callers must register the GDAL drivers first
// (godal.RegisterAll).
package geotiff

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/wqindex/internal/raster"
)

// Georef locates a raster on the ground.
type Georef struct {
	GeoTransform [6]float64
	Projection   string
}

// Source serves named bands from one multi-band GeoTIFF. Band names come
// from the band descriptions unless given explicitly, in band order.
type Source struct {
	path   string
	names  []string
	attrs  map[string]string
	georef Georef
	width  int
	height int
}

type SourceOption func(*Source)

// WithBandNames names the bands of the file in order.
func WithBandNames(names ...string) SourceOption {
	return func(s *Source) { s.names = names }
}

// WithAttributes adds attributes to the ones read from the file metadata.
func WithAttributes(attrs map[string]string) SourceOption {
	return func(s *Source) {
		for k, v := range attrs {
			s.attrs[k] = v
		}
	}
}

// Open reads the structure and metadata of path. Pixels are read by
// ReadBands.
func Open(path string, opts ...SourceOption) (*Source, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	s := &Source{path: path, attrs: map[string]string{}}
	for k, v := range ds.Metadatas() {
		s.attrs[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}

	bands := ds.Bands()
	if s.names == nil {
		for i, band := range bands {
			name := strings.TrimSpace(band.Description())
			if name == "" {
				return nil, fmt.Errorf("%s: band %d has no description, band names must be given", path, i+1)
			}
			s.names = append(s.names, name)
		}
	}
	if len(s.names) != len(bands) {
		return nil, fmt.Errorf("%s has %d bands, %d names given", path, len(bands), len(s.names))
	}

	structure := ds.Structure()
	s.width, s.height = structure.SizeX, structure.SizeY
	s.georef.Projection = ds.Projection()
	if gt, err := ds.GeoTransform(); err == nil {
		s.georef.GeoTransform = gt
	}
	return s, nil
}

func (s *Source) BandNames() []string { return append([]string(nil), s.names...) }

func (s *Source) Georef() Georef { return s.georef }

func (s *Source) Attributes() map[string]string { return s.attrs }

// ReadBands reads the named bands. Nodata pixels become NaN.
func (s *Source) ReadBands(ctx context.Context, names []string) ([]*raster.Grid, error) {
	indexes, err := bandIndexes(s.names, names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	ds, err := godal.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	out := make([]*raster.Grid, len(indexes))
	for i, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grid, err := readBand(bands[idx], s.width, s.height)
		if err != nil {
			return nil, fmt.Errorf("failed to read band %s of %s: %w", names[i], s.path, err)
		}
		out[i] = grid
	}
	return out, nil
}

// ReadMask reads the first band of a mask GeoTIFF.
func ReadMask(path string) (*raster.Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask %s: %w", path, err)
	}
	defer ds.Close()
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("mask %s has no band", path)
	}
	structure := ds.Structure()
	return readBand(bands[0], structure.SizeX, structure.SizeY)
}

func readBand(band godal.Band, width, height int) (*raster.Grid, error) {
	grid := raster.New(width, height)
	if err := band.Read(0, 0, grid.Data, width, height); err != nil {
		return nil, err
	}
	if nodata, ok := band.NoData(); ok && !math.IsNaN(nodata) {
		for i, v := range grid.Data {
			if v == nodata {
				grid.Data[i] = math.NaN()
			}
		}
	}
	return grid, nil
}

func bandIndexes(available, names []string) ([]int, error) {
	position := make(map[string]int, len(available))
	for i, name := range available {
		position[name] = i
	}
	out := make([]int, len(names))
	for i, name := range names {
		idx, ok := position[name]
		if !ok {
			return nil, fmt.Errorf("band %s not found (available: %s)", name, strings.Join(available, ", "))
		}
		out[i] = idx
	}
	return out, nil
}
