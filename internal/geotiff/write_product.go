package geotiff

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/forest-guardian/wqindex/internal/utils"
)

// WriteProduct writes one Float64 band per variable to path. Product
// attributes become dataset metadata, variable attributes band metadata.
func WriteProduct(path string, p *product.Product, ref Georef) error {
	if len(p.Variables) == 0 {
		return fmt.Errorf("product %s has no variable", p.Algorithm)
	}
	width, height := p.Variables[0].Data.Width, p.Variables[0].Data.Height
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := path + ".tmp"
	ds, err := godal.Create(godal.GTiff, tmp, len(p.Variables), godal.Float64, width, height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fill(ds, p, ref); err != nil {
		ds.Close()
		os.Remove(tmp)
		return err
	}
	if err := ds.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func fill(ds *godal.Dataset, p *product.Product, ref Georef) error {
	if ref.GeoTransform != ([6]float64{}) {
		if err := ds.SetGeoTransform(ref.GeoTransform); err != nil {
			return fmt.Errorf("failed to set geotransform: %w", err)
		}
	}
	if ref.Projection != "" {
		if err := ds.SetProjection(ref.Projection); err != nil {
			return fmt.Errorf("failed to set projection: %w", err)
		}
	}
	for _, k := range utils.SortedKeys(p.Attrs) {
		if err := ds.SetMetadata(k, p.Attrs[k]); err != nil {
			return fmt.Errorf("failed to set attribute %s: %w", k, err)
		}
	}

	bands := ds.Bands()
	for i, v := range p.Variables {
		if !v.Data.SameShape(p.Variables[0].Data) {
			return fmt.Errorf("variable %s does not match the shape of %s", v.Name, p.Variables[0].Name)
		}
		band := bands[i]
		if err := band.SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("failed to set nodata of %s: %w", v.Name, err)
		}
		if err := band.SetDescription(v.Name); err != nil {
			return fmt.Errorf("failed to name band %s: %w", v.Name, err)
		}
		for _, k := range utils.SortedKeys(v.Attrs) {
			if err := band.SetMetadata(k, formatAttr(v.Attrs[k])); err != nil {
				return fmt.Errorf("failed to set attribute %s of %s: %w", k, v.Name, err)
			}
		}
		if err := band.Write(0, 0, v.Data.Data, v.Data.Width, v.Data.Height); err != nil {
			return fmt.Errorf("failed to write %s: %w", v.Name, err)
		}
	}
	return nil
}

func formatAttr(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}
