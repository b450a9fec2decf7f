// Package naming builds the file names of L3 products.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/product"
)

// Info identifies an input product.
type Info struct {
	CodeImage string
	Sat       string
	Tile      string
	Source    string
}

// ExtractInfo derives the image code, satellite and tile from the name of an
// input product, following each provider's naming convention.
func ExtractInfo(inputProduct, productType string) (Info, error) {
	source, err := config.Source(productType)
	if err != nil {
		return Info{}, err
	}
	name := strings.TrimSuffix(filepath.Base(inputProduct), filepath.Ext(inputProduct))
	parts := strings.Split(name, "_")
	bad := config.InputError("%s does not look like a %s product name", filepath.Base(inputProduct), productType)

	info := Info{Source: source}
	switch {
	case strings.HasSuffix(productType, "_GRS"):
		// S2A_OPER_MSI_L1C_TL_..._T31TCJ_... or LC08_L1TP_199026_20200531_...
		if len(parts) < 7 {
			return Info{}, bad
		}
		info.CodeImage = strings.Join(parts[2:7], "_")
		info.Tile = parts[5]
		info.Sat = "S2"
		if productType != "S2_GRS" {
			info.Sat = "LC" + productType[1:2]
		}
	case strings.Contains(productType, "_USGS_"):
		// LC08_L1TP_199026_20200531_20200608_01_T1
		if len(parts) < 4 {
			return Info{}, bad
		}
		info.Sat = "LC" + productType[1:2]
		info.CodeImage = info.Sat + parts[2] + parts[3]
		info.Tile = parts[2]
	case strings.HasPrefix(productType, "S2_ESA") || productType == "S2_C2RCC":
		// S2A_MSIL2A_20200523T105031_N0214_R051_T31TCJ_20200523T121837
		if len(parts) < 6 || len(parts[5]) < 2 || len(parts[2]) < 8 {
			return Info{}, bad
		}
		info.Sat = "S2"
		info.Tile = parts[5][1:]
		info.CodeImage = parts[0] + info.Tile + parts[2][:8]
	case productType == "S2_THEIA":
		// SENTINEL2A_20200523-105856-432_L2A_T31TCJ_C_V2-2
		if len(parts) < 4 || len(parts[3]) < 2 || len(parts[1]) < 8 || len(parts[0]) < 2 {
			return Info{}, bad
		}
		info.Sat = "S2"
		info.Tile = parts[3][1:]
		info.CodeImage = "S" + parts[0][len(parts[0])-2:] + info.Tile + parts[1][:8]
	default:
		return Info{}, config.InputError("no naming convention for %s", productType)
	}
	return info, nil
}

// Describe is ExtractInfo for inputs that may have been renamed after band
// extraction: an unrecognised name gives the file base name as image code.
func Describe(inputProduct, productType string) (Info, error) {
	info, err := ExtractInfo(inputProduct, productType)
	if err == nil {
		return info, nil
	}
	source, serr := config.Source(productType)
	if serr != nil {
		return Info{}, serr
	}
	base := filepath.Base(inputProduct)
	return Info{CodeImage: strings.TrimSuffix(base, filepath.Ext(base)), Source: source}, nil
}

// FilenameParams are the parts of an L3 file name.
type FilenameParams struct {
	CodeImage   string
	ROI         string
	Source      string
	Algorithm   string
	Resolution  float64
	Band        string
	Calibration string
	Design      string
	Masks       []string
	Extension   string
}

// L3Filename returns
// <code_image>_<roi>_<source>_<algo>_params-res=<res>m[-band=][-calib=][-design=][_masks-...].<ext>
func L3Filename(p FilenameParams) string {
	var b strings.Builder
	for _, part := range []string{p.CodeImage, p.ROI, p.Source, p.Algorithm} {
		if part != "" {
			b.WriteString(part)
			b.WriteByte('_')
		}
	}
	fmt.Fprintf(&b, "params-res=%sm", formatFloat(p.Resolution))
	for _, opt := range [][2]string{{"band", p.Band}, {"calib", p.Calibration}, {"design", p.Design}} {
		if opt[1] != "" {
			fmt.Fprintf(&b, "-%s=%s", opt[0], opt[1])
		}
	}
	if len(p.Masks) > 0 {
		b.WriteString("_masks-")
		b.WriteString(strings.Join(p.Masks, "-"))
	}
	ext := p.Extension
	if ext == "" {
		ext = "tif"
	}
	b.WriteByte('.')
	b.WriteString(strings.TrimPrefix(ext, "."))
	return b.String()
}

// ForProduct fills the algorithm parameters of p from the product metadata.
func ForProduct(prod *product.Product, info Info, roi string, res float64) FilenameParams {
	p := FilenameParams{
		CodeImage:  info.CodeImage,
		ROI:        roi,
		Source:     info.Source,
		Algorithm:  prod.Algorithm,
		Resolution: res,
	}
	if v, ok := prod.Meta["band"].(string); ok {
		p.Band = v
	}
	if v, ok := prod.Meta["calibration"].(string); ok {
		p.Calibration = v
	}
	if v, ok := prod.Meta["design"].(string); ok {
		p.Design = v
	}
	if masks := prod.Attrs["masks"]; masks != "" {
		for _, m := range strings.Split(masks, ", ") {
			name, kind, _ := strings.Cut(m, " ")
			p.Masks = append(p.Masks, strings.ToLower(strings.Trim(kind, "[]"))+"="+name)
		}
	}
	return p
}
