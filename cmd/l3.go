package main

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/geotiff"
	"github.com/forest-guardian/wqindex/internal/naming"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/forest-guardian/wqindex/internal/properties"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var l3 struct {
	input       string
	productType string
	algos       []string
	algoBand    map[string]string
	algoCalib   map[string]string
	algoDesign  map[string]string
	bands       []string
	dataType    string
	outputDir   string
	codeSite    string
	wkt         string
	roiFile     string
	res         float64
	masks       []string
	attrs       map[string]string
}

var createL3Cmd = &cobra.Command{
	Use:   "create-l3algo",
	Short: "Build L3 products from a GeoTIFF of extracted bands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createL3(cmd.Context())
	},
}

func init() {
	f := createL3Cmd.Flags()
	f.StringVarP(&l3.input, "input", "i", "", "GeoTIFF holding the extracted bands (required)")
	f.StringVarP(&l3.productType, "product-type", "t", "", "Product type of the input (required)")
	f.StringSliceVarP(&l3.algos, "algo", "a", nil, "Algorithm(s) to run (required)")
	f.StringToStringVar(&l3.algoBand, "algo-band", nil, "Band override per algorithm, e.g. spm-nechad=B5")
	f.StringToStringVar(&l3.algoCalib, "algo-calib", nil, "Calibration name or file per algorithm")
	f.StringToStringVar(&l3.algoDesign, "algo-design", nil, "Design per algorithm, e.g. chla-gitelson=2_bands")
	f.StringSliceVar(&l3.bands, "bands", nil, "Band names of the input, in band order")
	f.StringVar(&l3.dataType, "data-type", "", "Reflectance unit of the input: rho or rrs")
	f.StringVarP(&l3.outputDir, "output-dir", "o", "", "Output directory (default: $OUTPUT_DIR)")
	f.StringVar(&l3.codeSite, "code-site", "", "Site code used in file names")
	f.StringVar(&l3.wkt, "wkt", "", "Region of interest as WKT")
	f.StringVar(&l3.roiFile, "roi-file", "", "Region of interest as a WKT or GeoJSON file")
	f.Float64Var(&l3.res, "res", 0, "Resolution in file names (default: pixel size of the input)")
	f.StringArrayVar(&l3.masks, "mask", nil, "Mask GeoTIFF as PATH:IN or PATH:OUT (repeatable)")
	f.StringToStringVar(&l3.attrs, "attr", nil, "Extra global attribute of the products, e.g. campaign=2024")
	createL3Cmd.MarkFlagRequired("input")
	createL3Cmd.MarkFlagRequired("product-type")
	createL3Cmd.MarkFlagRequired("algo")
}

func createL3(ctx context.Context) error {
	specs, err := algoSpecs()
	if err != nil {
		return err
	}
	dataType, err := algorithm.ParseDataType(l3.dataType)
	if err != nil {
		return err
	}
	masks, err := readMasks(l3.masks)
	if err != nil {
		return err
	}
	geom, err := roiGeometry()
	if err != nil {
		return err
	}

	var opts []geotiff.SourceOption
	if len(l3.bands) > 0 {
		opts = append(opts, geotiff.WithBandNames(l3.bands...))
	}
	if len(l3.attrs) > 0 {
		opts = append(opts, geotiff.WithAttributes(l3.attrs))
	}
	src, err := geotiff.Open(l3.input, opts...)
	if err != nil {
		return err
	}

	builder := product.NewBuilder(registry, product.WithLogger(logger), product.WithWorkers(properties.Workers()))
	req := product.Request{ProductType: l3.productType, Algorithms: specs, Source: src}
	if l3.dataType != "" {
		req.DataType = dataType
	}
	products, err := builder.Build(ctx, req)
	if err != nil {
		return err
	}

	info, err := naming.Describe(l3.input, l3.productType)
	if err != nil {
		return err
	}
	roi := naming.ROI(l3.codeSite, geom, info.Tile)
	outputDir := l3.outputDir
	if outputDir == "" {
		outputDir = properties.OutputDir()
	}
	res := l3.res
	if res == 0 {
		res = math.Abs(src.Georef().GeoTransform[1])
	}

	for _, p := range products {
		if err := p.ApplyMasks(masks...); err != nil {
			return err
		}
		path := filepath.Join(outputDir, naming.L3Filename(naming.ForProduct(p, info, roi, res)))
		if err := geotiff.WriteProduct(path, p, src.Georef()); err != nil {
			return fmt.Errorf("failed to write %s product: %w", p.Algorithm, err)
		}
		logger.Info("L3 product written", zap.String("algorithm", p.Algorithm), zap.String("path", path))
		fmt.Println(path)
	}
	return nil
}

// algoSpecs pairs every --algo with its per-algorithm settings. Settings
// given for an algorithm that is not run are rejected.
func algoSpecs() ([]product.AlgoSpec, error) {
	for flag, settings := range map[string]map[string]string{"algo-band": l3.algoBand, "algo-calib": l3.algoCalib, "algo-design": l3.algoDesign} {
		for name := range settings {
			if !slices.Contains(l3.algos, name) {
				return nil, config.InputError("--%s given for %s which is not in --algo", flag, name)
			}
		}
	}
	specs := make([]product.AlgoSpec, len(l3.algos))
	for i, name := range l3.algos {
		specs[i] = product.AlgoSpec{
			Name:        name,
			Band:        l3.algoBand[name],
			Calibration: calibration.ParseRef(l3.algoCalib[name]),
			Design:      l3.algoDesign[name],
		}
	}
	return specs, nil
}

func readMasks(args []string) ([]product.Mask, error) {
	masks := make([]product.Mask, 0, len(args))
	for _, arg := range args {
		path, kind := arg, "IN"
		if i := strings.LastIndex(arg, ":"); i > 0 {
			path, kind = arg[:i], arg[i+1:]
		}
		maskType, err := product.ParseMaskType(kind)
		if err != nil {
			return nil, err
		}
		grid, err := geotiff.ReadMask(path)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		masks = append(masks, product.Mask{Name: strings.TrimSuffix(base, filepath.Ext(base)), Type: maskType, Grid: grid})
	}
	return masks, nil
}

func roiGeometry() (orb.Geometry, error) {
	switch {
	case l3.wkt != "" && l3.roiFile != "":
		return nil, config.InputError("--wkt and --roi-file are exclusive")
	case l3.wkt != "":
		return naming.ParseWKT(l3.wkt)
	case l3.roiFile != "":
		return naming.LoadGeometry(l3.roiFile)
	}
	return nil, nil
}
