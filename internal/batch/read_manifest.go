// Package batch builds L3 products for many input products at once.
package batch

import (
	"fmt"
	"os"
	"strings"

	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/gocarina/gocsv"
)

// ManifestRow is one line of a batch manifest: one algorithm applied to one
// input product. Rows sharing input_product and product_type form one job.
type ManifestRow struct {
	InputProduct string `csv:"input_product"`
	ProductType  string `csv:"product_type"`
	Algo         string `csv:"algo"`
	Band         string `csv:"band"`
	Calibration  string `csv:"calibration"`
	Design       string `csv:"design"`
	// Optional columns, read from the first row of a job.
	Bands    string `csv:"bands"`
	DataType string `csv:"data_type"`
	CodeSite string `csv:"code_site"`
	WKT      string `csv:"wkt"`
}

// Job is the work done on one input product.
type Job struct {
	Input       string
	ProductType string
	Algorithms  []product.AlgoSpec
	// BandNames names the bands of the input file when it carries no band
	// descriptions.
	BandNames []string
	DataType  algorithm.DataType
	CodeSite  string
	WKT       string
}

func ReadManifest(path string) ([]Job, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var rows []*ManifestRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return JobsFromRows(rows)
}

// JobsFromRows groups manifest rows per input product, keeping the order in
// which inputs first appear.
func JobsFromRows(rows []*ManifestRow) ([]Job, error) {
	var jobs []Job
	index := map[[2]string]int{}
	for i, row := range rows {
		line := i + 2
		if row.InputProduct == "" || row.ProductType == "" || row.Algo == "" {
			return nil, config.InputError("manifest line %d: input_product, product_type and algo are required", line)
		}
		if !config.IsProductType(row.ProductType) {
			return nil, config.InputError("manifest line %d: unknown product type %q", line, row.ProductType)
		}
		spec := product.AlgoSpec{
			Name:        row.Algo,
			Band:        row.Band,
			Calibration: calibration.ParseRef(row.Calibration),
			Design:      row.Design,
		}

		key := [2]string{row.InputProduct, row.ProductType}
		if n, ok := index[key]; ok {
			jobs[n].Algorithms = append(jobs[n].Algorithms, spec)
			continue
		}
		// A blank data_type leaves the unit to the source attributes.
		var dataType algorithm.DataType
		if row.DataType != "" {
			dt, err := algorithm.ParseDataType(row.DataType)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", line, err)
			}
			dataType = dt
		}
		index[key] = len(jobs)
		jobs = append(jobs, Job{
			Input:       row.InputProduct,
			ProductType: row.ProductType,
			Algorithms:  []product.AlgoSpec{spec},
			BandNames:   splitBands(row.Bands),
			DataType:    dataType,
			CodeSite:    row.CodeSite,
			WKT:         row.WKT,
		})
	}
	if len(jobs) == 0 {
		return nil, config.InputError("manifest has no job")
	}
	return jobs, nil
}

func splitBands(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == ';' })
}
