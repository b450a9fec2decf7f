// Package product assembles L3 products: the outputs of one algorithm over
// one set of extracted bands, with their provenance attributes.
package product

import (
	"context"

	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/raster"
)

// BandSource provides the extracted bands of an input product.
type BandSource interface {
	// ReadBands returns one grid per name, in order.
	ReadBands(ctx context.Context, names []string) ([]*raster.Grid, error)
	// Attributes describes the input product (sensor, date, tile...).
	Attributes() map[string]string
}

// AlgoSpec selects an algorithm and its settings.
type AlgoSpec struct {
	Name        string
	Band        string
	Calibration calibration.Ref
	Design      string
}

func (s AlgoSpec) options(productType string) algorithm.Options {
	return algorithm.Options{
		ProductType: productType,
		Band:        s.Band,
		Calibration: s.Calibration,
		Design:      s.Design,
	}
}

type Request struct {
	ProductType string
	Algorithms  []AlgoSpec
	Source      BandSource
	DataType    algorithm.DataType
}

type Variable struct {
	Name     string
	LongName string
	Data     *raster.Grid
	Attrs    map[string]any
}

type Product struct {
	Algorithm   string
	ProductType string
	Variables   []Variable
	Attrs       map[string]string
	// Meta is the metadata of the algorithm instance.
	Meta algorithm.Meta
}

// Title is "<algorithm> from <product type>".
func (p *Product) Title() string {
	return p.Attrs["title"]
}

func (p *Product) Variable(name string) (Variable, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}
