// Package algorithm implements the spectral indices and water colour models
// computed from extracted band grids.
package algorithm

import (
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/raster"
)

// DataType tells whether input grids hold surface reflectance (rho, unitless)
// or remote sensing reflectance (Rrs, sr-1). rho = pi * Rrs.
type DataType string

const (
	Rho DataType = "rho"
	Rrs DataType = "rrs"
)

func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case "", Rho:
		return Rho, nil
	case Rrs:
		return Rrs, nil
	}
	return "", config.InputError("unknown data type %q (expected rho or rrs)", s)
}

// Input holds one grid per requested band, in RequestedBands order.
type Input struct {
	Bands    []*raster.Grid
	DataType DataType
}

type Meta map[string]any

// Algorithm is an instance bound to one product type, band selection,
// design and calibration. Compute does not modify the instance.
type Algorithm interface {
	Name() string
	RequestedBands() []string
	Meta() Meta
	Compute(in Input) ([]*raster.Grid, error)
}

// Options are the instance settings. Zero values select the algorithm
// defaults.
type Options struct {
	ProductType string
	Band        string
	Calibration calibration.Ref
	Design      string
}

// Env is what constructors resolve against.
type Env struct {
	Catalog      *config.Catalog
	Calibrations *calibration.Store
}

type Constructor func(env Env, opts Options) (Algorithm, error)
