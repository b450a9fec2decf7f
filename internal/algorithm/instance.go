package algorithm

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/raster"
)

// settings declares which options an algorithm accepts.
type settings struct {
	name string
	// calibration is the default calibration name; empty for uncalibrated
	// indices.
	calibration string
	// band is the default band of band-selectable algorithms.
	band    string
	designs []string
	// unit is the reflectance the formula is written for; empty means any.
	unit DataType
	// strictLimit excludes values equal to the validity limit.
	strictLimit bool
}

// instance carries the state shared by every algorithm once resolved.
type instance struct {
	name    string
	product string
	sat     string
	bands   []string
	band    string
	design  string
	unit    DataType
	limit   float64
	strict  bool
	calib   *calibration.Set
	meta    Meta
}

func resolve(env Env, s settings, opts Options) (*instance, error) {
	if env.Catalog == nil {
		return nil, fmt.Errorf("no algorithm catalog configured")
	}
	bands, err := env.Catalog.RequestedBands(s.name, opts.ProductType)
	if err != nil {
		return nil, err
	}
	sat, err := config.SatelliteKey(opts.ProductType)
	if err != nil {
		return nil, err
	}
	inst := &instance{
		name:    s.name,
		product: opts.ProductType,
		sat:     sat,
		bands:   bands,
		unit:    s.unit,
		limit:   math.Inf(1),
		strict:  s.strictLimit,
		meta:    Meta{},
	}

	switch {
	case s.band != "":
		band := cmp.Or(opts.Band, s.band)
		if !slices.Contains(bands, band) {
			return nil, config.InputError("%s or %s is not allowed with %s", opts.ProductType, band, s.name)
		}
		inst.band = band
		inst.bands = []string{band}
		inst.meta["band"] = band
	case opts.Band != "":
		return nil, config.InputError("%s does not accept a band selection", s.name)
	}

	switch {
	case len(s.designs) > 0:
		design := cmp.Or(opts.Design, s.designs[0])
		if !slices.Contains(s.designs, design) {
			return nil, config.InputError("design %q is not allowed with %s (expected one of %v)", design, s.name, s.designs)
		}
		inst.design = design
		inst.meta["design"] = design
	case opts.Design != "":
		return nil, config.InputError("%s does not accept a design", s.name)
	}

	switch {
	case s.calibration != "":
		if env.Calibrations == nil {
			return nil, fmt.Errorf("no calibration store configured")
		}
		ref := opts.Calibration
		if ref.IsZero() {
			ref = calibration.Named(s.calibration)
		}
		set, err := env.Calibrations.Load(s.name, ref)
		if err != nil {
			return nil, err
		}
		inst.calib = set
		inst.limit = set.ValidityLimit
		inst.meta["calibration"] = set.Name
		inst.meta["validity_limit"] = set.ValidityLimit
	case !opts.Calibration.IsZero():
		return nil, config.InputError("%s does not accept a calibration", s.name)
	}
	return inst, nil
}

// coefficients returns the calibration values of keys for the instance
// satellite (and band), recording every coefficient in the metadata.
func (i *instance) coefficients(keys ...string) ([]float64, error) {
	coefs, err := i.calib.Coefficients(i.sat, i.band)
	if err != nil {
		if errors.Is(err, config.ErrInvalidInput) {
			return nil, config.InputError("%s is not allowed with %s/%s", i.product, i.name, i.calib.Name)
		}
		return nil, err
	}
	values, err := coefs.Values(keys...)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", i.name, i.calib.Name, err)
	}
	for k, v := range coefs {
		i.meta[k] = v
	}
	return values, nil
}

// switches returns the mixing thresholds shared by every satellite.
func (i *instance) switches() (lo, hi float64, err error) {
	if lo, err = i.calib.Global("switch_inf"); err != nil {
		return 0, 0, err
	}
	if hi, err = i.calib.Global("switch_sup"); err != nil {
		return 0, 0, err
	}
	if lo >= hi {
		return 0, 0, config.InputError("calibration %s: switch_inf must be lower than switch_sup", i.calib.Name)
	}
	i.meta["switch_inf"] = lo
	i.meta["switch_sup"] = hi
	return lo, hi, nil
}

func (i *instance) Name() string { return i.name }

func (i *instance) RequestedBands() []string { return slices.Clone(i.bands) }

func (i *instance) Meta() Meta { return maps.Clone(i.meta) }

// inputs validates in and converts its grids to the unit of the formula.
func (i *instance) inputs(in Input) ([]*raster.Grid, error) {
	if len(in.Bands) != len(i.bands) {
		return nil, fmt.Errorf("%s expects %d bands %v, got %d", i.name, len(i.bands), i.bands, len(in.Bands))
	}
	dt, err := ParseDataType(string(in.DataType))
	if err != nil {
		return nil, err
	}
	for n, g := range in.Bands {
		if g == nil {
			return nil, fmt.Errorf("%s: band %s is missing", i.name, i.bands[n])
		}
		if !g.SameShape(in.Bands[0]) {
			return nil, fmt.Errorf("%s: band %s is %dx%d, expected %dx%d", i.name, i.bands[n], g.Width, g.Height, in.Bands[0].Width, in.Bands[0].Height)
		}
	}
	grids := slices.Clone(in.Bands)
	switch {
	case i.unit == Rho && dt == Rrs:
		for n, g := range grids {
			grids[n] = g.Scale(math.Pi)
		}
	case i.unit == Rrs && dt == Rho:
		for n, g := range grids {
			grids[n] = g.Scale(1 / math.Pi)
		}
	}
	return grids, nil
}

// compute runs fn pixel by pixel over the converted inputs and masks values
// outside [0, validity limit], or [0, validity limit) for strict limits.
func (i *instance) compute(in Input, fn func(px []float64) float64) ([]*raster.Grid, error) {
	grids, err := i.inputs(in)
	if err != nil {
		return nil, err
	}
	out, err := raster.Apply(fn, grids...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", i.name, err)
	}
	switch {
	case math.IsInf(i.limit, 1):
	case i.strict:
		out = out.WithinUpper(0, i.limit)
	default:
		out = out.Within(0, i.limit)
	}
	return []*raster.Grid{out.Finite()}, nil
}

// nonNegative reports whether every reflectance of px is a usable value.
func nonNegative(px ...float64) bool {
	for _, v := range px {
		if math.IsNaN(v) || v < 0 {
			return false
		}
	}
	return true
}

func nechad(rho, a, c float64) float64 {
	return a * rho / (1 - rho/c)
}
