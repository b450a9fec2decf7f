package algorithm

import (
	"math"

	"github.com/forest-guardian/wqindex/internal/raster"
)

type spmNechad struct {
	*instance
	a, c float64
}

func newSPMNechad(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "spm-nechad", calibration: "Nechad_2016", band: "B4", unit: Rho, strictLimit: true}, opts)
	if err != nil {
		return nil, err
	}
	coefs, err := inst.coefficients("a", "c")
	if err != nil {
		return nil, err
	}
	return &spmNechad{instance: inst, a: coefs[0], c: coefs[1]}, nil
}

func (s *spmNechad) Compute(in Input) ([]*raster.Grid, error) {
	return s.compute(in, func(px []float64) float64 {
		if !nonNegative(px[0]) {
			return math.NaN()
		}
		return nechad(px[0], s.a, s.c)
	})
}

// spmHan blends two Nechad models on the red Rrs with logarithmic weights.
type spmHan struct {
	*instance
	aLow, cLow, aHigh, cHigh float64
	lo, hi                   float64
}

func newSPMHan(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "spm-han", calibration: "Han_2016", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	coefs, err := inst.coefficients("a_low", "c_low", "a_high", "c_high", "switch_inf", "switch_sup")
	if err != nil {
		return nil, err
	}
	return &spmHan{
		instance: inst,
		aLow:     coefs[0],
		cLow:     coefs[1],
		aHigh:    coefs[2],
		cHigh:    coefs[3],
		lo:       coefs[4],
		hi:       coefs[5],
	}, nil
}

func (s *spmHan) Compute(in Input) ([]*raster.Grid, error) {
	return s.compute(in, func(px []float64) float64 {
		red := px[0]
		if !nonNegative(red) {
			return math.NaN()
		}
		low := nechad(red, s.aLow, s.cLow)
		high := nechad(red, s.aHigh, s.cHigh)
		switch {
		case red <= s.lo:
			return low
		case red >= s.hi:
			return high
		}
		wLow := math.Log10(s.hi) - math.Log10(red)
		wHigh := math.Log10(red) - math.Log10(s.lo)
		return (wLow*low + wHigh*high) / (wLow + wHigh)
	})
}

// switching mixes a clear water model and a turbid water model linearly on
// the red reflectance between two thresholds.
type switching struct {
	*instance
	lo, hi    float64
	low, high func(red, nir float64) float64
}

func (s *switching) Compute(in Input) ([]*raster.Grid, error) {
	return s.compute(in, func(px []float64) float64 {
		red, nir := px[0], px[1]
		if !nonNegative(red, nir) {
			return math.NaN()
		}
		switch {
		case red <= s.lo:
			return s.low(red, nir)
		case red >= s.hi:
			return s.high(red, nir)
		}
		w := (red - s.lo) / (s.hi - s.lo)
		return (1-w)*s.low(red, nir) + w*s.high(red, nir)
	})
}

func newSwitching(name, calib string, env Env, opts Options, keys []string, models func(coefs []float64) (low, high func(red, nir float64) float64)) (Algorithm, error) {
	inst, err := resolve(env, settings{name: name, calibration: calib, unit: Rho}, opts)
	if err != nil {
		return nil, err
	}
	lo, hi, err := inst.switches()
	if err != nil {
		return nil, err
	}
	coefs, err := inst.coefficients(keys...)
	if err != nil {
		return nil, err
	}
	low, high := models(coefs)
	return &switching{instance: inst, lo: lo, hi: hi, low: low, high: high}, nil
}

// Bands are [red, nir]. Nechad on red for clear waters, NIR/red power law
// for turbid waters.
func newSPMGet(env Env, opts Options) (Algorithm, error) {
	return newSwitching("spm-get", "GET_2018", env, opts,
		[]string{"a_nechad", "c_nechad", "coef_br", "exp_br"},
		func(c []float64) (func(red, nir float64) float64, func(red, nir float64) float64) {
			low := func(red, _ float64) float64 { return nechad(red, c[0], c[1]) }
			high := func(red, nir float64) float64 { return c[2] * math.Pow(nir/red, c[3]) }
			return low, high
		})
}

// Bands are [red, nir]. Nechad on red below switch_inf, on NIR above
// switch_sup.
func newTurbiDogliotti(env Env, opts Options) (Algorithm, error) {
	return newSwitching("turbi-dogliotti", "Dogliotti_2015", env, opts,
		[]string{"a_low", "c_low", "a_high", "c_high"},
		func(c []float64) (func(red, nir float64) float64, func(red, nir float64) float64) {
			low := func(red, _ float64) float64 { return nechad(red, c[0], c[1]) }
			high := func(_, nir float64) float64 { return nechad(nir, c[2], c[3]) }
			return low, high
		})
}
