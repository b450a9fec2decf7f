package algorithm

import (
	"math"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/raster"
)

// Bands are [red, red edge 1, nir]; Rrs.
type chlaGons struct {
	*instance
	a, aw665, aw705, p, aphyStar float64
}

func newChlaGons(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-gons", calibration: "Gons_2004", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a", "aw665", "aw705", "p", "aphy_star")
	if err != nil {
		return nil, err
	}
	return &chlaGons{instance: inst, a: c[0], aw665: c[1], aw705: c[2], p: c[3], aphyStar: c[4]}, nil
}

func (g *chlaGons) Compute(in Input) ([]*raster.Grid, error) {
	return g.compute(in, func(px []float64) float64 {
		red, re1, nir := px[0], px[1], px[2]
		if !nonNegative(red, nir) {
			return math.NaN()
		}
		bb := g.a * nir / (0.082 - 0.6*nir)
		aphy := re1/red*(g.aw705+bb) - g.aw665 - math.Pow(bb, g.p)
		return aphy / g.aphyStar
	})
}

const (
	design2Bands = "2_bands"
	design3Bands = "3_bands"
)

// Bands are [red, red edge, nir]; Rrs.
type chlaGitelson struct {
	*instance
	a, b float64
}

func newChlaGitelson(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{
		name:        "chla-gitelson",
		calibration: "Gitelson_2008",
		designs:     []string{design3Bands, design2Bands},
		unit:        Rrs,
	}, opts)
	if err != nil {
		return nil, err
	}
	suffix := "_3bands"
	if inst.design == design2Bands {
		suffix = "_2bands"
	}
	c, err := inst.coefficients("a"+suffix, "b"+suffix)
	if err != nil {
		return nil, err
	}
	return &chlaGitelson{instance: inst, a: c[0], b: c[1]}, nil
}

func (g *chlaGitelson) Compute(in Input) ([]*raster.Grid, error) {
	return g.compute(in, func(px []float64) float64 {
		red, re, nir := px[0], px[1], px[2]
		if !nonNegative(red, nir) {
			return math.NaN()
		}
		if g.design == design2Bands {
			return g.a + g.b*nir/red
		}
		return g.a + g.b*(1/red-1/re)*nir
	})
}

// Bands are [red, red edge]; Rrs.
type chla2Bands struct {
	*instance
	a, b, c float64
}

func newChla2Bands(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-2bands", calibration: "Moses_2012", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a", "b", "c")
	if err != nil {
		return nil, err
	}
	return &chla2Bands{instance: inst, a: c[0], b: c[1], c: c[2]}, nil
}

func (m *chla2Bands) Compute(in Input) ([]*raster.Grid, error) {
	return m.compute(in, func(px []float64) float64 {
		red, re := px[0], px[1]
		if !nonNegative(red) {
			return math.NaN()
		}
		return math.Pow(m.a+m.b*re/red, m.c)
	})
}

// Bands are [red, red edge 1, red edge 2]; Rrs.
type chla3Bands struct {
	*instance
	a, b, c float64
}

func newChla3Bands(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-3bands", calibration: "Moses_2009", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a", "b", "c")
	if err != nil {
		return nil, err
	}
	return &chla3Bands{instance: inst, a: c[0], b: c[1], c: c[2]}, nil
}

func (m *chla3Bands) Compute(in Input) ([]*raster.Grid, error) {
	return m.compute(in, func(px []float64) float64 {
		red, re1, re2 := px[0], px[1], px[2]
		if !nonNegative(red) {
			return math.NaN()
		}
		return math.Pow(m.a+m.b*(1/red-1/re1)*re2, m.c)
	})
}

// Bands are [red, red edge 1]; any reflectance unit.
type chlaGurlin struct {
	*instance
	a, b, c float64
}

func newChlaGurlin(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-gurlin", calibration: "Gurlin_2011"}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a", "b", "c")
	if err != nil {
		return nil, err
	}
	return &chlaGurlin{instance: inst, a: c[0], b: c[1], c: c[2]}, nil
}

func (g *chlaGurlin) Compute(in Input) ([]*raster.Grid, error) {
	return g.compute(in, func(px []float64) float64 {
		red, re := px[0], px[1]
		if !nonNegative(red) {
			return math.NaN()
		}
		x := re / red
		return g.a*x*x + g.b*x + g.c
	})
}

// Bands are [red, red edge 1]; any reflectance unit.
type chlaLins struct {
	*instance
	p, q float64
}

func newChlaLins(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-lins", calibration: "Lins_2017"}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("p", "q")
	if err != nil {
		return nil, err
	}
	return &chlaLins{instance: inst, p: c[0], q: c[1]}, nil
}

func (l *chlaLins) Compute(in Input) ([]*raster.Grid, error) {
	return l.compute(in, func(px []float64) float64 {
		red, re := px[0], px[1]
		if !nonNegative(red) {
			return math.NaN()
		}
		return l.p*re/red + l.q
	})
}

// Bands are [red, red edge 1]; any reflectance unit. A quadratic of the
// normalized difference chlorophyll index.
type chlaNDCIPoly struct {
	*instance
	a, b, c float64
}

func newChlaNDCIPoly(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-ndcipoly", calibration: "Mishra_2012"}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a", "b", "c")
	if err != nil {
		return nil, err
	}
	return &chlaNDCIPoly{instance: inst, a: c[0], b: c[1], c: c[2]}, nil
}

func (m *chlaNDCIPoly) Compute(in Input) ([]*raster.Grid, error) {
	return m.compute(in, func(px []float64) float64 {
		red, re := px[0], px[1]
		if !nonNegative(red) {
			return math.NaN()
		}
		idx := (re - red) / (re + red)
		return m.a + m.b*idx + m.c*idx*idx
	})
}

// Bands are [violet, blue, green]; Rrs. The global ratio_bands selects the
// OC3 (max(violet, blue) / green) or OC2 (blue / green) ratio.
type chlaOC struct {
	*instance
	ratioBands int
	poly       []float64
}

func newChlaOC(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "chla-oc", calibration: "OReilly_2019_OC3", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	n, err := inst.calib.Global("ratio_bands")
	if err != nil {
		return nil, err
	}
	if n != 2 && n != 3 {
		return nil, config.InputError("calibration %s: ratio_bands must be 2 or 3, got %v", inst.calib.Name, n)
	}
	inst.meta["ratio_bands"] = n
	c, err := inst.coefficients("a0", "a1", "a2", "a3", "a4")
	if err != nil {
		return nil, err
	}
	return &chlaOC{instance: inst, ratioBands: int(n), poly: c}, nil
}

func (o *chlaOC) Compute(in Input) ([]*raster.Grid, error) {
	return o.compute(in, func(px []float64) float64 {
		violet, blue, green := px[0], px[1], px[2]
		numerator := blue
		if o.ratioBands == 3 {
			numerator = math.Max(violet, blue)
		}
		x := math.Log10(numerator / green)
		var poly float64
		for i := len(o.poly) - 1; i >= 0; i-- {
			poly = poly*x + o.poly[i]
		}
		return math.Pow(10, poly)
	})
}
