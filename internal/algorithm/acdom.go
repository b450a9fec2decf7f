package algorithm

import (
	"math"

	"github.com/forest-guardian/wqindex/internal/raster"
)

// Bands are [short wavelength, long wavelength]; Rrs.
type acdomBrezonik struct {
	*instance
	a1, a2 float64
}

func newAcdomBrezonik(env Env, opts Options) (Algorithm, error) {
	inst, err := resolve(env, settings{name: "acdom-brezonik", calibration: "Brezonik_2015", unit: Rrs}, opts)
	if err != nil {
		return nil, err
	}
	c, err := inst.coefficients("a1", "a2")
	if err != nil {
		return nil, err
	}
	return &acdomBrezonik{instance: inst, a1: c[0], a2: c[1]}, nil
}

func (b *acdomBrezonik) Compute(in Input) ([]*raster.Grid, error) {
	return b.compute(in, func(px []float64) float64 {
		short, long := px[0], px[1]
		if !nonNegative(short) {
			return math.NaN()
		}
		return math.Exp(b.a1 + b.a2*math.Log(short/long))
	})
}
