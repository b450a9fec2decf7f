package algorithm

import (
	"fmt"
	"math"

	"github.com/forest-guardian/wqindex/internal/raster"
)

// normalizedDifference computes (a-b)/(a+b) where a and b are the positions
// of the operands in the requested bands.
type normalizedDifference struct {
	*instance
	a, b int
	// maskNegative drops pixels where either reflectance is negative.
	maskNegative bool
}

func (n *normalizedDifference) Compute(in Input) ([]*raster.Grid, error) {
	grids, err := n.inputs(in)
	if err != nil {
		return nil, err
	}
	a, b := grids[n.a], grids[n.b]
	if n.maskNegative {
		a, b = a.Map(dropNegative), b.Map(dropNegative)
	}
	out, err := raster.NormalizedDifference(a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", n.name, err)
	}
	return []*raster.Grid{out.Finite()}, nil
}

func dropNegative(v float64) float64 {
	if v < 0 {
		return math.NaN()
	}
	return v
}

func newIndex(name string, a, b int, maskNegative bool) Constructor {
	return func(env Env, opts Options) (Algorithm, error) {
		inst, err := resolve(env, settings{name: name}, opts)
		if err != nil {
			return nil, err
		}
		return &normalizedDifference{instance: inst, a: a, b: b, maskNegative: maskNegative}, nil
	}
}

// Bands are [red, nir].
var newNDVI = newIndex("ndvi", 1, 0, false)

// Bands are [swir, nir].
var newNBR = newIndex("nbr", 1, 0, false)
