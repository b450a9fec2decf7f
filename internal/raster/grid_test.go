package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	g, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, 6.0, g.At(2, 1))
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, g.Rows())

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestApply_ShapeMismatch(t *testing.T) {
	_, err := Apply(func(px []float64) float64 { return px[0] }, New(2, 2), New(3, 2))
	assert.Error(t, err)

	_, err = Apply(func(px []float64) float64 { return 0 })
	assert.Error(t, err)
}

func TestNormalizedDifference(t *testing.T) {
	nir, _ := FromRows([][]float64{{0.4, 0.0, math.NaN()}})
	red, _ := FromRows([][]float64{{0.1, 0.0, 0.2}})

	nd, err := NormalizedDifference(nir, red)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, nd.At(0, 0), 1e-12)
	assert.True(t, math.IsNaN(nd.At(1, 0)), "zero denominator")
	assert.True(t, math.IsNaN(nd.At(2, 0)), "nan input")
}

func TestWithinAndFinite(t *testing.T) {
	g, _ := FromRows([][]float64{{-1, 0, 5, 11, math.Inf(1)}})

	w := g.Within(0, 10)
	assert.True(t, math.IsNaN(w.At(0, 0)))
	assert.Equal(t, 0.0, w.At(1, 0))
	assert.Equal(t, 5.0, w.At(2, 0))
	assert.True(t, math.IsNaN(w.At(3, 0)))
	assert.Equal(t, -1.0, g.At(0, 0), "source untouched")

	edge, _ := FromRows([][]float64{{0, 10}})
	assert.Equal(t, 10.0, edge.Within(0, 10).At(1, 0))
	assert.True(t, math.IsNaN(edge.WithinUpper(0, 10).At(1, 0)))
	assert.Equal(t, 0.0, edge.WithinUpper(0, 10).At(0, 0))

	g.Finite()
	assert.True(t, math.IsNaN(g.At(4, 0)))
}

func TestStats(t *testing.T) {
	g, _ := FromRows([][]float64{{1, math.NaN()}, {3, math.Inf(-1)}})
	s := g.Stats()
	assert.Equal(t, 2, s.Valid)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.Equal(t, 2.0, s.Mean)

	empty := Fill(2, 2, math.NaN()).Stats()
	assert.Zero(t, empty.Valid)
	assert.True(t, math.IsNaN(empty.Mean))
}
