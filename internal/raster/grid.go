// Package raster holds the band and derived-product arrays exchanged with
// algorithms. Invalid pixels are NaN.
package raster

import (
	"fmt"
	"math"
)

type Grid struct {
	Width  int
	Height int
	Data   []float64
}

func New(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
}

// Fill returns a grid of the given shape where every pixel is v.
func Fill(width, height int, v float64) *Grid {
	g := New(width, height)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// FromRows builds a grid from row-major rows of equal length.
func FromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	width := len(rows[0])
	g := New(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		copy(g.Data[y*width:], row)
	}
	return g, nil
}

func (g *Grid) Rows() [][]float64 {
	rows := make([][]float64, g.Height)
	for y := range rows {
		rows[y] = g.Data[y*g.Width : (y+1)*g.Width]
	}
	return rows
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

func (g *Grid) Clone() *Grid {
	out := New(g.Width, g.Height)
	copy(out.Data, g.Data)
	return out
}

func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Map applies fn to every pixel of a copy of g.
func (g *Grid) Map(fn func(float64) float64) *Grid {
	out := New(g.Width, g.Height)
	for i, v := range g.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Scale multiplies every pixel by k.
func (g *Grid) Scale(k float64) *Grid {
	return g.Map(func(v float64) float64 { return v * k })
}

// Within keeps pixels in [lo, hi] and sets the others to NaN.
func (g *Grid) Within(lo, hi float64) *Grid {
	return g.Map(func(v float64) float64 {
		if v < lo || v > hi {
			return math.NaN()
		}
		return v
	})
}

// WithinUpper keeps pixels in [lo, hi) and sets the others to NaN.
func (g *Grid) WithinUpper(lo, hi float64) *Grid {
	return g.Map(func(v float64) float64 {
		if v < lo || v >= hi {
			return math.NaN()
		}
		return v
	})
}

// Finite replaces +Inf and -Inf with NaN in place.
func (g *Grid) Finite() *Grid {
	for i, v := range g.Data {
		if math.IsInf(v, 0) {
			g.Data[i] = math.NaN()
		}
	}
	return g
}

// Apply evaluates fn pixel by pixel over grids of identical shape.
func Apply(fn func(px []float64) float64, grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("no input grid")
	}
	first := grids[0]
	for i, g := range grids[1:] {
		if !first.SameShape(g) {
			return nil, fmt.Errorf("grid %d is %dx%d, expected %dx%d", i+1, g.Width, g.Height, first.Width, first.Height)
		}
	}
	out := New(first.Width, first.Height)
	px := make([]float64, len(grids))
	for i := range out.Data {
		for j, g := range grids {
			px[j] = g.Data[i]
		}
		out.Data[i] = fn(px)
	}
	return out, nil
}

// NormalizedDifference computes (a-b)/(a+b); a zero denominator gives NaN.
func NormalizedDifference(a, b *Grid) (*Grid, error) {
	return Apply(func(px []float64) float64 {
		den := px[0] + px[1]
		if den == 0 {
			return math.NaN()
		}
		return (px[0] - px[1]) / den
	}, a, b)
}
