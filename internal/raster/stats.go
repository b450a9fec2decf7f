package raster

import "math"

type Stats struct {
	Valid int
	Min   float64
	Max   float64
	Mean  float64
}

// Stats summarises the finite pixels of g. Min, Max and Mean are NaN when no
// pixel is valid.
func (g *Grid) Stats() Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.Valid++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Valid == 0 {
		return Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	}
	s.Mean = sum / float64(s.Valid)
	return s
}
