package product

import (
	"fmt"
	"math"
	"strings"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/raster"
)

type MaskType string

const (
	// MaskIn keeps the pixels a mask flags.
	MaskIn MaskType = "IN"
	// MaskOut drops the pixels a mask flags.
	MaskOut MaskType = "OUT"
)

func ParseMaskType(s string) (MaskType, error) {
	switch t := MaskType(strings.ToUpper(s)); t {
	case MaskIn, MaskOut:
		return t, nil
	}
	return "", config.InputError("unknown mask type %q (expected IN or OUT)", s)
}

// Mask is a grid of flags. IN masks flag positive pixels; OUT masks flag
// every non-zero pixel, NaN included.
type Mask struct {
	Name string
	Type MaskType
	Grid *raster.Grid
}

// ApplyMasks keeps a pixel when the sum of the IN masks is positive (or
// there is no IN mask) and the sum of the OUT masks is zero. Other pixels of
// every variable become NaN. The mask names are listed in the "masks"
// attribute.
func (p *Product) ApplyMasks(masks ...Mask) error {
	if len(masks) == 0 {
		return nil
	}
	for _, m := range masks {
		if m.Type != MaskIn && m.Type != MaskOut {
			return config.InputError("mask %s: unknown mask type %q", m.Name, m.Type)
		}
		if m.Grid == nil {
			return fmt.Errorf("mask %s has no data", m.Name)
		}
		for _, v := range p.Variables {
			if !v.Data.SameShape(m.Grid) {
				return fmt.Errorf("mask %s is %dx%d, product %s is %dx%d", m.Name, m.Grid.Width, m.Grid.Height, p.Algorithm, v.Data.Width, v.Data.Height)
			}
		}
	}

	var hasIn bool
	for _, m := range masks {
		hasIn = hasIn || m.Type == MaskIn
	}
	keep := func(i int) bool {
		var in, out float64
		for _, m := range masks {
			if m.Type == MaskIn {
				in += m.Grid.Data[i]
			} else {
				out += m.Grid.Data[i]
			}
		}
		return (!hasIn || in > 0) && out == 0
	}
	for _, v := range p.Variables {
		for i := range v.Data.Data {
			if !keep(i) {
				v.Data.Data[i] = math.NaN()
			}
		}
	}

	names := make([]string, len(masks))
	for i, m := range masks {
		names[i] = fmt.Sprintf("%s [%s]", m.Name, m.Type)
	}
	p.Attrs["masks"] = strings.Join(names, ", ")
	return nil
}
