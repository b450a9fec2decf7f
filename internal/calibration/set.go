package calibration

import (
	"fmt"
	"maps"
	"slices"

	"github.com/forest-guardian/wqindex/internal/config"
	"gopkg.in/yaml.v3"
)

type Coefficients map[string]float64

// Values returns the named coefficients in order.
func (c Coefficients) Values(keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := c[k]
		if !ok {
			return nil, config.InputError("coefficient %q is missing from calibration", k)
		}
		out[i] = v
	}
	return out, nil
}

// Set is one named calibration: scalar parameters shared by all satellites
// plus coefficients per satellite key, optionally split per band.
type Set struct {
	Name          string
	ValidityLimit float64
	Globals       Coefficients

	satellites map[string]Coefficients
	bands      map[string]map[string]Coefficients
}

func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	node = resolve(node)
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: calibration must be a mapping", node.Line)
	}
	s.Globals = Coefficients{}
	s.satellites = map[string]Coefficients{}
	s.bands = map[string]map[string]Coefficients{}
	hasLimit := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := resolve(node.Content[i+1])
		switch value.Kind {
		case yaml.ScalarNode:
			var f float64
			if err := value.Decode(&f); err != nil {
				return fmt.Errorf("line %d: %s: %w", value.Line, key, err)
			}
			if key == "validity_limit" {
				s.ValidityLimit = f
				hasLimit = true
				continue
			}
			s.Globals[key] = f
		case yaml.MappingNode:
			if err := s.decodeSatellite(key, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: unexpected value for %s", value.Line, key)
		}
	}
	if !hasLimit {
		return fmt.Errorf("line %d: validity_limit is required", node.Line)
	}
	return nil
}

// decodeSatellite accepts {coef: value} or {band: {coef: value}}.
func (s *Set) decodeSatellite(sat string, node *yaml.Node) error {
	scalars, mappings := 0, 0
	for i := 1; i < len(node.Content); i += 2 {
		switch resolve(node.Content[i]).Kind {
		case yaml.ScalarNode:
			scalars++
		case yaml.MappingNode:
			mappings++
		}
	}
	switch {
	case scalars > 0 && mappings > 0:
		return fmt.Errorf("line %d: %s mixes coefficients and band tables", node.Line, sat)
	case mappings > 0:
		var perBand map[string]Coefficients
		if err := node.Decode(&perBand); err != nil {
			return fmt.Errorf("line %d: %s: %w", node.Line, sat, err)
		}
		s.bands[sat] = perBand
	default:
		var coefs Coefficients
		if err := node.Decode(&coefs); err != nil {
			return fmt.Errorf("line %d: %s: %w", node.Line, sat, err)
		}
		s.satellites[sat] = coefs
	}
	return nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// Coefficients returns the coefficients for a satellite key. With a band,
// the per-band table of that satellite is used.
func (s *Set) Coefficients(sat, band string) (Coefficients, error) {
	if band == "" {
		coefs, ok := s.satellites[sat]
		if !ok {
			return nil, config.InputError("%s is not allowed with calibration %s", sat, s.Name)
		}
		return maps.Clone(coefs), nil
	}
	perBand, ok := s.bands[sat]
	if !ok {
		return nil, config.InputError("%s is not allowed with calibration %s", sat, s.Name)
	}
	coefs, ok := perBand[band]
	if !ok {
		return nil, config.InputError("%s or %s is not allowed with calibration %s", sat, band, s.Name)
	}
	return maps.Clone(coefs), nil
}

// Global returns a scalar shared by every satellite (e.g. switch_inf).
func (s *Set) Global(key string) (float64, error) {
	v, ok := s.Globals[key]
	if !ok {
		return 0, config.InputError("parameter %q is missing from calibration %s", key, s.Name)
	}
	return v, nil
}

// Satellites returns every satellite key the calibration covers, sorted.
func (s *Set) Satellites() []string {
	keys := slices.Collect(maps.Keys(s.satellites))
	for k := range s.bands {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Bands returns the bands calibrated for sat, sorted.
func (s *Set) Bands(sat string) []string {
	keys := slices.Collect(maps.Keys(s.bands[sat]))
	slices.Sort(keys)
	return keys
}
