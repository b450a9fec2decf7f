package config

import (
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a YAML scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = ss
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

// AlgorithmDescriptor describes one algorithm as declared in configuration.
type AlgorithmDescriptor struct {
	Name      string              `yaml:"-"`
	LongName  StringList          `yaml:"long_name"`
	Output    StringList          `yaml:"output"`
	Ancillary StringList          `yaml:"ancillary,omitempty"`
	Bands     map[string][]string `yaml:"bands"`
}

func (d AlgorithmDescriptor) validate() error {
	if len(d.Output) == 0 {
		return InputError("%s: no output variable declared", d.Name)
	}
	if len(d.LongName) != len(d.Output) {
		return InputError("%s: %d long names for %d outputs", d.Name, len(d.LongName), len(d.Output))
	}
	if len(d.Bands) == 0 {
		return InputError("%s: no band list declared", d.Name)
	}
	for sat, bands := range d.Bands {
		if len(bands) == 0 {
			return InputError("%s: empty band list for %s", d.Name, sat)
		}
	}
	return nil
}

func (d AlgorithmDescriptor) clone() AlgorithmDescriptor {
	out := d
	out.LongName = slices.Clone(d.LongName)
	out.Output = slices.Clone(d.Output)
	out.Ancillary = slices.Clone(d.Ancillary)
	out.Bands = maps.Clone(d.Bands)
	for sat, bands := range out.Bands {
		out.Bands[sat] = slices.Clone(bands)
	}
	return out
}

// Variables returns output names followed by ancillary names.
func (d AlgorithmDescriptor) Variables() []string {
	return append(slices.Clone([]string(d.Output)), d.Ancillary...)
}

// Satellites returns the satellite keys the algorithm accepts, sorted.
func (d AlgorithmDescriptor) Satellites() []string {
	keys := slices.Collect(maps.Keys(d.Bands))
	slices.Sort(keys)
	return keys
}

// AllowsBands reports whether every band is declared for the satellite key.
func (d AlgorithmDescriptor) AllowsBands(satKey string, bands ...string) bool {
	valid, ok := d.Bands[satKey]
	if !ok {
		return false
	}
	for _, b := range bands {
		if !slices.Contains(valid, b) {
			return false
		}
	}
	return true
}
