package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/forest-guardian/wqindex/internal/utils"
	"gopkg.in/yaml.v3"
)

//go:embed resources/*.yaml
var resources embed.FS

var defaultFiles = []string{
	"resources/land_algo_config.yaml",
	"resources/wc_algo_config.yaml",
}

// Catalog is the immutable set of algorithm descriptors loaded at start-up.
type Catalog struct {
	descriptors map[string]AlgorithmDescriptor
}

func Parse(content []byte) (*Catalog, error) {
	var raw map[string]AlgorithmDescriptor
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse algorithm config: %w", err)
	}
	c := &Catalog{descriptors: make(map[string]AlgorithmDescriptor, len(raw))}
	for name, d := range raw {
		d.Name = name
		if err := d.validate(); err != nil {
			return nil, err
		}
		c.descriptors[name] = d
	}
	return c, nil
}

// Default returns the land and water-colour tables shipped with the binary.
func Default() (*Catalog, error) {
	out := &Catalog{descriptors: map[string]AlgorithmDescriptor{}}
	for _, name := range defaultFiles {
		content, err := resources.ReadFile(name)
		if err != nil {
			return nil, err
		}
		c, err := Parse(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for algo, d := range c.descriptors {
			if _, dup := out.descriptors[algo]; dup {
				return nil, fmt.Errorf("%s: algorithm %q declared twice", name, algo)
			}
			out.descriptors[algo] = d
		}
	}
	return out, nil
}

// LoadWorkspace overlays <workspace>/resources/algo_config.yaml on base.
// A missing or empty workspace file leaves base untouched.
func LoadWorkspace(base *Catalog, workspace string) (*Catalog, []string, error) {
	if workspace == "" {
		return base, nil, nil
	}
	content, err := os.ReadFile(filepath.Join(workspace, "resources", "algo_config.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return base, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return base, nil, nil
	}
	user, err := Parse(content)
	if err != nil {
		return nil, nil, fmt.Errorf("workspace %s: %w", workspace, err)
	}
	merged, skipped := base.Merge(user)
	return merged, skipped, nil
}

// Merge returns a new catalog holding c plus the algorithms of other whose
// names are not already in c. The shadowed names are returned sorted.
func (c *Catalog) Merge(other *Catalog) (*Catalog, []string) {
	out := &Catalog{descriptors: make(map[string]AlgorithmDescriptor, len(c.descriptors)+len(other.descriptors))}
	for name, d := range c.descriptors {
		out.descriptors[name] = d
	}
	var skipped []string
	for name, d := range other.descriptors {
		if _, ok := out.descriptors[name]; ok {
			skipped = append(skipped, name)
			continue
		}
		out.descriptors[name] = d
	}
	slices.Sort(skipped)
	return out, skipped
}

func (c *Catalog) Names() []string {
	return utils.SortedKeys(c.descriptors)
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.descriptors[name]
	return ok
}

func (c *Catalog) Descriptor(name string) (AlgorithmDescriptor, error) {
	d, ok := c.descriptors[name]
	if !ok {
		return AlgorithmDescriptor{}, InputError("unknown algorithm %q", name)
	}
	return d.clone(), nil
}

// RequestedBands returns the bands to extract for running name on a product
// of the given type.
func (c *Catalog) RequestedBands(name, productType string) ([]string, error) {
	d, ok := c.descriptors[name]
	if !ok {
		return nil, InputError("unknown algorithm %q", name)
	}
	sat, err := SatelliteKey(productType)
	if err != nil {
		return nil, err
	}
	bands, ok := d.Bands[sat]
	if !ok {
		return nil, InputError("%s is not allowed with %s", productType, name)
	}
	return slices.Clone(bands), nil
}

// Variables returns the variable names produced by name (outputs then
// ancillary) and their long names. Ancillary variables have no long name in
// configuration and reuse their variable name.
func (c *Catalog) Variables(name string) ([]string, []string, error) {
	d, ok := c.descriptors[name]
	if !ok {
		return nil, nil, InputError("unknown algorithm %q", name)
	}
	vars := d.Variables()
	longNames := append(slices.Clone([]string(d.LongName)), d.Ancillary...)
	return vars, longNames, nil
}
