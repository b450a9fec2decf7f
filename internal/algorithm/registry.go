package algorithm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/utils"
)

var builtins = map[string]Constructor{
	"ndvi":            newNDVI,
	"nbr":             newNBR,
	"ndwi":            newNDWI,
	"ndci":            newNDCI,
	"spm-nechad":      newSPMNechad,
	"spm-han":         newSPMHan,
	"spm-get":         newSPMGet,
	"turbi-dogliotti": newTurbiDogliotti,
	"chla-gons":       newChlaGons,
	"chla-gitelson":   newChlaGitelson,
	"chla-2bands":     newChla2Bands,
	"chla-3bands":     newChla3Bands,
	"chla-gurlin":     newChlaGurlin,
	"chla-lins":       newChlaLins,
	"chla-ndcipoly":   newChlaNDCIPoly,
	"chla-oc":         newChlaOC,
	"acdom-brezonik":  newAcdomBrezonik,
}

// Registry maps algorithm names to constructors.
type Registry struct {
	env Env

	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry holding every built-in algorithm.
func NewRegistry(env Env) *Registry {
	r := &Registry{env: env, constructors: make(map[string]Constructor, len(builtins))}
	for name, c := range builtins {
		r.constructors[name] = c
	}
	return r
}

func (r *Registry) Catalog() *config.Catalog { return r.env.Catalog }

func (r *Registry) Calibrations() *calibration.Store { return r.env.Calibrations }

// Register adds a user algorithm. Its name must also be declared in the
// catalog for instances to resolve their bands.
func (r *Registry) Register(name string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[name]; ok {
		return fmt.Errorf("algorithm %s is already registered", name)
	}
	r.constructors[name] = c
	return nil
}

// New builds an instance of algorithm name.
func (r *Registry) New(name string, opts Options) (Algorithm, error) {
	r.mu.RLock()
	c, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, config.InputError("unknown algorithm %q", name)
	}
	return c(r.env, opts)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return utils.SortedKeys(r.constructors)
}

// Check compares implementations with the catalog. missingConfig lists
// implemented algorithms the catalog does not declare; missingImpl lists
// declared algorithms nothing implements.
func (r *Registry) Check() (missingConfig, missingImpl []string) {
	implemented := r.Names()
	for _, name := range implemented {
		if !r.env.Catalog.Has(name) {
			missingConfig = append(missingConfig, name)
		}
	}
	for _, name := range r.env.Catalog.Names() {
		if !slices.Contains(implemented, name) {
			missingImpl = append(missingImpl, name)
		}
	}
	return missingConfig, missingImpl
}
