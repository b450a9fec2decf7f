package calibration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/utils"
	"gopkg.in/yaml.v3"
)

//go:embed resources/*.yaml
var resources embed.FS

// CustomName is the name given to a calibration loaded from a standalone file.
const CustomName = "custom"

// Ref designates a calibration: a name in the algorithm's calibration file or
// the path of a standalone file. The zero Ref selects the algorithm default.
type Ref struct {
	Name string
	Path string
}

func Named(name string) Ref { return Ref{Name: name} }

func File(path string) Ref { return Ref{Path: path} }

// ParseRef treats s as a path when it names an existing file or ends in
// .yaml/.yml, and as a calibration name otherwise.
func ParseRef(s string) Ref {
	if s == "" {
		return Ref{}
	}
	ext := strings.ToLower(filepath.Ext(s))
	if ext == ".yaml" || ext == ".yml" {
		return File(s)
	}
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		return File(s)
	}
	return Named(s)
}

func (r Ref) IsZero() bool { return r.Name == "" && r.Path == "" }

func (r Ref) String() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Name
}

// Store loads calibration files lazily and memoises every parsed set, so
// repeated lookups return the same *Set.
type Store struct {
	builtin fs.FS
	userDir string

	mu     sync.Mutex
	files  map[string]map[string]*Set
	custom map[string]*Set
}

type Option func(*Store)

// WithUserDir adds a directory searched before the built-in calibrations,
// typically <workspace>/resources/algo_calibration.
func WithUserDir(dir string) Option {
	return func(s *Store) { s.userDir = dir }
}

// WithFS replaces the built-in calibration files.
func WithFS(fsys fs.FS) Option {
	return func(s *Store) { s.builtin = fsys }
}

func NewStore(opts ...Option) *Store {
	sub, _ := fs.Sub(resources, "resources")
	s := &Store{
		builtin: sub,
		files:   map[string]map[string]*Set{},
		custom:  map[string]*Set{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the calibration ref of algorithm algo.
func (s *Store) Load(algo string, ref Ref) (*Set, error) {
	if ref.IsZero() {
		return nil, config.InputError("no calibration given for %s", algo)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Path != "" {
		return s.loadCustom(ref.Path)
	}
	sets, err := s.loadFile(algo)
	if err != nil {
		return nil, err
	}
	set, ok := sets[ref.Name]
	if !ok {
		return nil, config.InputError("calibration %q is not available for %s", ref.Name, algo)
	}
	return set, nil
}

// Names lists the calibrations available for algo.
func (s *Store) Names(algo string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, err := s.loadFile(algo)
	if err != nil {
		return nil, err
	}
	return utils.SortedKeys(sets), nil
}

// Summary describes one calibration of an algorithm.
type Summary struct {
	Name          string
	ValidityLimit float64
	Satellites    []string
	// Bands holds the calibrated bands of satellites split per band.
	Bands map[string][]string
}

// Summaries describes every calibration available for algo, by name.
func (s *Store) Summaries(algo string) ([]Summary, error) {
	names, err := s.Names(algo)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		set, err := s.Load(algo, Named(name))
		if err != nil {
			return nil, err
		}
		sum := Summary{Name: set.Name, ValidityLimit: set.ValidityLimit, Satellites: set.Satellites(), Bands: map[string][]string{}}
		for _, sat := range sum.Satellites {
			if bands := set.Bands(sat); len(bands) > 0 {
				sum.Bands[sat] = bands
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) loadFile(algo string) (map[string]*Set, error) {
	if sets, ok := s.files[algo]; ok {
		return sets, nil
	}
	content, err := s.readFile(algo + ".yaml")
	if err != nil {
		return nil, err
	}
	var sets map[string]*Set
	if err := yaml.Unmarshal(content, &sets); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file of %s: %w", algo, err)
	}
	for name, set := range sets {
		if set == nil {
			return nil, fmt.Errorf("calibration %s of %s is empty", name, algo)
		}
		set.Name = name
	}
	s.files[algo] = sets
	return sets, nil
}

func (s *Store) readFile(name string) ([]byte, error) {
	if s.userDir != "" {
		content, err := os.ReadFile(filepath.Join(s.userDir, name))
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	content, err := fs.ReadFile(s.builtin, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, config.InputError("no calibration file for %s", strings.TrimSuffix(name, ".yaml"))
	}
	return content, err
}

// loadCustom reads a calibration file once per version of the file, a
// version being its size and modification time.
func (s *Store) loadCustom(path string) (*Set, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, config.InputError("calibration file %s does not exist", path)
	}
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s@%d@%d", abs, info.Size(), info.ModTime().UnixNano())
	if set, ok := s.custom[key]; ok {
		return set, nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	set := &Set{}
	if err := yaml.Unmarshal(content, set); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if set.Globals == nil {
		return nil, fmt.Errorf("calibration file %s is empty", path)
	}
	set.Name = CustomName
	s.custom[key] = set
	return set, nil
}
