package baseline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// ErrPriorsNotFound indicates the priors file does not exist.
var ErrPriorsNotFound = errors.New("baseline: priors file not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Priors maps a region name to a relative rectangle. It is read-only once built.
type Priors struct {
	regions map[string]types.RelBox
}

// NewPriors copies regions into a Priors table.
func NewPriors(regions map[string]types.RelBox) *Priors {
	p := &Priors{regions: make(map[string]types.RelBox, len(regions))}
	for k, v := range regions {
		p.regions[k] = v
	}
	return p
}

// EmptyPriors returns a table with no regions.
func EmptyPriors() *Priors {
	return &Priors{regions: map[string]types.RelBox{}}
}

// DefaultPriors returns relative regions matching a conventional desktop
// layout: menu strip, toolbar, left sidebar and bottom status bar.
func DefaultPriors() *Priors {
	return NewPriors(map[string]types.RelBox{
		"menu":    {0, 0, 1, 0.05},
		"toolbar": {0, 0.05, 1, 0.12},
		"sidebar": {0, 0.12, 0.12, 0.92},
		"status":  {0, 0.92, 1, 1},
	})
}

// Len returns the number of regions.
func (p *Priors) Len() int {
	if p == nil {
		return 0
	}
	return len(p.regions)
}

// Names returns region names in sorted order.
func (p *Priors) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.regions))
	for k := range p.regions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Region returns the relative rectangle for name.
func (p *Priors) Region(name string) (types.RelBox, bool) {
	if p == nil {
		return types.RelBox{}, false
	}
	r, ok := p.regions[name]
	return r, ok
}

// ParsePriors decodes a JSON object of region name to [x0,y0,x1,y1].
func ParsePriors(data []byte) (*Priors, error) {
	var regions map[string]types.RelBox
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("failed to parse priors: %w", err)
	}
	return NewPriors(regions), nil
}

// LoadPriors reads a priors file. A missing file returns ErrPriorsNotFound.
func LoadPriors(path string) (*Priors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPriorsNotFound, path)
		}
		return nil, fmt.Errorf("failed to read priors: %w", err)
	}
	return ParsePriors(data)
}

// SavePriors writes p as indented JSON, creating parent directories.
func SavePriors(p *Priors, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create priors directory: %w", err)
	}
	data, err := json.MarshalIndent(p.regions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal priors: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write priors: %w", err)
	}
	return nil
}

// PriorsStore loads a single priors source at most once and hands the same
// table to every predictor call of a run. Any load failure degrades to an
// empty table; the error stays available through Err.
type PriorsStore struct {
	path string

	once   sync.Once
	priors *Priors
	err    error
}

// NewPriorsStore creates a store for the priors file at path.
func NewPriorsStore(path string) *PriorsStore {
	return &PriorsStore{path: path}
}

// StaticPriorsStore wraps an already built table.
func StaticPriorsStore(p *Priors) *PriorsStore {
	s := &PriorsStore{priors: p}
	s.once.Do(func() {})
	return s
}

// Path returns the priors source path, empty for static stores.
func (s *PriorsStore) Path() string {
	return s.path
}

// Get returns the memoized priors, loading them on first use.
func (s *PriorsStore) Get() *Priors {
	s.once.Do(func() {
		if s.path == "" {
			s.priors = EmptyPriors()
			return
		}
		p, err := LoadPriors(s.path)
		if err != nil {
			s.err = err
			p = EmptyPriors()
		}
		s.priors = p
	})
	return s.priors
}

// Err returns the error of the first load, if any.
func (s *PriorsStore) Err() error {
	s.Get()
	return s.err
}
