package datapoints

import (
	"fmt"
	"os"
	"sync"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DataPoint is a named fact the run is trying to discover.
type DataPoint struct {
	Name      string  `json:"name" yaml:"name"`
	Value     *string `json:"value" yaml:"value"`
	Reference *string `json:"reference" yaml:"reference"`
}

func (d DataPoint) IsMissing() bool {
	return d.Value == nil
}

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("data point not found: %s", e.Name)
}

// Store holds the data points of one run and the links scraped so far.
// A store must not be shared between runs.
type Store struct {
	mu           sync.Mutex
	points       []DataPoint
	scrapedLinks []string
}

// New creates a store from the initial data points. Names must be unique and
// non-empty.
func New(initial []DataPoint) (*Store, error) {
	seen := map[string]bool{}
	for i, p := range initial {
		if p.Name == "" {
			return nil, errors.Errorf("data point %d has no name", i)
		}
		if seen[p.Name] {
			return nil, errors.Errorf("duplicate data point %s", p.Name)
		}
		seen[p.Name] = true
	}

	return &Store{
		points:       clone.Clone(initial).([]DataPoint),
		scrapedLinks: []string{},
	}, nil
}

// NewFromNames creates a store whose data points all start out missing.
func NewFromNames(names ...string) (*Store, error) {
	points := make([]DataPoint, 0, len(names))
	for _, n := range names {
		points = append(points, DataPoint{Name: n})
	}
	return New(points)
}

// LoadFile reads a YAML (or JSON) list of data points.
func LoadFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read data points file %s", path)
	}
	var points []DataPoint
	if err := yaml.Unmarshal(b, &points); err != nil {
		return nil, errors.Wrapf(err, "could not parse data points file %s", path)
	}
	return New(points)
}

// Update overwrites value and reference of the named data point.
func (s *Store) Update(name string, value string, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.points {
		if s.points[i].Name == name {
			v, r := value, reference
			s.points[i].Value = &v
			s.points[i].Reference = &r
			return nil
		}
	}
	return &NotFoundError{Name: name}
}

// Missing returns the names of the data points without a value, in order.
func (s *Store) Missing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := []string{}
	for _, p := range s.points {
		if p.IsMissing() {
			ret = append(ret, p.Name)
		}
	}
	return ret
}

// State returns a copy of all data points.
func (s *Store) State() []DataPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone.Clone(s.points).([]DataPoint)
}

// AddScrapedLink records url and reports whether it was new.
func (s *Store) AddScrapedLink(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.scrapedLinks {
		if l == url {
			return false
		}
	}
	s.scrapedLinks = append(s.scrapedLinks, url)
	return true
}

func (s *Store) ScrapedLinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.scrapedLinks...)
}
