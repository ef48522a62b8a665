package profiles

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalogue is the set of profiles available to agents.
type Catalogue struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewCatalogue returns a catalogue holding the built-in profiles.
func NewCatalogue() *Catalogue {
	c := &Catalogue{profiles: map[string]Profile{}}
	for _, p := range builtins() {
		c.profiles[p.Name] = p
	}
	return c
}

type fileFormat struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadFile merges the profiles defined in a YAML file over the built-ins.
// A file profile with a built-in's name replaces it.
func (c *Catalogue) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse profiles %s: %w", path, err)
	}
	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range f.Profiles {
		c.profiles[p.Name] = p
	}
	return nil
}

func (c *Catalogue) Get(name string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[name]
	return p, ok
}

func (c *Catalogue) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

func (c *Catalogue) Names() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.profiles))
	for n := range c.profiles {
		out = append(out, n)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// All returns every profile ordered by name.
func (c *Catalogue) All() []Profile {
	names := c.Names()
	out := make([]Profile, 0, len(names))
	for _, n := range names {
		p, _ := c.Get(n)
		out = append(out, p)
	}
	return out
}
