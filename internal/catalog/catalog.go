// Package catalog loads the per-role list of loops a console can listen to
// or talk on.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loop describes one communication channel. Capabilities are resolved when
// the catalog is loaded and never change afterwards.
type Loop struct {
	Name      string `yaml:"name" json:"name"`
	CanListen bool   `yaml:"can_listen" json:"can_listen"`
	CanTalk   bool   `yaml:"can_talk" json:"can_talk"`
}

// Catalog is the ordered, immutable loop list for one role.
type Catalog struct {
	role  string
	loops []Loop
	index map[string]int
}

// New builds a catalog from loops. Later duplicates of a name are dropped.
func New(role string, loops []Loop) *Catalog {
	c := &Catalog{
		role:  role,
		loops: make([]Loop, 0, len(loops)),
		index: make(map[string]int, len(loops)),
	}
	for _, l := range loops {
		if l.Name == "" {
			continue
		}
		if _, dup := c.index[l.Name]; dup {
			continue
		}
		c.index[l.Name] = len(c.loops)
		c.loops = append(c.loops, l)
	}
	return c
}

// Role returns the role this catalog was loaded for.
func (c *Catalog) Role() string {
	return c.role
}

// Loops returns a copy of the loops in catalog order.
func (c *Catalog) Loops() []Loop {
	out := make([]Loop, len(c.loops))
	copy(out, c.loops)
	return out
}

// Names returns loop names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.loops))
	for i, l := range c.loops {
		names[i] = l.Name
	}
	return names
}

// Lookup returns the loop with the given name.
func (c *Catalog) Lookup(name string) (Loop, bool) {
	i, ok := c.index[name]
	if !ok {
		return Loop{}, false
	}
	return c.loops[i], true
}

// Len returns the number of loops.
func (c *Catalog) Len() int {
	return len(c.loops)
}

// FileName returns the catalog file name for a role, e.g. loops_FLIGHT.txt.
func FileName(role string) string {
	return fmt.Sprintf("loops_%s.txt", strings.ToUpper(role))
}

// Parse decodes a catalog document. The files are JSON arrays; when a loop
// repeats a key the last value wins. Anything that is not JSON is read as
// YAML.
func Parse(role string, data []byte) (*Catalog, error) {
	var loops []Loop
	if json.Valid(data) {
		if err := json.Unmarshal(data, &loops); err != nil {
			return nil, fmt.Errorf("failed to parse loop catalog: %w", err)
		}
		return New(role, loops), nil
	}
	if err := yaml.Unmarshal(data, &loops); err != nil {
		return nil, fmt.Errorf("failed to parse loop catalog: %w", err)
	}
	return New(role, loops), nil
}

// Load reads <dir>/loops_<ROLE>.txt.
func Load(dir, role string) (*Catalog, error) {
	path := filepath.Join(dir, FileName(role))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read loop catalog %s: %w", path, err)
	}
	return Parse(role, data)
}
