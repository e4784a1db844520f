// Package role defines the ordered role taxonomy used to rank privileges.
package role

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

const (
	Employee   = "employee"
	Manager    = "manager"
	Admin      = "admin"
	SuperAdmin = "super_admin"
)

type Level int

type Definition struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Level Level  `yaml:"level" toml:"level" json:"level"`
}

// Hierarchy is a total order over role names. Names outside the
// hierarchy have no level.
type Hierarchy struct {
	levels map[string]Level
	roles  []Definition
}

func NewHierarchy(defs ...Definition) (*Hierarchy, error) {
	if len(defs) == 0 {
		return nil, errors.New("role hierarchy must define at least one role")
	}
	h := &Hierarchy{levels: make(map[string]Level, len(defs))}
	seenLevels := make(map[Level]string, len(defs))
	for _, d := range defs {
		name := Normalize(d.Name)
		if name == "" {
			return nil, errors.New("role name must not be empty")
		}
		if d.Level <= 0 {
			return nil, errors.Errorf("role %q: level must be positive, got %d", name, d.Level)
		}
		if _, dup := h.levels[name]; dup {
			return nil, errors.Errorf("role %q defined twice", name)
		}
		if other, dup := seenLevels[d.Level]; dup {
			return nil, errors.Errorf("roles %q and %q share level %d", other, name, d.Level)
		}
		seenLevels[d.Level] = name
		h.levels[name] = d.Level
		h.roles = append(h.roles, Definition{Name: name, Level: d.Level})
	}
	sort.Slice(h.roles, func(i, j int) bool { return h.roles[i].Level < h.roles[j].Level })
	return h, nil
}

// DefaultHierarchy is employee < manager < admin < super_admin.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(
		Definition{Name: Employee, Level: 1},
		Definition{Name: Manager, Level: 2},
		Definition{Name: Admin, Level: 3},
		Definition{Name: SuperAdmin, Level: 4},
	)
	if err != nil {
		panic(err)
	}
	return h
}

func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (h *Hierarchy) Level(name string) (Level, bool) {
	l, ok := h.levels[Normalize(name)]
	return l, ok
}

// Lowest is the role a user without any known role is ranked as.
func (h *Hierarchy) Lowest() Definition {
	return h.roles[0]
}

// Top is the highest-ranked role of the taxonomy.
func (h *Hierarchy) Top() Definition {
	return h.roles[len(h.roles)-1]
}

// Highest returns the top-ranked known role among names, or Lowest when none is known.
func (h *Hierarchy) Highest(names []string) Definition {
	best := h.Lowest()
	for _, n := range names {
		if l, ok := h.Level(n); ok && l > best.Level {
			best = Definition{Name: Normalize(n), Level: l}
		}
	}
	return best
}

func (h *Hierarchy) Roles() []Definition {
	out := make([]Definition, len(h.roles))
	copy(out, h.roles)
	return out
}

type file struct {
	Roles []Definition `yaml:"roles" toml:"roles"`
}

// LoadHierarchy reads a taxonomy from a .yaml, .yml or .toml file.
func LoadHierarchy(path string) (*Hierarchy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read role hierarchy")
	}
	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, errors.Wrap(err, "parse role hierarchy yaml")
		}
	case ".toml":
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return nil, errors.Wrap(err, "parse role hierarchy toml")
		}
	default:
		return nil, fmt.Errorf("unsupported role hierarchy format %q", ext)
	}
	return NewHierarchy(f.Roles...)
}
