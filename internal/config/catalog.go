package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed halls.yaml
var defaultCatalog []byte

// Catalog lists the sites, halls and valid rack identifiers.
type Catalog struct {
	Locations []Location `yaml:"locations" json:"locations"`

	index map[string]map[string]map[string]struct{}
}

// Location is one data-center site.
type Location struct {
	Name  string `yaml:"name" json:"name"`
	Halls []Hall `yaml:"halls" json:"halls"`
}

// Hall is a data hall with its rack identifiers, ranges already expanded.
type Hall struct {
	Name  string   `yaml:"name" json:"name"`
	Racks []string `yaml:"racks" json:"racks"`
}

// LoadCatalog reads the catalog from path, or the embedded default when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read hall catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded hall catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes YAML and expands rack ranges. Every location needs at
// least one hall and every hall at least one rack.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse hall catalog: %w", err)
	}
	if len(c.Locations) == 0 {
		return nil, fmt.Errorf("hall catalog has no locations")
	}

	c.index = make(map[string]map[string]map[string]struct{}, len(c.Locations))
	for li := range c.Locations {
		loc := &c.Locations[li]
		if loc.Name == "" {
			return nil, fmt.Errorf("location %d: name is required", li)
		}
		if len(loc.Halls) == 0 {
			return nil, fmt.Errorf("location %s: no halls", loc.Name)
		}
		halls := make(map[string]map[string]struct{}, len(loc.Halls))
		for hi := range loc.Halls {
			hall := &loc.Halls[hi]
			if hall.Name == "" {
				return nil, fmt.Errorf("location %s: hall %d: name is required", loc.Name, hi)
			}
			racks := make(map[string]struct{})
			var expanded []string
			for _, spec := range hall.Racks {
				ids, err := ExpandRange(spec)
				if err != nil {
					return nil, fmt.Errorf("location %s hall %s: %w", loc.Name, hall.Name, err)
				}
				for _, id := range ids {
					if _, dup := racks[id]; dup {
						continue
					}
					racks[id] = struct{}{}
					expanded = append(expanded, id)
				}
			}
			if len(expanded) == 0 {
				return nil, fmt.Errorf("location %s hall %s: no racks", loc.Name, hall.Name)
			}
			hall.Racks = expanded
			halls[hall.Name] = racks
		}
		c.index[loc.Name] = halls
	}
	return &c, nil
}

// ExpandRange expands "X2401-X2405" into X2401..X2405. A plain identifier is
// returned as is. Both ends must share the prefix and digit width.
func ExpandRange(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty rack identifier")
	}
	lo, hi, isRange := strings.Cut(spec, "-")
	if !isRange {
		return []string{spec}, nil
	}
	lp, ln, err := splitDigits(lo)
	if err != nil {
		return nil, fmt.Errorf("rack range %q: %w", spec, err)
	}
	hp, hn, err := splitDigits(hi)
	if err != nil {
		return nil, fmt.Errorf("rack range %q: %w", spec, err)
	}
	if lp != hp || len(ln) != len(hn) {
		return nil, fmt.Errorf("rack range %q: ends must share prefix and width", spec)
	}
	from, _ := strconv.Atoi(ln)
	to, _ := strconv.Atoi(hn)
	if from > to {
		return nil, fmt.Errorf("rack range %q: start after end", spec)
	}
	out := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, fmt.Sprintf("%s%0*d", lp, len(ln), n))
	}
	return out, nil
}

func splitDigits(s string) (prefix, digits string, err error) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return "", "", fmt.Errorf("%q has no numeric suffix", s)
	}
	return s[:i], s[i:], nil
}

// HasHall reports whether the catalog knows location/hall.
func (c *Catalog) HasHall(location, hall string) bool {
	_, ok := c.index[location][hall]
	return ok
}

// ValidRack reports whether rack belongs to location/hall. Halls missing from
// the catalog accept any rack.
func (c *Catalog) ValidRack(location, hall, rack string) bool {
	racks, ok := c.index[location][hall]
	if !ok {
		return true
	}
	_, ok = racks[rack]
	return ok
}

// Racks returns the rack identifiers of location/hall in catalog order.
func (c *Catalog) Racks(location, hall string) []string {
	for _, loc := range c.Locations {
		if loc.Name != location {
			continue
		}
		for _, h := range loc.Halls {
			if h.Name == hall {
				return append([]string(nil), h.Racks...)
			}
		}
	}
	return nil
}

// LocationNames lists the sites alphabetically.
func (c *Catalog) LocationNames() []string {
	names := make([]string, 0, len(c.Locations))
	for _, loc := range c.Locations {
		names = append(names, loc.Name)
	}
	sort.Strings(names)
	return names
}
