// Package topology resolves business locations onto a ring of conveyor nodes
// and computes directed paths between them.
//
// A Ring is built once from configuration and never mutated, so it is safe
// for concurrent use by any number of scheduling rounds.
package topology

import (
	"fmt"
	"strings"
)

// Config is the static ring layout, typically loaded from the engine YAML file.
type Config struct {
	// Nodes lists the ring nodes in clockwise order. The last node is
	// adjacent to the first.
	Nodes []string `yaml:"nodes" json:"nodes"`

	// Locations maps a business location (port, station) to one or more ring
	// anchor nodes.
	Locations map[string][]string `yaml:"locations" json:"locations"`
}

// Ring is an immutable ring topology with a business-name anchor table.
type Ring struct {
	nodes     []string
	index     map[string]int
	locations map[string][]string
}

// New validates cfg and builds a Ring. Node and location names are matched
// case-insensitively.
func New(cfg Config) (*Ring, error) {
	if len(cfg.Nodes) < 2 {
		return nil, fmt.Errorf("ring needs at least 2 nodes, got %d", len(cfg.Nodes))
	}

	r := &Ring{
		nodes:     make([]string, 0, len(cfg.Nodes)),
		index:     make(map[string]int, len(cfg.Nodes)),
		locations: make(map[string][]string, len(cfg.Locations)),
	}
	for _, n := range cfg.Nodes {
		id := Normalize(n)
		if id == "" {
			return nil, fmt.Errorf("ring node %d is blank", len(r.nodes))
		}
		if _, dup := r.index[id]; dup {
			return nil, fmt.Errorf("duplicate ring node %q", id)
		}
		r.index[id] = len(r.nodes)
		r.nodes = append(r.nodes, id)
	}

	for name, anchors := range cfg.Locations {
		key := Normalize(name)
		if key == "" {
			return nil, fmt.Errorf("blank location name")
		}
		if _, isNode := r.index[key]; isNode {
			return nil, fmt.Errorf("location %q shadows a ring node", key)
		}
		if len(anchors) == 0 {
			return nil, fmt.Errorf("location %q has no anchors", key)
		}
		resolved := make([]string, 0, len(anchors))
		for _, a := range anchors {
			id := Normalize(a)
			if _, ok := r.index[id]; !ok {
				return nil, fmt.Errorf("location %q: anchor %q is not a ring node", key, a)
			}
			resolved = append(resolved, id)
		}
		r.locations[key] = resolved
	}
	return r, nil
}

// Normalize trims and upper-cases a location or node name.
func Normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Len returns the number of ring nodes.
func (r *Ring) Len() int { return len(r.nodes) }

// Nodes returns a copy of the ring nodes in clockwise order.
func (r *Ring) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// IsNode reports whether name is itself a ring node.
func (r *Ring) IsNode(name string) bool {
	_, ok := r.index[Normalize(name)]
	return ok
}

// Anchors resolves a location to its ring anchors. A ring node resolves to
// itself. Unknown names resolve to nil; callers treat that as "no penalty".
func (r *Ring) Anchors(name string) []string {
	key := Normalize(name)
	if key == "" {
		return nil
	}
	if _, ok := r.index[key]; ok {
		return []string{key}
	}
	anchors := r.locations[key]
	if len(anchors) == 0 {
		return nil
	}
	out := make([]string, len(anchors))
	copy(out, anchors)
	return out
}

// Distance returns the number of segments from a to b walking in dir
// (+1 clockwise, -1 counter-clockwise). Both must be ring nodes.
func (r *Ring) Distance(a, b string, dir int) (int, bool) {
	i, ok := r.index[Normalize(a)]
	if !ok {
		return 0, false
	}
	j, ok := r.index[Normalize(b)]
	if !ok {
		return 0, false
	}
	n := len(r.nodes)
	if dir >= 0 {
		return ((j-i)%n + n) % n, true
	}
	return ((i-j)%n + n) % n, true
}
