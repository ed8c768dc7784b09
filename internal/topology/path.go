package topology

import (
	"fmt"
	"strings"
)

// Policy selects which way around the ring a path may travel.
type Policy int

const (
	// Shortest picks the direction with fewer segments, clockwise on a tie.
	Shortest Policy = iota
	Clockwise
	CounterClockwise
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case Clockwise:
		return "clockwise"
	case CounterClockwise:
		return "counterclockwise"
	default:
		return "shortest"
	}
}

// ParsePolicy parses a policy name. The empty string means Shortest.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shortest":
		return Shortest, nil
	case "clockwise", "cw":
		return Clockwise, nil
	case "counterclockwise", "counter-clockwise", "ccw":
		return CounterClockwise, nil
	}
	return Shortest, fmt.Errorf("unknown direction policy %q", s)
}

// UnmarshalText lets a Policy be read directly from YAML or JSON strings.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Segment is an undirected edge between two adjacent ring nodes together
// with the direction a particular path traverses it.
type Segment struct {
	// ID is order-independent: the node with the lower ring position first.
	ID string `json:"id"`
	// Dir is +1 for clockwise traversal, -1 for counter-clockwise.
	Dir int `json:"dir"`
}

// Path is an ordered sequence of segments from an origin anchor to a
// destination anchor. The empty path means same anchor or unresolved.
type Path []Segment

// Reverse returns the path walked backwards: segments in reverse order with
// every direction flipped.
func (p Path) Reverse() Path {
	out := make(Path, len(p))
	for i, s := range p {
		out[len(p)-1-i] = Segment{ID: s.ID, Dir: -s.Dir}
	}
	return out
}

// Route is a resolved path plus the anchors it connects.
type Route struct {
	FromAnchor string `json:"from_anchor,omitempty"`
	ToAnchor   string `json:"to_anchor,omitempty"`
	Segments   Path   `json:"segments"`
}

// Resolved reports whether both ends mapped onto the ring.
func (r Route) Resolved() bool {
	return r.FromAnchor != "" && r.ToAnchor != ""
}

// Path returns the route's segments between two locations under policy.
func (r *Ring) Path(from, to string, policy Policy) Path {
	return r.Route(from, to, policy).Segments
}

// Route tries every anchor combination of from and to and keeps the one with
// the fewest segments, the first found on a tie. If either side resolves to
// no anchors the zero Route is returned.
func (r *Ring) Route(from, to string, policy Policy) Route {
	fromAnchors := r.Anchors(from)
	toAnchors := r.Anchors(to)
	if len(fromAnchors) == 0 || len(toAnchors) == 0 {
		return Route{}
	}

	var best Route
	bestLen := -1
	for _, a := range fromAnchors {
		for _, b := range toAnchors {
			p := r.anchorPath(a, b, policy)
			if bestLen < 0 || len(p) < bestLen {
				best = Route{FromAnchor: a, ToAnchor: b, Segments: p}
				bestLen = len(p)
			}
		}
	}
	return best
}

// anchorPath computes the path between two ring nodes.
func (r *Ring) anchorPath(a, b string, policy Policy) Path {
	if a == b {
		return Path{}
	}
	switch policy {
	case Clockwise:
		return r.walk(a, b, +1)
	case CounterClockwise:
		return r.walk(a, b, -1)
	default:
		cw := r.walk(a, b, +1)
		ccw := r.walk(a, b, -1)
		if len(ccw) < len(cw) {
			return ccw
		}
		return cw
	}
}

// walk steps from a to b in dir, emitting one segment per hop.
func (r *Ring) walk(a, b string, dir int) Path {
	n := len(r.nodes)
	i, j := r.index[a], r.index[b]
	steps, _ := r.Distance(a, b, dir)
	p := make(Path, 0, steps)
	for k := i; k != j; {
		next := ((k+dir)%n + n) % n
		p = append(p, Segment{ID: r.segmentID(k, next), Dir: dir})
		k = next
	}
	return p
}

func (r *Ring) segmentID(i, j int) string {
	if i > j {
		i, j = j, i
	}
	return r.nodes[i] + "~" + r.nodes[j]
}
