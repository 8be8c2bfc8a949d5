package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Path grammar, matching the tool-configuration language:
//
//	data.user.email      object traversal
//	data.keys[3].secret  fixed array index
//	data.keys[*].secret  wildcard, fans out to every element
//
// Missing intermediate keys and out-of-range indices resolve to zero matches
// rather than errors: masking and recovery silently skip unmatched rules.

// step is one parsed path segment.
type step struct {
	field    string // object field name, "" for pure index steps
	index    int    // array index when indexed && !wildcard
	indexed  bool   // step carries a [..] suffix
	wildcard bool   // the suffix is [*]
}

// Path is a parsed field path.
type Path struct {
	raw   string
	steps []step
}

// String returns the original path text.
func (p *Path) String() string { return p.raw }

// ParsePath parses the dotted/indexed/wildcard grammar. An empty path, empty
// segment, or malformed index is a parse error; resolution failures are not.
func ParsePath(raw string) (*Path, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}

	var steps []step
	for _, segment := range strings.Split(raw, ".") {
		if segment == "" {
			return nil, fmt.Errorf("empty segment in path %q", raw)
		}

		rest := segment
		first := true
		for rest != "" {
			open := strings.IndexByte(rest, '[')
			if open == -1 {
				if strings.ContainsRune(rest, ']') {
					return nil, fmt.Errorf("unmatched ']' in path %q", raw)
				}
				steps = append(steps, step{field: rest})
				rest = ""
				continue
			}

			name := rest[:open]
			if name == "" && first {
				return nil, fmt.Errorf("index without field name in path %q", raw)
			}
			if name != "" {
				steps = append(steps, step{field: name})
			}

			closing := strings.IndexByte(rest[open:], ']')
			if closing == -1 {
				return nil, fmt.Errorf("unterminated index in path %q", raw)
			}
			closing += open

			idxText := rest[open+1 : closing]
			switch {
			case idxText == "*":
				steps = append(steps, step{indexed: true, wildcard: true})
			default:
				idx, err := strconv.Atoi(idxText)
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("invalid array index %q in path %q", idxText, raw)
				}
				steps = append(steps, step{index: idx, indexed: true})
			}

			rest = rest[closing+1:]
			first = false
		}
	}

	return &Path{raw: raw, steps: steps}, nil
}

// Match is one resolved location: the node itself plus the concrete path that
// reached it (wildcards expanded to real indices, for logging).
type Match struct {
	Node     *Value
	Location string
}

// Resolve walks the document and returns every node the path reaches.
// A wildcard fans out to all elements of the array at that position;
// everything else narrows to at most one node.
func (p *Path) Resolve(doc *Value) []Match {
	if doc == nil {
		return nil
	}
	current := []Match{{Node: doc, Location: ""}}

	for _, s := range p.steps {
		var next []Match
		for _, m := range current {
			switch {
			case s.wildcard:
				if m.Node.Kind() != KindArray {
					continue
				}
				for i := 0; i < m.Node.Len(); i++ {
					next = append(next, Match{
						Node:     m.Node.Index(i),
						Location: m.Location + "[" + strconv.Itoa(i) + "]",
					})
				}
			case s.indexed:
				child := m.Node.Index(s.index)
				if child == nil {
					continue
				}
				next = append(next, Match{
					Node:     child,
					Location: m.Location + "[" + strconv.Itoa(s.index) + "]",
				})
			default:
				child := m.Node.Field(s.field)
				if child == nil {
					continue
				}
				loc := m.Location
				if loc != "" {
					loc += "."
				}
				next = append(next, Match{Node: child, Location: loc + s.field})
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}

	return current
}

// Resolve is the package-level convenience: parse and resolve in one call.
func Resolve(doc *Value, path string) ([]Match, error) {
	parsed, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return parsed.Resolve(doc), nil
}

// Set replaces the value at every location the path resolves to and returns
// how many nodes were replaced. The replacement is cloned per location so
// wildcard fan-out never aliases a single node.
func Set(doc *Value, path string, newValue *Value) (int, error) {
	matches, err := Resolve(doc, path)
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		m.Node.Replace(newValue.Clone())
	}
	return len(matches), nil
}
