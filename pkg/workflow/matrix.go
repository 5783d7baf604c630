package workflow

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy controls how a job's matrix entries are scheduled
type Strategy struct {
	Matrix *Matrix `yaml:"matrix,omitempty"`
	// FailFast cancels sibling entries when one fails. Defaults to true;
	// a workflow must set it to false explicitly to let siblings continue.
	FailFast *bool `yaml:"fail-fast,omitempty"`
}

// FailFastEnabled reports whether a failing entry cancels its siblings
func (s *Strategy) FailFastEnabled() bool {
	if s == nil || s.FailFast == nil {
		return true
	}

	return *s.FailFast
}

// Matrix declares the parameter space for a job: named axes whose values are
// crossed, an explicit include list, and an exclude list filtering the product
type Matrix struct {
	Axes    map[string][]string
	Include []Entry
	Exclude []Entry
}

// Entry is one immutable matrix binding (key -> value)
type Entry map[string]string

// UnmarshalYAML decodes a matrix mapping where every key except
// include/exclude is an axis
func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}

	m.Axes = make(map[string][]string)

	for key := range raw {
		node := raw[key]

		switch key {
		case "include":
			if err := decodeEntryList(&node, &m.Include); err != nil {
				return fmt.Errorf("invalid matrix include: %w", err)
			}
		case "exclude":
			if err := decodeEntryList(&node, &m.Exclude); err != nil {
				return fmt.Errorf("invalid matrix exclude: %w", err)
			}
		default:
			var values []any
			if err := node.Decode(&values); err != nil {
				return fmt.Errorf("invalid matrix axis %q: %w", key, err)
			}

			axis := make([]string, 0, len(values))
			for _, v := range values {
				axis = append(axis, fmt.Sprintf("%v", v))
			}
			m.Axes[key] = axis
		}
	}

	return nil
}

func decodeEntryList(node *yaml.Node, out *[]Entry) error {
	var raw []map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	for _, rawEntry := range raw {
		entry := make(Entry, len(rawEntry))
		for k, v := range rawEntry {
			entry[k] = fmt.Sprintf("%v", v)
		}
		*out = append(*out, entry)
	}

	return nil
}

// Expand returns the concrete entries for this matrix: the cross-product of
// the axes minus excluded combinations, extended by the include list. An
// include entry whose axis values match existing combinations folds its
// extra keys into them; one matching no combination is appended, in
// declaration order. A matrix with only an include list therefore yields
// exactly the enumerated entries. A nil matrix yields one empty entry.
func (m *Matrix) Expand() []Entry {
	if m == nil {
		return []Entry{{}}
	}

	entries := m.crossProduct()

	for _, include := range m.Include {
		if m.mergeInclude(entries, include) {
			continue
		}

		if !containsEntry(entries, include) {
			entries = append(entries, include)
		}
	}

	if len(entries) == 0 {
		entries = []Entry{{}}
	}

	return entries
}

// mergeInclude folds an include entry into every product entry whose axis
// values it matches, adding only the non-axis keys. Axis values are never
// overwritten. Reports whether any entry absorbed it.
func (m *Matrix) mergeInclude(entries []Entry, include Entry) bool {
	merged := false

	for _, entry := range entries {
		match := true

		for k, v := range include {
			if _, isAxis := m.Axes[k]; isAxis && entry[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		for k, v := range include {
			if _, isAxis := m.Axes[k]; !isAxis {
				entry[k] = v
			}
		}

		merged = true
	}

	return merged
}

func (m *Matrix) crossProduct() []Entry {
	if len(m.Axes) == 0 {
		return nil
	}

	// Sorted axis order keeps expansion deterministic
	keys := make([]string, 0, len(m.Axes))
	for k := range m.Axes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := []Entry{{}}
	for _, key := range keys {
		next := make([]Entry, 0, len(entries)*len(m.Axes[key]))
		for _, base := range entries {
			for _, value := range m.Axes[key] {
				entry := make(Entry, len(base)+1)
				for k, v := range base {
					entry[k] = v
				}
				entry[key] = value
				next = append(next, entry)
			}
		}
		entries = next
	}

	filtered := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if !m.excluded(entry) {
			filtered = append(filtered, entry)
		}
	}

	return filtered
}

// excluded reports whether an exclude entry is a subset of the given entry
func (m *Matrix) excluded(entry Entry) bool {
	for _, exclude := range m.Exclude {
		if isSubset(exclude, entry) {
			return true
		}
	}

	return false
}

func isSubset(subset, entry Entry) bool {
	if len(subset) == 0 {
		return false
	}

	for k, v := range subset {
		if entry[k] != v {
			return false
		}
	}

	return true
}

func containsEntry(entries []Entry, candidate Entry) bool {
	for _, entry := range entries {
		if entry.Equal(candidate) {
			return true
		}
	}

	return false
}

// Equal reports whether two entries carry identical bindings
func (e Entry) Equal(other Entry) bool {
	if len(e) != len(other) {
		return false
	}

	for k, v := range e {
		if other[k] != v {
			return false
		}
	}

	return true
}

// ID returns a stable identifier for the entry, e.g.
// "clickhouse-version=21.1,python-version=3.8"
func (e Entry) ID() string {
	if len(e) == 0 {
		return "default"
	}

	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e[k]))
	}

	return strings.Join(parts, ",")
}
