package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMatrixExpand(t *testing.T) {
	t.Run("nil matrix yields one empty entry", func(t *testing.T) {
		var m *Matrix

		entries := m.Expand()
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0])
		assert.Equal(t, "default", entries[0].ID())
	})

	t.Run("axes expand to cross product", func(t *testing.T) {
		m := &Matrix{
			Axes: map[string][]string{
				"os":      {"linux", "darwin"},
				"version": {"1", "2", "3"},
			},
		}

		entries := m.Expand()
		assert.Len(t, entries, 6)
		assert.Contains(t, entries, Entry{"os": "linux", "version": "1"})
		assert.Contains(t, entries, Entry{"os": "darwin", "version": "3"})
	})

	t.Run("exclude removes matching combinations", func(t *testing.T) {
		m := &Matrix{
			Axes: map[string][]string{
				"os":      {"linux", "darwin"},
				"version": {"1", "2"},
			},
			Exclude: []Entry{{"os": "darwin"}},
		}

		entries := m.Expand()
		assert.Len(t, entries, 2)
		for _, entry := range entries {
			assert.Equal(t, "linux", entry["os"])
		}
	})

	t.Run("include appends entries missing from product", func(t *testing.T) {
		m := &Matrix{
			Axes: map[string][]string{
				"version": {"1"},
			},
			Include: []Entry{
				{"version": "1"},
				{"version": "experimental"},
			},
		}

		entries := m.Expand()
		assert.Len(t, entries, 2)
		assert.Contains(t, entries, Entry{"version": "experimental"})
	})

	t.Run("include with matching axis values extends those combinations", func(t *testing.T) {
		m := &Matrix{
			Axes: map[string][]string{
				"os":      {"linux", "darwin"},
				"version": {"1"},
			},
			Include: []Entry{
				{"os": "linux", "node": "14"},
			},
		}

		entries := m.Expand()
		require.Len(t, entries, 2)
		assert.Contains(t, entries, Entry{"os": "linux", "version": "1", "node": "14"})
		assert.Contains(t, entries, Entry{"os": "darwin", "version": "1"})
	})

	t.Run("include without axis keys extends every combination", func(t *testing.T) {
		m := &Matrix{
			Axes: map[string][]string{
				"version": {"1", "2"},
			},
			Include: []Entry{
				{"experimental": "false"},
			},
		}

		entries := m.Expand()
		require.Len(t, entries, 2)
		for _, entry := range entries {
			assert.Equal(t, "false", entry["experimental"])
		}
	})

	t.Run("include-only matrix yields exactly the enumerated entries", func(t *testing.T) {
		m := &Matrix{
			Include: []Entry{
				{"python-version": "3.8", "clickhouse-version": "20.11"},
				{"python-version": "3.9.6", "clickhouse-version": "20.11"},
				{"python-version": "3.8", "clickhouse-version": "20.12"},
				{"python-version": "3.9.6", "clickhouse-version": "20.12"},
				{"python-version": "3.8", "clickhouse-version": "21"},
				{"python-version": "3.9.6", "clickhouse-version": "21"},
				{"python-version": "3.8", "clickhouse-version": "21.1"},
				{"python-version": "3.9.6", "clickhouse-version": "21.1"},
			},
		}

		entries := m.Expand()
		require.Len(t, entries, 8)

		// Declaration order is preserved, no synthetic combinations appear
		assert.Equal(t, Entry{"python-version": "3.8", "clickhouse-version": "20.11"}, entries[0])
		assert.Equal(t, Entry{"python-version": "3.9.6", "clickhouse-version": "21.1"}, entries[7])
	})
}

func TestMatrixUnmarshalYAML(t *testing.T) {
	t.Run("axes and include parse from yaml", func(t *testing.T) {
		content := `
python-version: [3.8, "3.9.6"]
include:
  - python-version: "3.10"
exclude:
  - python-version: "3.8"
`

		var m Matrix
		require.NoError(t, yaml.Unmarshal([]byte(content), &m))

		// Bare 3.8 stays the literal version string, not a float
		assert.Equal(t, []string{"3.8", "3.9.6"}, m.Axes["python-version"])
		assert.Equal(t, []Entry{{"python-version": "3.10"}}, m.Include)
		assert.Equal(t, []Entry{{"python-version": "3.8"}}, m.Exclude)
	})

	t.Run("version numbers keep trailing zeros", func(t *testing.T) {
		content := `clickhouse-version: ["20.11", "20.12", "21", "21.1"]`

		var m Matrix
		require.NoError(t, yaml.Unmarshal([]byte(content), &m))
		assert.Equal(t, []string{"20.11", "20.12", "21", "21.1"}, m.Axes["clickhouse-version"])
	})
}

func TestEntryID(t *testing.T) {
	entry := Entry{"python-version": "3.8", "clickhouse-version": "21.1"}
	assert.Equal(t, "clickhouse-version=21.1,python-version=3.8", entry.ID())

	// Stable regardless of construction order
	other := Entry{"clickhouse-version": "21.1", "python-version": "3.8"}
	assert.Equal(t, entry.ID(), other.ID())
}

func TestStrategyFailFastEnabled(t *testing.T) {
	disabled := false
	enabled := true

	tests := []struct {
		name     string
		strategy *Strategy
		want     bool
	}{
		{name: "nil strategy defaults to true", strategy: nil, want: true},
		{name: "unset fail-fast defaults to true", strategy: &Strategy{}, want: true},
		{name: "explicit false", strategy: &Strategy{FailFast: &disabled}, want: false},
		{name: "explicit true", strategy: &Strategy{FailFast: &enabled}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy.FailFastEnabled())
		})
	}
}
