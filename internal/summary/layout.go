package summary

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/safe"
)

// Chart visualizations.
const (
	BarChart = "BarChart"
	PieChart = "PieChart"
)

// Layout arranges summary dimensions into charts and table columns.
type Layout struct {
	Charts []Chart  `json:"charts"`
	Table  []Column `json:"table"`
}

// Chart is one chart of a layout.
type Chart struct {
	Dimension string `json:"dimension"`
	Title     string `json:"title"`
	Viz       string `json:"viz"`
}

// Column is one table column of a layout.
type Column struct {
	Dimension string `json:"dimension"`
	Label     string `json:"label"`
}

// GenerateLayout builds a layout with one chart and one column per
// dimension of the first entry (by file name). Numeric dimensions are bar
// charts, the others pie charts.
func GenerateLayout(entries map[string]map[string]any) *Layout {
	layout := &Layout{Charts: []Chart{}, Table: []Column{}}
	if len(entries) == 0 {
		return layout
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	first := entries[names[0]]

	dims := make([]string, 0, len(first))
	for dim := range first {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	for _, dim := range dims {
		layout.Charts = append(layout.Charts, Chart{Dimension: dim, Title: dim, Viz: vizFor(first[dim])})
		layout.Table = append(layout.Table, Column{Dimension: dim, Label: dim})
	}
	return layout
}

// vizFor picks a bar chart for values that read as a float.
func vizFor(v any) string {
	if _, err := strconv.ParseFloat(strings.TrimSpace(profile.FormatValue(v)), 64); err == nil {
		return BarChart
	}
	return PieChart
}

// LoadLayout reads a JSON layout file.
func LoadLayout(fs afero.Fs, path string) (*Layout, error) {
	data, err := safe.ReadFile(fs, path, &safe.ReadOptions{AllowSymlinks: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read layout %s: %w", path, err)
	}

	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to decode layout %s: %w", path, err)
	}
	return &layout, nil
}

// Hide returns a copy of the layout without the hidden dimensions.
func (l *Layout) Hide(hidden []string) *Layout {
	out := &Layout{Charts: []Chart{}, Table: []Column{}}
	for _, c := range l.Charts {
		if !slices.Contains(hidden, c.Dimension) {
			out.Charts = append(out.Charts, c)
		}
	}
	for _, c := range l.Table {
		if !slices.Contains(hidden, c.Dimension) {
			out.Table = append(out.Table, c)
		}
	}
	return out
}
