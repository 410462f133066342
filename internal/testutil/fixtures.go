package testutil

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/profile"
)

// SampleDocument builds a small but complete profiling document: three
// described globals, one undescribed global, a metric with alias and unit,
// a region profile of two paths and two timeseries records.
func SampleDocument(source string, launchdate int64) *profile.Document {
	return &profile.Document{
		Source: source,
		Attributes: map[string]map[string]any{
			"time.duration": {
				"cali.attribute.type": "double",
				"attribute.alias":     "Time (inc)",
				"attribute.unit":      "sec",
			},
			"launchdate": {"cali.attribute.type": "int", "is_global": true},
			"jobsize":    {"adiak.type": "int", "cali.attribute.type": "string", "is_global": true},
			"cluster":    {"cali.attribute.type": "string", "is_global": true},
			"cali.caliper.version": {
				"cali.attribute.type": "string",
				"is_global":           true,
			},
		},
		Globals: map[string]any{
			"spot.format.version":  "1",
			"spot.metrics":         "time.duration,",
			"spot.channels":        "regionprofile,timeseries",
			"cali.caliper.version": "2.10.0",
			"launchdate":           strconv.FormatInt(launchdate, 10),
			"jobsize":              "64",
			"cluster":              "quartz",
			"user":                 "alice",
		},
		Records: []profile.Record{
			&profile.RegionRecord{Path: "main", Metrics: map[string]any{"time.duration": 5.0}},
			&profile.RegionRecord{Path: "main/foo", Metrics: map[string]any{"time.duration": 3.5}},
			&profile.ChannelRecord{Name: "timeseries", Fields: map[string]any{"iteration": 1.0, "time": 0.5}},
			&profile.ChannelRecord{Name: "timeseries", Fields: map[string]any{"iteration": 2.0, "time": 0.7}},
		},
	}
}

// MarshalDocument encodes doc in the JSON document form readers accept.
func MarshalDocument(t *testing.T, doc *profile.Document) []byte {
	t.Helper()

	data, err := json.Marshal(map[string]any{
		"attributes": doc.Attributes,
		"globals":    doc.Globals,
		"records":    profile.FlattenRecords(doc.Records),
	})
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	return data
}

// WriteDocument writes doc as a native JSON profiling file to path on fs.
func WriteDocument(t *testing.T, fs afero.Fs, path string, doc *profile.Document) {
	t.Helper()

	if err := afero.WriteFile(fs, path, MarshalDocument(t, doc), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
