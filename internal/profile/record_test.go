package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    Record
		dropped bool
	}{
		{
			name:  "default channel with list path",
			input: map[string]any{"path": []any{"main", "solve"}, "time": 2.0},
			want:  &RegionRecord{Path: "main/solve", Metrics: map[string]any{"time": 2.0}},
		},
		{
			name:  "explicit region channel with string path",
			input: map[string]any{"spot.channel": "regionprofile", "path": "main", "time": 1.0},
			want:  &RegionRecord{Path: "main", Metrics: map[string]any{"time": 1.0}},
		},
		{
			name:    "region without path",
			input:   map[string]any{"time": 1.0},
			dropped: true,
		},
		{
			name:  "other channel keeps list fields unchanged",
			input: map[string]any{"spot.channel": "timeseries", "block": []any{"a", float64(2)}, "x": 1.0},
			want:  &ChannelRecord{Name: "timeseries", Fields: map[string]any{"block": []any{"a", float64(2)}, "x": 1.0}},
		},
		{
			name:  "other channel joins a list path",
			input: map[string]any{"spot.channel": "topdown", "path": []any{"main", "foo"}, "count": 3.0},
			want:  &ChannelRecord{Name: "topdown", Fields: map[string]any{"path": "main/foo", "count": 3.0}},
		},
		{
			name:  "empty channel marker falls back to region",
			input: map[string]any{"spot.channel": "", "path": "main"},
			want:  &RegionRecord{Path: "main", Metrics: map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRecord(tt.input)
			if tt.dropped {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_FlattenRoundTrip(t *testing.T) {
	records := []Record{
		&RegionRecord{Path: "main/foo", Metrics: map[string]any{"time": 3.5}},
		&ChannelRecord{Name: "topdown", Fields: map[string]any{"retiring": 0.4}},
	}

	flat := FlattenRecords(records)
	assert.Equal(t, map[string]any{"spot.channel": "regionprofile", "path": "main/foo", "time": 3.5}, flat[0])
	assert.Equal(t, map[string]any{"spot.channel": "topdown", "retiring": 0.4}, flat[1])

	parsed, dropped := ParseRecords(flat)
	assert.Zero(t, dropped)
	assert.Equal(t, records, parsed)
}

func TestRegionProfile(t *testing.T) {
	records := []Record{
		&RegionRecord{Path: "main", Metrics: map[string]any{"time": 1.0}},
		&ChannelRecord{Name: "timeseries", Fields: map[string]any{"i": 1.0}},
		&RegionRecord{Path: "main", Metrics: map[string]any{"time": 2.0}},
		&RegionRecord{Path: "main/foo", Metrics: map[string]any{"time": 0.5}},
	}

	first := RegionProfile(records)
	assert.Equal(t, map[string]map[string]any{
		"main":     {"time": 2.0},
		"main/foo": {"time": 0.5},
	}, first)
	assert.Equal(t, first, RegionProfile(records), "extraction is idempotent")

	first["main"]["time"] = 9.0
	assert.Equal(t, 2.0, records[2].(*RegionRecord).Metrics["time"], "result does not alias records")
}

func TestChannelRecords(t *testing.T) {
	records := []Record{
		&ChannelRecord{Name: "timeseries", Fields: map[string]any{"i": 1.0}},
		&RegionRecord{Path: "main", Metrics: map[string]any{"time": 1.0}},
		&ChannelRecord{Name: "timeseries", Fields: map[string]any{"i": 2.0}},
	}

	assert.Equal(t, []map[string]any{{"i": 1.0}, {"i": 2.0}}, ChannelRecords(records, "timeseries"))
	assert.Equal(t, []map[string]any{}, ChannelRecords(records, "topdown"))
	assert.True(t, HasChannel(records, "timeseries"))
	assert.False(t, HasChannel(records, "topdown"))
	assert.Equal(t, []string{"timeseries", "regionprofile"}, Channels(records))

	buckets := SplitChannels(records)
	assert.Len(t, buckets["timeseries"], 2)
	assert.Len(t, buckets["regionprofile"], 1)
}
