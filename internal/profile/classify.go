package profile

import (
	"maps"

	"github.com/spot-perf/spot/internal/constants"
)

// SplitChannels buckets records by channel, keeping the order of each
// bucket.
func SplitChannels(records []Record) map[string][]Record {
	buckets := make(map[string][]Record)
	for _, r := range records {
		buckets[r.Channel()] = append(buckets[r.Channel()], r)
	}
	return buckets
}

// RegionProfile returns the region profile of a run keyed by path. When a
// path occurs more than once the last record wins.
func RegionProfile(records []Record) map[string]map[string]any {
	profile := make(map[string]map[string]any)
	for _, r := range records {
		region, ok := r.(*RegionRecord)
		if !ok {
			continue
		}
		profile[region.Path] = maps.Clone(region.Metrics)
	}
	return profile
}

// ChannelRecords returns the field maps of every record of the named
// channel in order, without the channel marker. Asking for the region
// profile channel returns its records with the path key restored.
func ChannelRecords(records []Record, channel string) []map[string]any {
	out := []map[string]any{}
	for _, r := range records {
		if r.Channel() != channel {
			continue
		}
		flat := r.Flatten()
		delete(flat, constants.ChannelKey)
		out = append(out, flat)
	}
	return out
}

// HasChannel reports whether any record belongs to channel.
func HasChannel(records []Record, channel string) bool {
	for _, r := range records {
		if r.Channel() == channel {
			return true
		}
	}
	return false
}

// Channels returns the distinct channel names of records in first-seen
// order.
func Channels(records []Record) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		if name := r.Channel(); !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
