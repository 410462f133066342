package profile

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spot-perf/spot/internal/constants"
)

// Record is one channel entry of a run. It is either a *RegionRecord or a
// *ChannelRecord.
type Record interface {
	// Channel returns the channel the record belongs to.
	Channel() string
	// Flatten returns the flat map form used for persistence, including the
	// channel marker.
	Flatten() map[string]any
}

// RegionRecord is a region profile entry: metrics for one call path.
type RegionRecord struct {
	Path    string
	Metrics map[string]any
}

// Channel implements Record.
func (r *RegionRecord) Channel() string { return constants.ChannelRegionProfile }

// Flatten implements Record.
func (r *RegionRecord) Flatten() map[string]any {
	flat := make(map[string]any, len(r.Metrics)+2)
	maps.Copy(flat, r.Metrics)
	flat[constants.ChannelKey] = constants.ChannelRegionProfile
	flat[constants.PathKey] = r.Path
	return flat
}

// ChannelRecord is an entry of any channel other than the region profile.
type ChannelRecord struct {
	Name   string
	Fields map[string]any
}

// Channel implements Record.
func (r *ChannelRecord) Channel() string { return r.Name }

// Flatten implements Record.
func (r *ChannelRecord) Flatten() map[string]any {
	flat := make(map[string]any, len(r.Fields)+1)
	maps.Copy(flat, r.Fields)
	flat[constants.ChannelKey] = r.Name
	return flat
}

// ParseRecord validates one flat record. A missing channel marker means
// the region profile channel. Region profile records must carry a path; a
// list path is joined with "/". ok is false for records that cannot be
// represented (a region record without a path) and should be dropped.
func ParseRecord(flat map[string]any) (rec Record, ok bool) {
	channel := constants.ChannelRegionProfile
	if v, found := flat[constants.ChannelKey]; found {
		if s, isString := v.(string); isString && s != "" {
			channel = s
		}
	}

	if channel != constants.ChannelRegionProfile {
		fields := make(map[string]any, len(flat))
		for k, v := range flat {
			if k == constants.ChannelKey {
				continue
			}
			if k == constants.PathKey {
				if list, isList := v.([]any); isList {
					v = joinList(list)
				}
			}
			fields[k] = v
		}
		return &ChannelRecord{Name: channel, Fields: fields}, true
	}

	path := pathString(flat[constants.PathKey])
	if path == "" {
		return nil, false
	}
	metrics := make(map[string]any, len(flat))
	for k, v := range flat {
		if k == constants.ChannelKey || k == constants.PathKey {
			continue
		}
		metrics[k] = v
	}
	return &RegionRecord{Path: path, Metrics: metrics}, true
}

// ParseRecords validates a list of flat records, dropping the ones
// ParseRecord rejects. It returns the number of dropped records.
func ParseRecords(flat []map[string]any) ([]Record, int) {
	records := make([]Record, 0, len(flat))
	dropped := 0
	for _, f := range flat {
		rec, ok := ParseRecord(f)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

// FlattenRecords returns the persisted form of records.
func FlattenRecords(records []Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, r.Flatten())
	}
	return out
}

func pathString(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case []string:
		return strings.Join(p, constants.PathSeparator)
	case []any:
		return joinList(p)
	default:
		return ""
	}
}

func joinList(list []any) string {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, constants.PathSeparator)
}
