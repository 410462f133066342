// Package profile defines the normalized shape of Spot profiling data.
//
// A profiling file (one run) is read into a Document: attribute metadata, run
// level global values and an ordered list of records. Records arrive from the
// reader as flat maps optionally tagged with a "spot.channel" marker; they are
// validated once at the ingestion boundary and carried as a Record variant:
//
//   - RegionRecord: a region profile entry, keyed by its "/"-joined call path,
//     carrying metric values.
//   - ChannelRecord: an entry of any other channel (timeseries, topdown, ...),
//     kept as an ordered list of field maps without a path key.
//
// Stores persist records in their flat form (see Record.Flatten) and rebuild
// views with RegionProfile and ChannelRecords.
package profile

import (
	"cmp"
	"strconv"
)

// RunID identifies a stored run. SQL stores use decimal row ids, the
// directory store uses absolute file paths.
type RunID string

// String returns the id as a string.
func (id RunID) String() string { return string(id) }

// CompareRunIDs orders run ids: decimal ids numerically and before any
// other id, the rest lexically.
func CompareRunIDs(a, b RunID) int {
	na, errA := strconv.ParseUint(string(a), 10, 64)
	nb, errB := strconv.ParseUint(string(b), 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
