// Package constants defines shared names and defaults.
package constants

import "time"

var (
	// ConfigFile is the config file name inside DefaultDir.
	ConfigFile = "config.yaml"

	// SettingsFile is the per-user chart visibility settings file inside DefaultDir.
	SettingsFile = "settings.yaml"

	// DefaultDir is the per-user spot directory under $HOME.
	DefaultDir = ".spot"

	// DefaultToolPath is the Caliper query tool used to read .cali files.
	DefaultToolPath = "cali-query"

	// DefaultToolTimeout bounds a single tool invocation.
	DefaultToolTimeout = 10 * time.Minute

	DefaultToolRetries = 3

	DefaultToolBackoff = 200 * time.Millisecond

	// DefaultWorkers is the size of the extraction worker pool.
	DefaultWorkers = 18

	// DefaultDurationKey is the inclusive duration metric used by summaries.
	DefaultDurationKey = "sum#time.inclusive.duration"

	// DefaultStoreDriver is the SQL engine backing the run store.
	DefaultStoreDriver = "duckdb"

	// SummaryCacheFile is the per-directory summary cache.
	SummaryCacheFile = "spot_cache.db"
)

// Attribute and record names defined by the Spot data format.
const (
	// FormatVersionAttr marks a document as Spot profiling data.
	FormatVersionAttr = "spot.format.version"

	MetricsAttr           = "spot.metrics"
	TimeseriesMetricsAttr = "spot.timeseries.metrics"
	OptionsAttr           = "spot.options"
	ChannelsAttr          = "spot.channels"

	// LaunchDateAttr holds the run launch time in seconds since the epoch.
	LaunchDateAttr = "launchdate"

	// ChannelKey tags a flat record with its channel.
	ChannelKey = "spot.channel"

	// PathKey holds the region path of a region profile record.
	PathKey = "path"

	// PathSeparator joins region path segments.
	PathSeparator = "/"

	ChannelRegionProfile = "regionprofile"
	ChannelTimeseries    = "timeseries"
	ChannelTopdown       = "topdown"

	// InclusiveDurationKey is the derived summary metric.
	InclusiveDurationKey = "Inclusive Duration"

	// TopdownPrefix marks topdown counter columns in tool output.
	TopdownPrefix = "libpfm.topdown#"
)

// ReservedPrefixes are attribute name prefixes that never enter the schema.
var ReservedPrefixes = []string{"cali.", "spot."}

// ProfileExtensions are the file extensions recognized as profiling files.
var ProfileExtensions = []string{".cali", ".json"}
