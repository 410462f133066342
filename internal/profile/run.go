package profile

// Run is a stored profiling run.
type Run struct {
	ID RunID
	// UID is a stable external identifier, empty for stores without one.
	UID        string
	LaunchDate int64
	// Globals holds the run's globals with values coerced to their
	// attribute datatypes.
	Globals    map[string]any
	Records    []Record
	SourceFile string
}

// RegionProfile returns the run's region profile keyed by path.
func (r *Run) RegionProfile() map[string]map[string]any {
	return RegionProfile(r.Records)
}

// ChannelRecords returns the run's records of channel without the marker.
func (r *Run) ChannelRecords(channel string) []map[string]any {
	return ChannelRecords(r.Records, channel)
}
