package profile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
)

// Document is the canonical in-memory form of one profiling file.
type Document struct {
	// Source is the file the document was read from, if any.
	Source string
	// Attributes maps attribute names to their raw metadata.
	Attributes map[string]map[string]any
	// Globals holds run level values as produced by the reader.
	Globals map[string]any
	// Records holds the validated channel entries in input order.
	Records []Record
	// Dropped counts input records rejected at the boundary.
	Dropped int
}

// ParseDocument decodes and validates the JSON form of a profiling file.
// Both the globals and records top-level keys are required, as is the
// spot.format.version global. Violations yield a *errors.FormatError.
func ParseDocument(data []byte, file string) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &spoterrors.FormatError{File: file, Reason: "undecodable document", Err: err}
	}

	rawGlobals, ok := top["globals"]
	if !ok {
		return nil, &spoterrors.FormatError{File: file, Reason: "missing globals"}
	}
	rawRecords, ok := top["records"]
	if !ok {
		return nil, &spoterrors.FormatError{File: file, Reason: "missing records"}
	}

	doc := &Document{Source: file, Attributes: map[string]map[string]any{}}

	// Globals keep numbers as json.Number so large integers survive until
	// they are coerced by datatype.
	dec := json.NewDecoder(bytes.NewReader(rawGlobals))
	dec.UseNumber()
	if err := dec.Decode(&doc.Globals); err != nil {
		return nil, &spoterrors.FormatError{File: file, Reason: "globals is not an object", Err: err}
	}
	if doc.Globals == nil {
		doc.Globals = map[string]any{}
	}

	var flat []map[string]any
	if err := json.Unmarshal(rawRecords, &flat); err != nil {
		return nil, &spoterrors.FormatError{File: file, Reason: "records is not a list of objects", Err: err}
	}
	doc.Records, doc.Dropped = ParseRecords(flat)

	if rawAttrs, ok := top["attributes"]; ok {
		if err := json.Unmarshal(rawAttrs, &doc.Attributes); err != nil {
			return nil, &spoterrors.FormatError{File: file, Reason: "attributes is not an object", Err: err}
		}
		if doc.Attributes == nil {
			doc.Attributes = map[string]map[string]any{}
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the invariants every stored run relies on.
func (d *Document) Validate() error {
	if d.Globals == nil {
		return &spoterrors.FormatError{File: d.Source, Reason: "missing globals"}
	}
	if _, ok := d.Globals[constants.FormatVersionAttr]; !ok {
		return &spoterrors.FormatError{
			File:   d.Source,
			Reason: fmt.Sprintf("missing %s global", constants.FormatVersionAttr),
		}
	}
	return nil
}

// LaunchDate returns the launchdate global as a unix timestamp. A run
// without one launches at 0.
func (d *Document) LaunchDate() (int64, error) {
	v, ok := d.Globals[constants.LaunchDateAttr]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, &spoterrors.ValidationError{
			File:     d.Source,
			Field:    constants.LaunchDateAttr,
			Value:    FormatValue(v),
			Datatype: string(TypeInt),
			Err:      err,
		}
	}
	return n, nil
}

// GlobalString returns a global rendered as a string, or "" when absent.
func (d *Document) GlobalString(name string) string {
	v, ok := d.Globals[name]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Metrics returns the names listed in spot.metrics and
// spot.timeseries.metrics.
func (d *Document) Metrics() map[string]bool {
	return MetricNames(d.Globals)
}

// MetricNames collects the metric lists from a globals map.
func MetricNames(globals map[string]any) map[string]bool {
	names := make(map[string]bool)
	for _, key := range []string{constants.MetricsAttr, constants.TimeseriesMetricsAttr} {
		for _, name := range SplitList(globals[key]) {
			names[name] = true
		}
	}
	return names
}
