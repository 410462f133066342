// Package schema maintains the attribute registry: which attribute names
// are globals, which are metrics, and what type their values have.
//
// Attributes are created the first time a name is observed and never change
// afterwards. Registration is insert-if-absent, so concurrent registrations
// of the same name commute: whichever runs first defines the attribute and
// the others are no-ops.
package schema

import (
	"sort"
	"strings"

	"github.com/spot-perf/spot/internal/profile"
)

// Metadata keys consulted during classification.
const (
	AdiakTypeKey = "adiak.type"
	CaliTypeKey  = "cali.attribute.type"
	TypeKey      = "type"
	AliasKey     = "attribute.alias"
	UnitKey      = "attribute.unit"
	IsGlobalKey  = "is_global"
)

// ResolveDatatype returns the declared type of an attribute. The adiak type
// describes what the value means to users and wins over the storage type
// recorded by the instrumentation runtime. Attributes with no type are
// strings.
func ResolveDatatype(meta map[string]any) profile.Datatype {
	for _, key := range []string{AdiakTypeKey, CaliTypeKey, TypeKey} {
		if s, ok := meta[key].(string); ok && s != "" {
			return profile.Datatype(s)
		}
	}
	return profile.TypeString
}

// Classify derives the schema entry for name. ok is false for reserved
// cali./spot. names, which are never registered.
func Classify(name string, meta, globals map[string]any) (attr profile.Attribute, ok bool) {
	return classify(name, meta, profile.MetricNames(globals))
}

func classify(name string, meta map[string]any, metrics map[string]bool) (profile.Attribute, bool) {
	if profile.IsReserved(name) {
		return profile.Attribute{}, false
	}

	kind := profile.KindOther
	switch {
	case isGlobal(meta):
		kind = profile.KindGlobal
	case metrics[name]:
		kind = profile.KindMetric
	}

	return profile.Attribute{
		Name:     name,
		Datatype: ResolveDatatype(meta),
		Kind:     kind,
		Alias:    stringValue(meta[AliasKey]),
		Unit:     stringValue(meta[UnitKey]),
		Metadata: meta,
	}, true
}

// Extract classifies every attribute a document introduces: each entry of
// its attribute metadata, globals that have no metadata (string globals)
// and listed metrics that have no metadata (typed from their first region
// value). The result is sorted by name.
func Extract(doc *profile.Document) []profile.Attribute {
	metrics := doc.Metrics()
	attrs := make([]profile.Attribute, 0, len(doc.Attributes)+len(doc.Globals))

	for name, meta := range doc.Attributes {
		if attr, ok := classify(name, meta, metrics); ok {
			attrs = append(attrs, attr)
		}
	}
	for name := range doc.Globals {
		if _, described := doc.Attributes[name]; described || profile.IsReserved(name) {
			continue
		}
		attrs = append(attrs, profile.Attribute{
			Name:     name,
			Datatype: profile.TypeString,
			Kind:     profile.KindGlobal,
			Metadata: map[string]any{},
		})
	}

	for name := range metrics {
		_, described := doc.Attributes[name]
		_, global := doc.Globals[name]
		if described || global || profile.IsReserved(name) {
			continue
		}
		attrs = append(attrs, profile.Attribute{
			Name:     name,
			Datatype: inferDatatype(doc.Records, name),
			Kind:     profile.KindMetric,
			Metadata: map[string]any{},
		})
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	return attrs
}

// inferDatatype types an undescribed metric from its first region value.
// Metrics default to double.
func inferDatatype(records []profile.Record, name string) profile.Datatype {
	for _, r := range records {
		region, ok := r.(*profile.RegionRecord)
		if !ok {
			continue
		}
		v, ok := region.Metrics[name]
		if !ok {
			continue
		}
		if _, isString := v.(string); isString {
			return profile.TypeString
		}
		return profile.TypeDouble
	}
	return profile.TypeDouble
}

func isGlobal(meta map[string]any) bool {
	switch v := meta[IsGlobalKey].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	return profile.FormatValue(v)
}
