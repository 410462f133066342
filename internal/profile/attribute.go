package profile

import (
	"strings"

	"github.com/spot-perf/spot/internal/constants"
)

// Kind classifies an attribute within the schema.
type Kind string

const (
	// KindGlobal marks a run level scalar such as launch time or a build option.
	KindGlobal Kind = "global"
	// KindMetric marks a per-region measurement such as inclusive duration.
	KindMetric Kind = "metric"
	// KindOther marks every other attribute.
	KindOther Kind = "other"
)

// Valid reports whether k is one of the three schema kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindGlobal, KindMetric, KindOther:
		return true
	}
	return false
}

// Datatype is the declared type of an attribute's values.
type Datatype string

const (
	TypeInt    Datatype = "int"
	TypeUint   Datatype = "uint"
	TypeDouble Datatype = "double"
	TypeString Datatype = "string"
	TypeBool   Datatype = "bool"
)

// Numeric reports whether values of d are coerced to numbers.
func (d Datatype) Numeric() bool {
	return d == TypeInt || d == TypeUint || d == TypeDouble
}

// Attribute is one entry of the attribute schema. It is created the first
// time its name is seen and never changes afterwards.
type Attribute struct {
	Name     string
	Datatype Datatype
	Kind     Kind
	Alias    string
	Unit     string
	// Metadata is the raw metadata map the attribute was created from.
	Metadata map[string]any
}

// AttributeInfo is the metadata view of an attribute handed to clients.
type AttributeInfo struct {
	Type  string `json:"type"`
	Alias string `json:"alias,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// Info returns the client view of a. Alias and unit are only reported for
// metric attributes.
func (a Attribute) Info() AttributeInfo {
	info := AttributeInfo{Type: string(a.Datatype)}
	if a.Kind == KindMetric {
		info.Alias = a.Alias
		info.Unit = a.Unit
	}
	return info
}

// IsReserved reports whether name belongs to the internal cali./spot.
// namespaces. Reserved names stay readable as raw globals but are never
// registered in the schema or indexed.
func IsReserved(name string) bool {
	for _, prefix := range constants.ReservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// SplitList splits a comma-separated attribute list such as spot.metrics,
// dropping empty segments.
func SplitList(value any) []string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
