package schema

import (
	"errors"

	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
)

// CoerceGlobals converts the non-reserved globals of doc to the datatypes
// of attrs. Globals without an attribute are kept as they are.
func CoerceGlobals(doc *profile.Document, attrs map[string]profile.Attribute) (map[string]any, error) {
	out := make(map[string]any, len(doc.Globals))
	for name, raw := range doc.Globals {
		if profile.IsReserved(name) {
			continue
		}

		attr, ok := attrs[name]
		if !ok {
			out[name] = raw
			continue
		}

		v, err := profile.Coerce(attr.Datatype, raw)
		if err != nil {
			var validationErr *spoterrors.ValidationError
			if errors.As(err, &validationErr) {
				validationErr.File = doc.Source
				validationErr.Field = name
			}
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
