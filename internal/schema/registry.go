package schema

import (
	"encoding/json"
	"maps"
	"sort"
	"sync"

	"github.com/spot-perf/spot/internal/profile"
)

// Registry is an in-memory attribute registry safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	attrs map[string]profile.Attribute
}

// NewRegistry creates a registry holding attrs.
func NewRegistry(attrs ...profile.Attribute) *Registry {
	r := &Registry{attrs: make(map[string]profile.Attribute, len(attrs))}
	for _, a := range attrs {
		r.Add(a)
	}
	return r
}

// Add inserts attr unless its name is already known. It returns the stored
// attribute and whether attr was inserted.
func (r *Registry) Add(attr profile.Attribute) (profile.Attribute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.attrs[attr.Name]; ok {
		return existing, false
	}
	r.attrs[attr.Name] = attr
	return attr, true
}

// Get returns the attribute called name.
func (r *Registry) Get(name string) (profile.Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attr, ok := r.attrs[name]
	return attr, ok
}

// Len returns the number of registered attributes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attrs)
}

// ByKind returns the attributes of kind sorted by name.
func (r *Registry) ByKind(kind profile.Kind) []profile.Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []profile.Attribute
	for _, a := range r.attrs {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Info returns the client metadata view of the attributes of kind.
func (r *Registry) Info(kind profile.Kind) map[string]profile.AttributeInfo {
	info := make(map[string]profile.AttributeInfo)
	for _, a := range r.ByKind(kind) {
		info[a.Name] = a.Info()
	}
	return info
}

// Plan describes what registering a document would do.
type Plan struct {
	// Attributes maps every attribute the document uses to its effective
	// definition: the registered one when known, else the new one.
	Attributes map[string]profile.Attribute
	// New lists attributes not yet registered, sorted by name.
	New []profile.Attribute
	// Globals holds the document's non-reserved globals coerced to the
	// effective datatypes.
	Globals map[string]any
}

// Plan classifies doc against the registry and coerces its globals without
// changing the registry. Coercion failures yield an
// *errors.ValidationError naming the file and global.
func (r *Registry) Plan(doc *profile.Document) (*Plan, error) {
	plan := &Plan{Attributes: make(map[string]profile.Attribute)}

	r.mu.RLock()
	for _, candidate := range Extract(doc) {
		if existing, ok := r.attrs[candidate.Name]; ok {
			plan.Attributes[candidate.Name] = existing
			continue
		}
		plan.Attributes[candidate.Name] = candidate
		plan.New = append(plan.New, candidate)
	}
	r.mu.RUnlock()

	globals, err := CoerceGlobals(doc, plan.Attributes)
	if err != nil {
		return nil, err
	}
	plan.Globals = globals
	return plan, nil
}

// Commit registers the new attributes of plan.
func (r *Registry) Commit(plan *Plan) {
	for _, a := range plan.New {
		r.Add(a)
	}
}

// Register plans and commits doc, returning the attributes it added.
func (r *Registry) Register(doc *profile.Document) ([]profile.Attribute, error) {
	plan, err := r.Plan(doc)
	if err != nil {
		return nil, err
	}

	var added []profile.Attribute
	for _, a := range plan.New {
		if _, inserted := r.Add(a); inserted {
			added = append(added, a)
		}
	}
	return added, nil
}

// Snapshot returns a copy of every registered attribute keyed by name.
func (r *Registry) Snapshot() map[string]profile.Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.attrs)
}

// RunGlobals returns the globals of doc as a run exposes them: coerced
// values for non-reserved globals, reserved globals rendered as read.
func (p *Plan) RunGlobals(doc *profile.Document) map[string]any {
	globals := make(map[string]any, len(doc.Globals))
	for name, v := range doc.Globals {
		if n, ok := v.(json.Number); ok {
			v = n.String()
		}
		globals[name] = v
	}
	maps.Copy(globals, p.Globals)
	return globals
}
