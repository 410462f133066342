package store

import (
	"encoding/json"

	"github.com/spot-perf/spot/internal/profile"
)

// attributeRow maps the attributes table.
type attributeRow struct {
	ID       int64  `sql:"attr_id,pk,auto"`
	Name     string `sql:"name,unique"`
	Datatype string `sql:"datatype"`
	Kind     string `sql:"kind"`
	Alias    string `sql:"alias"`
	Unit     string `sql:"unit"`
	Metadata string `sql:"metadata"`
}

func newAttributeRow(a profile.Attribute) (*attributeRow, error) {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return &attributeRow{
		Name:     a.Name,
		Datatype: string(a.Datatype),
		Kind:     string(a.Kind),
		Alias:    a.Alias,
		Unit:     a.Unit,
		Metadata: string(raw),
	}, nil
}

func (r *attributeRow) attribute() profile.Attribute {
	meta := map[string]any{}
	// Metadata is written by this package; a damaged blob only loses the
	// raw metadata, not the attribute.
	_ = json.Unmarshal([]byte(r.Metadata), &meta)
	return profile.Attribute{
		Name:     r.Name,
		Datatype: profile.Datatype(r.Datatype),
		Kind:     profile.Kind(r.Kind),
		Alias:    r.Alias,
		Unit:     r.Unit,
		Metadata: meta,
	}
}

// runRow maps the runs table.
type runRow struct {
	ID         int64  `sql:"id,pk,auto"`
	UID        string `sql:"uid"`
	LaunchDate int64  `sql:"launchdate"`
	Options    string `sql:"spot_options"`
	Channels   string `sql:"spot_channels"`
	Globals    string `sql:"globals"`
	Records    string `sql:"records"`
	SourceFile string `sql:"source_file"`
	SourceHash string `sql:"source_hash"`
	IngestedAt int64  `sql:"ingested_at"`
}

// keyvalRow maps the keyval table.
type keyvalRow struct {
	ID     int64  `sql:"id,pk,auto"`
	AttrID int64  `sql:"attr_id"`
	Value  string `sql:"value"`
	Run    int64  `sql:"run"`
}
