package sqldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleSelect(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs", q)
	assert.Empty(t, args)
}

func TestBuilder_SelectColumns(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		Select("id", "launchdate", "globals").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT id, launchdate, globals FROM runs", q)
	assert.Empty(t, args)
}

func TestBuilder_Eq(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		Eq("source_file", "/data/a.cali").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs WHERE source_file = ?", q)
	assert.Equal(t, []interface{}{"/data/a.cali"}, args)
}

func TestBuilder_EqWithEmptyString(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		Eq("source_file", "").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs", q)
	assert.Empty(t, args)
}

func TestBuilder_In(t *testing.T) {
	q, args, err := NewQueryBuilder("attributes").
		In("name", "launchdate", "cluster", "user").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM attributes WHERE name IN (?, ?, ?)", q)
	assert.Equal(t, []interface{}{"launchdate", "cluster", "user"}, args)
}

func TestBuilder_InWithEmptyValues(t *testing.T) {
	q, args, err := NewQueryBuilder("attributes").
		In("name").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM attributes", q)
	assert.Empty(t, args)
}

func TestBuilder_Comparisons(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		Gt("launchdate", int64(1000)).
		Lte("launchdate", int64(2000)).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs WHERE launchdate > ? AND launchdate <= ?", q)
	assert.Equal(t, []interface{}{int64(1000), int64(2000)}, args)
}

func TestBuilder_WhereWithArgs(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		Where("source_file = ? OR source_hash = ?", "a.cali", "abc").
		Where("records IS NOT NULL").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs WHERE source_file = ? OR source_hash = ? AND records IS NOT NULL", q)
	assert.Equal(t, []interface{}{"a.cali", "abc"}, args)
}

func TestBuilder_GroupBy(t *testing.T) {
	q, _, err := NewQueryBuilder("keyval").
		Select("run", "COUNT(*) AS n").
		GroupBy("run").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT run, COUNT(*) AS n FROM keyval GROUP BY run", q)
}

func TestBuilder_OrderBy(t *testing.T) {
	tests := []struct {
		name     string
		order    []string
		expected string
	}{
		{name: "asc", order: []string{"id"}, expected: "SELECT * FROM runs ORDER BY id"},
		{name: "desc", order: []string{"-launchdate"}, expected: "SELECT * FROM runs ORDER BY launchdate DESC"},
		{name: "mixed", order: []string{"launchdate", "-id"}, expected: "SELECT * FROM runs ORDER BY launchdate, id DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, err := NewQueryBuilder("runs").OrderBy(tt.order...).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}

func TestBuilder_Limit(t *testing.T) {
	q, args, err := NewQueryBuilder("runs").
		OrderBy("-id").
		Limit(10).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM runs ORDER BY id DESC LIMIT ?", q)
	assert.Equal(t, []interface{}{10}, args)
}

func TestBuilder_JoinQuery(t *testing.T) {
	q, args, err := NewQueryBuilder("keyval k JOIN attributes a ON k.attr_id = a.attr_id").
		Select("a.name", "a.datatype", "k.value", "k.run").
		In("a.name", "launchdate", "cluster").
		OrderBy("k.run").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT a.name, a.datatype, k.value, k.run FROM keyval k JOIN attributes a ON k.attr_id = a.attr_id WHERE a.name IN (?, ?) ORDER BY k.run", q)
	assert.Equal(t, []interface{}{"launchdate", "cluster"}, args)
}

func TestBuilder_BuildTwice(t *testing.T) {
	b := NewQueryBuilder("runs").Gt("id", 3)

	_, first, err := b.Build()
	require.NoError(t, err)
	_, second, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, first, second, "building again does not duplicate arguments")
}

func TestBuilder_ErrorNoTable(t *testing.T) {
	_, _, err := NewQueryBuilder("").Build()
	assert.Error(t, err)
}

func TestBuilder_MustBuildPanic(t *testing.T) {
	assert.Panics(t, func() {
		NewQueryBuilder("").MustBuild()
	})
}
