package profile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spoterrors "github.com/spot-perf/spot/internal/errors"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		datatype Datatype
		input    any
		want     any
		wantErr  bool
	}{
		{name: "int from string", datatype: TypeInt, input: "42", want: int64(42)},
		{name: "int from float notation", datatype: TypeInt, input: "3.0", want: int64(3)},
		{name: "int from json number", datatype: TypeInt, input: json.Number("-7"), want: int64(-7)},
		{name: "int from float64", datatype: TypeInt, input: 12.0, want: int64(12)},
		{name: "int rejects fraction", datatype: TypeInt, input: "1.5", wantErr: true},
		{name: "int rejects text", datatype: TypeInt, input: "abc", wantErr: true},
		{name: "uint from string", datatype: TypeUint, input: "18446744073709551615", want: uint64(18446744073709551615)},
		{name: "uint rejects negative", datatype: TypeUint, input: int64(-1), wantErr: true},
		{name: "double from string", datatype: TypeDouble, input: "2.5", want: 2.5},
		{name: "double from int", datatype: TypeDouble, input: int64(2), want: 2.0},
		{name: "double rejects text", datatype: TypeDouble, input: "fast", wantErr: true},
		{name: "double rejects NaN", datatype: TypeDouble, input: "NaN", wantErr: true},
		{name: "double rejects infinity", datatype: TypeDouble, input: "-Inf", wantErr: true},
		{name: "string unchanged", datatype: TypeString, input: "42", want: "42"},
		{name: "json number as string", datatype: TypeString, input: json.Number("42"), want: "42"},
		{name: "unknown type unchanged", datatype: Datatype("date"), input: "1000", want: "1000"},
		{name: "nil stays nil", datatype: TypeInt, input: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.datatype, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, spoterrors.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_RoundTripThroughIndex(t *testing.T) {
	v, err := Coerce(TypeInt, "42")
	require.NoError(t, err)

	stored := FormatValue(v)
	assert.Equal(t, "42", stored)

	back, err := Coerce(TypeInt, stored)
	require.NoError(t, err)
	assert.Equal(t, int64(42), back)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "3.5", FormatValue(3.5))
	assert.Equal(t, "1000", FormatValue(float64(1000)))
	assert.Equal(t, "-3", FormatValue(int64(-3)))
	assert.Equal(t, "7", FormatValue(uint64(7)))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "12", FormatValue(json.Number("12")))
}

func TestAttribute_Info(t *testing.T) {
	metric := Attribute{Name: "time", Datatype: TypeDouble, Kind: KindMetric, Alias: "Time", Unit: "sec"}
	assert.Equal(t, AttributeInfo{Type: "double", Alias: "Time", Unit: "sec"}, metric.Info())

	global := Attribute{Name: "cluster", Datatype: TypeString, Kind: KindGlobal, Alias: "Cluster"}
	assert.Equal(t, AttributeInfo{Type: "string"}, global.Info())
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("cali.caliper.version"))
	assert.True(t, IsReserved("spot.metrics"))
	assert.False(t, IsReserved("spotless"))
	assert.False(t, IsReserved("launchdate"))
}
