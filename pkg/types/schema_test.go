package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnType_String(t *testing.T) {
	tests := []struct {
		name string
		col  ColumnInfo
		want string
	}{
		{"scalar", Scalar("hostname", "VARCHAR"), "varchar"},
		{"array", Array("v", Scalar("", "BIGINT")), "array(bigint)"},
		{"row", RowOf("r", Scalar("a", "VARCHAR"), Scalar("", "DOUBLE")), "row(a varchar, double)"},
		{"timeseries", TimeSeries("cpu", Scalar("", "DOUBLE")), "timeseries(double)"},
		{"nested", Array("", TimeSeries("", RowOf("", Scalar("x", "INTEGER")))), "array(timeseries(row(x integer)))"},
		{"malformed element", Array("", ColumnInfo{}), "array(?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.col.Type.String())
		})
	}
}

func TestColumnType_Kind(t *testing.T) {
	assert.Equal(t, KindScalar, Scalar("", "VARCHAR").Type.Kind())
	assert.Equal(t, KindArray, Array("", Scalar("", "VARCHAR")).Type.Kind())
	assert.Equal(t, KindRow, RowOf("").Type.Kind())
	assert.Equal(t, KindTimeSeries, TimeSeries("", Scalar("", "DOUBLE")).Type.Kind())
	assert.Equal(t, "timeseries", KindTimeSeries.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestColumnInfo_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]ColumnInfo{
		Scalar("region", "VARCHAR"),
		Array("values", Scalar("", "BIGINT")),
		{Name: "broken"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"name":"region","type":"varchar"},{"name":"values","type":"array(bigint)"},{"name":"broken","type":"?"}]`,
		string(data))
}

func TestDatumConstructors(t *testing.T) {
	assert.NotNil(t, ArrayDatum().Array, "empty array slot must be present")
	assert.NotNil(t, RowDatum().Row, "empty row slot must be present")
	assert.NotNil(t, TimeSeriesDatum().TimeSeries, "empty time series slot must be present")
	assert.Nil(t, Datum{}.Array)

	p := Point("t1", ScalarDatum("1"))
	require.NotNil(t, p.Value)
	require.NotNil(t, p.Value.Scalar)
	assert.Equal(t, "1", *p.Value.Scalar)

	assert.True(t, NullDatum().Null)
}
