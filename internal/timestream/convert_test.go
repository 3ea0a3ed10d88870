package timestream

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	qtypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/render"
)

func scalarInfo(name string, t qtypes.ScalarType) qtypes.ColumnInfo {
	ci := qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: t}}
	if name != "" {
		ci.Name = aws.String(name)
	}
	return ci
}

func TestColumnFromSDK_Variants(t *testing.T) {
	tests := []struct {
		name string
		in   qtypes.ColumnInfo
		want string
	}{
		{"scalar", scalarInfo("hostname", qtypes.ScalarTypeVarchar), "varchar"},
		{
			name: "array",
			in: qtypes.ColumnInfo{Type: &qtypes.Type{
				ArrayColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeBigint}},
			}},
			want: "array(bigint)",
		},
		{
			name: "row",
			in: qtypes.ColumnInfo{Type: &qtypes.Type{RowColumnInfo: []qtypes.ColumnInfo{
				scalarInfo("time", qtypes.ScalarTypeTimestamp),
				scalarInfo("value", qtypes.ScalarTypeDouble),
			}}},
			want: "row(time timestamp, value double)",
		},
		{
			name: "time series",
			in: qtypes.ColumnInfo{Type: &qtypes.Type{
				TimeSeriesMeasureValueColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeDouble}},
			}},
			want: "timeseries(double)",
		},
		{
			name: "empty scalar name falls through to array",
			in: qtypes.ColumnInfo{Type: &qtypes.Type{
				ScalarType:      "",
				ArrayColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeVarchar}},
			}},
			want: "array(varchar)",
		},
		{
			name: "time series wins over array",
			in: qtypes.ColumnInfo{Type: &qtypes.Type{
				TimeSeriesMeasureValueColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeDouble}},
				ArrayColumnInfo:                  &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeVarchar}},
			}},
			want: "timeseries(double)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := ColumnFromSDK(tt.in)
			require.NotNil(t, col.Type)
			assert.Equal(t, tt.want, col.Type.String())
		})
	}
}

func TestColumnFromSDK_Malformed(t *testing.T) {
	assert.Nil(t, ColumnFromSDK(qtypes.ColumnInfo{Name: aws.String("x")}).Type)
	assert.Nil(t, ColumnFromSDK(qtypes.ColumnInfo{Type: &qtypes.Type{}}).Type)
}

func TestDatumFromSDK(t *testing.T) {
	d := DatumFromSDK(qtypes.Datum{
		ArrayValue: []qtypes.Datum{
			{ScalarValue: aws.String("1")},
			{NullValue: aws.Bool(true)},
			{RowValue: &qtypes.Row{Data: []qtypes.Datum{{ScalarValue: aws.String("a")}}}},
			{TimeSeriesValue: []qtypes.TimeSeriesDataPoint{{Time: aws.String("t1"), Value: &qtypes.Datum{ScalarValue: aws.String("2")}}}},
		},
	})

	require.Len(t, d.Array, 4)
	assert.Equal(t, "1", *d.Array[0].Scalar)
	assert.True(t, d.Array[1].Null)
	require.Len(t, d.Array[2].Row, 1)
	assert.Equal(t, "a", *d.Array[2].Row[0].Scalar)
	require.Len(t, d.Array[3].TimeSeries, 1)
	assert.Equal(t, "t1", d.Array[3].TimeSeries[0].Time)
	assert.Equal(t, "2", *d.Array[3].TimeSeries[0].Value.Scalar)

	empty := DatumFromSDK(qtypes.Datum{ArrayValue: []qtypes.Datum{}})
	assert.NotNil(t, empty.Array)
	assert.Nil(t, DatumFromSDK(qtypes.Datum{}).Array)
}

func TestPageFromSDK_RendersEndToEnd(t *testing.T) {
	out := &timestreamquery.QueryOutput{
		QueryId: aws.String("q-1"),
		ColumnInfo: []qtypes.ColumnInfo{
			scalarInfo("region", qtypes.ScalarTypeVarchar),
			{Name: aws.String("values"), Type: &qtypes.Type{
				ArrayColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeBigint}},
			}},
		},
		Rows: []qtypes.Row{{Data: []qtypes.Datum{
			{ScalarValue: aws.String("us-east-1")},
			{ArrayValue: []qtypes.Datum{{ScalarValue: aws.String("10")}, {ScalarValue: aws.String("20")}}},
		}}},
		NextToken: aws.String("next"),
	}

	page := PageFromSDK(out)
	assert.Equal(t, "q-1", page.QueryID)
	assert.Equal(t, "next", *page.NextToken)
	require.Len(t, page.Rows, 1)

	got, err := render.New().Render(page.Rows[0], page.Columns)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1, [10, 20]", got)
}

func TestPageFromSDK_EmptyScalarTypeRendersAsArray(t *testing.T) {
	out := &timestreamquery.QueryOutput{
		ColumnInfo: []qtypes.ColumnInfo{{Name: aws.String("vals"), Type: &qtypes.Type{
			ScalarType:      "",
			ArrayColumnInfo: &qtypes.ColumnInfo{Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeInteger}},
		}}},
		Rows: []qtypes.Row{{Data: []qtypes.Datum{
			{ArrayValue: []qtypes.Datum{{ScalarValue: aws.String("1")}, {ScalarValue: aws.String("2")}}},
		}}},
	}

	page := PageFromSDK(out)
	got, err := render.New().Render(page.Rows[0], page.Columns)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", got)
}

func TestPageFromSDK_MalformedColumnFailsDecode(t *testing.T) {
	out := &timestreamquery.QueryOutput{
		ColumnInfo: []qtypes.ColumnInfo{{Name: aws.String("broken"), Type: &qtypes.Type{}}},
		Rows:       []qtypes.Row{{Data: []qtypes.Datum{{ScalarValue: aws.String("x")}}}},
	}

	page := PageFromSDK(out)
	_, err := render.New().Render(page.Rows[0], page.Columns)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedColumnType, apperrors.GetCode(err))
}
