package timestream

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	qtypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"

	"github.com/tsdemo/tsdemo/pkg/types"
)

// ColumnFromSDK converts SDK column metadata. The variant is chosen in the
// order scalar, time series, array, row; an empty scalar type name counts as
// absent. Metadata with no variant populated yields a nil Type, which the
// decoder reports as an unsupported column type.
func ColumnFromSDK(ci qtypes.ColumnInfo) types.ColumnInfo {
	col := types.ColumnInfo{Name: aws.ToString(ci.Name)}
	t := ci.Type
	switch {
	case t == nil:
	case t.ScalarType != "":
		col.Type = types.ScalarType{Name: string(t.ScalarType)}
	case t.TimeSeriesMeasureValueColumnInfo != nil:
		col.Type = types.TimeSeriesType{Value: ColumnFromSDK(*t.TimeSeriesMeasureValueColumnInfo)}
	case t.ArrayColumnInfo != nil:
		col.Type = types.ArrayType{Element: ColumnFromSDK(*t.ArrayColumnInfo)}
	case t.RowColumnInfo != nil:
		col.Type = types.RowType{Fields: ColumnsFromSDK(t.RowColumnInfo)}
	}
	return col
}

// ColumnsFromSDK converts a column list.
func ColumnsFromSDK(cis []qtypes.ColumnInfo) []types.ColumnInfo {
	out := make([]types.ColumnInfo, len(cis))
	for i := range cis {
		out[i] = ColumnFromSDK(cis[i])
	}
	return out
}

// DatumFromSDK converts one SDK cell. Absent slots stay nil.
func DatumFromSDK(d qtypes.Datum) types.Datum {
	var out types.Datum
	if d.NullValue != nil && *d.NullValue {
		out.Null = true
	}
	out.Scalar = d.ScalarValue
	if d.ArrayValue != nil {
		out.Array = datumsFromSDK(d.ArrayValue)
	}
	if d.RowValue != nil {
		out.Row = datumsFromSDK(d.RowValue.Data)
	}
	if d.TimeSeriesValue != nil {
		out.TimeSeries = make([]types.TimeSeriesDataPoint, len(d.TimeSeriesValue))
		for i, p := range d.TimeSeriesValue {
			out.TimeSeries[i].Time = aws.ToString(p.Time)
			if p.Value != nil {
				v := DatumFromSDK(*p.Value)
				out.TimeSeries[i].Value = &v
			}
		}
	}
	return out
}

func datumsFromSDK(ds []qtypes.Datum) []types.Datum {
	out := make([]types.Datum, len(ds))
	for i := range ds {
		out[i] = DatumFromSDK(ds[i])
	}
	return out
}

// RowFromSDK converts one result row.
func RowFromSDK(r qtypes.Row) types.Row {
	return types.Row{Data: datumsFromSDK(r.Data)}
}

// PageFromSDK converts a query response page.
func PageFromSDK(out *timestreamquery.QueryOutput) types.Page {
	page := types.Page{
		QueryID:   aws.ToString(out.QueryId),
		Columns:   ColumnsFromSDK(out.ColumnInfo),
		Rows:      make([]types.Row, len(out.Rows)),
		NextToken: out.NextToken,
	}
	for i := range out.Rows {
		page.Rows[i] = RowFromSDK(out.Rows[i])
	}
	return page
}
