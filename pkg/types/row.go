// Package types provides the query-result data model shared by the decoder and
// the Timestream adapters.
package types

// Datum is one cell of a query result. At most one value slot is populated.
// A nil slice means the slot is absent; an empty non-nil slice is present but empty.
type Datum struct {
	// Scalar holds the textual value of a scalar cell.
	Scalar *string `json:"scalar,omitempty"`

	// Array holds the elements of an array cell.
	Array []Datum `json:"array,omitempty"`

	// Row holds the field values of a row cell. Field types come from the
	// enclosing RowType, not from the datum.
	Row []Datum `json:"row,omitempty"`

	// TimeSeries holds the points of a time-series cell.
	TimeSeries []TimeSeriesDataPoint `json:"time_series,omitempty"`

	// Null is set when the service returned an explicit NULL.
	Null bool `json:"null,omitempty"`
}

// TimeSeriesDataPoint is a single (timestamp, value) pair.
type TimeSeriesDataPoint struct {
	// Time is the point's timestamp as returned by the service.
	Time string `json:"time"`

	// Value is typed by the TimeSeriesType's Value column.
	Value *Datum `json:"value,omitempty"`
}

// Row is one result row; Data[i] is typed by the page's Columns[i].
type Row struct {
	Data []Datum `json:"data"`
}

// Page is one page of a paginated query result.
type Page struct {
	// QueryID identifies the running query on the service side.
	QueryID string

	// Columns is the column metadata shared by every row of the page.
	Columns []ColumnInfo

	// Rows holds the page's rows.
	Rows []Row

	// NextToken is non-nil while more pages remain.
	NextToken *string
}

// ScalarDatum returns a datum holding v.
func ScalarDatum(v string) Datum {
	return Datum{Scalar: &v}
}

// ArrayDatum returns a datum holding the given elements. The slot is present
// even when no elements are passed.
func ArrayDatum(elems ...Datum) Datum {
	if elems == nil {
		elems = []Datum{}
	}
	return Datum{Array: elems}
}

// RowDatum returns a datum holding the given field values.
func RowDatum(fields ...Datum) Datum {
	if fields == nil {
		fields = []Datum{}
	}
	return Datum{Row: fields}
}

// TimeSeriesDatum returns a datum holding the given points.
func TimeSeriesDatum(points ...TimeSeriesDataPoint) Datum {
	if points == nil {
		points = []TimeSeriesDataPoint{}
	}
	return Datum{TimeSeries: points}
}

// Point returns a time-series point.
func Point(time string, value Datum) TimeSeriesDataPoint {
	return TimeSeriesDataPoint{Time: time, Value: &value}
}

// NullDatum returns an explicit NULL cell.
func NullDatum() Datum {
	return Datum{Null: true}
}
