package types

import (
	"encoding/json"
	"strings"
)

// ColumnType is the declared type of a result column.
// It is a closed set: ScalarType, ArrayType, RowType and TimeSeriesType.
type ColumnType interface {
	// Kind returns the variant tag of the column type.
	Kind() Kind

	// String renders the type in the service's DDL-like notation,
	// e.g. "array(varchar)" or "row(a varchar, b double)".
	String() string

	columnType()
}

// Kind tags the variant of a ColumnType.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindArray
	KindRow
	KindTimeSeries
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindRow:
		return "row"
	case KindTimeSeries:
		return "timeseries"
	default:
		return "unknown"
	}
}

// ColumnInfo describes one column (or one nested field) of a query result.
type ColumnInfo struct {
	// Name is the column name. Nested element types are usually unnamed.
	Name string `json:"name,omitempty"`

	// Type is the declared type. A nil Type is malformed metadata.
	Type ColumnType `json:"-"`
}

// MarshalJSON renders the column as {"name": ..., "type": "<type notation>"}.
func (c ColumnInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name,omitempty"`
		Type string `json:"type"`
	}{Name: c.Name, Type: typeString(c.Type)})
}

// ScalarType is a leaf column holding a textual value.
type ScalarType struct {
	// Name is the service's scalar type name (VARCHAR, DOUBLE, TIMESTAMP, ...).
	Name string
}

// ArrayType is an array whose elements all share Element's type.
type ArrayType struct {
	Element ColumnInfo
}

// RowType is a positional record; Fields[i] types the i-th field value.
type RowType struct {
	Fields []ColumnInfo
}

// TimeSeriesType is a sequence of (time, value) points; Value types each point's value.
type TimeSeriesType struct {
	Value ColumnInfo
}

func (ScalarType) Kind() Kind     { return KindScalar }
func (ArrayType) Kind() Kind      { return KindArray }
func (RowType) Kind() Kind        { return KindRow }
func (TimeSeriesType) Kind() Kind { return KindTimeSeries }

func (ScalarType) columnType()     {}
func (ArrayType) columnType()      {}
func (RowType) columnType()        {}
func (TimeSeriesType) columnType() {}

func (t ScalarType) String() string {
	return strings.ToLower(t.Name)
}

func (t ArrayType) String() string {
	return "array(" + typeString(t.Element.Type) + ")"
}

func (t RowType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		if f.Name != "" {
			parts[i] = f.Name + " " + typeString(f.Type)
		} else {
			parts[i] = typeString(f.Type)
		}
	}
	return "row(" + strings.Join(parts, ", ") + ")"
}

func (t TimeSeriesType) String() string {
	return "timeseries(" + typeString(t.Value.Type) + ")"
}

func typeString(t ColumnType) string {
	if t == nil {
		return "?"
	}
	return t.String()
}

// Scalar returns a scalar column.
func Scalar(name, scalarType string) ColumnInfo {
	return ColumnInfo{Name: name, Type: ScalarType{Name: scalarType}}
}

// Array returns an array column with the given element type.
func Array(name string, element ColumnInfo) ColumnInfo {
	return ColumnInfo{Name: name, Type: ArrayType{Element: element}}
}

// RowOf returns a row column with the given field types.
func RowOf(name string, fields ...ColumnInfo) ColumnInfo {
	return ColumnInfo{Name: name, Type: RowType{Fields: fields}}
}

// TimeSeries returns a time-series column whose points carry value's type.
func TimeSeries(name string, value ColumnInfo) ColumnInfo {
	return ColumnInfo{Name: name, Type: TimeSeriesType{Value: value}}
}
