// Package render turns typed, nested query results into flat text.
//
// A row renders as its field values joined with ", ". Inside a row, array,
// row and time-series values are wrapped in [...]; inside an array, nested
// arrays and rows are wrapped while time series are not; a time-series point
// renders as "<time>:<value>" with its value unwrapped. NULL cells render as
// "NULL" wherever they appear.
//
// A Decoder is stateless apart from its options and may be shared between
// goroutines.
package render

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/pkg/types"
)

const (
	// DefaultMaxDepth bounds the nesting depth of a rendered value.
	// Real schemas rarely exceed four levels.
	DefaultMaxDepth = 32

	// Separator joins sibling values.
	Separator = ", "

	// NullText is the rendering of an explicit NULL cell.
	NullText = "NULL"
)

// Decoder renders query results.
type Decoder struct {
	maxDepth int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxDepth sets the nesting ceiling. Values <= 0 keep the default.
func WithMaxDepth(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// New creates a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxDepth returns the configured nesting ceiling.
func (d *Decoder) MaxDepth() int {
	return d.maxDepth
}

// Render renders one result row against the page's column metadata.
func (d *Decoder) Render(row types.Row, columns []types.ColumnInfo) (string, error) {
	return d.RenderRow(row.Data, columns)
}

// RenderScalar returns the scalar held by datum, unchanged.
func (d *Decoder) RenderScalar(datum types.Datum) (string, error) {
	s := d.newState()
	if err := s.scalar(&datum, nil); err != nil {
		return "", err
	}
	return s.b.String(), nil
}

// RenderRow renders fields positionally against columns. The two slices must
// have the same length.
func (d *Decoder) RenderRow(fields []types.Datum, columns []types.ColumnInfo) (string, error) {
	s := d.newState()
	if err := s.row(fields, columns, nil, "col", 0); err != nil {
		return "", err
	}
	return s.b.String(), nil
}

// RenderArray renders elements that all share elementType.
func (d *Decoder) RenderArray(elements []types.Datum, elementType types.ColumnInfo) (string, error) {
	s := d.newState()
	if err := s.array(elements, elementType.Type, nil, 0); err != nil {
		return "", err
	}
	return s.b.String(), nil
}

// RenderTimeSeries renders points whose values share valueType.
func (d *Decoder) RenderTimeSeries(points []types.TimeSeriesDataPoint, valueType types.ColumnInfo) (string, error) {
	s := d.newState()
	if err := s.timeSeries(points, valueType.Type, nil, 0); err != nil {
		return "", err
	}
	return s.b.String(), nil
}

func (d *Decoder) newState() *state {
	return &state{maxDepth: d.maxDepth}
}

// site is the container a value is rendered in; it decides bracketing.
type site int

const (
	inRow site = iota
	inArray
	inPoint
)

type state struct {
	b        strings.Builder
	maxDepth int
}

func (s *state) scalar(d *types.Datum, p *path) error {
	if d.Null {
		s.b.WriteString(NullText)
		return nil
	}
	if d.Scalar == nil {
		return missingValue(p, "scalar value")
	}
	s.b.WriteString(*d.Scalar)
	return nil
}

func (s *state) row(fields []types.Datum, columns []types.ColumnInfo, p *path, seg string, depth int) error {
	if err := s.enter(p, depth); err != nil {
		return err
	}
	if len(fields) != len(columns) {
		return apperrors.NewDecodeError(apperrors.CodeShapeMismatch,
			fmt.Sprintf("%s: row has %d fields but metadata describes %d columns", p, len(fields), len(columns))).
			WithDetails(map[string]interface{}{
				"path":    p.String(),
				"fields":  len(fields),
				"columns": len(columns),
			})
	}
	for i := range fields {
		if i > 0 {
			s.b.WriteString(Separator)
		}
		fp := p.child(seg, i, columns[i].Name)
		if err := s.value(&fields[i], columns[i].Type, inRow, fp, depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) array(elements []types.Datum, elementType types.ColumnType, p *path, depth int) error {
	if err := s.enter(p, depth); err != nil {
		return err
	}
	for i := range elements {
		if i > 0 {
			s.b.WriteString(Separator)
		}
		if err := s.value(&elements[i], elementType, inArray, p.child("elem", i, ""), depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) timeSeries(points []types.TimeSeriesDataPoint, valueType types.ColumnType, p *path, depth int) error {
	if err := s.enter(p, depth); err != nil {
		return err
	}
	for i := range points {
		if i > 0 {
			s.b.WriteString(Separator)
		}
		pp := p.child("point", i, "")
		if points[i].Value == nil {
			return missingValue(pp, "time-series point value")
		}
		s.b.WriteString(points[i].Time)
		s.b.WriteByte(':')
		if err := s.value(points[i].Value, valueType, inPoint, pp, depth); err != nil {
			return err
		}
	}
	return nil
}

// value dispatches on the declared type of d.
func (s *state) value(d *types.Datum, t types.ColumnType, at site, p *path, depth int) error {
	// Malformed metadata fails even under a NULL cell.
	if t == nil {
		return unsupported(p, "column has no recognized type")
	}
	if d.Null {
		s.b.WriteString(NullText)
		return nil
	}

	switch t := t.(type) {
	case types.ScalarType:
		return s.scalar(d, p)

	case types.TimeSeriesType:
		if at == inPoint {
			return unsupported(p, "time series nested directly in a time series")
		}
		if d.TimeSeries == nil {
			return missingValue(p, "time-series value")
		}
		wrap := at == inRow
		s.open(wrap)
		if err := s.timeSeries(d.TimeSeries, t.Value.Type, p, depth+1); err != nil {
			return err
		}
		s.close(wrap)
		return nil

	case types.ArrayType:
		if d.Array == nil {
			return missingValue(p, "array value")
		}
		wrap := at != inPoint
		s.open(wrap)
		if err := s.array(d.Array, t.Element.Type, p, depth+1); err != nil {
			return err
		}
		s.close(wrap)
		return nil

	case types.RowType:
		if d.Row == nil {
			return missingValue(p, "row value")
		}
		wrap := at != inPoint
		s.open(wrap)
		if err := s.row(d.Row, t.Fields, p, "field", depth+1); err != nil {
			return err
		}
		s.close(wrap)
		return nil

	default:
		return unsupported(p, "column has no recognized type")
	}
}

func (s *state) open(wrap bool) {
	if wrap {
		s.b.WriteByte('[')
	}
}

func (s *state) close(wrap bool) {
	if wrap {
		s.b.WriteByte(']')
	}
}

func (s *state) enter(p *path, depth int) error {
	if depth > s.maxDepth {
		return apperrors.NewDecodeError(apperrors.CodeDepthExceeded,
			fmt.Sprintf("%s: nesting deeper than %d levels", p, s.maxDepth)).
			WithDetails(map[string]interface{}{"path": p.String(), "max_depth": s.maxDepth})
	}
	return nil
}

func missingValue(p *path, what string) error {
	return apperrors.NewDecodeError(apperrors.CodeMissingValue,
		fmt.Sprintf("%s: %s is missing", p, what)).
		WithDetails(map[string]interface{}{"path": p.String()})
}

func unsupported(p *path, why string) error {
	return apperrors.NewDecodeError(apperrors.CodeUnsupportedColumnType,
		fmt.Sprintf("%s: %s", p, why)).
		WithDetails(map[string]interface{}{"path": p.String()})
}

// path locates a value inside a row for error messages.
type path struct {
	parent *path
	seg    string
	idx    int
	name   string
}

func (p *path) child(seg string, idx int, name string) *path {
	return &path{parent: p, seg: seg, idx: idx, name: name}
}

func (p *path) String() string {
	if p == nil {
		return "$"
	}
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *path) write(b *strings.Builder) {
	if p.parent != nil {
		p.parent.write(b)
		b.WriteByte('.')
	}
	b.WriteString(p.seg)
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(p.idx))
	b.WriteByte(']')
	if p.name != "" {
		b.WriteByte('(')
		b.WriteString(p.name)
		b.WriteByte(')')
	}
}
