package flight

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// recordReader is satisfied by flight.Reader and ipc.Reader.
type recordReader interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
}

// frameFromRecords concatenates every record batch of r into one frame named name. It returns a
// nil frame when r yields no batches. Every field is nullable so arrow nulls survive.
func frameFromRecords(name string, r recordReader) (*data.Frame, error) {
	var frame *data.Frame

	for r.Next() {
		rec := r.Record()
		if frame == nil {
			f, err := newFrame(name, rec.Schema())
			if err != nil {
				return nil, err
			}
			frame = f
		}

		for i, col := range rec.Columns() {
			if err := appendColumn(frame.Fields[i], col); err != nil {
				return nil, fmt.Errorf("column %q: %w", rec.ColumnName(i), err)
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read record batch: %w", err)
	}

	return frame, nil
}

func newFrame(name string, schema *arrow.Schema) (*data.Frame, error) {
	fields := make([]*data.Field, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		ft, err := fieldTypeFor(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		field := data.NewFieldFromFieldType(ft, 0)
		field.Name = f.Name
		fields = append(fields, field)
	}
	return data.NewFrame(name, fields...), nil
}

func fieldTypeFor(dt arrow.DataType) (data.FieldType, error) {
	switch dt.ID() {
	case arrow.TIMESTAMP:
		return data.FieldTypeNullableTime, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		return data.FieldTypeNullableInt64, nil
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return data.FieldTypeNullableUint64, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return data.FieldTypeNullableFloat64, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return data.FieldTypeNullableString, nil
	case arrow.BOOL:
		return data.FieldTypeNullableBool, nil
	default:
		return data.FieldTypeUnknown, fmt.Errorf("unsupported arrow type %s", dt)
	}
}

func appendColumn(field *data.Field, col arrow.Array) error {
	switch c := col.(type) {
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		appendValues(field, col, func(i int) time.Time { return c.Value(i).ToTime(unit) })
	case *array.Int8:
		appendValues(field, col, func(i int) int64 { return int64(c.Value(i)) })
	case *array.Int16:
		appendValues(field, col, func(i int) int64 { return int64(c.Value(i)) })
	case *array.Int32:
		appendValues(field, col, func(i int) int64 { return int64(c.Value(i)) })
	case *array.Int64:
		appendValues(field, col, c.Value)
	case *array.Uint8:
		appendValues(field, col, func(i int) uint64 { return uint64(c.Value(i)) })
	case *array.Uint16:
		appendValues(field, col, func(i int) uint64 { return uint64(c.Value(i)) })
	case *array.Uint32:
		appendValues(field, col, func(i int) uint64 { return uint64(c.Value(i)) })
	case *array.Uint64:
		appendValues(field, col, c.Value)
	case *array.Float32:
		appendValues(field, col, func(i int) float64 { return float64(c.Value(i)) })
	case *array.Float64:
		appendValues(field, col, c.Value)
	case *array.String:
		appendValues(field, col, c.Value)
	case *array.LargeString:
		appendValues(field, col, c.Value)
	case *array.Boolean:
		appendValues(field, col, c.Value)
	default:
		return fmt.Errorf("unsupported arrow type %s", col.DataType())
	}
	return nil
}

func appendValues[T any](field *data.Field, col arrow.Array, value func(i int) T) {
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			field.Append((*T)(nil))
			continue
		}
		v := value(i)
		field.Append(&v)
	}
}
