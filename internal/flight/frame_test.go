package flight

import (
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "time", Type: &arrow.TimestampType{Unit: arrow.Millisecond}, Nullable: true},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "count", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "seq", Type: arrow.PrimitiveTypes.Uint16, Nullable: true},
	{Name: "host", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "up", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
}, nil)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// buildRecord returns a record of n rows starting at start; every third value column is null.
func buildRecord(t *testing.T, start, n int) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), testSchema)
	defer b.Release()

	for i := start; i < start+n; i++ {
		ts := epoch.Add(time.Duration(i) * time.Second).UnixMilli()
		b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(ts))
		if i%3 == 2 {
			b.Field(1).(*array.Float64Builder).AppendNull()
		} else {
			b.Field(1).(*array.Float64Builder).Append(float64(i) / 2)
		}
		b.Field(2).(*array.Int32Builder).Append(int32(i))
		b.Field(3).(*array.Uint16Builder).Append(uint16(i))
		b.Field(4).(*array.StringBuilder).Append("node-1")
		b.Field(5).(*array.BooleanBuilder).Append(i%2 == 0)
	}
	return b.NewRecord()
}

type sliceReader struct {
	records []arrow.Record
	cur     arrow.Record
	err     error
}

func (r *sliceReader) Schema() *arrow.Schema { return testSchema }

func (r *sliceReader) Next() bool {
	if len(r.records) == 0 {
		return false
	}
	r.cur, r.records = r.records[0], r.records[1:]
	return true
}

func (r *sliceReader) Record() arrow.Record { return r.cur }

func (r *sliceReader) Err() error { return r.err }

func TestFrameFromRecords_ConcatenatesBatches(t *testing.T) {
	r := &sliceReader{records: []arrow.Record{buildRecord(t, 0, 2), buildRecord(t, 2, 2)}}

	frame, err := frameFromRecords("orcastream", r)
	require.NoError(t, err)
	require.NotNil(t, frame)

	assert.Equal(t, "orcastream", frame.Name)
	assert.Equal(t, 4, frame.Rows())
	require.Len(t, frame.Fields, 6)

	assert.Equal(t, data.FieldTypeNullableTime, frame.Fields[0].Type())
	assert.Equal(t, data.FieldTypeNullableFloat64, frame.Fields[1].Type())
	assert.Equal(t, data.FieldTypeNullableInt64, frame.Fields[2].Type())
	assert.Equal(t, data.FieldTypeNullableUint64, frame.Fields[3].Type())
	assert.Equal(t, data.FieldTypeNullableString, frame.Fields[4].Type())
	assert.Equal(t, data.FieldTypeNullableBool, frame.Fields[5].Type())

	ts := frame.Fields[0].At(3).(*time.Time)
	assert.True(t, epoch.Add(3*time.Second).Equal(*ts))
	assert.Equal(t, 1.5, *frame.Fields[1].At(3).(*float64))
	assert.Equal(t, int64(3), *frame.Fields[2].At(3).(*int64))
	assert.Equal(t, uint64(3), *frame.Fields[3].At(3).(*uint64))
	assert.Equal(t, "node-1", *frame.Fields[4].At(3).(*string))
	assert.False(t, *frame.Fields[5].At(3).(*bool))
}

func TestFrameFromRecords_PreservesNulls(t *testing.T) {
	frame, err := frameFromRecords("orcastream", &sliceReader{records: []arrow.Record{buildRecord(t, 0, 3)}})
	require.NoError(t, err)

	assert.Nil(t, frame.Fields[1].At(2))
	assert.NotNil(t, frame.Fields[1].At(1))
}

func TestFrameFromRecords_NoBatches(t *testing.T) {
	frame, err := frameFromRecords("orcastream", &sliceReader{})
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestFrameFromRecords_EmptyBatch(t *testing.T) {
	frame, err := frameFromRecords("orcastream", &sliceReader{records: []arrow.Record{buildRecord(t, 0, 0)}})
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 0, frame.Rows())
}

func TestFieldTypeFor_Unsupported(t *testing.T) {
	_, err := fieldTypeFor(arrow.BinaryTypes.Binary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported arrow type")
}
