package live

import (
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// sampleFrame builds a time/value frame whose values run from first to first+n-1.
func sampleFrame(name string, first, n int) *data.Frame {
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = epoch.Add(time.Duration(first+i) * time.Second)
		values[i] = float64(first + i)
	}
	return data.NewFrame(name,
		data.NewField("time", nil, times),
		data.NewField("value", nil, values),
	)
}

func valuesOf(t *testing.T, frame *data.Frame) []float64 {
	t.Helper()
	field, idx := frame.FieldByName("value")
	require.GreaterOrEqual(t, idx, 0)
	out := make([]float64, field.Len())
	for i := range out {
		out[i] = field.At(i).(float64)
	}
	return out
}

func TestBuffer_DefaultConfig(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{})

	assert.Equal(t, domain.DefaultBufferLength, b.Cap())
	assert.Equal(t, domain.BufferAppend, b.action)
}

func TestBuffer_AppendAccumulates(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{MaxLength: 10, Action: domain.BufferAppend})

	n, err := b.Apply(sampleFrame("s", 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.Apply(sampleFrame("s", 3, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, valuesOf(t, b.Snapshot()))
}

func TestBuffer_CapacityEvictsOldest(t *testing.T) {
	b := NewBuffer(domain.DefaultBufferConfig())

	n, err := b.Apply(sampleFrame("s", 0, domain.DefaultBufferLength))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBufferLength, n)

	n, err = b.Apply(sampleFrame("s", domain.DefaultBufferLength, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBufferLength, n)

	values := valuesOf(t, b.Snapshot())
	require.Len(t, values, domain.DefaultBufferLength)
	assert.Equal(t, 1.0, values[0], "oldest sample should be evicted")
	assert.Equal(t, float64(domain.DefaultBufferLength), values[len(values)-1])
}

func TestBuffer_ReplaceKeepsLatestPush(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{MaxLength: 10, Action: domain.BufferReplace})

	_, err := b.Apply(sampleFrame("s", 0, 4))
	require.NoError(t, err)
	n, err := b.Apply(sampleFrame("s", 100, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{100, 101}, valuesOf(t, b.Snapshot()))
}

func TestBuffer_SchemaChangeResets(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{MaxLength: 10})

	_, err := b.Apply(sampleFrame("s", 0, 4))
	require.NoError(t, err)

	other := data.NewFrame("s",
		data.NewField("time", nil, []time.Time{epoch}),
		data.NewField("label", nil, []string{"x"}),
	)
	n, err := b.Apply(other)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap := b.Snapshot()
	require.Len(t, snap.Fields, 2)
	assert.Equal(t, "label", snap.Fields[1].Name)
}

func TestBuffer_NilFrameIsNoop(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{MaxLength: 5})
	_, err := b.Apply(sampleFrame("s", 0, 2))
	require.NoError(t, err)

	n, err := b.Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBuffer_SnapshotIsCopy(t *testing.T) {
	b := NewBuffer(domain.BufferConfig{MaxLength: 5})
	_, err := b.Apply(sampleFrame("s", 0, 2))
	require.NoError(t, err)

	snap := b.Snapshot()
	_, err = b.Apply(sampleFrame("s", 2, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Rows())
	assert.Equal(t, "s", snap.Name)
}
