package live

import (
	"fmt"
	"sync"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
)

type fieldSpec struct {
	name   string
	typ    data.FieldType
	labels data.Labels
}

// Buffer retains the rows pushed to one subscription.
// A push whose schema differs from the retained rows resets the buffer.
type Buffer struct {
	mu     sync.Mutex
	action domain.BufferAction
	name   string
	schema []fieldSpec
	rows   *Ring[[]any]
}

// NewBuffer creates a buffer for cfg. A non-positive MaxLength falls back to
// domain.DefaultBufferLength and an empty action to append.
func NewBuffer(cfg domain.BufferConfig) *Buffer {
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = domain.DefaultBufferLength
	}
	action := cfg.Action
	if action == "" {
		action = domain.BufferAppend
	}
	return &Buffer{action: action, rows: NewRing[[]any](maxLength)}
}

// Apply merges frame into the buffer and returns the number of rows retained.
func (b *Buffer) Apply(frame *data.Frame) (int, error) {
	if frame == nil {
		return b.Len(), nil
	}
	rowLen, err := frame.RowLen()
	if err != nil {
		return b.Len(), fmt.Errorf("apply frame %q: %w", frame.Name, err)
	}

	schema := schemaOf(frame)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.action == domain.BufferReplace || !sameSchema(b.schema, schema) {
		b.rows.Reset()
		b.schema = schema
		b.name = frame.Name
	}
	for i := 0; i < rowLen; i++ {
		b.rows.Push(frame.RowCopy(i))
	}
	return b.rows.Len(), nil
}

// Len returns the number of rows retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rows.Len()
}

// Cap returns the maximum number of rows retained.
func (b *Buffer) Cap() int {
	return b.rows.Cap()
}

// Snapshot copies the retained rows into a new frame, oldest first.
func (b *Buffer) Snapshot() *data.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]data.FieldType, len(b.schema))
	for i, col := range b.schema {
		types[i] = col.typ
	}
	frame := data.NewFrameOfFieldTypes(b.name, 0, types...)
	for i, col := range b.schema {
		frame.Fields[i].Name = col.name
		frame.Fields[i].Labels = col.labels
	}
	for _, row := range b.rows.Values() {
		frame.AppendRow(row...)
	}
	return frame
}

func schemaOf(frame *data.Frame) []fieldSpec {
	schema := make([]fieldSpec, len(frame.Fields))
	for i, f := range frame.Fields {
		schema[i] = fieldSpec{name: f.Name, typ: f.Type(), labels: f.Labels}
	}
	return schema
}

func sameSchema(a, b []fieldSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].name != b[i].name || a[i].typ != b[i].typ {
			return false
		}
	}
	return true
}
