package reader

import (
	"fmt"
	"strings"

	"catalogflow/models"
)

// ColumnType is the physical type of a column vector.
type ColumnType uint8

const (
	ColumnUnknown ColumnType = iota
	ColumnInt64
	ColumnInt32
	ColumnString
	ColumnFloat64
	ColumnBool
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInt64:
		return "int64"
	case ColumnInt32:
		return "int32"
	case ColumnString:
		return "string"
	case ColumnFloat64:
		return "float64"
	case ColumnBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Field describes one column of a source schema.
type Field struct {
	Name string
	Type ColumnType
}

// Schema is the ordered list of columns in a source.
type Schema []Field

// Lookup returns the field with the given name, ignoring case.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Column is one typed vector of a batch. Only the slice matching Type is
// populated.
type Column struct {
	Name     string
	Type     ColumnType
	Int64s   []int64
	Int32s   []int32
	Strings  []string
	Float64s []float64
	Bools    []bool
}

// Len returns the number of values in the populated vector.
func (c *Column) Len() int {
	switch c.Type {
	case ColumnInt64:
		return len(c.Int64s)
	case ColumnInt32:
		return len(c.Int32s)
	case ColumnString:
		return len(c.Strings)
	case ColumnFloat64:
		return len(c.Float64s)
	case ColumnBool:
		return len(c.Bools)
	default:
		return 0
	}
}

func Int64Column(name string, values []int64) Column {
	return Column{Name: name, Type: ColumnInt64, Int64s: values}
}

func Int32Column(name string, values []int32) Column {
	return Column{Name: name, Type: ColumnInt32, Int32s: values}
}

func StringColumn(name string, values []string) Column {
	return Column{Name: name, Type: ColumnString, Strings: values}
}

// Batch is a length-bounded group of same-length columns read from a source.
type Batch struct {
	Columns  []Column
	Metadata map[string]string
}

// Len returns the row count, taken from the first column.
func (b *Batch) Len() int {
	if b == nil || len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// Column returns the column with the given name, ignoring case.
func (b *Batch) Column(name string) (*Column, bool) {
	for i := range b.Columns {
		if strings.EqualFold(b.Columns[i].Name, name) {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// Schema derives the schema of the batch from its columns.
func (b *Batch) Schema() Schema {
	s := make(Schema, len(b.Columns))
	for i, c := range b.Columns {
		s[i] = Field{Name: c.Name, Type: c.Type}
	}
	return s
}

// Validate checks that every column holds the same number of values.
func (b *Batch) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil batch", models.ErrMalformedBatch)
	}
	n := b.Len()
	for _, c := range b.Columns {
		if c.Len() != n {
			return fmt.Errorf("%w: column %q has %d values, expected %d", models.ErrMalformedBatch, c.Name, c.Len(), n)
		}
	}
	return nil
}
