package decoder

import (
	"fmt"

	"catalogflow/models"
	"catalogflow/reader"
)

var (
	deltaSchema = reader.Schema{
		{Name: "action", Type: reader.ColumnInt32},
		{Name: "side", Type: reader.ColumnInt32},
		{Name: "price", Type: reader.ColumnInt64},
		{Name: "size", Type: reader.ColumnInt64},
		{Name: "order_id", Type: reader.ColumnInt64},
		{Name: "flags", Type: reader.ColumnInt32},
		{Name: "sequence", Type: reader.ColumnInt64},
		{Name: "ts_event", Type: reader.ColumnInt64},
		{Name: "ts_init", Type: reader.ColumnInt64},
	}
	quoteSchema = reader.Schema{
		{Name: "bid_price", Type: reader.ColumnInt64},
		{Name: "ask_price", Type: reader.ColumnInt64},
		{Name: "bid_size", Type: reader.ColumnInt64},
		{Name: "ask_size", Type: reader.ColumnInt64},
		{Name: "ts_event", Type: reader.ColumnInt64},
		{Name: "ts_init", Type: reader.ColumnInt64},
	}
	tradeSchema = reader.Schema{
		{Name: "price", Type: reader.ColumnInt64},
		{Name: "size", Type: reader.ColumnInt64},
		{Name: "aggressor_side", Type: reader.ColumnInt32},
		{Name: "trade_id", Type: reader.ColumnString},
		{Name: "ts_event", Type: reader.ColumnInt64},
		{Name: "ts_init", Type: reader.ColumnInt64},
	}
	barSchema = reader.Schema{
		{Name: "open", Type: reader.ColumnInt64},
		{Name: "high", Type: reader.ColumnInt64},
		{Name: "low", Type: reader.ColumnInt64},
		{Name: "close", Type: reader.ColumnInt64},
		{Name: "volume", Type: reader.ColumnInt64},
		{Name: "ts_event", Type: reader.ColumnInt64},
		{Name: "ts_init", Type: reader.ColumnInt64},
	}
)

// ExpectedSchema returns the columns a source of kind must provide.
func ExpectedSchema(kind models.Kind) (reader.Schema, error) {
	var s reader.Schema
	switch kind {
	case models.KindOrderBookDelta:
		s = deltaSchema
	case models.KindQuoteTick:
		s = quoteSchema
	case models.KindTradeTick:
		s = tradeSchema
	case models.KindBar:
		s = barSchema
	default:
		return nil, fmt.Errorf("%w: unknown record kind %d", models.ErrSchemaMismatch, kind)
	}
	out := make(reader.Schema, len(s))
	copy(out, s)
	return out, nil
}

// CheckSchema verifies that schema carries every column kind needs, with the
// expected physical type. Column order is irrelevant and extra columns are
// ignored.
func CheckSchema(kind models.Kind, schema reader.Schema) error {
	expected, err := ExpectedSchema(kind)
	if err != nil {
		return err
	}
	for _, want := range expected {
		got, ok := schema.Lookup(want.Name)
		if !ok {
			return fmt.Errorf("%w: %s source is missing column %q (have %s)", models.ErrSchemaMismatch, kind, want.Name, schema)
		}
		if got.Type != want.Type {
			return fmt.Errorf("%w: %s column %q is %s, expected %s", models.ErrSchemaMismatch, kind, want.Name, got.Type, want.Type)
		}
	}
	return nil
}
