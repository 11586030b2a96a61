// Package decoder maps columnar batches onto typed market-data records.
//
// Each decoder is a pure function of its batch: it checks the batch against
// the expected schema for its kind, produces one record per row in row
// order, and keeps no reference to the batch once it returns. Ordering and
// merging are left to the callers.
package decoder

import (
	"fmt"

	"catalogflow/models"
	"catalogflow/reader"
)

// Func decodes one batch into Data values. start is the global index of the
// batch's first row in its source, used to locate errors.
type Func func(b *reader.Batch, p Params, start int) ([]models.Data, error)

// For returns the decoder for kind.
func For(kind models.Kind) (Func, error) {
	switch kind {
	case models.KindOrderBookDelta:
		return wrap(DecodeDeltas), nil
	case models.KindQuoteTick:
		return wrap(DecodeQuotes), nil
	case models.KindTradeTick:
		return wrap(DecodeTrades), nil
	case models.KindBar:
		return wrap(DecodeBars), nil
	default:
		return nil, fmt.Errorf("%w: no decoder for kind %s", models.ErrSchemaMismatch, kind)
	}
}

// Decode decodes b as records of kind.
func Decode(kind models.Kind, b *reader.Batch, p Params, start int) ([]models.Data, error) {
	fn, err := For(kind)
	if err != nil {
		return nil, err
	}
	return fn(b, p, start)
}

func wrap[T models.Record](fn func(*reader.Batch, Params, int) ([]T, error)) Func {
	return func(b *reader.Batch, p Params, start int) ([]models.Data, error) {
		records, err := fn(b, p, start)
		if err != nil {
			return nil, err
		}
		return models.FromRecords(records), nil
	}
}

func prepare(kind models.Kind, b *reader.Batch, p Params) (resolved, error) {
	if b == nil {
		return resolved{}, fmt.Errorf("%w: nil batch", models.ErrMalformedBatch)
	}
	if err := CheckSchema(kind, b.Schema()); err != nil {
		return resolved{}, err
	}
	if err := b.Validate(); err != nil {
		return resolved{}, err
	}
	return resolve(kind, p, b.Metadata)
}

func int64s(b *reader.Batch, name string) []int64 {
	c, _ := b.Column(name)
	return c.Int64s
}

func int32s(b *reader.Batch, name string) []int32 {
	c, _ := b.Column(name)
	return c.Int32s
}

func rowError(kind models.Kind, row int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s row %d: %s", models.ErrMalformedBatch, kind, row, fmt.Sprintf(format, args...))
}

type int64Column struct {
	name   string
	values []int64
}

// checkUnsigned rejects negative values in columns that hold unsigned
// fields. The lowest offending row is reported.
func checkUnsigned(kind models.Kind, start int, cols ...int64Column) error {
	if len(cols) == 0 {
		return nil
	}
	for i := range cols[0].values {
		for _, c := range cols {
			if c.values[i] < 0 {
				return rowError(kind, start+i, "negative %s %d", c.name, c.values[i])
			}
		}
	}
	return nil
}

// DecodeDeltas decodes an order book delta batch.
func DecodeDeltas(b *reader.Batch, p Params, start int) ([]models.OrderBookDelta, error) {
	r, err := prepare(models.KindOrderBookDelta, b, p)
	if err != nil {
		return nil, err
	}
	var (
		action   = int32s(b, "action")
		side     = int32s(b, "side")
		price    = int64s(b, "price")
		size     = int64s(b, "size")
		orderID  = int64s(b, "order_id")
		flags    = int32s(b, "flags")
		sequence = int64s(b, "sequence")
		tsEvent  = int64s(b, "ts_event")
		tsInit   = int64s(b, "ts_init")
	)
	if err := checkUnsigned(models.KindOrderBookDelta, start,
		int64Column{"size", size}, int64Column{"order_id", orderID}, int64Column{"sequence", sequence},
		int64Column{"ts_event", tsEvent}, int64Column{"ts_init", tsInit},
	); err != nil {
		return nil, err
	}

	out := make([]models.OrderBookDelta, b.Len())
	for i := range out {
		if action[i] < int32(models.BookActionAdd) || action[i] > int32(models.BookActionClear) {
			return nil, rowError(models.KindOrderBookDelta, start+i, "invalid action %d", action[i])
		}
		if side[i] < int32(models.OrderSideNone) || side[i] > int32(models.OrderSideSell) {
			return nil, rowError(models.KindOrderBookDelta, start+i, "invalid side %d", side[i])
		}
		if flags[i] < 0 || flags[i] > 0xff {
			return nil, rowError(models.KindOrderBookDelta, start+i, "flags %d out of range", flags[i])
		}
		out[i] = models.OrderBookDelta{
			Instrument: r.instrument,
			Action:     models.BookAction(action[i]),
			Side:       models.OrderSide(side[i]),
			Price:      models.Price{Raw: price[i], Precision: r.pricePrec},
			Size:       models.Quantity{Raw: uint64(size[i]), Precision: r.sizePrec},
			OrderID:    uint64(orderID[i]),
			Flags:      uint8(flags[i]),
			Sequence:   uint64(sequence[i]),
			TsEvent:    uint64(tsEvent[i]),
			Init:       uint64(tsInit[i]),
		}
	}
	return out, nil
}

// DecodeQuotes decodes a quote tick batch.
func DecodeQuotes(b *reader.Batch, p Params, start int) ([]models.QuoteTick, error) {
	r, err := prepare(models.KindQuoteTick, b, p)
	if err != nil {
		return nil, err
	}
	var (
		bidPrice = int64s(b, "bid_price")
		askPrice = int64s(b, "ask_price")
		bidSize  = int64s(b, "bid_size")
		askSize  = int64s(b, "ask_size")
		tsEvent  = int64s(b, "ts_event")
		tsInit   = int64s(b, "ts_init")
	)
	if err := checkUnsigned(models.KindQuoteTick, start,
		int64Column{"bid_size", bidSize}, int64Column{"ask_size", askSize},
		int64Column{"ts_event", tsEvent}, int64Column{"ts_init", tsInit},
	); err != nil {
		return nil, err
	}

	out := make([]models.QuoteTick, b.Len())
	for i := range out {
		out[i] = models.QuoteTick{
			Instrument: r.instrument,
			BidPrice:   models.Price{Raw: bidPrice[i], Precision: r.pricePrec},
			AskPrice:   models.Price{Raw: askPrice[i], Precision: r.pricePrec},
			BidSize:    models.Quantity{Raw: uint64(bidSize[i]), Precision: r.sizePrec},
			AskSize:    models.Quantity{Raw: uint64(askSize[i]), Precision: r.sizePrec},
			TsEvent:    uint64(tsEvent[i]),
			Init:       uint64(tsInit[i]),
		}
	}
	return out, nil
}

// DecodeTrades decodes a trade tick batch.
func DecodeTrades(b *reader.Batch, p Params, start int) ([]models.TradeTick, error) {
	r, err := prepare(models.KindTradeTick, b, p)
	if err != nil {
		return nil, err
	}
	tradeIDCol, _ := b.Column("trade_id")
	var (
		price     = int64s(b, "price")
		size      = int64s(b, "size")
		aggressor = int32s(b, "aggressor_side")
		tradeID   = tradeIDCol.Strings
		tsEvent   = int64s(b, "ts_event")
		tsInit    = int64s(b, "ts_init")
	)
	if err := checkUnsigned(models.KindTradeTick, start,
		int64Column{"size", size}, int64Column{"ts_event", tsEvent}, int64Column{"ts_init", tsInit},
	); err != nil {
		return nil, err
	}

	out := make([]models.TradeTick, b.Len())
	for i := range out {
		if aggressor[i] < int32(models.AggressorSideNone) || aggressor[i] > int32(models.AggressorSideSeller) {
			return nil, rowError(models.KindTradeTick, start+i, "invalid aggressor side %d", aggressor[i])
		}
		out[i] = models.TradeTick{
			Instrument:    r.instrument,
			Price:         models.Price{Raw: price[i], Precision: r.pricePrec},
			Size:          models.Quantity{Raw: uint64(size[i]), Precision: r.sizePrec},
			AggressorSide: models.AggressorSide(aggressor[i]),
			TradeID:       tradeID[i],
			TsEvent:       uint64(tsEvent[i]),
			Init:          uint64(tsInit[i]),
		}
	}
	return out, nil
}

// DecodeBars decodes a bar batch.
func DecodeBars(b *reader.Batch, p Params, start int) ([]models.Bar, error) {
	r, err := prepare(models.KindBar, b, p)
	if err != nil {
		return nil, err
	}
	var (
		open    = int64s(b, "open")
		high    = int64s(b, "high")
		low     = int64s(b, "low")
		closeP  = int64s(b, "close")
		volume  = int64s(b, "volume")
		tsEvent = int64s(b, "ts_event")
		tsInit  = int64s(b, "ts_init")
	)
	if err := checkUnsigned(models.KindBar, start,
		int64Column{"volume", volume}, int64Column{"ts_event", tsEvent}, int64Column{"ts_init", tsInit},
	); err != nil {
		return nil, err
	}

	out := make([]models.Bar, b.Len())
	for i := range out {
		if low[i] > high[i] {
			return nil, rowError(models.KindBar, start+i, "low %d above high %d", low[i], high[i])
		}
		out[i] = models.Bar{
			BarType: r.barType,
			Open:    models.Price{Raw: open[i], Precision: r.pricePrec},
			High:    models.Price{Raw: high[i], Precision: r.pricePrec},
			Low:     models.Price{Raw: low[i], Precision: r.pricePrec},
			Close:   models.Price{Raw: closeP[i], Precision: r.pricePrec},
			Volume:  models.Quantity{Raw: uint64(volume[i]), Precision: r.sizePrec},
			TsEvent: uint64(tsEvent[i]),
			Init:    uint64(tsInit[i]),
		}
	}
	return out, nil
}
