package writer

import (
	"catalogflow/models"
	"catalogflow/reader"
)

// Batches encodes records into in-memory columnar batches of at most
// batchSize rows, using the same column layout as the parquet files.
func Batches[T models.Record](records []T, batchSize int) []*reader.Batch {
	if batchSize <= 0 {
		batchSize = reader.DefaultBatchSize
	}
	var zero T
	_, meta := schemaFor(zero, records)

	out := make([]*reader.Batch, 0, (len(records)+batchSize-1)/batchSize)
	for lo := 0; lo < len(records); lo += batchSize {
		hi := lo + batchSize
		if hi > len(records) {
			hi = len(records)
		}
		b := columns(records[lo:hi])
		b.Metadata = meta
		out = append(out, b)
	}
	return out
}

// MemorySource wraps Batches into a source for reader.MemoryOpener.
func MemorySource[T models.Record](records []T, batchSize int) reader.MemorySource {
	var zero T
	_, meta := schemaFor(zero, records)
	batches := Batches(records, batchSize)
	src := reader.MemorySource{Metadata: meta, Batches: batches}
	if len(batches) == 0 {
		src.Schema = columns([]T{}).Schema()
	}
	return src
}

func columns[T models.Record](records []T) *reader.Batch {
	n := len(records)
	switch any(records).(type) {
	case []models.OrderBookDelta:
		action, side, flags := make([]int32, n), make([]int32, n), make([]int32, n)
		price, size, orderID := make([]int64, n), make([]int64, n), make([]int64, n)
		sequence, tsEvent, tsInit := make([]int64, n), make([]int64, n), make([]int64, n)
		for i, rec := range records {
			row := toRow(rec).(deltaRow)
			action[i], side[i], flags[i] = row.Action, row.Side, row.Flags
			price[i], size[i], orderID[i] = row.Price, row.Size, row.OrderID
			sequence[i], tsEvent[i], tsInit[i] = row.Sequence, row.TsEvent, row.TsInit
		}
		return &reader.Batch{Columns: []reader.Column{
			reader.Int32Column("action", action),
			reader.Int32Column("side", side),
			reader.Int64Column("price", price),
			reader.Int64Column("size", size),
			reader.Int64Column("order_id", orderID),
			reader.Int32Column("flags", flags),
			reader.Int64Column("sequence", sequence),
			reader.Int64Column("ts_event", tsEvent),
			reader.Int64Column("ts_init", tsInit),
		}}
	case []models.QuoteTick:
		bidPrice, askPrice, bidSize := make([]int64, n), make([]int64, n), make([]int64, n)
		askSize, tsEvent, tsInit := make([]int64, n), make([]int64, n), make([]int64, n)
		for i, rec := range records {
			row := toRow(rec).(quoteRow)
			bidPrice[i], askPrice[i], bidSize[i] = row.BidPrice, row.AskPrice, row.BidSize
			askSize[i], tsEvent[i], tsInit[i] = row.AskSize, row.TsEvent, row.TsInit
		}
		return &reader.Batch{Columns: []reader.Column{
			reader.Int64Column("bid_price", bidPrice),
			reader.Int64Column("ask_price", askPrice),
			reader.Int64Column("bid_size", bidSize),
			reader.Int64Column("ask_size", askSize),
			reader.Int64Column("ts_event", tsEvent),
			reader.Int64Column("ts_init", tsInit),
		}}
	case []models.TradeTick:
		price, size := make([]int64, n), make([]int64, n)
		aggressor, tradeID := make([]int32, n), make([]string, n)
		tsEvent, tsInit := make([]int64, n), make([]int64, n)
		for i, rec := range records {
			row := toRow(rec).(tradeRow)
			price[i], size[i] = row.Price, row.Size
			aggressor[i], tradeID[i] = row.AggressorSide, row.TradeID
			tsEvent[i], tsInit[i] = row.TsEvent, row.TsInit
		}
		return &reader.Batch{Columns: []reader.Column{
			reader.Int64Column("price", price),
			reader.Int64Column("size", size),
			reader.Int32Column("aggressor_side", aggressor),
			reader.StringColumn("trade_id", tradeID),
			reader.Int64Column("ts_event", tsEvent),
			reader.Int64Column("ts_init", tsInit),
		}}
	default:
		open, high, low, closeP := make([]int64, n), make([]int64, n), make([]int64, n), make([]int64, n)
		volume, tsEvent, tsInit := make([]int64, n), make([]int64, n), make([]int64, n)
		for i, rec := range records {
			row := toRow(rec).(barRow)
			open[i], high[i], low[i], closeP[i] = row.Open, row.High, row.Low, row.Close
			volume[i], tsEvent[i], tsInit[i] = row.Volume, row.TsEvent, row.TsInit
		}
		return &reader.Batch{Columns: []reader.Column{
			reader.Int64Column("open", open),
			reader.Int64Column("high", high),
			reader.Int64Column("low", low),
			reader.Int64Column("close", closeP),
			reader.Int64Column("volume", volume),
			reader.Int64Column("ts_event", tsEvent),
			reader.Int64Column("ts_init", tsInit),
		}}
	}
}
