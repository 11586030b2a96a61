package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogflow/models"
	"catalogflow/reader"
	"catalogflow/writer"
)

var eurusd = models.InstrumentID{Symbol: "EUR/USD", Venue: "SIM"}

func TestDecodeDeltasPreservesRows(t *testing.T) {
	records := writer.SampleDeltas(writer.Series{Instrument: eurusd, Start: 100, Step: 10, Count: 25})
	batches := writer.Batches(records, 100)
	require.Len(t, batches, 1)

	out, err := DecodeDeltas(batches[0], Params{}, 0)
	require.NoError(t, err)
	require.Len(t, out, len(records))
	for i := range records {
		assert.Equal(t, records[i].Init, out[i].Init)
		assert.Equal(t, records[i].Price.Raw, out[i].Price.Raw)
		assert.Equal(t, records[i].Size.Raw, out[i].Size.Raw)
		assert.Equal(t, records[i].Action, out[i].Action)
		assert.Equal(t, records[i].Side, out[i].Side)
		assert.Equal(t, eurusd, out[i].Instrument)
	}
	assert.Equal(t, uint8(2), out[0].Price.Precision)
}

func TestDecodeQuotesAndTrades(t *testing.T) {
	series := writer.Series{Instrument: eurusd, Start: 1, Step: 1, Count: 10}

	quotes := writer.SampleQuotes(series)
	q, err := DecodeQuotes(writer.Batches(quotes, 10)[0], Params{}, 0)
	require.NoError(t, err)
	assert.Equal(t, quotes[3].BidPrice.Raw, q[3].BidPrice.Raw)
	assert.Equal(t, quotes[3].AskSize.Raw, q[3].AskSize.Raw)
	assert.Equal(t, "EUR/USD.SIM", q[0].Instrument.String())

	trades := writer.SampleTrades(series)
	tr, err := DecodeTrades(writer.Batches(trades, 10)[0], Params{}, 0)
	require.NoError(t, err)
	assert.Equal(t, trades[7].TradeID, tr[7].TradeID)
	assert.Equal(t, trades[7].AggressorSide, tr[7].AggressorSide)
}

func TestDecodeBarsUsesBarType(t *testing.T) {
	id := models.InstrumentID{Symbol: "ADABTC", Venue: "BINANCE"}
	bars := writer.SampleBars(writer.Series{Instrument: id, Start: 60, Step: 60, Count: 10}, "1-MINUTE-LAST-EXTERNAL")

	out, err := DecodeBars(writer.Batches(bars, 10)[0], Params{}, 0)
	require.NoError(t, err)
	require.Len(t, out, 10)
	assert.Equal(t, "ADABTC.BINANCE", out[0].BarType.InstrumentID.String())
	assert.Equal(t, "ADABTC.BINANCE-1-MINUTE-LAST-EXTERNAL", out[0].BarType.String())
}

func TestDecodeParamsOverrideMetadata(t *testing.T) {
	trades := writer.SampleTrades(writer.Series{Instrument: eurusd, Start: 1, Step: 1, Count: 3})
	b := writer.Batches(trades, 10)[0]

	out, err := DecodeTrades(b, Params{InstrumentID: "GBP/USD.SIM", PricePrecision: Precision(3)}, 0)
	require.NoError(t, err)
	assert.Equal(t, "GBP/USD.SIM", out[0].Instrument.String())
	assert.Equal(t, uint8(3), out[0].Price.Precision)
	assert.Equal(t, uint8(0), out[0].Size.Precision)
}

func TestDecodeMissingInstrument(t *testing.T) {
	quotes := writer.SampleQuotes(writer.Series{Instrument: eurusd, Start: 1, Step: 1, Count: 2})
	b := writer.Batches(quotes, 10)[0]
	b.Metadata = nil

	_, err := DecodeQuotes(b, Params{}, 0)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestDecodeSchemaMismatch(t *testing.T) {
	quotes := writer.SampleQuotes(writer.Series{Instrument: eurusd, Start: 1, Step: 1, Count: 2})
	b := writer.Batches(quotes, 10)[0]

	_, err := DecodeTrades(b, Params{}, 0)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)

	_, err = Decode(models.KindBar, b, Params{}, 0)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestDecodeWrongColumnType(t *testing.T) {
	b := writer.Batches(writer.SampleQuotes(writer.Series{Instrument: eurusd, Count: 2}), 10)[0]
	col, ok := b.Column("ts_init")
	require.True(t, ok)
	col.Type = reader.ColumnInt32
	col.Int32s = []int32{1, 2}

	err := CheckSchema(models.KindQuoteTick, b.Schema())
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "ts_init")
}

func TestDecodeMalformedBatch(t *testing.T) {
	b := writer.Batches(writer.SampleDeltas(writer.Series{Instrument: eurusd, Count: 4}), 10)[0]
	col, _ := b.Column("price")
	col.Int64s = col.Int64s[:2]

	_, err := DecodeDeltas(b, Params{}, 0)
	require.ErrorIs(t, err, models.ErrMalformedBatch)
}

func TestDecodeInvalidActionReportsGlobalRow(t *testing.T) {
	b := writer.Batches(writer.SampleDeltas(writer.Series{Instrument: eurusd, Count: 4}), 10)[0]
	col, _ := b.Column("action")
	col.Int32s[2] = 9

	_, err := DecodeDeltas(b, Params{}, 500)
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Contains(t, err.Error(), "row 502")
}

func TestDecodeDispatchWrapsData(t *testing.T) {
	bars := writer.SampleBars(writer.Series{Instrument: eurusd, Start: 5, Step: 5, Count: 3}, "5-SECOND-MID-INTERNAL")
	data, err := Decode(models.KindBar, writer.Batches(bars, 10)[0], Params{}, 0)
	require.NoError(t, err)
	require.Len(t, data, 3)
	for i, d := range data {
		assert.Equal(t, models.KindBar, d.Kind())
		assert.Equal(t, bars[i].Init, d.TsInit())
	}

	_, err = For(models.KindUnknown)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestValidateParams(t *testing.T) {
	require.NoError(t, ValidateParams(models.KindBar, Params{BarType: "ADABTC.BINANCE-1-MINUTE-LAST-EXTERNAL"}))
	require.ErrorIs(t, ValidateParams(models.KindTradeTick, Params{BarType: "ADABTC.BINANCE-1-MINUTE-LAST-EXTERNAL"}), models.ErrSchemaMismatch)
	require.ErrorIs(t, ValidateParams(models.KindTradeTick, Params{InstrumentID: "nope"}), models.ErrSchemaMismatch)
	require.ErrorIs(t, ValidateParams(models.KindTradeTick, Params{SizePrecision: Precision(12)}), models.ErrSchemaMismatch)
	assert.True(t, Params{}.IsZero())
}

func TestDecodeRejectsNegativeUnsignedValues(t *testing.T) {
	quotes := writer.SampleQuotes(writer.Series{Instrument: eurusd, Start: 1, Step: 1, Count: 4})
	b := writer.Batches(quotes, 10)[0]
	bidSize, _ := b.Column("bid_size")
	bidSize.Int64s[2] = -5

	_, err := DecodeQuotes(b, Params{}, 100)
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Contains(t, err.Error(), "row 102")
	assert.Contains(t, err.Error(), "bid_size")

	bidSize.Int64s[2] = 5
	tsInit, _ := b.Column("ts_init")
	tsInit.Int64s[1] = -1
	_, err = Decode(models.KindQuoteTick, b, Params{}, 0)
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Contains(t, err.Error(), "negative ts_init")

	bars := writer.Batches(writer.SampleBars(writer.Series{Instrument: eurusd, Start: 60, Step: 60, Count: 2}, "1-MINUTE-LAST-EXTERNAL"), 10)[0]
	volume, _ := bars.Column("volume")
	volume.Int64s[0] = -10
	_, err = DecodeBars(bars, Params{}, 0)
	require.ErrorIs(t, err, models.ErrMalformedBatch)

	deltas := writer.Batches(writer.SampleDeltas(writer.Series{Instrument: eurusd, Count: 2}), 10)[0]
	sequence, _ := deltas.Column("sequence")
	sequence.Int64s[1] = -3
	_, err = DecodeDeltas(deltas, Params{}, 0)
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Contains(t, err.Error(), "row 1")
}

func TestCheckSource(t *testing.T) {
	meta := map[string]string{MetaInstrumentID: "EUR/USD.SIM", MetaPricePrecision: "5"}
	require.NoError(t, CheckSource(models.KindQuoteTick, Params{}, meta))
	require.NoError(t, CheckSource(models.KindQuoteTick, Params{InstrumentID: "EUR/USD.SIM"}, nil))

	require.ErrorIs(t, CheckSource(models.KindQuoteTick, Params{}, nil), models.ErrSchemaMismatch)
	require.ErrorIs(t, CheckSource(models.KindBar, Params{}, meta), models.ErrSchemaMismatch)
	require.ErrorIs(t, CheckSource(models.KindTradeTick, Params{}, map[string]string{
		MetaInstrumentID:  "EUR/USD.SIM",
		MetaSizePrecision: "x",
	}), models.ErrSchemaMismatch)
}
