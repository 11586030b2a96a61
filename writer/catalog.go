package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"catalogflow/logger"
	"catalogflow/models"
)

// Row schemas for the catalog layout. Unsigned values are stored in signed
// physical columns and reinterpreted on read. Identifiers live in the file's
// key-value metadata rather than in every row.

type deltaRow struct {
	Action   int32 `parquet:"name=action, type=INT32"`
	Side     int32 `parquet:"name=side, type=INT32"`
	Price    int64 `parquet:"name=price, type=INT64"`
	Size     int64 `parquet:"name=size, type=INT64"`
	OrderID  int64 `parquet:"name=order_id, type=INT64"`
	Flags    int32 `parquet:"name=flags, type=INT32"`
	Sequence int64 `parquet:"name=sequence, type=INT64"`
	TsEvent  int64 `parquet:"name=ts_event, type=INT64"`
	TsInit   int64 `parquet:"name=ts_init, type=INT64"`
}

type quoteRow struct {
	BidPrice int64 `parquet:"name=bid_price, type=INT64"`
	AskPrice int64 `parquet:"name=ask_price, type=INT64"`
	BidSize  int64 `parquet:"name=bid_size, type=INT64"`
	AskSize  int64 `parquet:"name=ask_size, type=INT64"`
	TsEvent  int64 `parquet:"name=ts_event, type=INT64"`
	TsInit   int64 `parquet:"name=ts_init, type=INT64"`
}

type tradeRow struct {
	Price         int64  `parquet:"name=price, type=INT64"`
	Size          int64  `parquet:"name=size, type=INT64"`
	AggressorSide int32  `parquet:"name=aggressor_side, type=INT32"`
	TradeID       string `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TsEvent       int64  `parquet:"name=ts_event, type=INT64"`
	TsInit        int64  `parquet:"name=ts_init, type=INT64"`
}

type barRow struct {
	Open    int64 `parquet:"name=open, type=INT64"`
	High    int64 `parquet:"name=high, type=INT64"`
	Low     int64 `parquet:"name=low, type=INT64"`
	Close   int64 `parquet:"name=close, type=INT64"`
	Volume  int64 `parquet:"name=volume, type=INT64"`
	TsEvent int64 `parquet:"name=ts_event, type=INT64"`
	TsInit  int64 `parquet:"name=ts_init, type=INT64"`
}

// Metadata keys written to the parquet footer.
const (
	MetaInstrumentID   = "instrument_id"
	MetaBarType        = "bar_type"
	MetaPricePrecision = "price_precision"
	MetaSizePrecision  = "size_precision"
)

// Options tunes how a catalog file is written.
type Options struct {
	// Compression is snappy, gzip or none. Empty means snappy.
	Compression string
	// Metadata is merged over the metadata derived from the records.
	Metadata map[string]string
	// Parallelism is handed to the parquet writer.
	Parallelism int64
}

// memory file writer, used to build files without touching disk
type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// WriteFile writes records of a single kind to a parquet file at path.
func WriteFile[T models.Record](path string, records []T, opts Options) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fw, records, opts); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	logger.GetLogger().WithComponent("catalog_writer").WithFields(logger.Fields{
		"path":    path,
		"records": len(records),
	}).Debug("catalog file written")
	return nil
}

// WriteBytes encodes records of a single kind as an in-memory parquet file.
func WriteBytes[T models.Record](records []T, opts Options) ([]byte, error) {
	mw := newMemFileWriter()
	if err := write(mw, records, opts); err != nil {
		return nil, err
	}
	return mw.Bytes(), nil
}

func write[T models.Record](pf source.ParquetFile, records []T, opts Options) error {
	var zero T
	schema, meta := schemaFor(zero, records)

	np := opts.Parallelism
	if np <= 0 {
		np = 4
	}
	pw, err := writer.NewParquetWriter(pf, schema, np)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}
	switch strings.ToLower(opts.Compression) {
	case "", "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "none", "uncompressed":
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	default:
		return fmt.Errorf("unsupported compression %q", opts.Compression)
	}

	for _, rec := range records {
		if err := pw.Write(toRow(rec)); err != nil {
			return err
		}
	}

	for k, v := range opts.Metadata {
		meta[k] = v
	}
	if pw.Footer != nil {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := meta[k]
			pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: k, Value: &value})
		}
	}
	return pw.WriteStop()
}

// schemaFor returns the row schema object for T and the footer metadata
// derived from the first record.
func schemaFor[T models.Record](zero T, records []T) (interface{}, map[string]string) {
	meta := make(map[string]string)
	switch any(zero).(type) {
	case models.OrderBookDelta:
		if len(records) > 0 {
			d := any(records[0]).(models.OrderBookDelta)
			meta[MetaInstrumentID] = d.Instrument.String()
			meta[MetaPricePrecision] = strconv.Itoa(int(d.Price.Precision))
			meta[MetaSizePrecision] = strconv.Itoa(int(d.Size.Precision))
		}
		return new(deltaRow), meta
	case models.QuoteTick:
		if len(records) > 0 {
			q := any(records[0]).(models.QuoteTick)
			meta[MetaInstrumentID] = q.Instrument.String()
			meta[MetaPricePrecision] = strconv.Itoa(int(q.BidPrice.Precision))
			meta[MetaSizePrecision] = strconv.Itoa(int(q.BidSize.Precision))
		}
		return new(quoteRow), meta
	case models.TradeTick:
		if len(records) > 0 {
			t := any(records[0]).(models.TradeTick)
			meta[MetaInstrumentID] = t.Instrument.String()
			meta[MetaPricePrecision] = strconv.Itoa(int(t.Price.Precision))
			meta[MetaSizePrecision] = strconv.Itoa(int(t.Size.Precision))
		}
		return new(tradeRow), meta
	default:
		if len(records) > 0 {
			b := any(records[0]).(models.Bar)
			meta[MetaBarType] = b.BarType.String()
			meta[MetaInstrumentID] = b.BarType.InstrumentID.String()
			meta[MetaPricePrecision] = strconv.Itoa(int(b.Open.Precision))
			meta[MetaSizePrecision] = strconv.Itoa(int(b.Volume.Precision))
		}
		return new(barRow), meta
	}
}

func toRow[T models.Record](rec T) interface{} {
	switch r := any(rec).(type) {
	case models.OrderBookDelta:
		return deltaRow{
			Action:   int32(r.Action),
			Side:     int32(r.Side),
			Price:    r.Price.Raw,
			Size:     int64(r.Size.Raw),
			OrderID:  int64(r.OrderID),
			Flags:    int32(r.Flags),
			Sequence: int64(r.Sequence),
			TsEvent:  int64(r.TsEvent),
			TsInit:   int64(r.Init),
		}
	case models.QuoteTick:
		return quoteRow{
			BidPrice: r.BidPrice.Raw,
			AskPrice: r.AskPrice.Raw,
			BidSize:  int64(r.BidSize.Raw),
			AskSize:  int64(r.AskSize.Raw),
			TsEvent:  int64(r.TsEvent),
			TsInit:   int64(r.Init),
		}
	case models.TradeTick:
		return tradeRow{
			Price:         r.Price.Raw,
			Size:          int64(r.Size.Raw),
			AggressorSide: int32(r.AggressorSide),
			TradeID:       r.TradeID,
			TsEvent:       int64(r.TsEvent),
			TsInit:        int64(r.Init),
		}
	case models.Bar:
		return barRow{
			Open:    r.Open.Raw,
			High:    r.High.Raw,
			Low:     r.Low.Raw,
			Close:   r.Close.Raw,
			Volume:  int64(r.Volume.Raw),
			TsEvent: int64(r.TsEvent),
			TsInit:  int64(r.Init),
		}
	default:
		return nil
	}
}
