package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogflow/decoder"
	"catalogflow/metrics"
	"catalogflow/models"
	"catalogflow/reader"
	"catalogflow/writer"
)

var (
	audusd = models.InstrumentID{Symbol: "AUD/USD", Venue: "SIM"}
	ethusd = models.InstrumentID{Symbol: "ETHUSDT", Venue: "BINANCE"}
	adabtc = models.InstrumentID{Symbol: "ADABTC", Venue: "BINANCE"}
)

// catalog mirrors the four sample files of a small catalog.
type catalog struct {
	deltas []models.OrderBookDelta
	quotes []models.QuoteTick
	trades []models.TradeTick
	bars   []models.Bar
	opener *reader.MemoryOpener
}

func newCatalog(batchSize int) *catalog {
	c := &catalog{
		deltas: writer.SampleDeltas(writer.Series{Instrument: ethusd, Start: 1_000, Step: 7, Count: 1077}),
		quotes: writer.SampleQuotes(writer.Series{Instrument: audusd, Start: 1_000, Step: 1, Count: 9500}),
		trades: writer.SampleTrades(writer.Series{Instrument: ethusd, Start: 1_003, Step: 50, Count: 100}),
		bars:   writer.SampleBars(writer.Series{Instrument: adabtc, Start: 1_000, Step: 600, Count: 10}, "1-MINUTE-LAST-EXTERNAL"),
		opener: reader.NewMemoryOpener(),
	}
	c.opener.Add("mem://deltas", writer.MemorySource(c.deltas, batchSize))
	c.opener.Add("mem://quotes", writer.MemorySource(c.quotes, batchSize))
	c.opener.Add("mem://trades", writer.MemorySource(c.trades, batchSize))
	c.opener.Add("mem://bars", writer.MemorySource(c.bars, batchSize))
	return c
}

func newSession(t *testing.T, chunkSize int, opts ...Option) *Session {
	t.Helper()
	s, err := New(chunkSize, opts...)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, q *QueryResult) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		c, err := q.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

func flatten(chunks []Chunk) []models.Data {
	var out []models.Data
	for _, c := range chunks {
		out = append(out, c.Data()...)
	}
	return out
}

func TestNewRejectsChunkSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New(size)
		assert.ErrorIs(t, err, models.ErrInvalidChunkSize)
	}
}

func TestDeltaFileChunking(t *testing.T) {
	c := newCatalog(100)

	small := newSession(t, 1000, WithOpener(c.opener))
	require.NoError(t, small.RegisterDefault(context.Background(), "delta_001", "mem://deltas", models.KindOrderBookDelta))
	q, err := small.QueryResult(context.Background())
	require.NoError(t, err)
	chunks := collect(t, q)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, chunks[0].Len())
	assert.Equal(t, 77, chunks[1].Len())

	big := newSession(t, 2000, WithOpener(c.opener))
	require.NoError(t, big.RegisterDefault(context.Background(), "delta_001", "mem://deltas", models.KindOrderBookDelta))
	q2, err := big.QueryResult(context.Background())
	require.NoError(t, err)
	one := collect(t, q2)
	require.Len(t, one, 1)
	assert.Equal(t, 1077, one[0].Len())

	assert.Equal(t, flatten(chunks), one[0].Data())
	assert.Equal(t, models.FromRecords(c.deltas), one[0].Data())
	assert.Equal(t, Stats{Chunks: 2, Rows: 1077}, q.Stats())
}

func TestChunkSizeIndependence(t *testing.T) {
	var reference []models.Data
	for _, size := range []int{1, 7, 100, 1000, 5000, 20000} {
		c := newCatalog(256)
		s := newSession(t, size, WithOpener(c.opener), WithPrefetch(2))
		ctx := context.Background()
		require.NoError(t, s.RegisterDefault(ctx, "deltas", "mem://deltas", models.KindOrderBookDelta))
		require.NoError(t, s.RegisterDefault(ctx, "quotes", "mem://quotes", models.KindQuoteTick))
		require.NoError(t, s.RegisterDefault(ctx, "trades", "mem://trades", models.KindTradeTick))
		require.NoError(t, s.RegisterDefault(ctx, "bars", "mem://bars", models.KindBar))

		q, err := s.QueryResult(ctx)
		require.NoError(t, err)
		chunks := collect(t, q)
		for i, ch := range chunks {
			if i < len(chunks)-1 {
				assert.Equal(t, size, ch.Len(), "size %d chunk %d", size, i)
			}
		}
		out := flatten(chunks)
		require.Len(t, out, 1077+9500+100+10)
		assert.True(t, models.IsMonotonicallyIncreasingByInit(out), "size %d", size)

		if reference == nil {
			reference = out
			continue
		}
		assert.Equal(t, reference, out, "size %d", size)
	}
}

func TestSingleSourcePassThrough(t *testing.T) {
	c := newCatalog(33)
	s := newSession(t, 40, WithOpener(c.opener))
	require.NoError(t, s.RegisterDefault(context.Background(), "trades", "mem://trades", models.KindTradeTick))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)

	out, err := q.Flatten(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FromRecords(c.trades), out)
}

func TestMultiSourceInterleave(t *testing.T) {
	opener := reader.NewMemoryOpener()
	quotes := writer.SampleQuotes(writer.Series{Instrument: audusd, Start: 10, Step: 10, Count: 3}) // 10 20 30
	trades := writer.SampleTrades(writer.Series{Instrument: ethusd, Start: 15, Step: 5, Count: 3})  // 15 20 25
	opener.Add("q", writer.MemorySource(quotes, 2))
	opener.Add("t", writer.MemorySource(trades, 2))

	s := newSession(t, 4, WithOpener(opener))
	require.NoError(t, s.RegisterDefault(context.Background(), "quotes", "q", models.KindQuoteTick))
	require.NoError(t, s.RegisterDefault(context.Background(), "trades", "t", models.KindTradeTick))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)

	chunks := collect(t, q)
	require.Len(t, chunks, 2)
	out := flatten(chunks)

	type want struct {
		kind models.Kind
		ts   uint64
	}
	expected := []want{
		{models.KindQuoteTick, 10}, {models.KindTradeTick, 15}, {models.KindQuoteTick, 20},
		{models.KindTradeTick, 20}, {models.KindTradeTick, 25}, {models.KindQuoteTick, 30},
	}
	require.Len(t, out, len(expected))
	for i, w := range expected {
		assert.Equal(t, w.kind, out[i].Kind(), "position %d", i)
		assert.Equal(t, w.ts, out[i].TsInit(), "position %d", i)
	}

	quote, ok := out[2].Quote()
	require.True(t, ok)
	assert.Equal(t, quotes[1], quote)
	trade, ok := out[3].Trade()
	require.True(t, ok)
	assert.Equal(t, trades[1], trade)

	first, last := chunks[0].TsRange()
	assert.Equal(t, uint64(10), first)
	assert.Equal(t, uint64(20), last)
}

func TestExhaustionIsDeterministic(t *testing.T) {
	c := newCatalog(100)
	s := newSession(t, 500, WithOpener(c.opener))
	require.NoError(t, s.RegisterDefault(context.Background(), "bars", "mem://bars", models.KindBar))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)

	chunks := collect(t, q)
	require.Len(t, chunks, 1)
	for i := 0; i < 3; i++ {
		c, err := q.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, c.Len())
	}
	assert.Equal(t, 0, c.opener.OpenReaders())
}

func TestZeroQueries(t *testing.T) {
	s := newSession(t, 10)
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)
	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	out, err := q.Flatten(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRegisterErrors(t *testing.T) {
	c := newCatalog(100)
	s := newSession(t, 10, WithOpener(c.opener))
	ctx := context.Background()

	require.NoError(t, s.RegisterDefault(ctx, "quotes", "mem://quotes", models.KindQuoteTick))

	err := s.RegisterDefault(ctx, "quotes", "mem://trades", models.KindTradeTick)
	require.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "quotes", qerr.Name)
	assert.Equal(t, "mem://trades", qerr.Path)

	err = s.RegisterDefault(ctx, "", "mem://trades", models.KindTradeTick)
	assert.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)

	err = s.RegisterDefault(ctx, "missing", "mem://nope", models.KindTradeTick)
	assert.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)

	err = s.RegisterDefault(ctx, "wrong_kind", "mem://trades", models.KindQuoteTick)
	assert.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)

	err = s.Register(ctx, "bad_params", "mem://trades", models.KindTradeTick, decoder.Params{BarType: "ADABTC.BINANCE-1-MINUTE-LAST-EXTERNAL"})
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)

	err = s.Register(ctx, "two_params", "mem://trades", models.KindTradeTick, decoder.Params{}, decoder.Params{})
	assert.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)

	// the failed schema check must not leak its reader
	assert.Equal(t, 1, c.opener.OpenReaders())
	require.Len(t, s.Queries(), 1)
	assert.Equal(t, "quotes", s.Queries()[0].Name)

	require.NoError(t, s.Close())
	assert.Equal(t, 0, c.opener.OpenReaders())
}

func TestRegisterResolvesMetadata(t *testing.T) {
	quotes := writer.SampleQuotes(writer.Series{Instrument: audusd, Start: 1, Step: 1, Count: 20})
	src := writer.MemorySource(quotes, 5)
	src.Metadata = nil
	for _, b := range src.Batches {
		b.Metadata = nil
	}
	opener := reader.NewMemoryOpener()
	opener.Add("mem://bare_quotes", src)
	ctx := context.Background()

	s := newSession(t, 10, WithOpener(opener))
	err := s.RegisterDefault(ctx, "quotes", "mem://bare_quotes", models.KindQuoteTick)
	require.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "instrument_id")
	assert.Equal(t, 0, opener.OpenReaders())
	assert.Empty(t, s.Queries())

	// an explicit instrument makes the same file usable
	require.NoError(t, s.Register(ctx, "quotes", "mem://bare_quotes", models.KindQuoteTick, decoder.Params{InstrumentID: "AUD/USD.SIM"}))
	q, err := s.QueryResult(ctx)
	require.NoError(t, err)
	out, err := q.Flatten(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestRegisterWithParams(t *testing.T) {
	c := newCatalog(100)
	s := newSession(t, 100, WithOpener(c.opener))
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "trades", "mem://trades", models.KindTradeTick, decoder.Params{
		InstrumentID:   "ETHUSDT-PERP.BINANCE",
		PricePrecision: decoder.Precision(2),
	}))
	q, err := s.QueryResult(ctx)
	require.NoError(t, err)
	c0, err := q.Next(ctx)
	require.NoError(t, err)
	trade, ok := c0.Data()[0].Trade()
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT-PERP.BINANCE", trade.Instrument.String())
	assert.Equal(t, uint8(2), trade.Price.Precision)
	require.NoError(t, q.Close())
}

func TestSessionStarted(t *testing.T) {
	c := newCatalog(100)
	s := newSession(t, 10, WithOpener(c.opener))
	require.NoError(t, s.RegisterDefault(context.Background(), "bars", "mem://bars", models.KindBar))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)
	defer q.Close()

	_, err = s.QueryResult(context.Background())
	assert.ErrorIs(t, err, models.ErrSessionStarted)
	err = s.RegisterDefault(context.Background(), "trades", "mem://trades", models.KindTradeTick)
	assert.ErrorIs(t, err, models.ErrSessionStarted)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, c.opener.OpenReaders())
}

func TestCloseEarlyReleasesReaders(t *testing.T) {
	for _, prefetch := range []int{0, 3} {
		c := newCatalog(10)
		s := newSession(t, 50, WithOpener(c.opener), WithPrefetch(prefetch))
		ctx := context.Background()
		require.NoError(t, s.RegisterDefault(ctx, "deltas", "mem://deltas", models.KindOrderBookDelta))
		require.NoError(t, s.RegisterDefault(ctx, "quotes", "mem://quotes", models.KindQuoteTick))
		q, err := s.QueryResult(ctx)
		require.NoError(t, err)

		first, err := q.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, 50, first.Len())

		require.NoError(t, q.Close())
		require.NoError(t, q.Close())
		assert.Equal(t, 0, c.opener.OpenReaders(), "prefetch %d", prefetch)

		_, err = q.Next(ctx)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 50, first.Len())
	}
}

func TestPartialChunkBeforeError(t *testing.T) {
	deltas := writer.SampleDeltas(writer.Series{Instrument: ethusd, Start: 1, Step: 1, Count: 30})
	src := writer.MemorySource(deltas, 10)
	side, _ := src.Batches[2].Column("side")
	side.Int32s[5] = 7
	opener := reader.NewMemoryOpener()
	opener.Add("d", src)

	rec := metrics.NewRecorder()
	s := newSession(t, 100, WithOpener(opener), WithMetrics(rec))
	require.NoError(t, s.RegisterDefault(context.Background(), "deltas", "d", models.KindOrderBookDelta))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)

	partial, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, partial.Len())

	_, err = q.Next(context.Background())
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Contains(t, err.Error(), "row 25")
	_, again := q.Next(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, 0, opener.OpenReaders())
}

func TestPartialFlattenReturnsError(t *testing.T) {
	deltas := writer.SampleDeltas(writer.Series{Instrument: ethusd, Start: 1, Step: 1, Count: 30})
	src := writer.MemorySource(deltas, 10)
	action, _ := src.Batches[1].Column("action")
	action.Int32s[0] = 0
	opener := reader.NewMemoryOpener()
	opener.Add("d", src)

	s := newSession(t, 4, WithOpener(opener), WithPrefetch(1))
	require.NoError(t, s.RegisterDefault(context.Background(), "deltas", "d", models.KindOrderBookDelta))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)
	out, err := q.Flatten(context.Background())
	require.ErrorIs(t, err, models.ErrMalformedBatch)
	assert.Len(t, out, 10)
}

func TestChunksIterator(t *testing.T) {
	c := newCatalog(64)
	s := newSession(t, 300, WithOpener(c.opener))
	require.NoError(t, s.RegisterDefault(context.Background(), "deltas", "mem://deltas", models.KindOrderBookDelta))
	q, err := s.QueryResult(context.Background())
	require.NoError(t, err)

	var sizes []int
	for ch, err := range q.Chunks(context.Background()) {
		require.NoError(t, err)
		sizes = append(sizes, ch.Len())
	}
	assert.Equal(t, []int{300, 300, 300, 177}, sizes)
}

func TestCancelledContextEndsStream(t *testing.T) {
	c := newCatalog(10)
	s := newSession(t, 10, WithOpener(c.opener), WithPrefetch(1))
	require.NoError(t, s.RegisterDefault(context.Background(), "quotes", "mem://quotes", models.KindQuoteTick))

	ctx, cancel := context.WithCancel(context.Background())
	q, err := s.QueryResult(ctx)
	require.NoError(t, err)
	cancel()

	_, err = q.Flatten(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.opener.OpenReaders())
}

func TestParquetCatalogOnDisk(t *testing.T) {
	dir := t.TempDir()
	deltas := writer.SampleDeltas(writer.Series{Instrument: ethusd, Start: 1_000, Step: 7, Count: 1077})
	bars := writer.SampleBars(writer.Series{Instrument: adabtc, Start: 1_000, Step: 600, Count: 10}, "1-MINUTE-LAST-EXTERNAL")
	deltaPath := filepath.Join(dir, "deltas.parquet")
	barPath := filepath.Join(dir, "bars.parquet")
	require.NoError(t, writer.WriteFile(deltaPath, deltas, writer.Options{}))
	require.NoError(t, writer.WriteFile(barPath, bars, writer.Options{Compression: "gzip"}))

	s := newSession(t, 1000, WithOpener(&reader.ParquetOpener{BatchSize: 128}), WithPrefetch(2))
	ctx := context.Background()
	require.NoError(t, s.RegisterDefault(ctx, "delta_001", deltaPath, models.KindOrderBookDelta))
	require.NoError(t, s.RegisterDefault(ctx, "bars_001", barPath, models.KindBar))

	q, err := s.QueryResult(ctx)
	require.NoError(t, err)
	chunks := collect(t, q)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, chunks[0].Len())
	assert.Equal(t, 87, chunks[1].Len())

	out := flatten(chunks)
	assert.True(t, models.IsMonotonicallyIncreasingByInit(out))
	var nBars int
	for _, d := range out {
		if d.Kind() == models.KindBar {
			nBars++
		}
	}
	assert.Equal(t, 10, nBars)
}

func ExampleSession() {
	opener := reader.NewMemoryOpener()
	id := models.InstrumentID{Symbol: "AUD/USD", Venue: "SIM"}
	opener.Add("quotes", writer.MemorySource(writer.SampleQuotes(writer.Series{Instrument: id, Start: 1, Step: 1, Count: 5}), 2))

	s, _ := New(2, WithOpener(opener))
	_ = s.RegisterDefault(context.Background(), "quotes", "quotes", models.KindQuoteTick)
	q, _ := s.QueryResult(context.Background())
	defer q.Close()

	for chunk, err := range q.Chunks(context.Background()) {
		if err != nil {
			break
		}
		first, last := chunk.TsRange()
		fmt.Println(chunk.Len(), first, last)
	}
	// Output:
	// 2 1 2
	// 2 3 4
	// 1 5 5
}
