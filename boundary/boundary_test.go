package boundary

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogflow/models"
	"catalogflow/reader"
	"catalogflow/session"
	"catalogflow/writer"
)

var ethusdt = models.InstrumentID{Symbol: "ETHUSDT", Venue: "BINANCE"}

func sampleChunk(n int) session.Chunk {
	trades := writer.SampleTrades(writer.Series{Instrument: ethusdt, Start: 1, Step: 1, Count: n})
	return session.NewChunk(models.FromRecords(trades))
}

func TestHandleCVecRoundTrip(t *testing.T) {
	c := sampleChunk(5)
	want := c.Data()
	h := NewHandle(c)

	v, err := h.CVec()
	require.NoError(t, err)
	assert.Equal(t, 5, v.Len)
	assert.Equal(t, LayoutData, v.Layout)
	assert.Equal(t, unsafeData(want), v.Ptr)

	got, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	n, err := h.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestHandleUseAfterRelease(t *testing.T) {
	h := NewHandle(sampleChunk(3))
	require.NoError(t, h.Release())
	assert.True(t, h.Released())
	assert.Nil(t, h.data.Load(), "released handle must drop its records")

	_, err := h.CVec()
	assert.ErrorIs(t, err, ErrUseAfterRelease)
	_, err = h.Data()
	assert.ErrorIs(t, err, ErrUseAfterRelease)
	_, err = h.Len()
	assert.ErrorIs(t, err, ErrUseAfterRelease)
	assert.ErrorIs(t, h.Release(), ErrDoubleRelease)
}

func TestHandleConcurrentReleaseSucceedsOnce(t *testing.T) {
	h := NewHandle(sampleChunk(1))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		released int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Release() == nil {
				mu.Lock()
				released++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, released)
}

func TestEmptyHandle(t *testing.T) {
	h := NewHandle(session.Chunk{})
	v, err := h.CVec()
	require.NoError(t, err)
	assert.Nil(t, v.Ptr)
	got, err := Decode(v)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeRejectsBadViews(t *testing.T) {
	v, err := NewHandle(sampleChunk(2)).CVec()
	require.NoError(t, err)

	bad := v
	bad.Layout = LayoutUnknown
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	bad = v
	bad.Len = bad.Cap + 1
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Decode(CVec{Len: 1, Cap: 1, Layout: LayoutData})
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Put(NewHandle(sampleChunk(1)))
	b := r.Put(NewHandle(sampleChunk(2)))
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Len())

	h, err := r.Get(b)
	require.NoError(t, err)
	n, _ := h.Len()
	assert.Equal(t, 2, n)

	require.NoError(t, r.Release(a))
	assert.Equal(t, 1, r.Len())
	assert.ErrorIs(t, r.Release(a), ErrDoubleRelease)
	_, err = r.Get(a)
	assert.ErrorIs(t, err, ErrUseAfterRelease)

	_, err = r.Get(99)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, r.Release(0), ErrUnknownHandle)

	r.ReleaseAll()
	assert.Equal(t, 0, r.Len())
	assert.True(t, h.Released())
}

func TestHostStreamsHandles(t *testing.T) {
	opener := reader.NewMemoryOpener()
	deltas := writer.SampleDeltas(writer.Series{Instrument: ethusdt, Start: 1, Step: 1, Count: 1077})
	quotes := writer.SampleQuotes(writer.Series{Instrument: ethusdt, Start: 1, Step: 2, Count: 100})
	opener.Add("deltas.parquet", writer.MemorySource(deltas, 100))
	opener.Add("quotes.parquet", writer.MemorySource(quotes, 100))

	host, err := NewHost(500, session.WithOpener(opener))
	require.NoError(t, err)
	require.NoError(t, host.AddFile("delta_001", "deltas.parquet", "order_book_delta"))
	require.NoError(t, host.AddFile("quote_001", "quotes.parquet", "QuoteTick"))

	err = host.AddFile("bad", "quotes.parquet", "candles")
	require.ErrorIs(t, err, models.ErrDuplicateOrInvalidQuery)

	res, err := host.ToQueryResult()
	require.NoError(t, err)
	defer res.Close()

	var (
		ids []HandleID
		all []models.Data
	)
	for {
		id, err := res.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, id)

		h, err := host.Registry().Get(id)
		require.NoError(t, err)
		v, err := h.CVec()
		require.NoError(t, err)
		data, err := Decode(v)
		require.NoError(t, err)
		all = append(all, data...)
	}
	require.Len(t, ids, 3)
	assert.Len(t, all, 1177)
	assert.True(t, models.IsMonotonicallyIncreasingByInit(all))
	assert.Equal(t, 3, host.Registry().Len())

	_, err = res.Next()
	assert.ErrorIs(t, err, io.EOF)

	// handles outlive the result
	require.NoError(t, res.Close())
	h, err := host.Registry().Get(ids[0])
	require.NoError(t, err)
	data, err := h.Data()
	require.NoError(t, err)
	assert.Len(t, data, 500)

	for _, id := range ids {
		require.NoError(t, host.Registry().Release(id))
	}
	assert.Equal(t, 0, host.Registry().Len())
	assert.Equal(t, 0, opener.OpenReaders())
	assert.Equal(t, session.Stats{Chunks: 3, Rows: 1177}, res.Stats())
}

func TestHostInvalidChunkSize(t *testing.T) {
	_, err := NewHost(0)
	assert.ErrorIs(t, err, models.ErrInvalidChunkSize)
}

func TestHostCloseReleasesOutstandingHandles(t *testing.T) {
	opener := reader.NewMemoryOpener()
	opener.Add("mem://trades", writer.MemorySource(writer.SampleTrades(writer.Series{Instrument: ethusdt, Start: 1, Step: 1, Count: 25}), 10))
	host, err := NewHost(10, session.WithOpener(opener))
	require.NoError(t, err)
	require.NoError(t, host.AddFile("trades", "mem://trades", "trade"))

	res, err := host.ToQueryResult()
	require.NoError(t, err)
	id, err := res.Next()
	require.NoError(t, err)
	h, err := host.Registry().Get(id)
	require.NoError(t, err)

	require.NoError(t, res.Close())
	require.NoError(t, host.Close())
	assert.Equal(t, 0, host.Registry().Len())
	assert.True(t, h.Released())
	_, err = host.Registry().Get(id)
	assert.ErrorIs(t, err, ErrUseAfterRelease)
}
