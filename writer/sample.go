package writer

import (
	"strconv"

	"catalogflow/models"
)

// Series describes a synthetic, ts_init-sorted record series. It backs the
// CLI's generate command and test fixtures.
type Series struct {
	Instrument models.InstrumentID
	// Start is the ts_init of the first record, Step the gap between records.
	Start uint64
	Step  uint64
	Count int
}

func (s Series) ts(i int) uint64 { return s.Start + uint64(i)*s.Step }

func SampleDeltas(s Series) []models.OrderBookDelta {
	out := make([]models.OrderBookDelta, s.Count)
	for i := range out {
		side := models.OrderSideBuy
		if i%2 == 1 {
			side = models.OrderSideSell
		}
		out[i] = models.OrderBookDelta{
			Instrument: s.Instrument,
			Action:     models.BookAction(i%3 + 1),
			Side:       side,
			Price:      models.NewPrice(100+float64(i%50)*0.01, 2),
			Size:       models.NewQuantity(float64(1+i%10), 0),
			OrderID:    uint64(i + 1),
			Sequence:   uint64(i),
			TsEvent:    s.ts(i),
			Init:       s.ts(i),
		}
	}
	return out
}

func SampleQuotes(s Series) []models.QuoteTick {
	out := make([]models.QuoteTick, s.Count)
	for i := range out {
		mid := 1.1 + float64(i%100)*0.00001
		out[i] = models.QuoteTick{
			Instrument: s.Instrument,
			BidPrice:   models.NewPrice(mid-0.00001, 5),
			AskPrice:   models.NewPrice(mid+0.00001, 5),
			BidSize:    models.NewQuantity(1_000_000, 0),
			AskSize:    models.NewQuantity(1_000_000, 0),
			TsEvent:    s.ts(i),
			Init:       s.ts(i),
		}
	}
	return out
}

func SampleTrades(s Series) []models.TradeTick {
	out := make([]models.TradeTick, s.Count)
	for i := range out {
		out[i] = models.TradeTick{
			Instrument:    s.Instrument,
			Price:         models.NewPrice(1.1+float64(i%100)*0.00001, 5),
			Size:          models.NewQuantity(100_000, 0),
			AggressorSide: models.AggressorSide(i%2 + 1),
			TradeID:       strconv.Itoa(i + 1),
			TsEvent:       s.ts(i),
			Init:          s.ts(i),
		}
	}
	return out
}

func SampleBars(s Series, spec string) []models.Bar {
	bt := models.BarType{InstrumentID: s.Instrument, Spec: spec}
	out := make([]models.Bar, s.Count)
	for i := range out {
		base := 0.0001 + float64(i)*0.000001
		out[i] = models.Bar{
			BarType: bt,
			Open:    models.NewPrice(base, 8),
			High:    models.NewPrice(base+0.000002, 8),
			Low:     models.NewPrice(base-0.000001, 8),
			Close:   models.NewPrice(base+0.000001, 8),
			Volume:  models.NewQuantity(float64(1000+i), 0),
			TsEvent: s.ts(i),
			Init:    s.ts(i),
		}
	}
	return out
}
