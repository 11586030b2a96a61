package models

import "fmt"

// Data is a closed tagged union over the record variants. Exactly one slot
// is populated, selected by the kind tag. Ordering code only uses TsInit;
// field access goes through the typed accessors.
type Data struct {
	kind  Kind
	delta OrderBookDelta
	quote QuoteTick
	trade TradeTick
	bar   Bar
}

func DeltaData(d OrderBookDelta) Data { return Data{kind: KindOrderBookDelta, delta: d} }
func QuoteData(q QuoteTick) Data      { return Data{kind: KindQuoteTick, quote: q} }
func TradeData(t TradeTick) Data      { return Data{kind: KindTradeTick, trade: t} }
func BarData(b Bar) Data              { return Data{kind: KindBar, bar: b} }

// FromRecords wraps a typed record slice into Data values, preserving order.
func FromRecords[T Record](records []T) []Data {
	out := make([]Data, len(records))
	for i, rec := range records {
		switch r := any(rec).(type) {
		case OrderBookDelta:
			out[i] = DeltaData(r)
		case QuoteTick:
			out[i] = QuoteData(r)
		case TradeTick:
			out[i] = TradeData(r)
		case Bar:
			out[i] = BarData(r)
		}
	}
	return out
}

func (d Data) Kind() Kind { return d.kind }

// TsInit is the merge ordering key shared by every variant.
func (d Data) TsInit() uint64 {
	switch d.kind {
	case KindOrderBookDelta:
		return d.delta.Init
	case KindQuoteTick:
		return d.quote.Init
	case KindTradeTick:
		return d.trade.Init
	case KindBar:
		return d.bar.Init
	default:
		return 0
	}
}

func (d Data) TsEvent() uint64 {
	switch d.kind {
	case KindOrderBookDelta:
		return d.delta.TsEvent
	case KindQuoteTick:
		return d.quote.TsEvent
	case KindTradeTick:
		return d.trade.TsEvent
	case KindBar:
		return d.bar.TsEvent
	default:
		return 0
	}
}

func (d Data) InstrumentID() InstrumentID {
	switch d.kind {
	case KindOrderBookDelta:
		return d.delta.Instrument
	case KindQuoteTick:
		return d.quote.Instrument
	case KindTradeTick:
		return d.trade.Instrument
	case KindBar:
		return d.bar.BarType.InstrumentID
	default:
		return InstrumentID{}
	}
}

func (d Data) Delta() (OrderBookDelta, bool) { return d.delta, d.kind == KindOrderBookDelta }
func (d Data) Quote() (QuoteTick, bool)      { return d.quote, d.kind == KindQuoteTick }
func (d Data) Trade() (TradeTick, bool)      { return d.trade, d.kind == KindTradeTick }
func (d Data) Bar() (Bar, bool)              { return d.bar, d.kind == KindBar }

func (d Data) String() string {
	return fmt.Sprintf("%s(%s, ts_init=%d)", d.kind, d.InstrumentID(), d.TsInit())
}

// IsMonotonicallyIncreasingByInit reports whether ts_init never decreases
// across data.
func IsMonotonicallyIncreasingByInit(data []Data) bool {
	for i := 1; i < len(data); i++ {
		if data[i].TsInit() < data[i-1].TsInit() {
			return false
		}
	}
	return true
}
