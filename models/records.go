package models

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// ENUMS /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BookAction is the operation an order book delta applies.
type BookAction uint8

const (
	BookActionAdd BookAction = iota + 1
	BookActionUpdate
	BookActionDelete
	BookActionClear
)

func (a BookAction) String() string {
	switch a {
	case BookActionAdd:
		return "ADD"
	case BookActionUpdate:
		return "UPDATE"
	case BookActionDelete:
		return "DELETE"
	case BookActionClear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// OrderSide is the side of a book order.
type OrderSide uint8

const (
	OrderSideNone OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "NO_ORDER_SIDE"
	}
}

// AggressorSide is the side that lifted liquidity in a trade.
type AggressorSide uint8

const (
	AggressorSideNone AggressorSide = iota
	AggressorSideBuyer
	AggressorSideSeller
)

func (s AggressorSide) String() string {
	switch s {
	case AggressorSideBuyer:
		return "BUYER"
	case AggressorSideSeller:
		return "SELLER"
	default:
		return "NO_AGGRESSOR"
	}
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// RECORDS ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OrderBookDelta is a single order book update.
type OrderBookDelta struct {
	Instrument InstrumentID `json:"instrument_id"`
	Action     BookAction   `json:"action"`
	Side       OrderSide    `json:"side"`
	Price      Price        `json:"price"`
	Size       Quantity     `json:"size"`
	OrderID    uint64       `json:"order_id"`
	Flags      uint8        `json:"flags"`
	Sequence   uint64       `json:"sequence"`
	TsEvent    uint64       `json:"ts_event"`
	Init       uint64       `json:"ts_init"`
}

func (d OrderBookDelta) TsInit() uint64             { return d.Init }
func (d OrderBookDelta) InstrumentID() InstrumentID { return d.Instrument }

// QuoteTick is a top-of-book quote.
type QuoteTick struct {
	Instrument InstrumentID `json:"instrument_id"`
	BidPrice   Price        `json:"bid_price"`
	AskPrice   Price        `json:"ask_price"`
	BidSize    Quantity     `json:"bid_size"`
	AskSize    Quantity     `json:"ask_size"`
	TsEvent    uint64       `json:"ts_event"`
	Init       uint64       `json:"ts_init"`
}

func (q QuoteTick) TsInit() uint64             { return q.Init }
func (q QuoteTick) InstrumentID() InstrumentID { return q.Instrument }

// TradeTick is a single executed trade.
type TradeTick struct {
	Instrument    InstrumentID  `json:"instrument_id"`
	Price         Price         `json:"price"`
	Size          Quantity      `json:"size"`
	AggressorSide AggressorSide `json:"aggressor_side"`
	TradeID       string        `json:"trade_id"`
	TsEvent       uint64        `json:"ts_event"`
	Init          uint64        `json:"ts_init"`
}

func (t TradeTick) TsInit() uint64             { return t.Init }
func (t TradeTick) InstrumentID() InstrumentID { return t.Instrument }

// Bar is an aggregated OHLCV bar.
type Bar struct {
	BarType BarType  `json:"bar_type"`
	Open    Price    `json:"open"`
	High    Price    `json:"high"`
	Low     Price    `json:"low"`
	Close   Price    `json:"close"`
	Volume  Quantity `json:"volume"`
	TsEvent uint64   `json:"ts_event"`
	Init    uint64   `json:"ts_init"`
}

func (b Bar) TsInit() uint64             { return b.Init }
func (b Bar) InstrumentID() InstrumentID { return b.BarType.InstrumentID }

// Record is implemented by every record variant.
type Record interface {
	OrderBookDelta | QuoteTick | TradeTick | Bar
	TsInit() uint64
	InstrumentID() InstrumentID
}
