package models

import (
	"fmt"
	"strings"
)

// InstrumentID identifies a tradable instrument on a venue, rendered as
// SYMBOL.VENUE (for example EUR/USD.SIM).
type InstrumentID struct {
	Symbol string `json:"symbol"`
	Venue  string `json:"venue"`
}

// ParseInstrumentID splits s on its last dot. Symbols may themselves contain
// dots, venues may not.
func ParseInstrumentID(s string) (InstrumentID, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndexByte(s, '.')
	if idx <= 0 || idx == len(s)-1 {
		return InstrumentID{}, fmt.Errorf("invalid instrument id %q: expected SYMBOL.VENUE", s)
	}
	return InstrumentID{Symbol: s[:idx], Venue: s[idx+1:]}, nil
}

func (id InstrumentID) String() string {
	return id.Symbol + "." + id.Venue
}

// IsZero reports whether the id was never set.
func (id InstrumentID) IsZero() bool {
	return id.Symbol == "" && id.Venue == ""
}

// BarType identifies a bar series: the instrument plus the aggregation
// specification, e.g. ADABTC.BINANCE-1-MINUTE-LAST-EXTERNAL.
type BarType struct {
	InstrumentID InstrumentID `json:"instrument_id"`
	Spec         string       `json:"spec"`
}

// ParseBarType splits s at the first dash that follows the venue.
func ParseBarType(s string) (BarType, error) {
	s = strings.TrimSpace(s)
	dot := strings.LastIndexByte(s, '.')
	if dot <= 0 {
		return BarType{}, fmt.Errorf("invalid bar type %q: missing venue", s)
	}
	dash := strings.IndexByte(s[dot:], '-')
	if dash < 0 {
		return BarType{}, fmt.Errorf("invalid bar type %q: missing specification", s)
	}
	dash += dot
	id, err := ParseInstrumentID(s[:dash])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	spec := s[dash+1:]
	if spec == "" {
		return BarType{}, fmt.Errorf("invalid bar type %q: empty specification", s)
	}
	return BarType{InstrumentID: id, Spec: spec}, nil
}

func (bt BarType) String() string {
	return bt.InstrumentID.String() + "-" + bt.Spec
}
