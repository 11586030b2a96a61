package models

import (
	"fmt"
	"strings"
)

// Kind tags the record variant held by a Data value and the record type a
// source file contains.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindOrderBookDelta
	KindQuoteTick
	KindTradeTick
	KindBar
)

// Kinds lists every concrete kind.
var Kinds = []Kind{KindOrderBookDelta, KindQuoteTick, KindTradeTick, KindBar}

func (k Kind) String() string {
	switch k {
	case KindOrderBookDelta:
		return "order_book_delta"
	case KindQuoteTick:
		return "quote_tick"
	case KindTradeTick:
		return "trade_tick"
	case KindBar:
		return "bar"
	default:
		return "unknown"
	}
}

// ParseKind accepts the canonical names plus the short aliases used in
// configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "order_book_delta", "orderbookdelta", "delta":
		return KindOrderBookDelta, nil
	case "quote_tick", "quotetick", "quote":
		return KindQuoteTick, nil
	case "trade_tick", "tradetick", "trade":
		return KindTradeTick, nil
	case "bar":
		return KindBar, nil
	default:
		return KindUnknown, fmt.Errorf("unknown record kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindUnknown {
		return nil, fmt.Errorf("cannot marshal unknown record kind")
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so Kind can be used
// directly in YAML and JSON.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
