package decoder

import (
	"fmt"
	"strconv"

	"catalogflow/models"
)

// Metadata keys read from a source's key-value metadata.
const (
	MetaInstrumentID   = "instrument_id"
	MetaBarType        = "bar_type"
	MetaPricePrecision = "price_precision"
	MetaSizePrecision  = "size_precision"
)

// Params are the optional per-query decode parameters. Unset fields fall
// back to the source metadata.
type Params struct {
	InstrumentID   string
	BarType        string
	PricePrecision *uint8
	SizePrecision  *uint8
}

// Precision returns a pointer to p for use in Params.
func Precision(p uint8) *uint8 { return &p }

// IsZero reports whether no parameter is set.
func (p Params) IsZero() bool {
	return p.InstrumentID == "" && p.BarType == "" && p.PricePrecision == nil && p.SizePrecision == nil
}

type resolved struct {
	instrument models.InstrumentID
	barType    models.BarType
	pricePrec  uint8
	sizePrec   uint8
}

// resolve merges params over metadata. Precision defaults to MaxPrecision
// when neither provides it; it only affects rendering, raw values are always
// scaled by FixedScalar.
func resolve(kind models.Kind, p Params, meta map[string]string) (resolved, error) {
	var r resolved

	if kind == models.KindBar {
		raw := p.BarType
		if raw == "" {
			raw = meta[MetaBarType]
		}
		if raw == "" {
			return r, fmt.Errorf("%w: bar source has no bar_type", models.ErrSchemaMismatch)
		}
		bt, err := models.ParseBarType(raw)
		if err != nil {
			return r, fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err)
		}
		r.barType = bt
		r.instrument = bt.InstrumentID
	} else {
		raw := p.InstrumentID
		if raw == "" {
			raw = meta[MetaInstrumentID]
		}
		if raw == "" {
			return r, fmt.Errorf("%w: %s source has no instrument_id", models.ErrSchemaMismatch, kind)
		}
		id, err := models.ParseInstrumentID(raw)
		if err != nil {
			return r, fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err)
		}
		r.instrument = id
	}

	var err error
	if r.pricePrec, err = precision(p.PricePrecision, meta, MetaPricePrecision); err != nil {
		return r, err
	}
	if r.sizePrec, err = precision(p.SizePrecision, meta, MetaSizePrecision); err != nil {
		return r, err
	}
	return r, nil
}

func precision(override *uint8, meta map[string]string, key string) (uint8, error) {
	if override != nil {
		if *override > models.MaxPrecision {
			return 0, fmt.Errorf("%w: %s %d exceeds %d", models.ErrSchemaMismatch, key, *override, models.MaxPrecision)
		}
		return *override, nil
	}
	raw, ok := meta[key]
	if !ok || raw == "" {
		return models.MaxPrecision, nil
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil || v > models.MaxPrecision {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrSchemaMismatch, key, raw)
	}
	return uint8(v), nil
}

// CheckSource resolves params against a source's metadata, failing with
// ErrSchemaMismatch when the instrument, bar type or a precision cannot be
// determined.
func CheckSource(kind models.Kind, p Params, meta map[string]string) error {
	_, err := resolve(kind, p, meta)
	return err
}

// ValidateParams checks params that can be verified without a source.
func ValidateParams(kind models.Kind, p Params) error {
	if p.InstrumentID != "" {
		if _, err := models.ParseInstrumentID(p.InstrumentID); err != nil {
			return fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err)
		}
	}
	if p.BarType != "" {
		if kind != models.KindBar {
			return fmt.Errorf("%w: bar_type given for %s source", models.ErrSchemaMismatch, kind)
		}
		if _, err := models.ParseBarType(p.BarType); err != nil {
			return fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err)
		}
	}
	for key, v := range map[string]*uint8{MetaPricePrecision: p.PricePrecision, MetaSizePrecision: p.SizePrecision} {
		if v != nil && *v > models.MaxPrecision {
			return fmt.Errorf("%w: %s %d exceeds %d", models.ErrSchemaMismatch, key, *v, models.MaxPrecision)
		}
	}
	return nil
}
