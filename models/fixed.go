package models

import (
	"math"
	"strconv"
)

// FixedScalar is the scale applied to raw fixed-point values.
const FixedScalar = 1_000_000_000

// MaxPrecision is the largest number of decimals a Price or Quantity keeps.
const MaxPrecision = 9

// Price is a signed fixed-point value. Raw holds value * FixedScalar.
type Price struct {
	Raw       int64 `json:"raw"`
	Precision uint8 `json:"precision"`
}

// NewPrice rounds v to precision decimals.
func NewPrice(v float64, precision uint8) Price {
	return Price{Raw: toRaw(v, precision), Precision: precision}
}

func (p Price) Float64() float64 {
	return float64(p.Raw) / FixedScalar
}

func (p Price) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', int(p.Precision), 64)
}

// Quantity is an unsigned fixed-point value. Raw holds value * FixedScalar.
type Quantity struct {
	Raw       uint64 `json:"raw"`
	Precision uint8  `json:"precision"`
}

// NewQuantity rounds v to precision decimals. Negative values clamp to zero.
func NewQuantity(v float64, precision uint8) Quantity {
	if v < 0 {
		v = 0
	}
	return Quantity{Raw: uint64(toRaw(v, precision)), Precision: precision}
}

func (q Quantity) Float64() float64 {
	return float64(q.Raw) / FixedScalar
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Float64(), 'f', int(q.Precision), 64)
}

func toRaw(v float64, precision uint8) int64 {
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	pow := math.Pow10(int(precision))
	rounded := math.Round(v*pow) / pow
	return int64(math.Round(rounded * FixedScalar))
}
