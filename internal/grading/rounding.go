package grading

import (
	"fmt"
	"math"
)

// Rounding 平均分的舍入方式
type Rounding string

const (
	RoundNone    Rounding = "none"
	RoundDown    Rounding = "down"
	RoundUp      Rounding = "up"
	RoundNatural Rounding = "natural"
)

func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(s); r {
	case RoundNone, RoundDown, RoundUp, RoundNatural:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRounding, s)
}

// Apply natural 为四舍五入（.5 向上）
func (r Rounding) Apply(v float64) float64 {
	switch r {
	case RoundDown:
		return math.Floor(v)
	case RoundUp:
		return math.Ceil(v)
	case RoundNatural:
		return math.Floor(v + 0.5)
	default:
		return v
	}
}
