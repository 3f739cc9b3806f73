package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mrsinham/recforge/internal/source"
	"github.com/mrsinham/recforge/internal/volume"
)

// ParseToken asks for a bound to be measured from the data.
const ParseToken = "parse"

// Bound is one end of the calibration range: either measured from the
// scaled data or a fixed value.
type Bound struct {
	Parse bool
	Value float64
}

// ParseBound reads "parse" or a finite number.
func ParseBound(s string) (Bound, error) {
	s = strings.TrimSpace(s)
	if s == ParseToken {
		return Bound{Parse: true}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Bound{}, fmt.Errorf("want %q or a number, got %q", ParseToken, s)
	}
	return Bound{Value: v}, nil
}

func (b Bound) String() string {
	if b.Parse {
		return ParseToken
	}
	return strconv.FormatFloat(b.Value, 'g', -1, 64)
}

// Range is the calibration range written as cal_min/cal_max.
type Range struct {
	Min, Max float64
}

// Sampler produces a scaled float copy of a volume. *volume.Volume
// implements it.
type Sampler interface {
	Scaled(slope, intercept float64) []float64
}

// ResolveRange resolves both bounds. The scaled copy is built at most once
// and only when a bound asks for it. With scaling off the raw values are
// measured.
func ResolveRange(lo, hi Bound, vol Sampler, s Scaling) (Range, error) {
	r := Range{Min: lo.Value, Max: hi.Value}
	if lo.Parse || hi.Parse {
		slope, inter := s.Slope, s.Intercept
		if s.Method == source.Off {
			slope, inter = 1, 0
		}
		smin, smax, ok := volume.MinMax(vol.Scaled(slope, inter))
		if !ok {
			return Range{}, ErrEmptyRange
		}
		if lo.Parse {
			r.Min = smin
		}
		if hi.Parse {
			r.Max = smax
		}
	}
	if r.Min > r.Max {
		return Range{}, fmt.Errorf("%w: %g > %g", ErrInvertedRange, r.Min, r.Max)
	}
	return r, nil
}
