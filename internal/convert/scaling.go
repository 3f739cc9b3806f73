package convert

import (
	"fmt"

	"github.com/mrsinham/recforge/internal/source"
)

// Scaling is the slope/intercept recorded in the output header.
type Scaling struct {
	Method    source.Method
	Slope     float64
	Intercept float64
}

// Identity reports whether the scaling leaves samples unchanged.
func (s Scaling) Identity() bool {
	return s.Slope == 1 && s.Intercept == 0
}

// ResolveScaling picks the header coefficients for method. The values are
// taken verbatim; a zero slope is not rejected.
func ResolveScaling(h *source.Header, method source.Method) (Scaling, error) {
	if method == source.Off {
		return Scaling{Method: source.Off, Slope: 1, Intercept: 0}, nil
	}
	c, ok := h.Scaling[method]
	if !ok {
		if why := h.Unscalable[method]; why != "" {
			return Scaling{}, fmt.Errorf("%w %q: %s", ErrUnknownMethod, method, why)
		}
		return Scaling{}, fmt.Errorf("%w %q", ErrUnknownMethod, method)
	}
	return Scaling{Method: method, Slope: c.Slope, Intercept: c.Intercept}, nil
}
