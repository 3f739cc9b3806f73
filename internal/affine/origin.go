// Package affine builds voxel-to-world transforms for scanner volumes.
//
// Matrices are 4x4 gonum dense matrices mapping (i, j, k, 1) voxel indices
// to RAS+ millimetre coordinates.
package affine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Origin selects the physical reference point of the transform.
type Origin string

const (
	// Scanner places the origin at the scanner iso-centre.
	Scanner Origin = "scanner"
	// FOV places the origin at the centre of the field of view.
	FOV Origin = "fov"
)

// AllOrigins returns all valid origin conventions.
func AllOrigins() []Origin {
	return []Origin{Scanner, FOV}
}

// ParseOrigin validates an origin name.
func ParseOrigin(s string) (Origin, error) {
	o := Origin(s)
	for _, valid := range AllOrigins() {
		if o == valid {
			return o, nil
		}
	}
	return "", fmt.Errorf("invalid origin %q, valid options: %v", s, AllOrigins())
}

// Geometry is anything that can produce a voxel-to-world transform for a
// requested origin convention.
type Geometry interface {
	Affine(origin Origin) (*mat.Dense, error)
}

// Build requests the transform from g. The origin is passed through as is.
func Build(g Geometry, origin Origin) (*mat.Dense, error) {
	if g == nil {
		return nil, fmt.Errorf("no geometry available")
	}
	return g.Affine(origin)
}

func translation(x, y, z float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, x,
		0, 1, 0, y,
		0, 0, 1, z,
		0, 0, 0, 1,
	})
}

func diag4(a, b, c float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		a, 0, 0, 0,
		0, b, 0, 0,
		0, 0, c, 0,
		0, 0, 0, 1,
	})
}

func chain(ms ...mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(ms[0])
	for _, m := range ms[1:] {
		var next mat.Dense
		next.Mul(out, m)
		out = &next
	}
	return out
}
