package affine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SliceOrientation is the acquisition plane reported by the scanner.
type SliceOrientation int

const (
	Transverse SliceOrientation = 1
	Sagittal   SliceOrientation = 2
	Coronal    SliceOrientation = 3
)

// String returns the orientation name.
func (s SliceOrientation) String() string {
	switch s {
	case Transverse:
		return "transverse"
	case Sagittal:
		return "sagittal"
	case Coronal:
		return "coronal"
	default:
		return fmt.Sprintf("orientation(%d)", int(s))
	}
}

// psl to ras: L -> R, P -> A, S -> S
var pslToRAS = mat.NewDense(4, 4, []float64{
	0, 0, -1, 0,
	-1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0, 1,
})

// acquisition voxel axes to PSL, per slice orientation
var acqToPSL = map[SliceOrientation]*mat.Dense{
	Transverse: mat.NewDense(4, 4, []float64{
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 0, 0, 0,
		0, 0, 0, 1,
	}),
	Sagittal: diag4(1, -1, -1),
	Coronal: mat.NewDense(4, 4, []float64{
		0, 0, 1, 0,
		0, -1, 0, 0,
		1, 0, 0, 0,
		0, 0, 0, 1,
	}),
}

// Angulated describes a stack of parallel slices by its angulation and
// off-centre of the middle slice, both in (ap, fh, rl) order.
type Angulated struct {
	Shape       [3]int
	Zooms       [3]float64
	Angulation  [3]float64 // degrees
	OffCentre   [3]float64 // mm
	Orientation SliceOrientation
}

// Affine implements Geometry.
func (a Angulated) Affine(origin Origin) (*mat.Dense, error) {
	permute, ok := acqToPSL[a.Orientation]
	if !ok {
		return nil, fmt.Errorf("unknown slice orientation %s", a.Orientation)
	}
	for i, s := range a.Shape {
		if s <= 0 {
			return nil, fmt.Errorf("invalid shape %v", a.Shape)
		}
		if a.Zooms[i] <= 0 {
			return nil, fmt.Errorf("invalid voxel size %v", a.Zooms)
		}
	}

	toCentre := translation(
		-float64(a.Shape[0]-1)/2,
		-float64(a.Shape[1]-1)/2,
		-float64(a.Shape[2]-1)/2,
	)
	zoomer := diag4(a.Zooms[0], a.Zooms[1], a.Zooms[2])

	ap := a.Angulation[0] * math.Pi / 180
	fh := a.Angulation[1] * math.Pi / 180
	rl := a.Angulation[2] * math.Pi / 180
	rot := chain(rotX(ap), rotY(fh), rotZ(rl))

	psl := chain(rot, permute, zoomer, toCentre)
	if origin == Scanner {
		for i := 0; i < 3; i++ {
			psl.Set(i, 3, psl.At(i, 3)+a.OffCentre[i])
		}
	}
	return chain(pslToRAS, psl), nil
}

func rotX(t float64) *mat.Dense {
	c, s := math.Cos(t), math.Sin(t)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	})
}

func rotY(t float64) *mat.Dense {
	c, s := math.Cos(t), math.Sin(t)
	return mat.NewDense(4, 4, []float64{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	})
}

func rotZ(t float64) *mat.Dense {
	c, s := math.Cos(t), math.Sin(t)
	return mat.NewDense(4, 4, []float64{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}
