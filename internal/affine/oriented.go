package affine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Oriented describes a volume by DICOM-style direction cosines and the
// patient position of its first voxel, all in LPS.
type Oriented struct {
	Shape    [3]int
	Zooms    [3]float64
	Row      [3]float64 // direction of increasing column index
	Col      [3]float64 // direction of increasing row index
	Position [3]float64
}

// Affine implements Geometry.
func (o Oriented) Affine(origin Origin) (*mat.Dense, error) {
	for i, s := range o.Shape {
		if s <= 0 || o.Zooms[i] <= 0 {
			return nil, fmt.Errorf("invalid shape %v or voxel size %v", o.Shape, o.Zooms)
		}
	}
	n := cross(o.Row, o.Col)
	if n == [3]float64{} {
		return nil, fmt.Errorf("degenerate orientation %v / %v", o.Row, o.Col)
	}

	lps := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		lps.Set(r, 0, o.Row[r]*o.Zooms[0])
		lps.Set(r, 1, o.Col[r]*o.Zooms[1])
		lps.Set(r, 2, n[r]*o.Zooms[2])
		lps.Set(r, 3, o.Position[r])
	}
	lps.Set(3, 3, 1)

	ras := chain(diag4(-1, -1, 1), lps)
	if origin == FOV {
		cx := float64(o.Shape[0]-1) / 2
		cy := float64(o.Shape[1]-1) / 2
		cz := float64(o.Shape[2]-1) / 2
		for r := 0; r < 3; r++ {
			ras.Set(r, 3, -(ras.At(r, 0)*cx + ras.At(r, 1)*cy + ras.At(r, 2)*cz))
		}
	}
	return ras, nil
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
