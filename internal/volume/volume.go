// Package volume holds raw voxel samples as read from a scanner file.
//
// Samples are kept as little-endian bytes so they can be written to the
// output container without any cast or rescale. Float views are produced on
// demand and never replace the raw data.
package volume

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType identifies the storage type of a single sample.
type DType string

const (
	Uint8   DType = "uint8"
	Int16   DType = "int16"
	Uint16  DType = "uint16"
	Int32   DType = "int32"
	Float32 DType = "float32"
)

// Size returns the number of bytes per sample.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 0
	}
}

// NIfTICode returns the NIFTI_TYPE_* code for the datatype.
func (d DType) NIfTICode() int16 {
	switch d {
	case Uint8:
		return 2
	case Int16:
		return 4
	case Int32:
		return 8
	case Float32:
		return 16
	case Uint16:
		return 512
	default:
		return 0
	}
}

// DTypeForBits maps a PAR "image pixel size" to a datatype.
func DTypeForBits(bits int) (DType, error) {
	switch bits {
	case 8:
		return Uint8, nil
	case 16:
		return Int16, nil
	case 32:
		return Float32, nil
	default:
		return "", fmt.Errorf("unsupported pixel size: %d bits", bits)
	}
}

// Volume is an n-dimensional array of unscaled samples in NIfTI order
// (x fastest, then y, z, t).
type Volume struct {
	Data  []byte
	DType DType
	Shape []int
}

// New validates that data holds exactly prod(shape) samples of dtype.
func New(data []byte, dtype DType, shape []int) (*Volume, error) {
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
	if len(shape) == 0 || len(shape) > 7 {
		return nil, fmt.Errorf("invalid dimensionality %d", len(shape))
	}
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("invalid shape %v", shape)
		}
		n *= s
	}
	if len(data) != n*dtype.Size() {
		return nil, fmt.Errorf("shape %v of %s needs %d bytes, got %d", shape, dtype, n*dtype.Size(), len(data))
	}
	return &Volume{Data: data, DType: dtype, Shape: shape}, nil
}

// Len returns the number of samples.
func (v *Volume) Len() int {
	return len(v.Data) / v.DType.Size()
}

// At returns the i-th sample as a float64.
func (v *Volume) At(i int) float64 {
	switch v.DType {
	case Uint8:
		return float64(v.Data[i])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(v.Data[2*i:])))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(v.Data[2*i:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(v.Data[4*i:])))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data[4*i:])))
	}
	return math.NaN()
}

// Scaled returns a new float64 copy holding slope*raw + intercept.
func (v *Volume) Scaled(slope, intercept float64) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = slope*v.At(i) + intercept
	}
	return out
}

// SliceLen is the number of samples in one x-y plane.
func (v *Volume) SliceLen() int {
	if len(v.Shape) < 2 {
		return v.Shape[0]
	}
	return v.Shape[0] * v.Shape[1]
}

// Slice returns the raw values of plane z of volume t as float64.
func (v *Volume) Slice(z, t int) ([]float64, error) {
	nz, nt := 1, 1
	if len(v.Shape) > 2 {
		nz = v.Shape[2]
	}
	if len(v.Shape) > 3 {
		nt = v.Shape[3]
	}
	if z < 0 || z >= nz || t < 0 || t >= nt {
		return nil, fmt.Errorf("slice (%d,%d) out of range for shape %v", z, t, v.Shape)
	}
	n := v.SliceLen()
	start := (t*nz + z) * n
	out := make([]float64, n)
	for i := range out {
		out[i] = v.At(start + i)
	}
	return out, nil
}

// MinMax returns the smallest and largest value of vals.
func MinMax(vals []float64) (lo, hi float64, ok bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	lo, hi = vals[0], vals[0]
	for _, x := range vals[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi, true
}

// EncodeInt16 packs values as little-endian int16 samples.
func EncodeInt16(vals []int16) []byte {
	out := make([]byte, 2*len(vals))
	for i, x := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(x))
	}
	return out
}

// EncodeUint16 packs values as little-endian uint16 samples.
func EncodeUint16(vals []uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, x := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], x)
	}
	return out
}
