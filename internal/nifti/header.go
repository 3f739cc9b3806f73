// Package nifti writes and reads single-file NIfTI-1 (.nii) containers.
//
// Layout, following nifti1.h: a 348-byte header, a 4-byte extender, zero or
// more extensions, then the voxel data starting at vox_offset.
package nifti

import (
	"bytes"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/recforge/internal/volume"
)

// Header is the NIfTI-1 header, field for field.
type Header struct {
	SizeofHdr     int32      // Must be 348
	DataType      [10]byte   // Unused
	DbName        [18]byte   // Unused
	Extents       int32      // Unused
	SessionError  int16      // Unused
	Regular       byte       // Unused
	DimInfo       byte       // MRI slice ordering
	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	Datatype      int16      // Defines data type
	Bitpix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	Pixdim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     byte       // Slice timing order
	XyztUnits     byte       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	Toffset       float32    // Time axis shift
	Glmax         int32      // Unused
	Glmin         int32      // Unused
	Descrip       [80]byte   // Any text you like
	AuxFile       [24]byte   // Auxiliary filename
	QformCode     int16      // NIFTI_XFORM_* code
	SformCode     int16      // NIFTI_XFORM_* code
	QuaternB      float32    // Quaternion b param
	QuaternC      float32    // Quaternion c param
	QuaternD      float32    // Quaternion d param
	QoffsetX      float32    // Quaternion x shift
	QoffsetY      float32    // Quaternion y shift
	QoffsetZ      float32    // Quaternion z shift
	SrowX         [4]float32 // 1st row affine transform
	SrowY         [4]float32 // 2nd row affine transform
	SrowZ         [4]float32 // 3rd row affine transform
	IntentName    [16]byte   // 'name' or meaning of data
	Magic         [4]byte    // "n+1\0" for single file
}

const (
	// HeaderSize is sizeof_hdr for NIfTI-1.
	HeaderSize = 348
	// MinDataOffset is the first byte after header and extender.
	MinDataOffset = HeaderSize + 4
	// MaxDescription is the capacity of the descrip field.
	MaxDescription = 80
)

// XformScanner is NIFTI_XFORM_SCANNER_ANAT.
const XformScanner = 1

var magicSingle = [4]byte{'n', '+', '1', 0}

// Unit is a NIFTI_UNITS_* code.
type Unit byte

const (
	UnitUnknown Unit = 0
	UnitMeter   Unit = 1
	UnitMM      Unit = 2
	UnitMicron  Unit = 3
	UnitSec     Unit = 8
	UnitMsec    Unit = 16
	UnitUsec    Unit = 24
)

// String returns the unit name as used on the command line and in logs.
func (u Unit) String() string {
	switch u {
	case UnitMeter:
		return "meter"
	case UnitMM:
		return "mm"
	case UnitMicron:
		return "micron"
	case UnitSec:
		return "sec"
	case UnitMsec:
		return "msec"
	case UnitUsec:
		return "usec"
	default:
		return "unknown"
	}
}

// NewHeader returns a header with unit pixdims and identity scaling.
func NewHeader() *Header {
	h := &Header{
		SizeofHdr: HeaderSize,
		Regular:   'r',
		SclSlope:  1,
		Magic:     magicSingle,
		VoxOffset: MinDataOffset,
	}
	for i := range h.Pixdim {
		h.Pixdim[i] = 1
	}
	for i := range h.Dim {
		h.Dim[i] = 1
	}
	h.Dim[0] = 0
	return h
}

// SetXYZTUnits packs the spatial and temporal units.
func (h *Header) SetXYZTUnits(space, time Unit) {
	h.XyztUnits = byte(space&0x07) | byte(time&0x38)
}

// XYZTUnits unpacks the spatial and temporal units.
func (h *Header) XYZTUnits() (space, time Unit) {
	return Unit(h.XyztUnits & 0x07), Unit(h.XyztUnits & 0x38)
}

// SetDescription stores s, truncated to the field capacity.
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:], s)
}

// Description returns the descrip field up to the first NUL.
func (h *Header) Description() string {
	if i := bytes.IndexByte(h.Descrip[:], 0); i >= 0 {
		return string(h.Descrip[:i])
	}
	return string(h.Descrip[:])
}

// SetSlopeInter records the intensity scaling consumers should apply.
func (h *Header) SetSlopeInter(slope, inter float64) {
	h.SclSlope = float32(slope)
	h.SclInter = float32(inter)
}

// SetAffine stores m as sform and qform, both with scanner code. The qform
// keeps only the rotation and zooms of m.
func (h *Header) SetAffine(m mat.Matrix) error {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return fmt.Errorf("affine must be 4x4, got %dx%d", r, c)
	}
	for c := 0; c < 4; c++ {
		h.SrowX[c] = float32(m.At(0, c))
		h.SrowY[c] = float32(m.At(1, c))
		h.SrowZ[c] = float32(m.At(2, c))
	}
	h.SformCode = XformScanner

	var zooms [3]float64
	var r [3][3]float64
	for c := 0; c < 3; c++ {
		zooms[c] = math.Sqrt(m.At(0, c)*m.At(0, c) + m.At(1, c)*m.At(1, c) + m.At(2, c)*m.At(2, c))
		if zooms[c] == 0 {
			return fmt.Errorf("affine column %d is zero", c)
		}
		for row := 0; row < 3; row++ {
			r[row][c] = m.At(row, c) / zooms[c]
		}
	}

	qfac := 1.0
	if mat.Det(mat.NewDense(3, 3, []float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	})) < 0 {
		qfac = -1
		r[0][2], r[1][2], r[2][2] = -r[0][2], -r[1][2], -r[2][2]
	}

	b, c, d := quaternion(r)
	h.QuaternB, h.QuaternC, h.QuaternD = float32(b), float32(c), float32(d)
	h.QoffsetX = float32(m.At(0, 3))
	h.QoffsetY = float32(m.At(1, 3))
	h.QoffsetZ = float32(m.At(2, 3))
	h.QformCode = XformScanner
	h.Pixdim[0] = float32(qfac)
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(zooms[i])
	}
	return nil
}

// quaternion returns (b, c, d) of the unit quaternion for a proper rotation,
// with a >= 0.
func quaternion(r [3][3]float64) (b, c, d float64) {
	a := r[0][0] + r[1][1] + r[2][2] + 1
	if a > 0.5 {
		a = 0.5 * math.Sqrt(a)
		b = 0.25 * (r[2][1] - r[1][2]) / a
		c = 0.25 * (r[0][2] - r[2][0]) / a
		d = 0.25 * (r[1][0] - r[0][1]) / a
		return b, c, d
	}

	xd := 1 + r[0][0] - (r[1][1] + r[2][2])
	yd := 1 + r[1][1] - (r[0][0] + r[2][2])
	zd := 1 + r[2][2] - (r[0][0] + r[1][1])
	switch {
	case xd > 1:
		b = 0.5 * math.Sqrt(xd)
		c = 0.25 * (r[0][1] + r[1][0]) / b
		d = 0.25 * (r[0][2] + r[2][0]) / b
		a = 0.25 * (r[2][1] - r[1][2]) / b
	case yd > 1:
		c = 0.5 * math.Sqrt(yd)
		b = 0.25 * (r[0][1] + r[1][0]) / c
		d = 0.25 * (r[1][2] + r[2][1]) / c
		a = 0.25 * (r[0][2] - r[2][0]) / c
	default:
		d = 0.5 * math.Sqrt(zd)
		b = 0.25 * (r[0][2] + r[2][0]) / d
		c = 0.25 * (r[1][2] + r[2][1]) / d
		a = 0.25 * (r[1][0] - r[0][1]) / d
	}
	if a < 0 {
		b, c, d = -b, -c, -d
	}
	return b, c, d
}

// Sform returns the stored sform as a 4x4 matrix.
func (h *Header) Sform() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for c := 0; c < 4; c++ {
		m.Set(0, c, float64(h.SrowX[c]))
		m.Set(1, c, float64(h.SrowY[c]))
		m.Set(2, c, float64(h.SrowZ[c]))
	}
	m.Set(3, 3, 1)
	return m
}

// Finalize fills the layout fields: dim, datatype, bitpix and vox_offset.
func (h *Header) Finalize(dtype volume.DType, shape []int, exts []Extension) error {
	code := dtype.NIfTICode()
	if code == 0 {
		return fmt.Errorf("no NIfTI datatype for %q", dtype)
	}
	if len(shape) == 0 || len(shape) > 7 {
		return fmt.Errorf("invalid dimensionality %d", len(shape))
	}
	h.Dim[0] = int16(len(shape))
	for i := 1; i < 8; i++ {
		h.Dim[i] = 1
	}
	for i, s := range shape {
		if s <= 0 || s > math.MaxInt16 {
			return fmt.Errorf("dimension %d out of range: %d", i, s)
		}
		h.Dim[i+1] = int16(s)
	}
	h.Datatype = code
	h.Bitpix = int16(dtype.Size() * 8)
	h.VoxOffset = float32(DataOffset(exts))
	return nil
}
