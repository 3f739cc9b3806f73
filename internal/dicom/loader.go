// Package dicom reads single-file (optionally multi-frame) DICOM images into
// the same header record the PAR/REC reader produces, so either can feed the
// converter.
package dicom

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/source"
	"github.com/mrsinham/recforge/internal/volume"
)

// PhilipsScaleSlope is the private MR scale slope, the DICOM counterpart of
// the PAR "scale slope" column.
var PhilipsScaleSlope = tag.Tag{Group: 0x2005, Element: 0x100E}

// Loader reads a DICOM file with suyashkumar/dicom.
type Loader struct{}

// Load implements source.Loader. Truncation does not apply to DICOM, the
// parser rejects short pixel data itself.
func (Loader) Load(path string, _ source.Options) (*source.Image, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse DICOM: %w", err)
	}
	return fromDataset(path, ds)
}

func fromDataset(path string, ds dicom.Dataset) (*source.Image, error) {
	rows, err := intOf(ds, tag.Rows)
	if err != nil {
		return nil, err
	}
	cols, err := intOf(ds, tag.Columns)
	if err != nil {
		return nil, err
	}
	bits, err := intOf(ds, tag.BitsAllocated)
	if err != nil {
		return nil, err
	}
	signed, _ := intOf(ds, tag.PixelRepresentation)
	dtype, err := dtypeFor(bits, signed == 1)
	if err != nil {
		return nil, err
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data: %w", err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected pixel data value %T", elem.Value.GetValue())
	}
	data, frames, err := nativeBytes(info)
	if err != nil {
		return nil, err
	}
	slices, temporal := frames, 1
	if n, err := intOf(ds, tag.NumberOfTemporalPositions); err == nil && n > 1 {
		if frames%n != 0 {
			return nil, fmt.Errorf("%d frames do not divide into %d temporal positions", frames, n)
		}
		slices, temporal = frames/n, n
	}
	shape := []int{cols, rows, slices}
	if temporal > 1 {
		shape = append(shape, temporal)
	}
	vol, err := volume.New(data, dtype, shape)
	if err != nil {
		return nil, err
	}

	h := &source.Header{
		Path:         path,
		Institution:  stringOf(ds, tag.InstitutionName),
		ExamName:     stringOf(ds, tag.StudyDescription),
		PatientName:  stringOf(ds, tag.PatientName),
		ProtocolName: stringOf(ds, tag.ProtocolName),
		MaxDynamics:  temporal,
		Scaling:      make(map[source.Method]source.Coefficients),
	}
	if h.ProtocolName == "" {
		h.ProtocolName = stringOf(ds, tag.SeriesDescription)
	}
	if date := stringOf(ds, tag.StudyDate); date != "" {
		h.ExamDateTime = date + " / " + stringOf(ds, tag.StudyTime)
	}
	if tr, err := floatsOf(ds, tag.RepetitionTime); err == nil && len(tr) > 0 {
		h.RepetitionTime = tr[0]
	}

	rs, ri := 1.0, 0.0
	if v, err := floatsOf(ds, tag.RescaleSlope); err == nil && len(v) > 0 {
		rs = v[0]
	}
	if v, err := floatsOf(ds, tag.RescaleIntercept); err == nil && len(v) > 0 {
		ri = v[0]
	}
	h.Scaling[source.DV] = source.Coefficients{Slope: rs, Intercept: ri}
	v, err := floatsOf(ds, PhilipsScaleSlope)
	switch {
	case err != nil || len(v) == 0:
		h.Unscalable = map[source.Method]string{source.FP: "no private scale slope (2005,100E)"}
	case v[0] == 0:
		h.Unscalable = map[source.Method]string{source.FP: "scale slope is 0"}
	case rs == 0:
		h.Unscalable = map[source.Method]string{source.FP: "rescale slope is 0"}
	default:
		h.Scaling[source.FP] = source.Coefficients{Slope: 1 / v[0], Intercept: ri / (rs * v[0])}
	}

	geom, warnings := geometry(ds, [3]int{cols, rows, slices})
	h.Geometry = geom
	h.Warnings = warnings
	return &source.Image{Header: h, Volume: vol}, nil
}

func dtypeFor(bits int, signed bool) (volume.DType, error) {
	switch {
	case bits == 8 && !signed:
		return volume.Uint8, nil
	case bits == 16 && signed:
		return volume.Int16, nil
	case bits == 16:
		return volume.Uint16, nil
	case bits == 32 && signed:
		return volume.Int32, nil
	}
	return "", fmt.Errorf("unsupported pixel layout: %d bits allocated, signed=%v", bits, signed)
}

// nativeBytes flattens every frame into little-endian samples. Frames are
// expected slice first, then temporal position.
func nativeBytes(info dicom.PixelDataInfo) ([]byte, int, error) {
	if len(info.Frames) == 0 {
		return nil, 0, fmt.Errorf("pixel data holds no frames")
	}
	var out []byte
	for i, f := range info.Frames {
		if f.Encapsulated {
			return nil, 0, fmt.Errorf("frame %d: compressed pixel data is not supported", i)
		}
		switch nf := f.NativeData.(type) {
		case *frame.NativeFrame[uint8]:
			out = append(out, nf.RawData...)
		case *frame.NativeFrame[uint16]:
			for _, v := range nf.RawData {
				out = binary.LittleEndian.AppendUint16(out, v)
			}
		case *frame.NativeFrame[uint32]:
			for _, v := range nf.RawData {
				out = binary.LittleEndian.AppendUint32(out, v)
			}
		default:
			return nil, 0, fmt.Errorf("frame %d: unsupported native frame %T", i, f.NativeData)
		}
	}
	return out, len(info.Frames), nil
}

// geometry reads the patient orientation tags. Missing tags fall back to an
// axial identity orientation at the origin, which is reported as a warning.
func geometry(ds dicom.Dataset, shape [3]int) (affine.Oriented, []string) {
	var warnings []string
	g := affine.Oriented{
		Shape: shape,
		Zooms: [3]float64{1, 1, 1},
		Row:   [3]float64{1, 0, 0},
		Col:   [3]float64{0, 1, 0},
	}
	if iop, err := floatsOf(ds, tag.ImageOrientationPatient); err == nil && len(iop) == 6 {
		copy(g.Row[:], iop[:3])
		copy(g.Col[:], iop[3:])
	} else {
		warnings = append(warnings, "no image orientation, assuming axial")
	}
	if ipp, err := floatsOf(ds, tag.ImagePositionPatient); err == nil && len(ipp) == 3 {
		copy(g.Position[:], ipp)
	} else {
		warnings = append(warnings, "no image position, assuming origin")
	}
	// PixelSpacing is row spacing first, i.e. the distance along a column.
	if ps, err := floatsOf(ds, tag.PixelSpacing); err == nil && len(ps) == 2 {
		g.Zooms[0], g.Zooms[1] = ps[1], ps[0]
	}
	for _, t := range []tag.Tag{tag.SpacingBetweenSlices, tag.SliceThickness} {
		if v, err := floatsOf(ds, t); err == nil && len(v) > 0 && v[0] > 0 {
			g.Zooms[2] = v[0]
			break
		}
	}
	return g, warnings
}

func stringOf(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return ""
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// floatsOf accepts decimal strings (DS) as well as binary floats (FL, FD).
func floatsOf(ds dicom.Dataset, t tag.Tag) ([]float64, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, err
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("tag %v: %w", t, err)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tag %v: unexpected value %T", t, v)
	}
}

func intOf(ds dicom.Dataset, t tag.Tag) (int, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("tag %v: %w", t, err)
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case []string:
		if len(v) > 0 {
			return strconv.Atoi(strings.TrimSpace(v[0]))
		}
	}
	return 0, fmt.Errorf("tag %v: no integer value", t)
}
