// Package dicomtest writes small synthetic multi-frame MR DICOM files for
// tests.
package dicomtest

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Spec describes the file to generate.
type Spec struct {
	Dir  string
	Name string // file name, ".dcm" is appended

	Rows, Cols int
	Frames     int
	// TemporalPositions splits the frames into volumes when above 1.
	TemporalPositions int

	PatientName      string
	StudyDescription string
	ProtocolName     string
	RescaleSlope     float64
	RescaleIntercept float64

	PixelSpacing [2]float64 // row, column
	Thickness    float64
	Orientation  [6]float64
	Position     [3]float64

	Seed     uint64
	MaxValue int
}

// Default returns a 3-frame axial series.
func Default(dir, name string) Spec {
	return Spec{
		Dir:              dir,
		Name:             name,
		Rows:             3,
		Cols:             4,
		Frames:           3,
		PatientName:      "Doe^Jane",
		StudyDescription: "BRAIN",
		ProtocolName:     "T2W_TSE",
		RescaleSlope:     2,
		RescaleIntercept: -5,
		PixelSpacing:     [2]float64{0.75, 0.5},
		Thickness:        3,
		Orientation:      [6]float64{1, 0, 0, 0, 1, 0},
		Position:         [3]float64{-10, -20, 30},
		Seed:             7,
		MaxValue:         3000,
	}
}

// Fixture is what Write produced.
type Fixture struct {
	Path   string
	Raw    []byte // samples as little-endian uint16, frame after frame
	Values []float64
}

// Write generates pixel data and writes the file.
func Write(s Spec) (*Fixture, error) {
	ds, fx := Dataset(s)
	fx.Path = filepath.Join(s.Dir, s.Name+".dcm")

	f, err := os.Create(fx.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if err := dicom.Write(f, ds); err != nil {
		return nil, fmt.Errorf("write DICOM: %w", err)
	}
	return fx, nil
}

// Dataset builds the in-memory dataset without writing it.
func Dataset(s Spec) (dicom.Dataset, *Fixture) {
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	pixelsPerFrame := s.Rows * s.Cols
	fx := &Fixture{}

	frames := make([]*frame.Frame, s.Frames)
	for i := range frames {
		nf := frame.NewNativeFrame[uint16](16, s.Rows, s.Cols, pixelsPerFrame, 1)
		for p := 0; p < pixelsPerFrame; p++ {
			v := uint16(rng.IntN(s.MaxValue))
			nf.RawData[p] = v
			fx.Raw = binary.LittleEndian.AppendUint16(fx.Raw, v)
			fx.Values = append(fx.Values, float64(v))
		}
		frames[i] = &frame.Frame{Encapsulated: false, NativeData: nf}
	}

	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{"1.2.826.0.1.3680043.8.498.42"}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.SOPInstanceUID, []string{"1.2.826.0.1.3680043.8.498.42"}),
		mustNewElement(tag.StudyDate, []string{"20240102"}),
		mustNewElement(tag.StudyTime, []string{"101500"}),
		mustNewElement(tag.Modality, []string{"MR"}),
		mustNewElement(tag.InstitutionName, []string{"General Hospital"}),
		mustNewElement(tag.StudyDescription, []string{s.StudyDescription}),
		mustNewElement(tag.PatientName, []string{s.PatientName}),
		mustNewElement(tag.ProtocolName, []string{s.ProtocolName}),
		mustNewElement(tag.SliceThickness, []string{decimal(s.Thickness)}),
		mustNewElement(tag.RepetitionTime, []string{"2500"}),
		mustNewElement(tag.ImagePositionPatient, []string{decimal(s.Position[0]), decimal(s.Position[1]), decimal(s.Position[2])}),
		mustNewElement(tag.ImageOrientationPatient, []string{
			decimal(s.Orientation[0]), decimal(s.Orientation[1]), decimal(s.Orientation[2]),
			decimal(s.Orientation[3]), decimal(s.Orientation[4]), decimal(s.Orientation[5]),
		}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.NumberOfFrames, []string{fmt.Sprint(s.Frames)}),
		mustNewElement(tag.Rows, []int{s.Rows}),
		mustNewElement(tag.Columns, []int{s.Cols}),
		mustNewElement(tag.PixelSpacing, []string{decimal(s.PixelSpacing[0]), decimal(s.PixelSpacing[1])}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.RescaleIntercept, []string{decimal(s.RescaleIntercept)}),
		mustNewElement(tag.RescaleSlope, []string{decimal(s.RescaleSlope)}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{Frames: frames}),
	}}
	if s.TemporalPositions > 1 {
		ds.Elements = append(ds.Elements, mustNewElement(tag.NumberOfTemporalPositions, []string{fmt.Sprint(s.TemporalPositions)}))
	}
	return ds, fx
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// decimal formats a float as a DICOM decimal string.
func decimal(f float64) string {
	return fmt.Sprintf("%.6g", f)
}
