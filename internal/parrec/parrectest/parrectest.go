// Package parrectest writes small synthetic PAR/REC pairs for tests.
//
// Sample values are deterministic for a given seed. The REC is written in
// NIfTI order (slice fastest, then dynamic), so Fixture.Raw equals both the
// REC bytes and the bytes a converter must store.
package parrectest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Spec describes the fixture to generate.
type Spec struct {
	Dir  string
	Name string // file name without extension

	Version  string // "V4", "V4.1" or "V4.2"
	X, Y     int
	Slices   int
	Dynamics int
	Bits     int // 8 or 16

	RescaleSlope     float64
	RescaleIntercept float64
	ScaleSlope       float64

	PatientName    string
	ExamName       string
	ProtocolName   string
	ExamDateTime   string
	RepetitionTime float64

	Angulation   [3]float64
	OffCentre    [3]float64
	PixelSpacing [2]float64
	Thickness    float64
	Gap          float64
	Orientation  int

	UpperCase bool // .PAR/.REC instead of .par/.rec
	Seed      uint64
	MaxValue  int
	// DropImages removes that many images from the end of the REC.
	DropImages int
	// Interleaved writes images slice by slice with the dynamics inner, as
	// scanners export many functional series. Raw stays in NIfTI order.
	Interleaved bool
}

// Default returns a small anatomical 16-bit V4.2 series.
func Default(dir, name string) Spec {
	return Spec{
		Dir:              dir,
		Name:             name,
		Version:          "V4.2",
		X:                4,
		Y:                3,
		Slices:           2,
		Dynamics:         1,
		Bits:             16,
		RescaleSlope:     2.5,
		RescaleIntercept: -10,
		ScaleSlope:       0.5,
		PatientName:      "Doe^Jane",
		ExamName:         "BRAIN",
		ProtocolName:     "T1W_3D",
		ExamDateTime:     "2012.09.13 /  08:37:08",
		RepetitionTime:   8.1,
		PixelSpacing:     [2]float64{1, 1},
		Thickness:        2,
		Orientation:      1,
		UpperCase:        true,
		Seed:             42,
		MaxValue:         4000,
	}
}

// Fixture is what Write produced.
type Fixture struct {
	PAR    string
	REC    string
	Raw    []byte    // samples in NIfTI order, little endian
	Values []float64 // decoded samples, same order
}

// Write generates the PAR text and the REC samples.
func Write(s Spec) (*Fixture, error) {
	if s.Bits != 8 && s.Bits != 16 {
		return nil, fmt.Errorf("unsupported bits %d", s.Bits)
	}
	if s.Dynamics < 1 {
		s.Dynamics = 1
	}
	parExt, recExt := ".par", ".rec"
	if s.UpperCase {
		parExt, recExt = ".PAR", ".REC"
	}
	f := &Fixture{
		PAR: filepath.Join(s.Dir, s.Name+parExt),
		REC: filepath.Join(s.Dir, s.Name+recExt),
	}

	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	images := s.Slices * s.Dynamics
	perImage := s.X * s.Y
	maxValue := s.MaxValue
	if maxValue <= 0 {
		maxValue = 1 << (s.Bits - 1)
	}
	var raw bytes.Buffer
	for i := 0; i < images*perImage; i++ {
		v := rng.IntN(maxValue)
		f.Values = append(f.Values, float64(v))
		if s.Bits == 8 {
			raw.WriteByte(byte(v))
		} else {
			_ = binary.Write(&raw, binary.LittleEndian, int16(v))
		}
	}
	f.Raw = raw.Bytes()

	rec := f.Raw
	if s.Interleaved {
		imageBytes := perImage * s.Bits / 8
		rec = make([]byte, 0, len(f.Raw))
		for _, p := range recOrder(s) {
			at := p.nifti(s) * imageBytes
			rec = append(rec, f.Raw[at:at+imageBytes]...)
		}
	}
	if s.DropImages > 0 {
		rec = rec[:len(rec)-s.DropImages*perImage*s.Bits/8]
	}
	if err := os.WriteFile(f.REC, rec, 0644); err != nil {
		return nil, fmt.Errorf("write REC: %w", err)
	}

	text, err := charmap.ISO8859_1.NewEncoder().String(parText(s))
	if err != nil {
		return nil, fmt.Errorf("encode PAR: %w", err)
	}
	if err := os.WriteFile(f.PAR, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write PAR: %w", err)
	}
	return f, nil
}

func parText(s Spec) string {
	var b strings.Builder
	b.WriteString("# === DATA DESCRIPTION FILE ======================================================\n")
	b.WriteString("#\n")
	fmt.Fprintf(&b, "# Dataset name: C:\\export\\%s\n", s.Name)
	b.WriteString("#\n")
	fmt.Fprintf(&b, "# CLINICAL TRYOUT             Research image export tool     %s\n", s.Version)
	b.WriteString("#\n")
	b.WriteString("# === GENERAL INFORMATION ========================================================\n")
	b.WriteString("#\n")
	general := [][2]string{
		{"Patient name", s.PatientName},
		{"Examination name", s.ExamName},
		{"Protocol name", s.ProtocolName},
		{"Examination date/time", s.ExamDateTime},
		{"Series Type", "Image   MRSERIES"},
		{"Acquisition nr", "3"},
		{"Reconstruction nr", "1"},
		{"Max. number of cardiac phases", "1"},
		{"Max. number of echoes", "1"},
		{"Max. number of slices/locations", fmt.Sprint(s.Slices)},
		{"Max. number of dynamics", fmt.Sprint(s.Dynamics)},
		{"Patient position", "Head First Supine"},
		{"Preparation direction", "Anterior-Posterior"},
		{"Scan resolution  (x, y)", fmt.Sprintf("%d  %d", s.X, s.Y)},
		{"Repetition time [ms]", fmt.Sprintf("%.3f", s.RepetitionTime)},
		{"FOV (ap,fh,rl) [mm]", fmt.Sprintf("%.3f  %.3f  %.3f", float64(s.Y)*s.PixelSpacing[1], float64(s.Slices)*(s.Thickness+s.Gap), float64(s.X)*s.PixelSpacing[0])},
		{"Angulation midslice(ap,fh,rl)[degr]", fmt.Sprintf("%.3f  %.3f  %.3f", s.Angulation[0], s.Angulation[1], s.Angulation[2])},
		{"Off Centre midslice(ap,fh,rl) [mm]", fmt.Sprintf("%.3f  %.3f  %.3f", s.OffCentre[0], s.OffCentre[1], s.OffCentre[2])},
	}
	for _, kv := range general {
		fmt.Fprintf(&b, ".    %-35s:   %s\n", kv[0], kv[1])
	}
	b.WriteString("#\n")
	b.WriteString("# === IMAGE INFORMATION ==========================================================\n")
	b.WriteString("#\n")

	for index, p := range recOrder(s) {
		b.WriteString(imageRow(s, p.slice, p.dyn, index))
		b.WriteByte('\n')
	}
	b.WriteString("\n# === END OF DATA DESCRIPTION FILE ===============================================\n")
	return b.String()
}

// position is a 1-based (slice, dynamic) pair.
type position struct{ slice, dyn int }

func (p position) nifti(s Spec) int {
	return (p.dyn-1)*s.Slices + (p.slice - 1)
}

// recOrder lists images in the order they are stored in the REC and listed
// in the PAR.
func recOrder(s Spec) []position {
	var out []position
	if s.Interleaved {
		for sl := 1; sl <= s.Slices; sl++ {
			for dyn := 1; dyn <= s.Dynamics; dyn++ {
				out = append(out, position{sl, dyn})
			}
		}
		return out
	}
	for dyn := 1; dyn <= s.Dynamics; dyn++ {
		for sl := 1; sl <= s.Slices; sl++ {
			out = append(out, position{sl, dyn})
		}
	}
	return out
}

func imageRow(s Spec, slice, dyn, index int) string {
	cols := []string{
		fmt.Sprint(slice), "1", fmt.Sprint(dyn), "1", "0", "2", fmt.Sprint(index),
		fmt.Sprint(s.Bits), "100", fmt.Sprint(s.X), fmt.Sprint(s.Y),
		fmt.Sprintf("%.5f", s.RescaleIntercept), fmt.Sprintf("%.5f", s.RescaleSlope), fmt.Sprintf("%.6e", s.ScaleSlope),
		"1070", "1860",
		fmt.Sprintf("%.2f", s.Angulation[0]), fmt.Sprintf("%.2f", s.Angulation[1]), fmt.Sprintf("%.2f", s.Angulation[2]),
		fmt.Sprintf("%.2f", s.OffCentre[0]), fmt.Sprintf("%.2f", s.OffCentre[1]), fmt.Sprintf("%.2f", s.OffCentre[2]),
		fmt.Sprintf("%.3f", s.Thickness), fmt.Sprintf("%.3f", s.Gap),
		"0", fmt.Sprint(s.Orientation), "0", "2",
		fmt.Sprintf("%.3f", s.PixelSpacing[0]), fmt.Sprintf("%.3f", s.PixelSpacing[1]),
		"3.70", fmt.Sprintf("%.2f", float64(dyn-1)*s.RepetitionTime/1000), "0.00", "0.00",
		"1", "8.00", "0", "0", "0", "1", "0.0",
	}
	if s.Version == "V4.1" || s.Version == "V4.2" {
		cols = append(cols, "1", "1", "8", "0", "0.000", "0.000", "0.000")
	}
	if s.Version == "V4.2" {
		cols = append(cols, "1")
	}
	return " " + strings.Join(cols, " ")
}
