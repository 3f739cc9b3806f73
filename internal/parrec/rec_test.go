package parrec_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/parrec"
	"github.com/mrsinham/recforge/internal/parrec/parrectest"
	"github.com/mrsinham/recforge/internal/source"
)

func TestLoader_Load(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "anat")
	spec.PatientName = "Müller^Jörg"
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}

	img, err := parrec.Loader{}.Load(fx.PAR, source.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	h := img.Header
	if h.PatientName != "Müller^Jörg" || h.ExamName != "BRAIN" || h.ProtocolName != "T1W_3D" {
		t.Errorf("names = %q %q %q", h.PatientName, h.ExamName, h.ProtocolName)
	}
	if h.ExamDateTime != "2012.09.13 /  08:37:08" {
		t.Errorf("date/time = %q", h.ExamDateTime)
	}
	if h.MaxDynamics != 1 || h.RepetitionTime != 8.1 {
		t.Errorf("dynamics/TR = %d/%v", h.MaxDynamics, h.RepetitionTime)
	}

	wantScaling := map[source.Method]source.Coefficients{
		source.DV: {Slope: 2.5, Intercept: -10},
		source.FP: {Slope: 2, Intercept: -10 / (2.5 * 0.5)},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	if diff := cmp.Diff(wantScaling, h.Scaling, approx); diff != "" {
		t.Errorf("Scaling mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{4, 3, 2}, img.Volume.Shape); diff != "" {
		t.Errorf("Shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fx.Raw, img.Volume.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}

	geom, ok := h.Geometry.(affine.Angulated)
	if !ok {
		t.Fatalf("Geometry = %T, want affine.Angulated", h.Geometry)
	}
	if geom.Zooms != [3]float64{1, 1, 2} || geom.Orientation != affine.Transverse {
		t.Errorf("geometry = %+v", geom)
	}
	if len(h.VolumeLabels) != 0 {
		t.Errorf("single volume should have no labels, got %v", h.VolumeLabels)
	}
}

func TestLoader_LoadDynamics(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "fmri")
	spec.Version = "V4.1"
	spec.Dynamics = 3
	spec.RepetitionTime = 2000
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}

	img, err := parrec.Loader{}.Load(fx.PAR, source.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]int{4, 3, 2, 3}, img.Volume.Shape); diff != "" {
		t.Errorf("Shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fx.Raw, img.Volume.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	want := []source.Label{{Name: "dynamic scan number", Values: []string{"1", "2", "3"}}}
	if diff := cmp.Diff(want, img.Header.VolumeLabels); diff != "" {
		t.Errorf("VolumeLabels mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_Truncated(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "short")
	spec.Dynamics = 3
	spec.DropImages = 1
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parrec.Loader{}.Load(fx.PAR, source.Options{})
	if !errors.Is(err, parrec.ErrTruncated) {
		t.Fatalf("Load() error = %v, want ErrTruncated", err)
	}

	img, err := parrec.Loader{}.Load(fx.PAR, source.Options{PermitTruncated: true})
	if err != nil {
		t.Fatalf("Load(permit): %v", err)
	}
	if diff := cmp.Diff([]int{4, 3, 2, 2}, img.Volume.Shape); diff != "" {
		t.Errorf("Shape mismatch (-want +got):\n%s", diff)
	}
	if len(img.Header.Warnings) == 0 {
		t.Error("expected a truncation warning")
	}
	perVolume := 4 * 3 * 2 * 2
	if diff := cmp.Diff(fx.Raw[:2*perVolume], img.Volume.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if got := img.Header.VolumeLabels[0].Values; len(got) != 2 {
		t.Errorf("labels = %v, want two entries", got)
	}
}

func TestLoader_TruncatedSingleVolume(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "tiny")
	spec.DropImages = 1
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}
	_, err = parrec.Loader{}.Load(fx.PAR, source.Options{PermitTruncated: true})
	if !errors.Is(err, parrec.ErrTruncated) {
		t.Errorf("Load() error = %v, want ErrTruncated", err)
	}
}

func TestFindREC(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		par     string
		want    string
		wantErr bool
	}{
		{name: "upper", files: []string{"a.PAR", "a.REC"}, par: "a.PAR", want: "a.REC"},
		{name: "lower", files: []string{"a.par", "a.rec"}, par: "a.par", want: "a.rec"},
		{name: "mixed", files: []string{"a.PAR", "a.rec"}, par: "a.PAR", want: "a.rec"},
		{name: "missing", files: []string{"a.PAR"}, par: "a.PAR", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
					t.Fatal(err)
				}
			}
			got, err := parrec.FindREC(filepath.Join(dir, tt.par))
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindREC() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != filepath.Join(dir, tt.want) {
				t.Errorf("FindREC() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoader_InterleavedREC(t *testing.T) {
	for _, version := range []string{"V4", "V4.1", "V4.2"} {
		t.Run(version, func(t *testing.T) {
			spec := parrectest.Default(t.TempDir(), "inter")
			spec.Version = version
			spec.Dynamics = 3
			spec.Interleaved = true
			fx, err := parrectest.Write(spec)
			if err != nil {
				t.Fatal(err)
			}
			rec, err := os.ReadFile(fx.REC)
			if err != nil {
				t.Fatal(err)
			}
			if cmp.Equal(rec, fx.Raw) {
				t.Fatal("fixture REC is already in NIfTI order")
			}

			img, err := parrec.Loader{}.Load(fx.PAR, source.Options{})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff([]int{4, 3, 2, 3}, img.Volume.Shape); diff != "" {
				t.Errorf("Shape mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(fx.Raw, img.Volume.Data); diff != "" {
				t.Errorf("Data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoader_ZeroScaleSlope(t *testing.T) {
	tests := []struct {
		name    string
		rescale float64
		scale   float64
		wantWhy string
	}{
		{"scale slope", 2.5, 0, "scale slope is 0"},
		{"rescale slope", 0, 0.5, "rescale slope is 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := parrectest.Default(t.TempDir(), "zero")
			spec.RescaleSlope = tt.rescale
			spec.ScaleSlope = tt.scale
			fx, err := parrectest.Write(spec)
			if err != nil {
				t.Fatal(err)
			}
			img, err := parrec.Loader{}.Load(fx.PAR, source.Options{})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, ok := img.Header.Scaling[source.FP]; ok {
				t.Error("fp coefficients should be absent")
			}
			if got := img.Header.Unscalable[source.FP]; got != tt.wantWhy {
				t.Errorf("Unscalable[fp] = %q, want %q", got, tt.wantWhy)
			}
			if dv := img.Header.Scaling[source.DV]; dv.Slope != tt.rescale {
				t.Errorf("dv slope = %v, want %v kept verbatim", dv.Slope, tt.rescale)
			}
		})
	}
}
