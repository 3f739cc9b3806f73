package tests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/convert"
	"github.com/mrsinham/recforge/internal/nifti"
	"github.com/mrsinham/recforge/internal/parrec/parrectest"
	"github.com/mrsinham/recforge/internal/util"
)

func readNIfTI(t *testing.T, path string) (*nifti.Header, []nifti.Extension, []byte) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	r := bytes.NewReader(raw)
	if filepath.Ext(path) == ".gz" {
		zr, err := gzip.NewReader(r)
		if err != nil {
			t.Fatalf("gzip %s: %v", path, err)
		}
		h, exts, data, err := nifti.Read(zr)
		if err != nil {
			t.Fatalf("parse %s: %v", path, err)
		}
		return h, exts, data
	}
	h, exts, data, err := nifti.Read(r)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return h, exts, data
}

// TestPipeline_Versions converts the same acquisition written with each PAR
// version and checks that the outputs agree.
func TestPipeline_Versions(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	var inputs []string
	var raw []byte
	for _, v := range []string{"V4", "V4.1", "V4.2"} {
		spec := parrectest.Default(src, "series_"+v)
		spec.Version = v
		spec.Dynamics = 2
		spec.RepetitionTime = 3000
		spec.Angulation = [3]float64{5, -3, 10}
		spec.OffCentre = [3]float64{12, -4, 7.5}
		fx, err := parrectest.Write(spec)
		if err != nil {
			t.Fatal(err)
		}
		inputs = append(inputs, fx.PAR)
		raw = fx.Raw
	}

	opts := convert.DefaultOptions()
	opts.OutputDir = out
	results := convert.New(opts, util.Discard()).Run(context.Background(), inputs)
	if failed := convert.Failures(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed[0].Err)
	}

	first, _, firstData := readNIfTI(t, results[0].Output)
	for _, r := range results[1:] {
		h, _, data := readNIfTI(t, r.Output)
		if !bytes.Equal(data, firstData) {
			t.Errorf("%s: samples differ from %s", r.Output, results[0].Output)
		}
		if !mat.EqualApprox(h.Sform(), first.Sform(), 1e-5) {
			t.Errorf("%s: sform differs:\n%v\nvs\n%v", r.Output, mat.Formatted(h.Sform()), mat.Formatted(first.Sform()))
		}
		if h.Dim != first.Dim || h.Pixdim != first.Pixdim {
			t.Errorf("%s: dim/pixdim differ", r.Output)
		}
	}
	if !bytes.Equal(firstData, raw) {
		t.Error("samples differ from the REC")
	}
	if first.Pixdim[4] != 3000 {
		t.Errorf("pixdim[4] = %v, want 3000", first.Pixdim[4])
	}
}

// TestPipeline_FOVOrigin checks that the fov origin puts the centre voxel at
// zero while scanner keeps the off-centre.
func TestPipeline_FOVOrigin(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "centred")
	spec.X, spec.Y, spec.Slices = 5, 7, 3
	spec.OffCentre = [3]float64{10, 20, 30}
	spec.Angulation = [3]float64{0, 15, 0}
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}

	centre := mat.NewVecDense(4, []float64{2, 3, 1, 1})
	for _, origin := range affine.AllOrigins() {
		t.Run(string(origin), func(t *testing.T) {
			opts := convert.DefaultOptions()
			opts.OutputDir = t.TempDir()
			opts.Origin = origin
			res := convert.New(opts, nil).Convert(fx.PAR)
			if res.Err != nil {
				t.Fatalf("Convert() error = %v", res.Err)
			}
			h, _, _ := readNIfTI(t, res.Output)

			var p mat.VecDense
			p.MulVec(h.Sform(), centre)
			norm := mat.Norm(p.SliceVec(0, 3), 2)
			switch origin {
			case affine.FOV:
				if norm > 1e-4 {
					t.Errorf("centre voxel maps to %v, want origin", mat.Formatted(p.T()))
				}
			case affine.Scanner:
				if norm < 1 {
					t.Errorf("centre voxel maps to %v, want the off-centre", mat.Formatted(p.T()))
				}
			}
		})
	}
}

// TestPipeline_EightBit covers 8-bit RECs with a lowercase pair.
func TestPipeline_EightBit(t *testing.T) {
	spec := parrectest.Default(t.TempDir(), "small")
	spec.Bits = 8
	spec.MaxValue = 200
	spec.UpperCase = false
	fx, err := parrectest.Write(spec)
	if err != nil {
		t.Fatal(err)
	}

	opts := convert.DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Compressed = true
	res := convert.New(opts, nil).Convert(fx.PAR)
	if res.Err != nil {
		t.Fatalf("Convert() error = %v", res.Err)
	}
	h, _, data := readNIfTI(t, res.Output)
	if h.Bitpix != 8 {
		t.Errorf("bitpix = %d, want 8", h.Bitpix)
	}
	if !bytes.Equal(data, fx.Raw) {
		t.Error("samples differ from the REC")
	}
}
