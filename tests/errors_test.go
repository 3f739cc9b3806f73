package tests

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/recforge/internal/config"
	"github.com/mrsinham/recforge/internal/convert"
	"github.com/mrsinham/recforge/internal/parrec"
	"github.com/mrsinham/recforge/internal/parrec/parrectest"
	"github.com/mrsinham/recforge/internal/source"
)

// TestErrors_PerFile checks that each kind of broken input fails on its own
// and leaves no output behind.
func TestErrors_PerFile(t *testing.T) {
	src := t.TempDir()
	good, err := parrectest.Write(parrectest.Default(src, "good"))
	if err != nil {
		t.Fatal(err)
	}

	short := parrectest.Default(src, "short")
	short.Dynamics = 2
	short.DropImages = 1
	shortFx, err := parrectest.Write(short)
	if err != nil {
		t.Fatal(err)
	}

	noRec := parrectest.Default(src, "norec")
	noRecFx, err := parrectest.Write(noRec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(noRecFx.REC); err != nil {
		t.Fatal(err)
	}

	garbage := filepath.Join(src, "garbage.PAR")
	if err := os.WriteFile(garbage, []byte("not a PAR file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"truncated REC", shortFx.PAR, parrec.ErrTruncated},
		{"missing REC", noRecFx.PAR, nil},
		{"not a PAR file", garbage, nil},
		{"unknown extension", filepath.Join(src, "scan.img"), convert.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := convert.DefaultOptions()
			opts.OutputDir = t.TempDir()
			c := convert.New(opts, nil)

			results := c.Run(context.Background(), []string{tt.input, good.PAR})
			bad, ok := results[0], results[1]
			if bad.State != convert.StateFailed {
				t.Fatalf("State = %v, want failed", bad.State)
			}
			if tt.wantErr != nil && !errors.Is(bad.Err, tt.wantErr) {
				t.Errorf("error = %v, want %v", bad.Err, tt.wantErr)
			}
			if !strings.HasPrefix(bad.Err.Error(), tt.input+": ") {
				t.Errorf("error %q does not name the input", bad.Err)
			}
			if _, err := os.Stat(bad.Output); !os.IsNotExist(err) {
				t.Errorf("output for failed input exists: %v", err)
			}
			if ok.State != convert.StateDone {
				t.Errorf("following input State = %v (%v), want done", ok.State, ok.Err)
			}
		})
	}
}

// TestErrors_FPWithoutCoefficients uses a loader that only provides display
// values.
func TestErrors_FPWithoutCoefficients(t *testing.T) {
	fx, err := parrectest.Write(parrectest.Default(t.TempDir(), "dvonly"))
	if err != nil {
		t.Fatal(err)
	}
	opts := convert.DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Scaling = source.FP
	c := convert.New(opts, nil)
	c.SetLoader(".PAR", dvOnly{})

	res := c.Convert(fx.PAR)
	if !errors.Is(res.Err, convert.ErrUnknownMethod) {
		t.Errorf("error = %v, want ErrUnknownMethod", res.Err)
	}
	var fe *convert.FileError
	if errors.As(res.Err, &fe) && fe.State != convert.StateLoaded {
		t.Errorf("failed at %v, want after loading", fe.State)
	}
}

type dvOnly struct{}

func (dvOnly) Load(path string, o source.Options) (*source.Image, error) {
	img, err := parrec.Loader{}.Load(path, o)
	if err != nil {
		return nil, err
	}
	delete(img.Header.Scaling, source.FP)
	return img, nil
}

// TestErrors_ResolvedRangeInverted fixes the minimum above anything the
// volume holds.
func TestErrors_ResolvedRangeInverted(t *testing.T) {
	fx, err := parrectest.Write(parrectest.Default(t.TempDir(), "inv"))
	if err != nil {
		t.Fatal(err)
	}
	opts := convert.DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Min = convert.Bound{Value: 1e9}

	res := convert.New(opts, nil).Convert(fx.PAR)
	if !errors.Is(res.Err, convert.ErrInvertedRange) {
		t.Errorf("error = %v, want ErrInvertedRange", res.Err)
	}
}

// TestErrors_ConfigBeforeFiles checks that option errors are reported as
// ConfigError.
func TestErrors_ConfigBeforeFiles(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*config.Config)
		field string
	}{
		{"origin", func(c *config.Config) { c.Origin = "FOV" }, "origin"},
		{"scaling", func(c *config.Config) { c.Scaling = "none" }, "scaling"},
		{"minmax arity", func(c *config.Config) { c.MinMax = []string{"parse"} }, "minmax"},
		{"minmax value", func(c *config.Config) { c.MinMax = []string{"parse", "max"} }, "minmax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mod(cfg)
			_, err := cfg.Validate()
			var ce *convert.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}
