// Package convert turns one scanner volume into a NIfTI-1 file: it decides
// the scaling, calibration range, units, description and extensions, then
// writes the header and the untouched raw samples.
package convert

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/dicom"
	"github.com/mrsinham/recforge/internal/nifti"
	"github.com/mrsinham/recforge/internal/parrec"
	"github.com/mrsinham/recforge/internal/preview"
	"github.com/mrsinham/recforge/internal/source"
	"github.com/mrsinham/recforge/internal/util"
)

const previewSize = 256

// Options are the validated settings shared by every file of a batch.
type Options struct {
	OutputDir   string
	Compressed  bool
	Origin      affine.Origin
	Min, Max    Bound
	StoreHeader bool
	Scaling     source.Method

	Overwrite       bool
	PermitTruncated bool
	VolumeInfo      bool
	Preview         bool
}

// DefaultOptions mirrors the command-line defaults.
func DefaultOptions() Options {
	return Options{
		OutputDir: ".",
		Origin:    affine.Scanner,
		Min:       Bound{Parse: true},
		Max:       Bound{Parse: true},
		Scaling:   source.DV,
	}
}

// Converter converts files one at a time. It holds no per-file state.
type Converter struct {
	opts    Options
	log     *util.Logger
	loaders map[string]source.Loader
}

// New returns a Converter reading PAR/REC and DICOM inputs. A nil logger
// discards everything.
func New(opts Options, log *util.Logger) *Converter {
	if log == nil {
		log = util.Discard()
	}
	return &Converter{
		opts: opts,
		log:  log,
		loaders: map[string]source.Loader{
			".par": parrec.Loader{},
			".dcm": dicom.Loader{},
		},
	}
}

// SetLoader registers the loader used for a (case-insensitive) extension.
func (c *Converter) SetLoader(ext string, l source.Loader) {
	c.loaders[strings.ToLower(ext)] = l
}

// OutputPath derives the output name from the input basename.
func (c *Converter) OutputPath(input string) string {
	ext := ".nii"
	if c.opts.Compressed {
		ext = ".nii.gz"
	}
	return filepath.Join(c.opts.OutputDir, baseName(input)+ext)
}

func baseName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Converter) sidecarPath(input, ext string) string {
	return filepath.Join(c.opts.OutputDir, baseName(input)+ext)
}

// Convert runs the whole pipeline for one input. It never panics on bad
// input; failures come back in the Result.
func (c *Converter) Convert(input string) Result {
	res := Result{Input: input, Output: c.OutputPath(input), State: StatePending}
	fail := func(err error) Result {
		res.Err = &FileError{Path: input, State: res.State, Err: err}
		res.State = StateFailed
		return res
	}

	if !c.opts.Overwrite {
		if _, err := os.Stat(res.Output); err == nil {
			return fail(fmt.Errorf("%w: %s", ErrOutputExists, res.Output))
		}
	}

	loader, ok := c.loaders[strings.ToLower(filepath.Ext(input))]
	if !ok {
		return fail(fmt.Errorf("%w: %q has no known extension", ErrUnsupported, filepath.Base(input)))
	}
	c.log.Info("Processing %s", input)
	img, err := loader.Load(input, source.Options{PermitTruncated: c.opts.PermitTruncated})
	if err != nil {
		return fail(err)
	}
	res.State = StateLoaded
	for _, w := range img.Header.Warnings {
		c.log.Warn("%s: %s", input, w)
	}
	c.log.Verbose("%s: shape %v, %s", input, img.Volume.Shape, img.Volume.DType)

	aff, err := affine.Build(img.Header.Geometry, c.opts.Origin)
	if err != nil {
		return fail(fmt.Errorf("affine: %w", err))
	}
	c.log.Debug("%s: %s affine\n%v", input, c.opts.Origin, mat.Formatted(aff, mat.Prefix("    ")))

	scaling, err := ResolveScaling(img.Header, c.opts.Scaling)
	if err != nil {
		return fail(err)
	}
	res.State = StateScaled
	c.log.Verbose("%s: scaling %s slope=%g intercept=%g", input, scaling.Method, scaling.Slope, scaling.Intercept)

	rng, err := ResolveRange(c.opts.Min, c.opts.Max, img.Volume, scaling)
	if err != nil {
		return fail(err)
	}
	c.log.Debug("%s: cal range [%g, %g]", input, rng.Min, rng.Max)
	res.State = StateRangeComputed

	meta := ComposeMetadata(img.Header)
	exts, err := EmbedHeader(img.Header.Path, c.opts.StoreHeader)
	if err != nil {
		return fail(err)
	}
	hdr, err := assemble(img, aff, scaling, rng, meta, exts)
	if err != nil {
		return fail(err)
	}
	res.State = StateHeaderAssembled

	n, err := c.writeAtomic(res.Output, c.opts.Compressed, func(w io.Writer) error {
		return nifti.Write(w, hdr, exts, img.Volume.Data)
	})
	if err != nil {
		return fail(err)
	}
	res.State = StateWritten
	c.log.Verbose("%s: wrote %s (%s)", input, res.Output, util.Bytes(n))

	if err := c.writeSidecars(input, img, scaling, rng); err != nil {
		return fail(err)
	}
	res.State = StateDone
	return res
}

// assemble fills a fresh header. Order matters: SetAffine sets pixdim[1..3],
// metadata may set pixdim[4], Finalize fixes dim and vox_offset.
func assemble(img *source.Image, aff *mat.Dense, s Scaling, r Range, meta Metadata, exts []nifti.Extension) (*nifti.Header, error) {
	h := nifti.NewHeader()
	if err := h.SetAffine(aff); err != nil {
		return nil, err
	}
	h.SetSlopeInter(s.Slope, s.Intercept)
	h.CalMin, h.CalMax = float32(r.Min), float32(r.Max)
	meta.Apply(h)
	if err := h.Finalize(img.Volume.DType, img.Volume.Shape, exts); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Converter) writeSidecars(input string, img *source.Image, s Scaling, r Range) error {
	if c.opts.VolumeInfo {
		if len(img.Header.VolumeLabels) == 0 {
			c.log.Verbose("%s: no varying volume labels, skipping volume info", input)
		} else {
			path := c.sidecarPath(input, ".ordering.csv")
			if _, err := c.writeAtomic(path, false, func(w io.Writer) error {
				return writeVolumeInfo(w, img.Header.VolumeLabels)
			}); err != nil {
				return fmt.Errorf("volume info: %w", err)
			}
		}
	}
	if c.opts.Preview {
		path := c.sidecarPath(input, ".png")
		opts := preview.Options{Slope: s.Slope, Intercept: s.Intercept, Lo: r.Min, Hi: r.Max, Size: previewSize}
		if _, err := c.writeAtomic(path, false, func(w io.Writer) error {
			return preview.Write(w, img.Volume, opts)
		}); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
	}
	return nil
}

// writeAtomic streams into a temporary file next to path and renames it into
// place once everything is flushed and closed. On failure the temporary file
// is removed and path is left as it was. It returns the bytes on disk.
func (c *Converter) writeAtomic(path string, compressed bool, fill func(io.Writer) error) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	c.log.Debug("writing %s via %s", path, tmp.Name())
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var zw *gzip.Writer
	var w io.Writer = tmp
	if compressed {
		zw = gzip.NewWriter(tmp)
		w = zw
	}
	bw := bufio.NewWriterSize(w, 1<<20)
	if err = fill(bw); err != nil {
		return 0, err
	}
	if err = bw.Flush(); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return 0, fmt.Errorf("compress output: %w", err)
		}
	}
	if err = tmp.Chmod(0644); err != nil {
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename output: %w", err)
	}
	return info.Size(), nil
}
