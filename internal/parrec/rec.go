package parrec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/source"
	"github.com/mrsinham/recforge/internal/volume"
)

// Loader reads a PAR header and its REC sibling.
type Loader struct{}

// Load implements source.Loader.
func (Loader) Load(path string, opts source.Options) (*source.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PAR: %w", err)
	}
	par, err := Parse(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	hdr, layout, err := par.header(path)
	if err != nil {
		return nil, err
	}

	recPath, err := FindREC(path)
	if err != nil {
		return nil, err
	}
	rec, err := os.ReadFile(recPath)
	if err != nil {
		return nil, fmt.Errorf("read REC: %w", err)
	}

	vol, dropped, err := layout.assemble(rec, opts.PermitTruncated)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		hdr.Warnings = append(hdr.Warnings, fmt.Sprintf("REC is truncated: dropped %d incomplete volume(s)", dropped))
		hdr.VolumeLabels = trimLabels(hdr.VolumeLabels, vol)
	}
	return &source.Image{Header: hdr, Volume: vol}, nil
}

// FindREC returns the REC file belonging to a PAR file, trying the
// extension case that matches the PAR first.
func FindREC(parPath string) (string, error) {
	ext := filepath.Ext(parPath)
	base := strings.TrimSuffix(parPath, ext)
	candidates := []string{base + ".REC", base + ".rec"}
	if ext == strings.ToLower(ext) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no REC file next to %s", parPath)
}

// layout is how images map into the output volume.
type layout struct {
	x, y, slices int
	dtype        volume.DType
	// images sorted volume-major, slice-minor
	images []ImageDef
}

func (p *PAR) header(path string) (*source.Header, *layout, error) {
	h := &source.Header{Path: path, Scaling: make(map[source.Method]source.Coefficients)}

	var err error
	if h.PatientName, err = p.Get(FieldPatientName); err != nil {
		return nil, nil, err
	}
	if h.ExamName, err = p.Get(FieldExamName); err != nil {
		return nil, nil, err
	}
	if h.ProtocolName, err = p.Get(FieldProtocolName); err != nil {
		return nil, nil, err
	}
	if h.ExamDateTime, err = p.Get(FieldExamDateTime); err != nil {
		return nil, nil, err
	}
	dyn, err := p.Float(FieldMaxDynamics)
	if err != nil {
		return nil, nil, err
	}
	h.MaxDynamics = int(dyn)
	if h.RepetitionTime, err = p.Float(FieldRepetition); err != nil {
		return nil, nil, err
	}
	angulation, err := p.Triple(FieldAngulation)
	if err != nil {
		return nil, nil, err
	}
	offCentre, err := p.Triple(FieldOffCentre)
	if err != nil {
		return nil, nil, err
	}

	first := p.Images[0]
	for _, img := range p.Images[1:] {
		if img.ReconX != first.ReconX || img.ReconY != first.ReconY {
			return nil, nil, fmt.Errorf("images have different resolutions (%dx%d vs %dx%d)", first.ReconX, first.ReconY, img.ReconX, img.ReconY)
		}
		if img.Bits != first.Bits {
			return nil, nil, fmt.Errorf("images have different pixel sizes (%d vs %d bits)", first.Bits, img.Bits)
		}
	}
	dtype, err := volume.DTypeForBits(first.Bits)
	if err != nil {
		return nil, nil, err
	}

	h.Scaling[source.DV] = source.Coefficients{Slope: first.RescaleSlope, Intercept: first.RescaleIntercept}
	switch {
	case first.ScaleSlope == 0:
		h.Unscalable = map[source.Method]string{source.FP: "scale slope is 0"}
	case first.RescaleSlope == 0:
		h.Unscalable = map[source.Method]string{source.FP: "rescale slope is 0"}
	default:
		h.Scaling[source.FP] = source.Coefficients{
			Slope:     1 / first.ScaleSlope,
			Intercept: first.RescaleIntercept / (first.RescaleSlope * first.ScaleSlope),
		}
	}
	for _, img := range p.Images[1:] {
		if img.RescaleSlope != first.RescaleSlope || img.RescaleIntercept != first.RescaleIntercept || img.ScaleSlope != first.ScaleSlope {
			h.Warnings = append(h.Warnings, "scaling differs between images; using the first image's values")
			break
		}
	}

	l := &layout{x: first.ReconX, y: first.ReconY, dtype: dtype}
	l.images = append([]ImageDef(nil), p.Images...)
	sort.SliceStable(l.images, func(i, j int) bool {
		return imageLess(l.images[i], l.images[j])
	})
	seen := make(map[int]bool)
	for _, img := range l.images {
		seen[img.Slice] = true
	}
	l.slices = len(seen)
	if len(l.images)%l.slices != 0 {
		return nil, nil, fmt.Errorf("%d images do not divide into %d slices", len(l.images), l.slices)
	}

	h.Geometry = affine.Angulated{
		Shape:       [3]int{l.x, l.y, l.slices},
		Zooms:       [3]float64{first.PixelSpacing[0], first.PixelSpacing[1], first.Thickness + first.Gap},
		Angulation:  angulation,
		OffCentre:   offCentre,
		Orientation: affine.SliceOrientation(first.SliceOrientation),
	}
	h.VolumeLabels = l.labels()
	return h, l, nil
}

// imageLess orders images volume-major: every attribute other than the slice
// number selects the volume, the slice number comes last.
func imageLess(a, b ImageDef) bool {
	ka := [...]int{a.Dynamic, a.Echo, a.Phase, a.Type, a.Sequence, a.GradientOrientation, a.BValueNumber, a.LabelType, a.Slice}
	kb := [...]int{b.Dynamic, b.Echo, b.Phase, b.Type, b.Sequence, b.GradientOrientation, b.BValueNumber, b.LabelType, b.Slice}
	for i := range ka {
		if ka[i] != kb[i] {
			return ka[i] < kb[i]
		}
	}
	return false
}

func (l *layout) volumes() int {
	return len(l.images) / l.slices
}

// labels returns the per-volume attributes that change across volumes.
func (l *layout) labels() []source.Label {
	nv := l.volumes()
	if nv < 2 {
		return nil
	}
	candidates := []struct {
		name string
		get  func(ImageDef) int
	}{
		{"dynamic scan number", func(d ImageDef) int { return d.Dynamic }},
		{"echo number", func(d ImageDef) int { return d.Echo }},
		{"cardiac phase number", func(d ImageDef) int { return d.Phase }},
		{"image_type_mr", func(d ImageDef) int { return d.Type }},
		{"scanning sequence", func(d ImageDef) int { return d.Sequence }},
		{"diffusion b value number", func(d ImageDef) int { return d.BValueNumber }},
		{"gradient orientation number", func(d ImageDef) int { return d.GradientOrientation }},
		{"label type", func(d ImageDef) int { return d.LabelType }},
	}

	var out []source.Label
	for _, c := range candidates {
		vals := make([]string, nv)
		distinct := make(map[int]bool)
		for v := 0; v < nv; v++ {
			x := c.get(l.images[v*l.slices])
			distinct[x] = true
			vals[v] = strconv.Itoa(x)
		}
		if len(distinct) > 1 {
			out = append(out, source.Label{Name: c.name, Values: vals})
		}
	}
	return out
}

// assemble copies each image from the REC into NIfTI order. With permit set,
// images missing from a short REC drop every volume they belong to.
func (l *layout) assemble(rec []byte, permit bool) (*volume.Volume, int, error) {
	imgBytes := l.x * l.y * l.dtype.Size()
	nv := l.volumes()

	complete := nv
	for i, img := range l.images {
		end := (img.Index + 1) * imgBytes
		if img.Index < 0 || end > len(rec) {
			if !permit {
				return nil, 0, fmt.Errorf("%w: image %d needs %d bytes, file has %d", ErrTruncated, img.Index, end, len(rec))
			}
			if v := i / l.slices; v < complete {
				complete = v
			}
		}
	}
	if complete == 0 {
		return nil, 0, fmt.Errorf("%w: no complete volume", ErrTruncated)
	}

	data := make([]byte, complete*l.slices*imgBytes)
	for i, img := range l.images[:complete*l.slices] {
		copy(data[i*imgBytes:], rec[img.Index*imgBytes:(img.Index+1)*imgBytes])
	}

	shape := []int{l.x, l.y, l.slices}
	if complete > 1 {
		shape = append(shape, complete)
	}
	vol, err := volume.New(data, l.dtype, shape)
	if err != nil {
		return nil, 0, err
	}
	l.images = l.images[:complete*l.slices]
	return vol, nv - complete, nil
}

func trimLabels(labels []source.Label, vol *volume.Volume) []source.Label {
	nv := 1
	if len(vol.Shape) > 3 {
		nv = vol.Shape[3]
	}
	if nv < 2 {
		return nil
	}
	out := make([]source.Label, 0, len(labels))
	for _, lb := range labels {
		if len(lb.Values) > nv {
			lb.Values = lb.Values[:nv]
		}
		out = append(out, lb)
	}
	return out
}
