// Package preview renders a quick-look PNG of a converted volume.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/mrsinham/recforge/internal/volume"
)

// Options control the rendering. Lo and Hi are in scaled units, the same as
// the output cal_min/cal_max.
type Options struct {
	Slope, Intercept float64
	Lo, Hi           float64
	// Size is the length in pixels of the longer image side.
	Size int
}

// Render draws the middle slice of the first volume, windowed to [Lo, Hi].
// Rows are flipped so that increasing y points up.
func Render(vol *volume.Volume, opts Options) (*image.Gray, error) {
	if len(vol.Shape) < 2 {
		return nil, fmt.Errorf("preview needs at least 2 dimensions, got %v", vol.Shape)
	}
	nx, ny := vol.Shape[0], vol.Shape[1]
	z := 0
	if len(vol.Shape) > 2 {
		z = vol.Shape[2] / 2
	}
	raw, err := vol.Slice(z, 0)
	if err != nil {
		return nil, err
	}

	src := image.NewGray(image.Rect(0, 0, nx, ny))
	width := opts.Hi - opts.Lo
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := opts.Slope*raw[y*nx+x] + opts.Intercept
			var g uint8
			switch {
			case width <= 0 || v <= opts.Lo:
				g = 0
			case v >= opts.Hi:
				g = 255
			default:
				g = uint8((v - opts.Lo) / width * 255)
			}
			src.SetGray(x, ny-1-y, color.Gray{Y: g})
		}
	}

	if opts.Size <= 0 {
		return src, nil
	}
	dw, dh := opts.Size, opts.Size
	if nx > ny {
		dh = max(1, opts.Size*ny/nx)
	} else {
		dw = max(1, opts.Size*nx/ny)
	}
	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// Write renders and PNG-encodes the preview.
func Write(w io.Writer, vol *volume.Volume, opts Options) error {
	img, err := Render(vol, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}
