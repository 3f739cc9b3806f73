// Package source defines what a vendor reader hands to the converter: a
// parsed header record and the raw samples it describes.
package source

import (
	"fmt"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/volume"
)

// Method names a convention for turning stored samples into intensities.
type Method string

const (
	// DV is the displayed value, as shown on the scanner console.
	DV Method = "dv"
	// FP is the floating point value, proportional to the physical signal.
	FP Method = "fp"
	// Off stores samples without any scaling annotation.
	Off Method = "off"
)

// AllMethods returns all valid scaling methods.
func AllMethods() []Method {
	return []Method{DV, FP, Off}
}

// ParseMethod validates a scaling method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range AllMethods() {
		if Method(s) == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid scaling %q, valid options: %v", s, AllMethods())
}

// Coefficients is a slope/intercept pair stored in a header.
type Coefficients struct {
	Slope     float64
	Intercept float64
}

// Label is one per-volume attribute, e.g. the dynamic scan number.
type Label struct {
	Name   string
	Values []string
}

// Header is the structured record parsed from a vendor file. It is treated
// as immutable once returned by a Loader.
type Header struct {
	Path string // file the record was parsed from

	Institution  string
	ExamName     string
	PatientName  string
	ExamDateTime string
	ProtocolName string

	MaxDynamics    int
	RepetitionTime float64 // ms

	Scaling map[Method]Coefficients
	// Unscalable says why a method has no entry in Scaling.
	Unscalable map[Method]string
	Geometry   affine.Geometry

	// VolumeLabels lists the attributes that vary along the 4th axis.
	VolumeLabels []Label
	// Warnings are non-fatal oddities noticed while parsing.
	Warnings []string
}

// Image is a loaded header together with its samples.
type Image struct {
	Header *Header
	Volume *volume.Volume
}

// Options tune how strictly a loader reads its input.
type Options struct {
	PermitTruncated bool
}

// Loader reads one input file.
type Loader interface {
	Load(path string, opts Options) (*Image, error)
}
