package convert

import (
	"strings"
	"unicode/utf8"

	"github.com/mrsinham/recforge/internal/nifti"
	"github.com/mrsinham/recforge/internal/source"
)

// Metadata is what the converter writes besides geometry and scaling.
type Metadata struct {
	Description string
	SpaceUnit   nifti.Unit
	TimeUnit    nifti.Unit
	// TimeStep is only applied when TimeUnit is set.
	TimeStep float64
}

// ComposeMetadata builds the description and units from the header.
func ComposeMetadata(h *source.Header) Metadata {
	desc := strings.Join([]string{
		h.ExamName,
		h.PatientName,
		strings.ReplaceAll(h.ExamDateTime, " ", ""),
		h.ProtocolName,
	}, ";")
	desc = truncate(desc, nifti.MaxDescription)

	m := Metadata{Description: desc, SpaceUnit: nifti.UnitMM, TimeUnit: nifti.UnitUnknown}
	if h.MaxDynamics > 1 {
		m.TimeUnit = nifti.UnitMsec
		m.TimeStep = h.RepetitionTime
	}
	return m
}

// Apply copies the metadata into a header. pixdim[4] is left alone for
// single-volume series.
func (m Metadata) Apply(h *nifti.Header) {
	h.SetDescription(m.Description)
	h.SetXYZTUnits(m.SpaceUnit, m.TimeUnit)
	if m.TimeUnit != nifti.UnitUnknown {
		h.Pixdim[4] = float32(m.TimeStep)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
