package convert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mrsinham/recforge/internal/nifti"
	"github.com/mrsinham/recforge/internal/source"
)

func TestComposeMetadata_Description(t *testing.T) {
	tests := []struct {
		name string
		h    source.Header
		want string
	}{
		{
			name: "joined with spaces removed from the date",
			h:    source.Header{ExamName: "BRAIN", PatientName: "Doe^Jane", ExamDateTime: "2012.09.13 /  08:37:08", ProtocolName: "T1W 3D"},
			want: "BRAIN;Doe^Jane;2012.09.13/08:37:08;T1W 3D",
		},
		{
			name: "empty fields keep their separators",
			h:    source.Header{ProtocolName: "SURVEY"},
			want: ";;;SURVEY",
		},
		{
			name: "truncated to 80",
			h:    source.Header{ExamName: strings.Repeat("E", 50), PatientName: strings.Repeat("P", 50)},
			want: strings.Repeat("E", 50) + ";" + strings.Repeat("P", 29),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeMetadata(&tt.h).Description
			if got != tt.want {
				t.Errorf("Description = %q, want %q", got, tt.want)
			}
			if len(got) > nifti.MaxDescription {
				t.Errorf("Description has %d bytes", len(got))
			}
		})
	}
}

func TestComposeMetadata_TruncateKeepsRunes(t *testing.T) {
	h := source.Header{ExamName: strings.Repeat("x", 79), PatientName: "é"}
	got := ComposeMetadata(&h).Description
	if !utf8.ValidString(got) {
		t.Errorf("Description %q is not valid UTF-8", got)
	}
	if len(got) != 80 {
		t.Errorf("len = %d, want 80", len(got))
	}
}

func TestComposeMetadata_Units(t *testing.T) {
	tests := []struct {
		name     string
		dynamics int
		tr       float64
		wantTime nifti.Unit
		wantPix4 float32
	}{
		{"anatomical", 1, 8.1, nifti.UnitUnknown, 1},
		{"no dynamics recorded", 0, 8.1, nifti.UnitUnknown, 1},
		{"functional", 5, 2000, nifti.UnitMsec, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComposeMetadata(&source.Header{MaxDynamics: tt.dynamics, RepetitionTime: tt.tr})
			hdr := nifti.NewHeader()
			m.Apply(hdr)

			space, tm := hdr.XYZTUnits()
			if space != nifti.UnitMM || tm != tt.wantTime {
				t.Errorf("units = (%v, %v), want (mm, %v)", space, tm, tt.wantTime)
			}
			if hdr.Pixdim[4] != tt.wantPix4 {
				t.Errorf("pixdim[4] = %v, want %v", hdr.Pixdim[4], tt.wantPix4)
			}
		})
	}
}

func TestEmbedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.PAR")
	content := []byte("# header\n. Patient name : Jörg\n\x00\xff")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	exts, err := EmbedHeader(path, true)
	if err != nil {
		t.Fatalf("EmbedHeader() error = %v", err)
	}
	if len(exts) != 1 || exts[0].Code != nifti.ExtComment {
		t.Fatalf("EmbedHeader() = %+v, want one comment extension", exts)
	}
	if string(exts[0].Data) != string(content) {
		t.Errorf("payload = %q, want %q", exts[0].Data, content)
	}

	if exts, err := EmbedHeader(path, false); err != nil || exts != nil {
		t.Errorf("disabled EmbedHeader() = %v, %v; want nil, nil", exts, err)
	}
	if _, err := EmbedHeader(filepath.Join(t.TempDir(), "missing.PAR"), true); err == nil {
		t.Error("EmbedHeader() on a missing file should fail")
	}
}
