package convert

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/mrsinham/recforge/internal/source"
)

// writeVolumeInfo writes one CSV row per volume with the labels that vary
// along the fourth axis.
func writeVolumeInfo(w io.Writer, labels []source.Label) error {
	cw := csv.NewWriter(w)
	head := []string{"volume"}
	for _, l := range labels {
		head = append(head, l.Name)
	}
	if err := cw.Write(head); err != nil {
		return err
	}

	n := 0
	if len(labels) > 0 {
		n = len(labels[0].Values)
	}
	for v := 0; v < n; v++ {
		row := []string{strconv.Itoa(v)}
		for _, l := range labels {
			if len(l.Values) != n {
				return fmt.Errorf("label %q has %d values, want %d", l.Name, len(l.Values), n)
			}
			row = append(row, l.Values[v])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
