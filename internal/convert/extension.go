package convert

import (
	"fmt"
	"os"

	"github.com/mrsinham/recforge/internal/nifti"
)

// EmbedHeader returns the source header file as a single comment extension,
// byte for byte. Nothing is read when disabled.
func EmbedHeader(path string, enabled bool) ([]nifti.Extension, error) {
	if !enabled {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read header for extension: %w", err)
	}
	return []nifti.Extension{{Code: nifti.ExtComment, Data: data}}, nil
}
