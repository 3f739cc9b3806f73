package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ExtComment is NIFTI_ECODE_COMMENT.
const ExtComment int32 = 6

// Extension is a single header extension.
type Extension struct {
	Code int32
	Data []byte
}

// Size is the on-disk esize: 8 header bytes plus data, padded to 16.
func (e Extension) Size() int {
	n := 8 + len(e.Data)
	if r := n % 16; r != 0 {
		n += 16 - r
	}
	return n
}

// DataOffset returns vox_offset for a file carrying exts.
func DataOffset(exts []Extension) int {
	off := MinDataOffset
	for _, e := range exts {
		off += e.Size()
	}
	return off
}

// ErrBadMagic is returned for files that are not single-file NIfTI-1.
var ErrBadMagic = errors.New("not a single-file NIfTI-1 header")

// Write serializes the header, the extender, the extensions and the data,
// padding so that data starts exactly at h.VoxOffset.
func Write(w io.Writer, h *Header, exts []Extension, data []byte) error {
	want := DataOffset(exts)
	if int(h.VoxOffset) != want {
		return fmt.Errorf("vox_offset %v does not match header layout (%d)", h.VoxOffset, want)
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	extender := [4]byte{}
	if len(exts) > 0 {
		extender[0] = 1
	}
	if _, err := w.Write(extender[:]); err != nil {
		return fmt.Errorf("write extender: %w", err)
	}

	for i, e := range exts {
		buf := make([]byte, e.Size())
		binary.LittleEndian.PutUint32(buf[0:], uint32(e.Size()))
		binary.LittleEndian.PutUint32(buf[4:], uint32(e.Code))
		copy(buf[8:], e.Data)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write extension %d: %w", i, err)
		}
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// Read parses a complete single-file NIfTI-1 stream. Big-endian files are
// detected from sizeof_hdr.
func Read(r io.Reader) (*Header, []Extension, []byte, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(raw)) != HeaderSize {
		order = binary.BigEndian
		if int32(binary.BigEndian.Uint32(raw)) != HeaderSize {
			return nil, nil, nil, fmt.Errorf("invalid sizeof_hdr")
		}
	}

	h := &Header{}
	if err := binary.Read(bytes.NewReader(raw), order, h); err != nil {
		return nil, nil, nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Magic != magicSingle {
		return nil, nil, nil, ErrBadMagic
	}

	var extender [4]byte
	if _, err := io.ReadFull(r, extender[:]); err != nil {
		return nil, nil, nil, fmt.Errorf("read extender: %w", err)
	}

	pos := MinDataOffset
	var exts []Extension
	if extender[0] != 0 {
		for pos+8 <= int(h.VoxOffset) {
			var eh [8]byte
			if _, err := io.ReadFull(r, eh[:]); err != nil {
				return nil, nil, nil, fmt.Errorf("read extension header: %w", err)
			}
			size := int(int32(order.Uint32(eh[0:])))
			code := int32(order.Uint32(eh[4:]))
			if size < 16 || size%16 != 0 || pos+size > int(h.VoxOffset) {
				return nil, nil, nil, fmt.Errorf("invalid extension size %d at offset %d", size, pos)
			}
			body := make([]byte, size-8)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, nil, nil, fmt.Errorf("read extension body: %w", err)
			}
			exts = append(exts, Extension{Code: code, Data: body})
			pos += size
		}
	}
	if skip := int(h.VoxOffset) - pos; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return nil, nil, nil, fmt.Errorf("skip to data: %w", err)
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read data: %w", err)
	}
	return h, exts, data, nil
}
