package fileanalysis

import (
	"bytes"
	"context"

	"github.com/duskwatch/duskwatch/internal/model"
)

// magicSignature pairs a byte-offset magic number with the format it
// identifies. Carve reports every format whose magic occurs in the content,
// in table order; the table has no bare-ZIP entry, so any ZIP local file
// header is reported as the ZIP-based Office format.
type magicSignature struct {
	format string
	offset int
	magic  []byte
}

var magicSignatures = []magicSignature{
	{"PDF", 0, []byte("%PDF-")},
	{"OLE-Compound (doc/xls/ppt)", 0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	{"ZIP-based Office (docx/xlsx/pptx)", 0, []byte("PK\x03\x04")},
	{"RAR", 0, []byte("Rar!\x1a\x07")},
	{"7-Zip", 0, []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}},
	{"GZIP", 0, []byte{0x1F, 0x8B}},
	{"ELF", 0, []byte{0x7F, 'E', 'L', 'F'}},
	{"Windows-PE", 0, []byte("MZ")},
	{"PNG", 0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{"JPEG", 0, []byte{0xFF, 0xD8, 0xFF}},
	{"GIF", 0, []byte("GIF8")},
	{"RTF", 0, []byte("{\\rtf")},
	{"SQLite", 0, []byte("SQLite format 3\x00")},
}

// Carver identifies embedded file formats by magic byte sequences, a pure
// lookup table generalizing the file-type step of the original
// implementation's analysis pipeline.
type Carver struct{}

// NewCarver builds a Carver.
func NewCarver() *Carver {
	return &Carver{}
}

// Available always returns true: this is a pure in-memory lookup.
func (c *Carver) Available() bool { return true }

// Carve reports every signature in content, including ones that appear
// at a nonzero offset (a common polyglot / carved-container technique).
func (c *Carver) Carve(_ context.Context, content []byte) model.CarvingResult {
	var found []string
	for _, sig := range magicSignatures {
		if bytes.HasPrefix(content, sig.magic) {
			found = append(found, sig.format)
			continue
		}
		if idx := bytes.Index(content, sig.magic); idx > 0 {
			found = append(found, sig.format)
		}
	}
	return model.CarvingResult{Success: true, Signatures: found}
}
