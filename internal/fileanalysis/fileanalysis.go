// Package fileanalysis implements the file analyser (C4): SHA-256 hashing
// plus a set of pluggable capability providers (signature scanning,
// strings extraction, metadata extraction, format carving), each of which
// can independently report itself unavailable without failing the scan.
// The provider split follows the stub/full scanner split a YARA-backed
// scanning service in the example pack uses to stay usable without the
// optional engine present.
package fileanalysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/duskwatch/duskwatch/internal/model"
)

// SignatureProvider matches known malware signatures against file bytes.
type SignatureProvider interface {
	Available() bool
	Scan(ctx context.Context, content []byte) model.MalwareResult
}

// StringsProvider extracts printable byte runs from file bytes.
type StringsProvider interface {
	Available() bool
	Extract(ctx context.Context, content []byte) model.StringsResult
}

// MetadataProvider extracts embedded document metadata.
type MetadataProvider interface {
	Available() bool
	Extract(ctx context.Context, filename string, content []byte) model.MetadataResult
}

// CarvingProvider identifies embedded file formats by magic bytes.
type CarvingProvider interface {
	Available() bool
	Carve(ctx context.Context, content []byte) model.CarvingResult
}

// Analyzer runs every registered capability provider over one file and
// assembles the results into a model.FileAnalysis, hashing the content
// itself since every provider needs to agree on the same digest.
type Analyzer struct {
	Signature SignatureProvider
	Strings   StringsProvider
	Metadata  MetadataProvider
	Carving   CarvingProvider
}

// NewDefault wires the built-in providers: the stub signature scanner, the
// printable-run strings extractor, the OLE/XLSX metadata extractor, and
// the magic-byte carver.
func NewDefault() *Analyzer {
	return &Analyzer{
		Signature: NewStubSignatureScanner(),
		Strings:   NewStringsExtractor(4, 200),
		Metadata:  NewMetadataExtractor(),
		Carving:   NewCarver(),
	}
}

// Analyze runs every capability provider over content, skipping (rather
// than failing) any provider that reports itself unavailable.
func (a *Analyzer) Analyze(ctx context.Context, fileURL, fileName, contentType string, content []byte) model.FileAnalysis {
	sum := sha256.Sum256(content)

	result := model.FileAnalysis{
		FileURL:     fileURL,
		FileName:    fileName,
		ContentType: contentType,
		FileSize:    int64(len(content)),
		FileHash:    hex.EncodeToString(sum[:]),
	}

	if a.Signature != nil && a.Signature.Available() {
		result.Malware = a.Signature.Scan(ctx, content)
	} else {
		result.Malware = model.MalwareResult{Success: false, Error: "not_available"}
	}

	if a.Strings != nil && a.Strings.Available() {
		result.Strings = a.Strings.Extract(ctx, content)
	} else {
		result.Strings = model.StringsResult{Success: false, Error: "not_available"}
	}

	if a.Metadata != nil && a.Metadata.Available() {
		result.Metadata = a.Metadata.Extract(ctx, fileName, content)
	} else {
		result.Metadata = model.MetadataResult{Success: false, Error: "not_available"}
	}

	if a.Carving != nil && a.Carving.Available() {
		result.Carving = a.Carving.Carve(ctx, content)
	} else {
		result.Carving = model.CarvingResult{Success: false, Error: "not_available"}
	}

	return result
}
