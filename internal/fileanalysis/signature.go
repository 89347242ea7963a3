package fileanalysis

import (
	"bytes"
	"context"

	"github.com/duskwatch/duskwatch/internal/model"
)

// signatureRule pairs a byte-string marker with the threat name it
// indicates. A real deployment would swap this for a YARA engine; the
// stub keeps the Available()/Scan() contract intact so callers never
// special-case the absence of the real engine.
type signatureRule struct {
	name    string
	kind    string
	pattern []byte
}

// knownSignatures is a small set of well-known test/EICAR-style markers,
// grounded on the same "stub scanner always available, real engine
// optional" split a YARA-backed scanning service in the example pack
// uses when built without its native engine.
var knownSignatures = []signatureRule{
	{name: "EICAR-Test-File", kind: "test-signature", pattern: []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR`)},
	{name: "Embedded-PE-Header", kind: "structural", pattern: []byte("This program cannot be run in DOS mode")},
	{name: "Suspicious-Macro-AutoOpen", kind: "macro", pattern: []byte("AutoOpen")},
	{name: "Suspicious-Macro-Shell", kind: "macro", pattern: []byte("Wscript.Shell")},
	{name: "Obfuscated-PowerShell", kind: "script", pattern: []byte("-EncodedCommand")},
}

// StubSignatureScanner matches a small fixed marker set. It always
// reports itself available, mirroring the stub scanner in the reference
// scanning stub server that stands in for the full YARA engine.
type StubSignatureScanner struct{}

// NewStubSignatureScanner builds a StubSignatureScanner.
func NewStubSignatureScanner() *StubSignatureScanner {
	return &StubSignatureScanner{}
}

// Available always returns true: the stub has no external dependency.
func (s *StubSignatureScanner) Available() bool { return true }

// Scan checks content against the fixed marker set.
func (s *StubSignatureScanner) Scan(_ context.Context, content []byte) model.MalwareResult {
	var threats []model.MalwareThreat
	for _, rule := range knownSignatures {
		if bytes.Contains(content, rule.pattern) {
			threats = append(threats, model.MalwareThreat{Name: rule.name, Type: rule.kind})
		}
	}
	status := "clean"
	if len(threats) > 0 {
		status = "detected"
	}
	return model.MalwareResult{
		Success:  true,
		Status:   status,
		Detected: len(threats) > 0,
		Threats:  threats,
	}
}
