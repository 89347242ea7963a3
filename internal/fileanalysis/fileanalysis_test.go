package fileanalysis

import (
	"context"
	"testing"
)

func TestStubSignatureScannerDetectsEICAR(t *testing.T) {
	s := NewStubSignatureScanner()
	content := []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

	result := s.Scan(context.Background(), content)
	if !result.Detected {
		t.Fatal("expected EICAR marker to be detected")
	}
	if len(result.Threats) != 1 || result.Threats[0].Name != "EICAR-Test-File" {
		t.Errorf("unexpected threats: %+v", result.Threats)
	}
}

func TestStubSignatureScannerCleanOnBenignContent(t *testing.T) {
	s := NewStubSignatureScanner()
	result := s.Scan(context.Background(), []byte("just some ordinary text"))
	if result.Detected || result.Status != "clean" {
		t.Errorf("expected clean result, got %+v", result)
	}
}

func TestStringsExtractorFindsRunsAboveMinLength(t *testing.T) {
	e := NewStringsExtractor(5, 10)
	content := append([]byte("hello world"), []byte{0x00, 0x01, 0x02}...)
	content = append(content, []byte("hi")...)

	result := e.Extract(context.Background(), content)
	if result.Count != 1 {
		t.Fatalf("expected 1 run >= 5 bytes, got %d: %v", result.Count, result.Samples)
	}
	if result.Samples[0] != "hello world" {
		t.Errorf("expected sample %q, got %q", "hello world", result.Samples[0])
	}
}

func TestStringsExtractorRespectsSampleCap(t *testing.T) {
	e := NewStringsExtractor(2, 1)
	content := []byte("aaaa\x00bbbb\x00cccc")

	result := e.Extract(context.Background(), content)
	if result.Count != 3 {
		t.Fatalf("expected count of 3 matching runs, got %d", result.Count)
	}
	if len(result.Samples) != 1 {
		t.Fatalf("expected samples capped to 1, got %d", len(result.Samples))
	}
}

func TestCarverIdentifiesKnownFormats(t *testing.T) {
	c := NewCarver()

	result := c.Carve(context.Background(), []byte("%PDF-1.4 rest of file"))
	if len(result.Signatures) != 1 || result.Signatures[0] != "PDF" {
		t.Fatalf("expected PDF signature, got %v", result.Signatures)
	}
}

func TestCarverReportsNoSignaturesForUnknownContent(t *testing.T) {
	c := NewCarver()
	result := c.Carve(context.Background(), []byte("plain text, no magic bytes here"))
	if len(result.Signatures) != 0 {
		t.Errorf("expected no signatures, got %v", result.Signatures)
	}
}

func TestMetadataExtractorReportsUnsupportedFormat(t *testing.T) {
	m := NewMetadataExtractor()
	result := m.Extract(context.Background(), "notes.txt", []byte("plain text content"))
	if result.Success {
		t.Fatal("expected metadata extraction to report unsupported format")
	}
}

func TestAnalyzeAssemblesAllProviderResults(t *testing.T) {
	a := NewDefault()
	content := []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

	result := a.Analyze(context.Background(), "http://example.onion/sample.bin", "sample.bin", "application/octet-stream", content)

	if result.FileHash == "" {
		t.Error("expected a populated FileHash")
	}
	if !result.Malware.Detected {
		t.Error("expected malware detection to propagate through Analyze")
	}
	if !result.Strings.Success {
		t.Error("expected strings extraction to succeed")
	}
	if !result.Carving.Success {
		t.Error("expected carving to report success even with zero signatures")
	}
}
