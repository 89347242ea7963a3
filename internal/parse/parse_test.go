package parse

import "testing"

func TestParseExtractsTitleAndText(t *testing.T) {
	html := `<html><head><title>Dark Market</title></head><body><p>Buy carding tools</p><p>escrow available</p></body></html>`
	doc, err := Parse(html)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.Title != "Dark Market" {
		t.Errorf("expected title %q, got %q", "Dark Market", doc.Title)
	}
	if doc.Text == "" {
		t.Fatal("expected non-empty text")
	}
}

func TestParseInsertsBlockBoundarySeparator(t *testing.T) {
	html := `<html><body><p>hello</p><p>world</p></body></html>`
	doc, err := Parse(html)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := doc.Text; got == "helloworld" {
		t.Errorf("expected block boundary separator, got fused text %q", got)
	}
}

func TestParseExtractsLinksAndFileLinks(t *testing.T) {
	html := `<html><body>
		<a href="https://example.com/page">Page</a>
		<a href="https://example.com/report.pdf">Report</a>
		<a href="#anchor">Skip</a>
		<a href="javascript:void(0)">Skip</a>
	</body></html>`
	doc, err := Parse(html)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(doc.Links) != 2 {
		t.Fatalf("expected 2 real links, got %d: %+v", len(doc.Links), doc.Links)
	}
	if len(doc.FileLinks) != 1 || doc.FileLinks[0].Extension != ".pdf" {
		t.Fatalf("expected 1 pdf file link, got %+v", doc.FileLinks)
	}
}

func TestParseDetectsPGPMarker(t *testing.T) {
	html := `<html><body><pre>-----BEGIN PGP PUBLIC KEY BLOCK-----
mQENBF...
-----END PGP PUBLIC KEY BLOCK-----</pre></body></html>`
	doc, err := Parse(html)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !doc.PGPDetected {
		t.Error("expected pgp_detected = true")
	}
}

func TestParseIdempotentOnPlainText(t *testing.T) {
	doc1, err := Parse(`<body><p>alpha beta</p></body>`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	doc2, err := Parse(doc1.Text)
	if err != nil {
		t.Fatalf("Parse returned error on second pass: %v", err)
	}
	if doc2.Text != doc1.Text {
		t.Errorf("parser is not idempotent on its own text output: %q vs %q", doc1.Text, doc2.Text)
	}
}
