package analysis

import (
	"testing"
)

func TestExtractEmails(t *testing.T) {
	text := "Reach us at admin@shop.test or ADMIN@shop.test for support."
	emails := ExtractEmails(text)
	if len(emails) != 1 {
		t.Fatalf("expected 1 deduplicated email, got %d: %v", len(emails), emails)
	}
}

func TestExtractCryptoAddresses(t *testing.T) {
	text := "BTC 1BoatSLRHtKNngkdXEeobR76b53LETtpyT ETH 0x1234567890abcdef1234567890abcdef12345678"
	addrs := ExtractCryptoAddresses(text)
	if len(addrs) != 2 {
		t.Fatalf("expected 2 crypto addresses, got %d: %v", len(addrs), addrs)
	}
}

func TestBitcoinPatternDoesNotTruncateToPrefix(t *testing.T) {
	text := "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	addrs := ExtractCryptoAddresses(text)
	if len(addrs) != 1 || addrs[0] != text {
		t.Fatalf("expected full address %q, got %v", text, addrs)
	}
}

func TestTokenizeAndKeywords(t *testing.T) {
	text := "Dark Market buy carding escrow contact: admin@shop.test"
	tokens := Tokenize(text)
	keywords := Keywords(tokens)

	want := map[string]bool{"market": true, "carding": true, "escrow": true, "contact": true}
	got := make(map[string]bool)
	for _, kw := range keywords {
		got[kw] = true
	}
	for w := range want {
		if !got[w] {
			t.Errorf("expected keyword %q in %v", w, keywords)
		}
	}
}

func TestTokenizeJoinsHyphenatedCompound(t *testing.T) {
	tokens := Tokenize("a zero-day exploit was disclosed")
	keywords := Keywords(tokens)

	found := false
	for _, kw := range keywords {
		if kw == "zeroday" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected \"zero-day\" to tokenize into the \"zeroday\" keyword, got tokens %v", tokens)
	}
}

func TestThreatScoreClampedToRange(t *testing.T) {
	keywords := []string{"ransomware", "exploit", "carding", "cvv", "zeroday", "breach", "ddos", "botnet"}
	score := ThreatScore(keywords, []string{"a@b.test"}, []string{"addr"}, true, true)
	if score < 0 || score > 100 {
		t.Fatalf("score %d out of [0,100] range", score)
	}
	if score != 100 {
		t.Fatalf("expected clamp to 100 with every bonus firing, got %d", score)
	}
}

func TestThreatScoreDualIndicatorBonus(t *testing.T) {
	withBoth := ThreatScore(nil, []string{"a@b.test"}, []string{"addr"}, false, false)
	withEmailOnly := ThreatScore(nil, []string{"a@b.test"}, nil, false, false)
	if withBoth-withEmailOnly != 40 {
		t.Fatalf("expected dual-indicator bonus of 40, got delta %d", withBoth-withEmailOnly)
	}
}

func TestClassifyPicksHighestWeightedCategory(t *testing.T) {
	keywords := Keywords(Tokenize("shop buy market escrow carding"))
	result := Classify(keywords, nil, nil, false)
	if result.Category != "Illegal Marketplace" {
		t.Fatalf("expected Illegal Marketplace, got %s", result.Category)
	}
}

func TestClassifyUnknownWhenNoSignal(t *testing.T) {
	result := Classify(nil, nil, nil, false)
	if result.Category != CategoryUnknown {
		t.Fatalf("expected %s, got %s", CategoryUnknown, result.Category)
	}
	if result.Confidence != 0.25 {
		t.Fatalf("expected default confidence 0.25, got %f", result.Confidence)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	keywords := Keywords(Tokenize("hack exploit malware breach"))
	a := Classify(keywords, []string{"x"}, []string{"y@z.test"}, true)
	b := Classify(keywords, []string{"x"}, []string{"y@z.test"}, true)
	if a.Category != b.Category || a.Confidence != b.Confidence {
		t.Fatalf("classification not deterministic: %+v vs %+v", a, b)
	}
}

func TestAnalyzeMarketplaceScenario(t *testing.T) {
	text := "Dark Market buy carding escrow contact: admin@shop.test BTC 1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	result := Analyze(text, false, false)

	if len(result.Emails) != 1 {
		t.Errorf("expected 1 email, got %v", result.Emails)
	}
	if len(result.CryptoAddresses) != 1 {
		t.Errorf("expected 1 crypto address, got %v", result.CryptoAddresses)
	}
	if result.Category != "Illegal Marketplace" {
		t.Errorf("expected Illegal Marketplace, got %s", result.Category)
	}
	if result.ThreatScore <= 0 {
		t.Errorf("expected a positive threat score, got %d", result.ThreatScore)
	}
}
