package model

import "testing"

func TestRiskLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow},
		{30, RiskLow},
		{31, RiskMedium},
		{70, RiskMedium},
		{71, RiskHigh},
		{100, RiskHigh},
	}
	for _, tt := range tests {
		if got := RiskLevelForScore(tt.score); got != tt.want {
			t.Errorf("RiskLevelForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestIsOnion(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"http://example1.onion/", true},
		{"http://EXAMPLE1.ONION", true},
		{"https://example.onion/path?q=1", true},
		{"http://example.com/", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		if got := IsOnion(tt.target); got != tt.want {
			t.Errorf("IsOnion(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestFingerprintNormalisesSchemeHostAndPort(t *testing.T) {
	a := Fingerprint("http://Example.com:80/")
	b := Fingerprint("http://example.com")
	if a != b {
		t.Errorf("expected fingerprints to match, got %q and %q", a, b)
	}
}

func TestFingerprintPreservesQuery(t *testing.T) {
	a := Fingerprint("http://example.com/path?x=1")
	b := Fingerprint("http://example.com/path?x=2")
	if a == b {
		t.Errorf("expected distinct fingerprints for distinct queries, got %q for both", a)
	}
}
