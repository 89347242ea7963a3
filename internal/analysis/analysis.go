// Package analysis implements the content analyser (C5): IOC extraction,
// tiered threat scoring, and category/confidence classification. It is
// pure: no I/O, no network, no store access, so it can be exercised with
// plain string fixtures.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/duskwatch/duskwatch/internal/model"
)

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	bitcoinPattern  = regexp.MustCompile(`\b(?:bc1|[13])[a-zA-HJ-NP-Z0-9]{25,39}\b`)
	ethereumPattern = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	moneroPattern   = regexp.MustCompile(`\b4[0-9AB][1-9A-HJ-NP-Za-km-z]{93}\b`)

	tokenPattern = regexp.MustCompile(`[a-z0-9]{3,}`)
	hyphenJoin   = regexp.MustCompile(`([a-z0-9])-([a-z0-9])`)
)

type tier struct {
	name   string
	weight int
}

var (
	tierCritical = tier{"critical", 15}
	tierHigh     = tier{"high", 8}
	tierModerate = tier{"moderate", 3}
)

// keywordDictionary maps each curated threat keyword to its scoring tier.
// This is the "curated threat-keyword dictionary" the Parser intersects
// tokens against and the Content Analyser scores against: one dictionary
// serves both.
var keywordDictionary = map[string]tier{
	"ransomware": tierCritical,
	"exploit":    tierCritical,
	"carding":    tierCritical,
	"cvv":        tierCritical,
	"zeroday":    tierCritical,
	"breach":     tierCritical,
	"ddos":       tierCritical,
	"botnet":     tierCritical,

	"marketplace": tierHigh,
	"market":      tierHigh,
	"escrow":      tierHigh,
	"fraud":       tierHigh,
	"phishing":    tierHigh,
	"hack":        tierHigh,
	"drug":        tierHigh,
	"drugs":       tierHigh,
	"weapon":      tierHigh,
	"illegal":     tierHigh,

	"contact": tierModerate,
	"service": tierModerate,
	"offer":   tierModerate,
}

// categoryRule is one entry of the closed category set: a keyword set and
// an integer weight. Category score is matches × weight.
type categoryRule struct {
	keywords map[string]bool
	weight   int
}

// CategoryUnknown is returned when no category rule matches at all.
const CategoryUnknown = "Unknown"

var categoryRules = map[string]categoryRule{
	"Illegal Marketplace": {
		weight: 4,
		keywords: set(
			"shop", "store", "buy", "sell", "vendor", "market", "product",
			"drugs", "drug", "weapon", "exploit", "stolen", "illegal",
			"contraband", "escrow", "carding", "cvv",
		),
	},
	"Hacking/Exploitation": {
		weight: 4,
		keywords: set(
			"hack", "exploit", "vulnerability", "malware", "ransomware",
			"ddos", "botnet", "zeroday", "payload", "breach", "intrusion",
			"worm", "trojan", "keylogger", "database", "carding", "dump", "cvv",
		),
	},
	"Data Leak": {
		weight: 3,
		keywords: set(
			"leak", "leaked", "database", "dump", "credentials", "password",
			"breach", "exposed", "confidential", "classified", "documents",
			"records",
		),
	},
	"Fraud": {
		weight: 3,
		keywords: set(
			"fraud", "scam", "phishing", "forgery", "fake", "counterfeit",
			"ponzi", "scheme", "clone", "impersonate", "spoof",
		),
	},
	"Financial/Crypto": {
		weight: 2,
		keywords: set(
			"bitcoin", "crypto", "wallet", "payment", "transaction", "money",
			"ethereum", "monero", "zcash", "blockchain", "exchange",
			"mining", "coin",
		),
	},
	"Adult Content": {
		weight: 2,
		keywords: set(
			"adult", "explicit", "nsfw", "sex", "porn", "xxx", "escort",
			"prostitution", "dating", "cam",
		),
	},
	"Document/Info": {
		weight: 1,
		keywords: set(
			"document", "guide", "manual", "tutorial", "information",
			"research", "whitepaper", "pdf", "archive", "collection",
			"library", "reference",
		),
	},
	"Communication/Forum": {
		weight: 1,
		keywords: set(
			"forum", "chat", "message", "contact", "email", "discuss",
			"community", "board", "thread", "post", "group", "channel",
		),
	},
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Tokenize returns the deterministic, deduplicated, lowercased token list
// the Parser produces from normalised text: alphanumeric runs of length
// >=3. Hyphens joining word characters are collapsed first, so a compound
// like "zero-day" tokenizes as "zeroday" rather than splitting into "zero"
// and "day".
func Tokenize(text string) []string {
	normalized := hyphenJoin.ReplaceAllString(strings.ToLower(text), "$1$2")
	seen := make(map[string]bool)
	var tokens []string
	for _, tok := range tokenPattern.FindAllString(normalized, -1) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Keywords intersects tokens with the curated dictionary, per §4.2.
func Keywords(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if _, ok := keywordDictionary[tok]; ok {
			out = append(out, tok)
		}
	}
	sort.Strings(out)
	return out
}

// ExtractEmails returns the deduplicated (case-insensitive), sorted email
// addresses found in text.
func ExtractEmails(text string) []string {
	return dedupCaseInsensitive(emailPattern.FindAllString(text, -1))
}

// ExtractCryptoAddresses returns the deduplicated Bitcoin/Ethereum/Monero
// addresses found in text. Crypto addresses are case-sensitive by
// construction (base58/hex), so only exact-duplicate collapse applies.
func ExtractCryptoAddresses(text string) []string {
	var found []string
	found = append(found, bitcoinPattern.FindAllString(text, -1)...)
	found = append(found, ethereumPattern.FindAllString(text, -1)...)
	found = append(found, moneroPattern.FindAllString(text, -1)...)
	return dedupExact(found)
}

func dedupCaseInsensitive(items []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// dedupExact collapses exact duplicates, keying on a SHA3-256 digest
// rather than the raw string so long Monero addresses don't pay for a
// full string compare on every map probe.
func dedupExact(items []string) []string {
	seen := make(map[[32]byte]bool)
	var out []string
	for _, item := range items {
		key := sha3.Sum256([]byte(item))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// clampScore keeps a threat score within [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ThreatScore sums the weighted signals from §4.4 and clamps to [0,100].
func ThreatScore(keywords, emails, crypto []string, malwareDetected, pgpDetected bool) int {
	score := 0
	for _, kw := range keywords {
		if t, ok := keywordDictionary[kw]; ok {
			score += t.weight
		}
	}
	if len(emails) > 0 && len(crypto) > 0 {
		score += 40
	}
	if len(emails) > 0 {
		score += 3
	}
	if malwareDetected {
		score += 25
	}
	if pgpDetected {
		score += 2
	}
	return clampScore(score)
}

// Classification is the output of Classify: the winning category, its
// weight (used by the confidence formula), and its confidence score.
type Classification struct {
	Category         string
	WinningWeight    int
	Confidence       float64
}

// Classify picks the best-scoring category (matches × weight, ties broken
// by higher weight then category name) and computes confidence per §4.4.
func Classify(keywords, emails, crypto []string, malwareDetected bool) Classification {
	kwSet := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kwSet[kw] = true
	}

	type scored struct {
		name    string
		score   int
		weight  int
	}
	var candidates []scored
	for name, rule := range categoryRules {
		matches := 0
		for kw := range kwSet {
			if rule.keywords[kw] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		candidates = append(candidates, scored{name: name, score: matches * rule.weight, weight: rule.weight})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		return candidates[i].name < candidates[j].name
	})

	category := CategoryUnknown
	winningWeight := 0
	keywordMatches := len(keywords)
	if len(candidates) > 0 {
		category = candidates[0].name
		winningWeight = candidates[0].weight
	}

	confidence := confidenceFor(keywordMatches, len(crypto), len(emails), malwareDetected, winningWeight)
	if keywordMatches == 0 && len(crypto) == 0 && len(emails) == 0 && !malwareDetected {
		confidence = 0.25
	}

	return Classification{Category: category, WinningWeight: winningWeight, Confidence: confidence}
}

func confidenceFor(keywordMatches, cryptoCount, emailCount int, malwareDetected bool, winningWeight int) float64 {
	c := minF(0.4, 0.12*float64(keywordMatches))
	c += minF(0.35, 0.15*float64(cryptoCount))
	c += minF(0.30, 0.10*float64(emailCount))
	if malwareDetected {
		c += 0.20
	}
	c += minF(0.15, 0.05*float64(winningWeight))
	if c > 0.99 {
		c = 0.99
	}
	return c
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Result bundles every content-analysis output for one ScanRecord.
type Result struct {
	Keywords         []string
	Emails           []string
	CryptoAddresses  []string
	ThreatScore      int
	RiskLevel        model.RiskLevel
	Category         string
	Confidence       float64
	ThreatIndicators model.ThreatIndicators
}

// Analyze runs the full content-analysis pipeline over normalised text.
// malwareDetected folds in the File Analyser's signature-scanner verdict
// across every downloaded file in the same scan, per §4.9 step 2.
func Analyze(text string, pgpDetected, malwareDetected bool) Result {
	tokens := Tokenize(text)
	keywords := Keywords(tokens)
	emails := ExtractEmails(text)
	crypto := ExtractCryptoAddresses(text)

	score := ThreatScore(keywords, emails, crypto, malwareDetected, pgpDetected)
	classification := Classify(keywords, emails, crypto, malwareDetected)

	return Result{
		Keywords:        keywords,
		Emails:          emails,
		CryptoAddresses: crypto,
		ThreatScore:     score,
		RiskLevel:       model.RiskLevelForScore(score),
		Category:        classification.Category,
		Confidence:      classification.Confidence,
		ThreatIndicators: model.ThreatIndicators{
			KeywordMatches:  len(keywords),
			MatchedKeywords: keywords,
			CryptoDetected:  len(crypto) > 0,
			EmailDetected:   len(emails) > 0,
			MalwareDetected: malwareDetected,
		},
	}
}
