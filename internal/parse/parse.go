// Package parse extracts structured content from a fetched HTML document
// (C2): the page title, a block-aware normalised text body, outbound links,
// file links, and a PGP-block marker. It uses goquery/cascadia for
// traversal, the same combination the crawler this project generalizes
// from uses for link and text discovery.
package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// monitoredExtensions lists the file suffixes whose links the Parser
// reports as file links; the Orchestrator hands them, up to its per-scan
// cap, to the Downloader (C3) on every ONLINE scan.
var monitoredExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".zip": true, ".rar": true, ".7z": true,
	".exe": true, ".txt": true, ".rtf": true, ".csv": true, ".sql": true,
}

// blockTags forces a text boundary so words from adjacent block elements
// are never concatenated without whitespace.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "section": true,
	"article": true, "header": true, "footer": true, "table": true, "ul": true,
	"ol": true, "blockquote": true, "pre": true,
}

var pgpBlockPattern = regexp.MustCompile(`-----BEGIN PGP (PUBLIC KEY BLOCK|MESSAGE|SIGNED MESSAGE)-----`)

// Link is one anchor discovered on the page.
type Link struct {
	URL        string
	AnchorText string
}

// FileLink is a Link whose target path ends in a monitored extension.
type FileLink struct {
	URL       string
	Extension string
}

// Document is the parser's output contract from spec.md §4.2.
type Document struct {
	Title       string
	Text        string
	Links       []Link
	FileLinks   []FileLink
	PGPDetected bool
}

// Parse walks HTML content and produces a Document. Malformed HTML is
// tolerated: goquery/golang.org/x/net/html recover from unclosed tags and
// unknown elements rather than failing the scan.
func Parse(htmlContent string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return Document{}, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	scriptsAndStyles := doc.Find("script, style, noscript")
	scriptsAndStyles.Remove()

	var text strings.Builder
	body := doc.Find("body")
	if body.Length() > 0 {
		extractTextFromSelection(body, &text)
	} else {
		// Some pages have no <body>, e.g. bare fragments; fall back to the
		// whole document.
		extractTextFromSelection(doc.Selection, &text)
	}
	normalized := normalizeWhitespace(text.String())

	links, fileLinks := extractLinks(doc)

	return Document{
		Title:       title,
		Text:        normalized,
		Links:       links,
		FileLinks:   fileLinks,
		PGPDetected: pgpBlockPattern.MatchString(htmlContent),
	}, nil
}

func extractLinks(doc *goquery.Document) ([]Link, []FileLink) {
	var links []Link
	var fileLinks []FileLink
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		key := href + "|" + s.Text()
		if seen[key] {
			return
		}
		seen[key] = true

		anchorText := strings.TrimSpace(s.Text())
		links = append(links, Link{URL: href, AnchorText: anchorText})

		if ext, ok := monitoredExtension(href); ok {
			fileLinks = append(fileLinks, FileLink{URL: href, Extension: ext})
		}
	})

	return links, fileLinks
}

func monitoredExtension(href string) (string, bool) {
	path := href
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", false
	}
	ext := strings.ToLower(path[idx:])
	if monitoredExtensions[ext] {
		return ext, true
	}
	return "", false
}

// normalizeWhitespace collapses every run of whitespace, newlines
// included, to a single space and trims both ends, producing one line of
// text. No Unicode normalisation is applied.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// extractTextFromSelection walks the node tree depth-first, inserting a
// single space at each block-tag boundary so "</p><p>" doesn't fuse two
// sentences together.
func extractTextFromSelection(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		if node == nil {
			return
		}
		switch node.Type {
		case 1: // html.TextNode
			sb.WriteString(child.Text())
			sb.WriteByte(' ')
		case 3: // html.ElementNode
			if blockTags[strings.ToLower(node.Data)] {
				sb.WriteByte(' ')
			}
			extractTextFromSelection(child, sb)
			if blockTags[strings.ToLower(node.Data)] {
				sb.WriteByte(' ')
			}
		default:
			extractTextFromSelection(child, sb)
		}
	})
}

