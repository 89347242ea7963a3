// Package orchestrator implements the scan orchestrator (C9): it composes
// the fetch, parse, download, file-analysis, content-analysis,
// correlation, persistence, and alerting stages into one call, per §4.9.
// It never returns an error to its caller for a failed acquisition: every
// outcome becomes a ScanRecord.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duskwatch/duskwatch/internal/alertengine"
	"github.com/duskwatch/duskwatch/internal/analysis"
	"github.com/duskwatch/duskwatch/internal/correlate"
	"github.com/duskwatch/duskwatch/internal/download"
	"github.com/duskwatch/duskwatch/internal/fetch"
	"github.com/duskwatch/duskwatch/internal/fileanalysis"
	"github.com/duskwatch/duskwatch/internal/logging"
	"github.com/duskwatch/duskwatch/internal/model"
	"github.com/duskwatch/duskwatch/internal/parse"
)

// Store is the subset of the persistence layer the orchestrator drives.
type Store interface {
	PutScan(ctx context.Context, record *model.ScanRecord) error
	LatestScan(ctx context.Context, fingerprint string) (*model.ScanRecord, error)
	LatestOnlineScan(ctx context.Context, fingerprint, excludeID string) (*model.ScanRecord, error)
	PutAlert(ctx context.Context, a *model.Alert) error
}

// Orchestrator wires C1-C8 into scan(target).
type Orchestrator struct {
	fetcher    *fetch.Fetcher
	downloader *download.Downloader
	analyzer   *fileanalysis.Analyzer
	correlator *correlate.Correlator
	store      Store
	logger     *logging.Logger

	maxFileLinksPerScan int
}

// Config bundles the components and limits the Orchestrator composes.
type Config struct {
	Fetcher             *fetch.Fetcher
	Downloader          *download.Downloader
	Analyzer            *fileanalysis.Analyzer
	Correlator          *correlate.Correlator
	Store               Store
	Logger              *logging.Logger
	MaxFileLinksPerScan int
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	maxLinks := cfg.MaxFileLinksPerScan
	if maxLinks <= 0 {
		maxLinks = 10
	}
	return &Orchestrator{
		fetcher:             cfg.Fetcher,
		downloader:          cfg.Downloader,
		analyzer:            cfg.Analyzer,
		correlator:          cfg.Correlator,
		store:               cfg.Store,
		logger:              cfg.Logger,
		maxFileLinksPerScan: maxLinks,
	}
}

// Scan runs one full pipeline pass over target and returns the persisted
// ScanRecord. It is idempotent per call (never double-writes within one
// invocation) but each call to Scan produces a new record. The only error
// it returns is a failed store write, in which case no correlation or
// alerting runs for the scan.
func (o *Orchestrator) Scan(ctx context.Context, target string) (*model.ScanRecord, error) {
	fingerprint := model.Fingerprint(target)
	now := time.Now().UTC()

	prevOnline, _ := o.store.LatestOnlineScan(ctx, fingerprint, "")
	prevAny, _ := o.store.LatestScan(ctx, fingerprint)

	fetchResult := o.fetcher.Fetch(ctx, target)

	record := &model.ScanRecord{
		ID:                  uuid.NewString(),
		Target:              target,
		Fingerprint:         fingerprint,
		Timestamp:           now,
		URLStatus:           fetchResult.URLStatus,
		StatusCode:          fetchResult.StatusCode,
		ResponseTimeSeconds: floatPtr(fetchResult.ResponseTimeSeconds),
	}
	record.StatusHistory = appendStatusObservation(prevAny, record)

	if fetchResult.URLStatus == model.StatusOnline && fetchResult.Content != nil {
		o.analyzeOnline(ctx, record, *fetchResult.Content, prevOnline)
	} else {
		result := analysis.Analyze("", false, false)
		applyAnalysis(record, result)
	}

	if err := o.store.PutScan(ctx, record); err != nil {
		o.logger.Error("store put_scan failed", logging.Fields{"target": target, "error": err.Error()})
		return nil, fmt.Errorf("persist scan: %w", err)
	}

	reuseSignals := o.correlate(ctx, record, now)
	alerts := alertengine.Evaluate(record, prevOnline, reuseSignals)
	o.persistAlerts(ctx, alerts)

	return record, nil
}

func floatPtr(f float64) *float64 { return &f }

func appendStatusObservation(prev *model.ScanRecord, curr *model.ScanRecord) []model.StatusObservation {
	var history []model.StatusObservation
	if prev != nil {
		history = append(history, prev.StatusHistory...)
	}
	history = append(history, model.StatusObservation{
		Timestamp:           curr.Timestamp,
		URLStatus:           curr.URLStatus,
		StatusCode:          curr.StatusCode,
		ResponseTimeSeconds: curr.ResponseTimeSeconds,
	})
	return history
}

// analyzeOnline runs Parser -> file analysis -> Content Analyser over an
// ONLINE fetch and fills in every content-derived field on record.
func (o *Orchestrator) analyzeOnline(ctx context.Context, record *model.ScanRecord, htmlContent string, prevOnline *model.ScanRecord) {
	doc, err := parse.Parse(htmlContent)
	if err != nil {
		o.logger.Warn("parse failed, treating as empty document", logging.Fields{"target": record.Target, "error": err.Error()})
		doc = parse.Document{}
	}

	record.Title = doc.Title
	record.ContentPreview = truncate(doc.Text, 500)
	record.Links = toModelLinks(doc.Links)
	record.FileLinks = toModelFileLinks(doc.FileLinks)
	record.PGPDetected = doc.PGPDetected

	if doc.Text != "" {
		hash := sha256.Sum256([]byte(doc.Text))
		hashHex := hex.EncodeToString(hash[:])
		record.ContentHash = &hashHex
		if prevOnline != nil && prevOnline.ContentHash != nil {
			record.ContentChanged = *prevOnline.ContentHash != hashHex
		}
	}

	record.FileAnalyses = o.downloadAndAnalyze(ctx, record.Target, record.FileLinks)
	malwareDetected := false
	for _, fa := range record.FileAnalyses {
		if fa.Malware.Detected {
			malwareDetected = true
			break
		}
	}

	result := analysis.Analyze(doc.Text, doc.PGPDetected, malwareDetected)
	applyAnalysis(record, result)
}

func applyAnalysis(record *model.ScanRecord, result analysis.Result) {
	record.Keywords = result.Keywords
	record.Emails = result.Emails
	record.CryptoAddresses = result.CryptoAddresses
	record.ThreatScore = result.ThreatScore
	record.RiskLevel = result.RiskLevel
	record.Category = result.Category
	record.Confidence = result.Confidence
	record.ThreatIndicators = result.ThreatIndicators
}

// downloadAndAnalyze fetches up to maxFileLinksPerScan file links
// concurrently, deduplicating by content hash before returning, per §4.3.
func (o *Orchestrator) downloadAndAnalyze(ctx context.Context, sourceTarget string, links []model.FileLink) []model.FileAnalysis {
	if o.downloader == nil || o.analyzer == nil || len(links) == 0 {
		return nil
	}

	capped := links
	if len(capped) > o.maxFileLinksPerScan {
		capped = capped[:o.maxFileLinksPerScan]
	}

	type outcome struct {
		analysis model.FileAnalysis
		ok       bool
	}

	results := make([]outcome, len(capped))
	var wg sync.WaitGroup
	for i, link := range capped {
		wg.Add(1)
		go func(i int, link model.FileLink) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("panic during file analysis", logging.Fields{"target": sourceTarget, "file": link.URL, "panic": fmt.Sprintf("%v", r)})
				}
			}()

			dl, err := o.downloader.Download(ctx, resolveLink(sourceTarget, link.URL))
			if err != nil {
				o.logger.Warn("file download failed", logging.Fields{"file": link.URL, "error": err.Error()})
				return
			}
			fa := o.analyzer.Analyze(ctx, dl.FileURL, dl.FileName, dl.ContentType, dl.Content)
			results[i] = outcome{analysis: fa, ok: true}
		}(i, link)
	}
	wg.Wait()

	seenHashes := make(map[string]bool)
	var out []model.FileAnalysis
	for _, r := range results {
		if !r.ok {
			continue
		}
		if seenHashes[r.analysis.FileHash] {
			continue
		}
		seenHashes[r.analysis.FileHash] = true
		out = append(out, r.analysis)
	}
	return out
}

// resolveLink resolves href against sourceTarget, so a relative file link
// is fetched from the page that discovered it; an absolute href keeps its
// own scheme and host, and an href that fails to parse is returned
// unchanged.
func resolveLink(sourceTarget string, href string) string {
	base, err := url.Parse(sourceTarget)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// correlate feeds every IOC in record into the Correlator and returns the
// reuse signals raised.
func (o *Orchestrator) correlate(ctx context.Context, record *model.ScanRecord, ts time.Time) []correlate.ReuseSignal {
	if o.correlator == nil || record.URLStatus != model.StatusOnline {
		return nil
	}

	var fileHashes []string
	for _, fa := range record.FileAnalyses {
		fileHashes = append(fileHashes, fa.FileHash)
	}

	signals, err := o.correlator.Correlate(ctx, record.Target, ts, correlate.Input{
		Emails:     record.Emails,
		Crypto:     record.CryptoAddresses,
		FileHashes: fileHashes,
	})
	if err != nil {
		o.logger.Error("correlation failed", logging.Fields{"target": record.Target, "error": err.Error()})
		return nil
	}
	return signals
}

// persistAlerts writes each alert, retrying once on failure and dropping
// with a log entry thereafter, per §7's "alerts never fail open" policy.
func (o *Orchestrator) persistAlerts(ctx context.Context, alerts []*model.Alert) {
	for _, a := range alerts {
		err := o.store.PutAlert(ctx, a)
		if err != nil {
			err = o.store.PutAlert(ctx, a)
		}
		if err != nil {
			o.logger.Error("dropped alert after retry", logging.Fields{"alert_type": a.AlertType, "target": a.Target, "error": err.Error()})
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func toModelLinks(links []parse.Link) []model.Link {
	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		out = append(out, model.Link{URL: l.URL, AnchorText: l.AnchorText})
	}
	return out
}

func toModelFileLinks(links []parse.FileLink) []model.FileLink {
	out := make([]model.FileLink, 0, len(links))
	for _, l := range links {
		out = append(out, model.FileLink{URL: l.URL, Extension: l.Extension})
	}
	return out
}
