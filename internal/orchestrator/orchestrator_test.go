package orchestrator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duskwatch/duskwatch/internal/correlate"
	"github.com/duskwatch/duskwatch/internal/download"
	"github.com/duskwatch/duskwatch/internal/fetch"
	"github.com/duskwatch/duskwatch/internal/fileanalysis"
	"github.com/duskwatch/duskwatch/internal/logging"
	"github.com/duskwatch/duskwatch/internal/model"
	"github.com/duskwatch/duskwatch/internal/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	logger := logging.New("ERROR", false, io.Discard)
	f, err := fetch.New(fetch.Config{Timeout: 5 * time.Second, MaxBodyBytes: 1024 * 1024, UserAgent: "test"}, logger)
	if err != nil {
		t.Fatalf("fetch.New failed: %v", err)
	}
	dl := download.New(f, 1024*1024)
	analyzer := fileanalysis.NewDefault()
	st := store.New(5)
	corr := correlate.New(st)

	orch := New(Config{
		Fetcher:             f,
		Downloader:          dl,
		Analyzer:            analyzer,
		Correlator:          corr,
		Store:               st,
		Logger:              logger,
		MaxFileLinksPerScan: 10,
	})
	return orch, st
}

func TestScanOnlineMarketplacePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Dark Market</title></head><body>
			<p>buy carding tools escrow available</p>
			<p>contact: admin@shop.test</p>
		</body></html>`))
	}))
	defer srv.Close()

	orch, _ := newTestOrchestrator(t)
	rec, err := orch.Scan(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if rec.URLStatus != model.StatusOnline {
		t.Fatalf("expected ONLINE, got %s", rec.URLStatus)
	}
	if rec.Title != "Dark Market" {
		t.Errorf("expected title Dark Market, got %q", rec.Title)
	}
	if len(rec.Emails) != 1 {
		t.Errorf("expected 1 extracted email, got %v", rec.Emails)
	}
	if rec.ThreatScore <= 0 {
		t.Errorf("expected a positive threat score, got %d", rec.ThreatScore)
	}
}

func TestScanOfflineTargetProducesOfflineRecord(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	rec, err := orch.Scan(context.Background(), "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if rec.URLStatus == model.StatusOnline {
		t.Fatalf("expected a non-ONLINE status for an unreachable host, got %s", rec.URLStatus)
	}
	if rec.ThreatScore != 0 {
		t.Errorf("expected zero threat score for an offline scan, got %d", rec.ThreatScore)
	}
}

func TestScanDetectsContentChangeOnSecondScan(t *testing.T) {
	page := "<html><body><p>version one</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := orch.Scan(ctx, srv.URL); err != nil {
		t.Fatalf("first Scan failed: %v", err)
	}

	page = "<html><body><p>version two, totally different</p></body></html>"
	rec, err := orch.Scan(ctx, srv.URL)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if !rec.ContentChanged {
		t.Error("expected ContentChanged to be true after the page body changed")
	}
}

func TestScanPersistsRecordToStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	orch, st := newTestOrchestrator(t)
	rec, err := orch.Scan(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	got, err := st.ScanByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("expected the scan record to be retrievable from the store: %v", err)
	}
	if got.Target != rec.Target {
		t.Errorf("expected stored target %q, got %q", rec.Target, got.Target)
	}
}
