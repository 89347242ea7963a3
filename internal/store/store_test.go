package store

import (
	"context"
	"testing"
	"time"

	"github.com/duskwatch/duskwatch/internal/model"
)

func TestPutScanAndLatestScan(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	rec := &model.ScanRecord{Target: "http://example.com/", Fingerprint: "http://example.com", Timestamp: time.Now(), URLStatus: model.StatusOnline, ThreatScore: 10}
	if err := s.PutScan(ctx, rec); err != nil {
		t.Fatalf("PutScan failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected PutScan to assign an ID")
	}

	got, err := s.LatestScan(ctx, "http://example.com")
	if err != nil {
		t.Fatalf("LatestScan failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("expected latest scan ID %s, got %s", rec.ID, got.ID)
	}
}

func TestPutScanIsDefensiveCopy(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	rec := &model.ScanRecord{Target: "http://example.com/", Fingerprint: "fp", Timestamp: time.Now(), Title: "original"}
	_ = s.PutScan(ctx, rec)

	rec.Title = "mutated after put"

	got, err := s.LatestScan(ctx, "fp")
	if err != nil {
		t.Fatalf("LatestScan failed: %v", err)
	}
	if got.Title != "original" {
		t.Errorf("expected stored copy to be unaffected by caller mutation, got %q", got.Title)
	}
}

func TestHistoryReverseChronological(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		rec := &model.ScanRecord{Target: "t", Fingerprint: "fp", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		_ = s.PutScan(ctx, rec)
	}

	history, err := s.History(ctx, 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history))
	}
	for i := 0; i < len(history)-1; i++ {
		if history[i].Timestamp.Before(history[i+1].Timestamp) {
			t.Fatalf("history not reverse-chronological at index %d", i)
		}
	}
}

func TestCompareRequiresTwoOnlineRecords(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	_ = s.PutScan(ctx, &model.ScanRecord{Target: "t", Fingerprint: "fp", Timestamp: time.Now(), URLStatus: model.StatusOnline, ThreatScore: 10})
	if _, err := s.Compare(ctx, "fp"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound with only one online record, got %v", err)
	}

	_ = s.PutScan(ctx, &model.ScanRecord{Target: "t", Fingerprint: "fp", Timestamp: time.Now(), URLStatus: model.StatusOnline, ThreatScore: 40})
	result, err := s.Compare(ctx, "fp")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result.Changes.ThreatScoreDelta != 30 {
		t.Errorf("expected delta 30, got %d", result.Changes.ThreatScoreDelta)
	}
}

func TestIOCUpsertReuseSetGrowth(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	count, _, newTarget, err := s.IOCUpsert(ctx, model.IOCEmail, "a@b.test", "site-a", time.Now())
	if err != nil {
		t.Fatalf("IOCUpsert failed: %v", err)
	}
	if count != 1 || !newTarget {
		t.Fatalf("expected first upsert to be a new target with count 1, got count=%d newTarget=%v", count, newTarget)
	}

	count, targets, newTarget, err := s.IOCUpsert(ctx, model.IOCEmail, "a@b.test", "site-b", time.Now())
	if err != nil {
		t.Fatalf("IOCUpsert failed: %v", err)
	}
	if count != 2 || !newTarget {
		t.Fatalf("expected second upsert to add a new target with count 2, got count=%d newTarget=%v", count, newTarget)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 distinct targets, got %v", targets)
	}

	count, _, newTarget, err = s.IOCUpsert(ctx, model.IOCEmail, "a@b.test", "site-a", time.Now())
	if err != nil {
		t.Fatalf("IOCUpsert failed: %v", err)
	}
	if count != 2 || newTarget {
		t.Fatalf("expected re-observation on an existing target to not count as new, got count=%d newTarget=%v", count, newTarget)
	}
}

func TestMonitorCapEnforced(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	if _, err := s.CreateMonitor(ctx, "owner", "http://a.test", 5); err != nil {
		t.Fatalf("CreateMonitor 1 failed: %v", err)
	}
	if _, err := s.CreateMonitor(ctx, "owner", "http://b.test", 5); err != nil {
		t.Fatalf("CreateMonitor 2 failed: %v", err)
	}
	if _, err := s.CreateMonitor(ctx, "owner", "http://c.test", 5); err != ErrMonitorCapReached {
		t.Fatalf("expected ErrMonitorCapReached at cap+1, got %v", err)
	}
}

func TestSetPausedIsSticky(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	m, _ := s.CreateMonitor(ctx, "owner", "http://a.test", 5)
	if _, err := s.SetPaused(ctx, m.ID, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	due, err := s.ListMonitorsDue(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListMonitorsDue failed: %v", err)
	}
	for _, d := range due {
		if d.ID == m.ID {
			t.Fatal("paused monitor should not be listed as due")
		}
	}
}

func TestAcknowledgeIdempotent(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	_ = s.PutAlert(ctx, &model.Alert{Target: "t", AlertType: model.AlertMalware, Timestamp: time.Now()})
	alerts, _ := s.ListAlerts(ctx, "")
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	id := alerts[0].ID

	if _, err := s.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	a, err := s.Acknowledge(ctx, id)
	if err != nil {
		t.Fatalf("second Acknowledge failed: %v", err)
	}
	if a.Status != model.AlertStatusAcknowledged {
		t.Errorf("expected acknowledged status, got %s", a.Status)
	}
}
