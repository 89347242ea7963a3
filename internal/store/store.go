// Package store implements the document store (C6): four in-memory
// collections (scans, monitors, iocs, alerts) behind a single RWMutex,
// with the indexes and comparison queries §4.5 requires. It generalizes
// the map-plus-mutex MemoryStorage pattern this project's persistence
// layer is adapted from into a multi-collection store with defensive
// copy-out on every read.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/duskwatch/duskwatch/internal/model"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = fmt.Errorf("not found")

// ErrMonitorCapReached is returned by CreateMonitor when the owner is
// already at their monitor cap.
var ErrMonitorCapReached = fmt.Errorf("monitor cap reached")

// Store holds every collection behind one mutex. Reads copy out via
// go-deepcopy so callers can never mutate stored state through a returned
// pointer.
type Store struct {
	mu sync.RWMutex

	scansByFingerprint map[string][]*model.ScanRecord
	scansByID          map[string]*model.ScanRecord
	iocsByKey          map[iocKey][]*model.IOCRecord
	monitors           map[string]*model.Monitor
	alerts             map[string]*model.Alert
	alertOrder         []string // insertion order, newest last

	monitorCapPerOwner int
}

type iocKey struct {
	iocType model.IOCType
	value   string
}

// New builds an empty Store with the given per-owner monitor cap.
func New(monitorCapPerOwner int) *Store {
	if monitorCapPerOwner < 1 {
		monitorCapPerOwner = 5
	}
	return &Store{
		scansByFingerprint: make(map[string][]*model.ScanRecord),
		scansByID:          make(map[string]*model.ScanRecord),
		iocsByKey:          make(map[iocKey][]*model.IOCRecord),
		monitors:           make(map[string]*model.Monitor),
		alerts:             make(map[string]*model.Alert),
		monitorCapPerOwner: monitorCapPerOwner,
	}
}

func copyScan(r *model.ScanRecord) *model.ScanRecord {
	var out model.ScanRecord
	if err := deepcopy.Copy(&out, r); err != nil {
		cp := *r
		return &cp
	}
	return &out
}

func copyMonitor(m *model.Monitor) *model.Monitor {
	var out model.Monitor
	if err := deepcopy.Copy(&out, m); err != nil {
		cp := *m
		return &cp
	}
	return &out
}

func copyAlert(a *model.Alert) *model.Alert {
	var out model.Alert
	if err := deepcopy.Copy(&out, a); err != nil {
		cp := *a
		return &cp
	}
	return &out
}

// PutScan appends record to the scans collection, keyed by fingerprint,
// per §4.5. Append-only: never overwrites a prior record.
func (s *Store) PutScan(_ context.Context, record *model.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	stored := copyScan(record)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scansByFingerprint[record.Fingerprint] = append(s.scansByFingerprint[record.Fingerprint], stored)
	s.scansByID[stored.ID] = stored
	return nil
}

// LatestScan returns the most recent record for fingerprint, or
// ErrNotFound.
func (s *Store) LatestScan(_ context.Context, fingerprint string) (*model.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.scansByFingerprint[fingerprint]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return copyScan(records[len(records)-1]), nil
}

// LatestOnlineScan returns the most recent ONLINE record for fingerprint
// prior to (and not including) excludeID, or ErrNotFound. Used by the
// Orchestrator to find the immediately-prior ONLINE record that the
// content-change check and the Alert Engine compare against; Compare
// walks the records itself.
func (s *Store) LatestOnlineScan(_ context.Context, fingerprint, excludeID string) (*model.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.scansByFingerprint[fingerprint]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID == excludeID {
			continue
		}
		if records[i].URLStatus == model.StatusOnline {
			return copyScan(records[i]), nil
		}
	}
	return nil, ErrNotFound
}

// ScansFor returns up to limit most-recent records for fingerprint, newest
// first.
func (s *Store) ScansFor(_ context.Context, fingerprint string, limit int) ([]*model.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.scansByFingerprint[fingerprint]
	out := make([]*model.ScanRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyScan(records[i]))
	}
	return out, nil
}

// ScanByID returns one record by opaque ID.
func (s *Store) ScanByID(_ context.Context, id string) (*model.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.scansByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyScan(r), nil
}

// History returns a global reverse-chronological page of scan records.
func (s *Store) History(_ context.Context, limit, offset int) ([]*model.ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*model.ScanRecord, 0, len(s.scansByID))
	for _, r := range s.scansByID {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if offset >= len(all) {
		return []*model.ScanRecord{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*model.ScanRecord, 0, end-offset)
	for _, r := range all[offset:end] {
		out = append(out, copyScan(r))
	}
	return out, nil
}

// Compare returns the two most recent ONLINE records for fingerprint and
// the structured delta between them, per §4.8.
func (s *Store) Compare(_ context.Context, fingerprint string) (*model.CompareResult, error) {
	s.mu.RLock()
	records := s.scansByFingerprint[fingerprint]
	var online []*model.ScanRecord
	for i := len(records) - 1; i >= 0 && len(online) < 2; i-- {
		if records[i].URLStatus == model.StatusOnline {
			online = append(online, copyScan(records[i]))
		}
	}
	s.mu.RUnlock()

	if len(online) < 2 {
		return nil, ErrNotFound
	}

	curr, prev := online[0], online[1]
	return BuildCompareResult(curr, prev), nil
}

// BuildCompareResult computes the delta between curr and prev per §4.8. It
// is exported so the Alert Engine and Orchestrator can reuse the same
// delta logic the /compare endpoint uses.
func BuildCompareResult(curr, prev *model.ScanRecord) *model.CompareResult {
	changes := model.CompareChanges{
		ThreatScoreDelta: curr.ThreatScore - prev.ThreatScore,
		RiskLevelChanged: curr.RiskLevel != prev.RiskLevel,
		StatusChanged:    curr.URLStatus != prev.URLStatus,
		CategoryChanged:  curr.Category != prev.Category,
		NewEmails:        setDiffCount(curr.Emails, prev.Emails),
		NewCrypto:        setDiffCount(curr.CryptoAddresses, prev.CryptoAddresses),
	}

	var reasons []string
	if changes.StatusChanged {
		reasons = append(reasons, fmt.Sprintf("status changed from %s to %s", prev.URLStatus, curr.URLStatus))
	}
	if changes.CategoryChanged {
		reasons = append(reasons, fmt.Sprintf("category changed from %q to %q", prev.Category, curr.Category))
	}
	if changes.ThreatScoreDelta != 0 {
		reasons = append(reasons, fmt.Sprintf("threat score changed by %+d", changes.ThreatScoreDelta))
	}
	if changes.NewEmails > 0 {
		reasons = append(reasons, fmt.Sprintf("%d new email(s) observed", changes.NewEmails))
	}
	if changes.NewCrypto > 0 {
		reasons = append(reasons, fmt.Sprintf("%d new crypto address(es) observed", changes.NewCrypto))
	}
	if curr.ThreatIndicators.MalwareDetected && !prev.ThreatIndicators.MalwareDetected {
		reasons = append(reasons, "malware newly detected")
	}
	if curr.ContentChanged {
		reasons = append(reasons, "content changed")
	}

	return &model.CompareResult{Current: curr, Previous: prev, Changes: changes, Reasons: reasons}
}

func setDiffCount(current, previous []string) int {
	prevSet := make(map[string]bool, len(previous))
	for _, v := range previous {
		prevSet[v] = true
	}
	count := 0
	for _, v := range current {
		if !prevSet[v] {
			count++
		}
	}
	return count
}

// IOCUpsert appends an IOCRecord and returns the size of, and distinct
// targets in, its reuse set after the append, plus whether target was not
// already a member of the reuse set before this call.
func (s *Store) IOCUpsert(_ context.Context, iocType model.IOCType, value, target string, ts time.Time) (reuseCount int, targets []string, newTarget bool, err error) {
	key := iocKey{iocType: iocType, value: value}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.iocsByKey[key]
	wasPresent := false
	for _, rec := range existing {
		if rec.Target == target {
			wasPresent = true
			break
		}
	}

	s.iocsByKey[key] = append(existing, &model.IOCRecord{
		IOCType:   iocType,
		IOCValue:  value,
		Target:    target,
		Timestamp: ts,
	})

	seen := make(map[string]bool)
	for _, rec := range s.iocsByKey[key] {
		if !seen[rec.Target] {
			seen[rec.Target] = true
			targets = append(targets, rec.Target)
		}
	}
	return len(targets), targets, !wasPresent, nil
}
