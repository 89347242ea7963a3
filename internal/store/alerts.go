package store

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/duskwatch/duskwatch/internal/model"
)

// PutAlert inserts a new Alert with status "new".
func (s *Store) PutAlert(_ context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.AlertStatusNew
	}
	stored := copyAlert(a)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[stored.ID] = stored
	s.alertOrder = append(s.alertOrder, stored.ID)
	return nil
}

// ListAlerts returns alerts newest-first, optionally filtered by status.
// An empty statusFilter returns every alert.
func (s *Store) ListAlerts(_ context.Context, statusFilter model.AlertStatus) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Alert, 0, len(s.alertOrder))
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if a == nil {
			continue
		}
		if statusFilter != "" && a.Status != statusFilter {
			continue
		}
		out = append(out, copyAlert(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Acknowledge transitions an Alert to "acknowledged". Idempotent: calling
// it on an already-acknowledged alert succeeds without changing anything.
func (s *Store) Acknowledge(_ context.Context, id string) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = model.AlertStatusAcknowledged
	return copyAlert(a), nil
}
