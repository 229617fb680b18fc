package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jklgtravel/mailer/internal/domain"
)

// memStore is an in-memory domain.EmailQueue with the same conditional
// transitions as the Postgres store.
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.EmailRecord
	now     func() time.Time

	// failing operations return errStoreDown
	failOps map[string]bool
}

var errStoreDown = errors.New("store unavailable")

func newMemStore() *memStore {
	return &memStore{
		records: make(map[uuid.UUID]*domain.EmailRecord),
		now:     time.Now,
		failOps: make(map[string]bool),
	}
}

func (s *memStore) add(to, subject, body string, createdAt time.Time) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.records[id] = &domain.EmailRecord{
		ID:             id,
		RecipientEmail: to,
		Subject:        subject,
		Body:           body,
		Status:         domain.EmailStatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	return id
}

func (s *memStore) get(id uuid.UUID) domain.EmailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *memStore) set(id uuid.UUID, status domain.EmailStatus, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id].Status = status
	s.records[id].UpdatedAt = updatedAt
}

func (s *memStore) fail(op string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOps[op] = on
}

func (s *memStore) count(status domain.EmailStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (s *memStore) SelectPending(ctx context.Context, limit int) ([]domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps["select_pending"] {
		return nil, errStoreDown
	}
	var out []domain.EmailRecord
	for _, r := range s.records {
		if r.Status == domain.EmailStatusPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) TryClaim(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps["claim"] {
		return false, errStoreDown
	}
	r, ok := s.records[id]
	if !ok || r.Status != domain.EmailStatusPending {
		return false, nil
	}
	r.Status = domain.EmailStatusProcessing
	r.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) transition(op string, id uuid.UUID, apply func(r *domain.EmailRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps[op] {
		return errStoreDown
	}
	r, ok := s.records[id]
	if !ok || r.Status != domain.EmailStatusProcessing {
		return domain.ErrEmailNotProcessing
	}
	apply(r)
	r.UpdatedAt = s.now()
	return nil
}

func (s *memStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	return s.transition("mark_sent", id, func(r *domain.EmailRecord) {
		now := s.now()
		r.Status = domain.EmailStatusSent
		r.SentAt = &now
		r.ErrorMessage = nil
	})
}

func (s *memStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return s.transition("mark_failed", id, func(r *domain.EmailRecord) {
		r.Status = domain.EmailStatusFailed
		r.ErrorMessage = &message
	})
}

func (s *memStore) MarkPending(ctx context.Context, id uuid.UUID) error {
	return s.transition("mark_pending", id, func(r *domain.EmailRecord) {
		r.Status = domain.EmailStatusPending
	})
}

func (s *memStore) ReleaseAbandoned(ctx context.Context, id uuid.UUID, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps["release_abandoned"] {
		return errStoreDown
	}
	r, ok := s.records[id]
	if !ok || r.Status != domain.EmailStatusProcessing || !r.UpdatedAt.Before(s.now().Add(-olderThan)) {
		return domain.ErrEmailNotProcessing
	}
	r.Status = domain.EmailStatusPending
	r.UpdatedAt = s.now()
	return nil
}

func (s *memStore) SelectAbandoned(ctx context.Context, olderThan time.Duration) ([]domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOps["select_abandoned"] {
		return nil, errStoreDown
	}
	cutoff := s.now().Add(-olderThan)
	var out []domain.EmailRecord
	for _, r := range s.records {
		if r.Status == domain.EmailStatusProcessing && r.UpdatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}
