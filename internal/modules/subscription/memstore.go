package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/braingame/waitlist-core/internal/models"
)

// MemorySubscriberStore keeps subscribers in process memory. It backs dev
// mode (no DSN configured) and tests.
type MemorySubscriberStore struct {
	mu   sync.RWMutex
	subs map[string]models.SubscriberModel
}

func NewMemorySubscriberStore() *MemorySubscriberStore {
	return &MemorySubscriberStore{subs: make(map[string]models.SubscriberModel)}
}

func (s *MemorySubscriberStore) GetByEmail(_ context.Context, email string) (*models.SubscriberModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[email]
	if !ok {
		return nil, nil
	}
	out := cloneSubscriber(sub)
	return &out, nil
}

func (s *MemorySubscriberStore) Save(_ context.Context, sub *models.SubscriberModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.subs[sub.Email]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	s.subs[sub.Email] = cloneSubscriber(*sub)
	return nil
}

func (s *MemorySubscriberStore) List(_ context.Context, status string) ([]models.SubscriberModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SubscriberModel, 0, len(s.subs))
	for _, sub := range s.subs {
		if status != "" && sub.Status != status {
			continue
		}
		out = append(out, cloneSubscriber(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySubscriberStore) CountByStatus(_ context.Context, status string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, sub := range s.subs {
		if sub.Status == status {
			n++
		}
	}
	return n, nil
}

func cloneSubscriber(sub models.SubscriberModel) models.SubscriberModel {
	if sub.Metadata != nil {
		meta := make(map[string]interface{}, len(sub.Metadata))
		for k, v := range sub.Metadata {
			meta[k] = v
		}
		sub.Metadata = meta
	}
	if sub.ConfirmedAt != nil {
		t := *sub.ConfirmedAt
		sub.ConfirmedAt = &t
	}
	if sub.UnsubscribedAt != nil {
		t := *sub.UnsubscribedAt
		sub.UnsubscribedAt = &t
	}
	return sub
}

// MemoryTokenStore keeps confirmation tokens in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (s *MemoryTokenStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[token], nil
}

func (s *MemoryTokenStore) Put(_ context.Context, token, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = email
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// Len reports the number of live tokens. Export/inspection helper.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
