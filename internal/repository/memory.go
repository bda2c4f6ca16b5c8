package repository

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/provio-systems/provio/internal/models"
)

// InMemoryStore is a mutex-guarded Store used in tests and the
// database-free development mode.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.Credential
	credKeys    map[string]string // owner|platform|username -> credential id
	names       []*models.NameCandidate
	events      map[string]*models.AuditEvent
	eventOrder  []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credentials: make(map[string]*models.Credential),
		credKeys:    make(map[string]string),
		events:      make(map[string]*models.AuditEvent),
	}
}

func credKey(ownerID string, platform models.Platform, username string) string {
	return ownerID + "|" + string(platform) + "|" + username
}

func (s *InMemoryStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credKey(cred.OwnerID, cred.Platform, cred.Username)
	if _, exists := s.credKeys[key]; exists {
		return ErrDuplicateCredential
	}

	stored := *cred
	s.credentials[cred.ID] = &stored
	s.credKeys[key] = cred.ID
	return nil
}

func (s *InMemoryStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *InMemoryStore) FindCredential(ctx context.Context, ownerID string, platform models.Platform, username string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.credKeys[credKey(ownerID, platform, username)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	copied := *s.credentials[id]
	return &copied, nil
}

func (s *InMemoryStore) ListCredentials(ctx context.Context, ownerID string, platform models.Platform, page models.Pagination) ([]*models.Credential, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Credential
	for _, cred := range s.credentials {
		if ownerID != "" && cred.OwnerID != ownerID {
			continue
		}
		if platform != "" && cred.Platform != platform {
			continue
		}
		copied := *cred
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	return paginate(matched, page), total, nil
}

func (s *InMemoryStore) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.credentials[cred.ID]
	if !ok {
		return ErrCredentialNotFound
	}

	newKey := credKey(cred.OwnerID, cred.Platform, cred.Username)
	if otherID, exists := s.credKeys[newKey]; exists && otherID != cred.ID {
		return ErrDuplicateCredential
	}

	delete(s.credKeys, credKey(existing.OwnerID, existing.Platform, existing.Username))
	stored := *cred
	s.credentials[cred.ID] = &stored
	s.credKeys[newKey] = cred.ID
	return nil
}

func (s *InMemoryStore) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(s.credKeys, credKey(cred.OwnerID, cred.Platform, cred.Username))
	delete(s.credentials, id)
	return nil
}

func (s *InMemoryStore) AddNameCandidate(ctx context.Context, candidate *models.NameCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.names {
		if existing.Name == candidate.Name && existing.Platform == candidate.Platform {
			return ErrNameCandidateExists
		}
	}

	stored := *candidate
	s.names = append(s.names, &stored)
	return nil
}

func (s *InMemoryStore) SampleName(ctx context.Context, platform models.Platform) (*models.NameCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.NameCandidate
	for _, candidate := range s.names {
		if candidate.Platform == platform {
			matched = append(matched, candidate)
		}
	}
	if len(matched) == 0 {
		return nil, ErrNamePoolEmpty
	}

	copied := *matched[rand.Intn(len(matched))]
	return &copied, nil
}

func (s *InMemoryStore) CountNames(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names), nil
}

func (s *InMemoryStore) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *event
	s.events[event.EventID] = &stored
	s.eventOrder = append(s.eventOrder, event.EventID)
	return nil
}

func (s *InMemoryStore) GetEvent(ctx context.Context, eventID string) (*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (s *InMemoryStore) UpdateEventStatus(ctx context.Context, eventID string, status models.EventStatus, evtErr *models.EventError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	event.Status = status
	if evtErr != nil {
		copied := *evtErr
		event.Error = &copied
	}
	return nil
}

func (s *InMemoryStore) UpdateEventSecurity(ctx context.Context, eventID string, security models.Security, retention models.Retention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	event.Security = security
	event.Retention = retention
	return nil
}

func (s *InMemoryStore) QueryEvents(ctx context.Context, filter models.EventFilter, page models.Pagination) (*models.EventPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.AuditEvent
	for _, id := range s.eventOrder {
		event := s.events[id]
		if !matchesFilter(event, filter) {
			continue
		}
		copied := *event
		matched = append(matched, &copied)
	}

	if filter.SecuritySort {
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Security.RiskScore != matched[j].Security.RiskScore {
				return matched[i].Security.RiskScore > matched[j].Security.RiskScore
			}
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	} else {
		sort.Slice(matched, func(i, j int) bool {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	}

	total := len(matched)
	return &models.EventPage{
		Events: paginate(matched, page),
		Total:  total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}, nil
}

func (s *InMemoryStore) ListEventsInWindow(ctx context.Context, from, to time.Time) ([]*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.AuditEvent
	for _, id := range s.eventOrder {
		event := s.events[id]
		if event.CreatedAt.Before(from) || event.CreatedAt.After(to) {
			continue
		}
		copied := *event
		matched = append(matched, &copied)
	}
	return matched, nil
}

func (s *InMemoryStore) DeleteExpiredEvents(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.eventOrder[:0]
	for _, id := range s.eventOrder {
		event := s.events[id]
		if eligibleForRemoval(event, now) {
			delete(s.events, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.eventOrder = kept
	return removed, nil
}

// eligibleForRemoval applies the retention policy: expired events go,
// unless they are permanent or flagged as security-relevant.
func eligibleForRemoval(event *models.AuditEvent, now time.Time) bool {
	if event.Retention.Permanent || event.Security.Flagged {
		return false
	}
	return !event.Retention.ExpiresAt.IsZero() && event.Retention.ExpiresAt.Before(now)
}

func matchesFilter(event *models.AuditEvent, filter models.EventFilter) bool {
	if filter.ActorID != "" && event.ActorID != filter.ActorID {
		return false
	}
	if filter.EventType != "" && event.EventType != filter.EventType {
		return false
	}
	if filter.Status != "" && event.Status != filter.Status {
		return false
	}
	if filter.EntityType != "" && !strings.EqualFold(event.Target.EntityType, filter.EntityType) {
		return false
	}
	if filter.Platform != "" && event.Target.Platform != filter.Platform {
		return false
	}
	if filter.FlaggedOnly && !event.Security.Flagged {
		return false
	}
	if filter.MinRiskScore > 0 && event.Security.RiskScore < filter.MinRiskScore {
		return false
	}
	if !filter.From.IsZero() && event.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && event.CreatedAt.After(filter.To) {
		return false
	}
	return true
}

func paginate[T any](items []T, page models.Pagination) []T {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
