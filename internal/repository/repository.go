// Package repository defines persistence for credentials, name
// candidates, and audit events, with Postgres and in-memory
// implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/provio-systems/provio/internal/models"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrDuplicateCredential is returned when an insert or update would
	// violate the (owner_id, platform, username) uniqueness constraint.
	ErrDuplicateCredential = errors.New("credential already exists")
	ErrNameCandidateExists = errors.New("name candidate already exists")
	ErrNamePoolEmpty       = errors.New("name pool is empty")
	ErrEventNotFound       = errors.New("audit event not found")
)

// CredentialStore persists provisioned credentials. The storage layer
// enforces composite-key uniqueness itself; callers may pre-check but
// must not rely on the pre-check alone.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	FindCredential(ctx context.Context, ownerID string, platform models.Platform, username string) (*models.Credential, error)
	ListCredentials(ctx context.Context, ownerID string, platform models.Platform, page models.Pagination) ([]*models.Credential, int, error)
	UpdateCredential(ctx context.Context, cred *models.Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// NamePoolStore persists name candidates and serves uniform random
// samples per platform partition.
type NamePoolStore interface {
	AddNameCandidate(ctx context.Context, candidate *models.NameCandidate) error
	SampleName(ctx context.Context, platform models.Platform) (*models.NameCandidate, error)
	CountNames(ctx context.Context) (int, error)
}

// AuditStore persists audit events. Events are append-only except for
// the status transition and security updates exposed here.
type AuditStore interface {
	InsertEvent(ctx context.Context, event *models.AuditEvent) error
	GetEvent(ctx context.Context, eventID string) (*models.AuditEvent, error)
	UpdateEventStatus(ctx context.Context, eventID string, status models.EventStatus, evtErr *models.EventError) error
	UpdateEventSecurity(ctx context.Context, eventID string, security models.Security, retention models.Retention) error
	QueryEvents(ctx context.Context, filter models.EventFilter, page models.Pagination) (*models.EventPage, error)
	ListEventsInWindow(ctx context.Context, from, to time.Time) ([]*models.AuditEvent, error)
	DeleteExpiredEvents(ctx context.Context, now time.Time) (int, error)
}

// Store is the full persistence surface the services depend on.
type Store interface {
	CredentialStore
	NamePoolStore
	AuditStore
}
