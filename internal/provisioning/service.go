// Package provisioning orchestrates account creation: synthesis,
// collision detection, encryption before persistence, and audit
// emission for every attempt.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/provio-systems/provio/internal/crypto"
	"github.com/provio-systems/provio/internal/metrics"
	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/internal/synth"
	"github.com/provio-systems/provio/pkg/logging"
)

const (
	// Batch bounds. Larger requests are rejected, not truncated.
	minBatchCount = 1
	maxBatchCount = 10

	// defaultBatchDelay paces sequential batch attempts to ease
	// contention on the uniqueness constraint. Advisory back-pressure,
	// not admission control.
	defaultBatchDelay = 100 * time.Millisecond

	maxUsernameInput = 64
	redactedValue    = "[encrypted]"
)

// EventEmitter is the audit sink. Emission must never block the
// provisioning path; the audit.Emitter satisfies this.
type EventEmitter interface {
	Emit(event *models.AuditEvent)
}

// Service is the provisioning orchestrator.
type Service struct {
	store   repository.CredentialStore
	synth   *synth.Synthesizer
	cipher  *crypto.Cipher
	emitter EventEmitter
	logger  *logging.Logger
	metrics *metrics.Metrics

	batchDelay time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithBatchDelay overrides the inter-attempt pacing delay.
func WithBatchDelay(d time.Duration) Option {
	return func(s *Service) { s.batchDelay = d }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store repository.CredentialStore, synthesizer *synth.Synthesizer, cipher *crypto.Cipher, emitter EventEmitter, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:      store,
		synth:      synthesizer,
		cipher:     cipher,
		emitter:    emitter,
		logger:     logger,
		batchDelay: defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOne provisions a single account. Every attempt, successful or
// not, emits exactly one audit event.
func (s *Service) CreateOne(ctx context.Context, ownerID string, req models.CreateAccountRequest, reqCtx models.RequestContext) (*models.ProvisionResult, error) {
	return s.createAttempt(ctx, ownerID, req, reqCtx, models.EventAccountCreate, nil)
}

// createAttempt runs the per-request state machine:
// Requested -> Synthesizing -> UniquenessChecked -> Persisted -> Audited.
// Failure exits from any stage still produce the audit event.
func (s *Service) createAttempt(ctx context.Context, ownerID string, req models.CreateAccountRequest, reqCtx models.RequestContext, eventType models.EventType, batchIndex *int) (result *models.ProvisionResult, err error) {
	start := time.Now()

	usernameSource := "caller"
	originalName := req.Username

	defer func() {
		s.observe(req.Platform, start, err)
		s.emitAttemptEvent(ownerID, req.Platform, eventType, batchIndex, usernameSource, result, reqCtx, start, err)
	}()

	if err = validateCreate(ownerID, req); err != nil {
		return nil, err
	}

	// Synthesizing
	username := req.Username
	if username == "" {
		synthesized := s.synth.SynthesizeUsername(ctx, req.Platform)
		username = synthesized.Username
		usernameSource = synthesized.Source
		originalName = synthesized.OriginalName
	}

	password := req.Password
	if password == "" {
		password = s.synth.SynthesizePassword(req.Platform, req.Options)
	}

	var demographics *models.Demographics
	if !req.Options.SkipDemographics {
		demographics = s.synth.SynthesizeDemographics(req.Platform, originalName, req.Options)
	}

	// UniquenessChecked. The pre-check gives a friendly early failure;
	// the storage unique index remains the authoritative guard.
	if _, findErr := s.store.FindCredential(ctx, ownerID, req.Platform, username); findErr == nil {
		err = duplicateError()
		return nil, err
	} else if !errors.Is(findErr, repository.ErrCredentialNotFound) {
		err = persistenceError(findErr)
		return nil, err
	}

	// Encrypt immediately before persistence. Encrypt is a no-op for
	// values already in envelope form.
	envelope, encErr := s.cipher.Encrypt(password)
	if encErr != nil {
		err = cipherError(encErr)
		return nil, err
	}
	if !crypto.IsEnvelope(envelope) {
		err = cipherError(fmt.Errorf("envelope check failed after encryption"))
		return nil, err
	}

	now := time.Now().UTC()
	cred := &models.Credential{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Platform:     req.Platform,
		Username:     username,
		Password:     envelope,
		Demographics: demographics,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Persisted
	if storeErr := s.store.CreateCredential(ctx, cred); storeErr != nil {
		if errors.Is(storeErr, repository.ErrDuplicateCredential) {
			err = duplicateError()
		} else {
			err = persistenceError(storeErr)
		}
		return nil, err
	}

	result = &models.ProvisionResult{Account: cred, UsernameSource: usernameSource}
	return result, nil
}

// CreateBatch runs count sequential attempts. Each failure is captured
// independently; the batch never aborts early. A short pacing delay
// separates attempts.
func (s *Service) CreateBatch(ctx context.Context, ownerID string, req models.CreateBatchRequest, reqCtx models.RequestContext) (*models.BatchResult, error) {
	if req.Count < minBatchCount || req.Count > maxBatchCount {
		return nil, validationError(fmt.Sprintf("count must be between %d and %d", minBatchCount, maxBatchCount))
	}

	result := &models.BatchResult{
		Accounts: []*models.Credential{},
		Errors:   []models.BatchItemError{},
	}

	for i := 0; i < req.Count; i++ {
		if i > 0 && s.batchDelay > 0 {
			select {
			case <-time.After(s.batchDelay):
			case <-ctx.Done():
			}
		}

		index := i
		attemptReq := models.CreateAccountRequest{
			Platform: req.Platform,
			Options:  req.Options,
		}
		attempt, err := s.createAttempt(ctx, ownerID, attemptReq, reqCtx, models.EventAccountAutoCreate, &index)
		if err != nil {
			result.Errors = append(result.Errors, models.BatchItemError{
				Index:   i,
				Code:    CodeOf(err),
				Message: MessageOf(err),
			})
			continue
		}
		result.Accounts = append(result.Accounts, attempt.Account)
	}

	result.Summary = models.BatchSummary{
		Total:      req.Count,
		Successful: len(result.Accounts),
		Failed:     len(result.Errors),
	}
	result.Success = result.Summary.Successful > 0

	return result, nil
}

// Update mutates an existing credential. The uniqueness constraint is
// re-validated and a changed password is re-encrypted. Exactly one
// audit event is emitted, success or failure.
func (s *Service) Update(ctx context.Context, ownerID, id string, req models.UpdateAccountRequest, reqCtx models.RequestContext) (cred *models.Credential, err error) {
	start := time.Now()
	var changes []models.FieldChange
	var platform models.Platform

	defer func() {
		s.emitMutationEvent(ownerID, platform, models.EventAccountUpdate, id, changes, reqCtx, start, err)
	}()

	existing, loadErr := s.loadOwned(ctx, ownerID, id)
	if loadErr != nil {
		err = loadErr
		return nil, err
	}
	platform = existing.Platform
	policy := models.PolicyFor(existing.Platform)

	updated := *existing
	if req.Username != "" && req.Username != existing.Username {
		if validateErr := validateUsername(req.Username, policy); validateErr != nil {
			err = validateErr
			return nil, err
		}
		changes = append(changes, models.FieldChange{Field: "username", From: existing.Username, To: req.Username})
		updated.Username = req.Username
	}
	if req.Password != "" && req.Password != existing.Password {
		envelope, encErr := s.cipher.Encrypt(req.Password)
		if encErr != nil {
			err = cipherError(encErr)
			return nil, err
		}
		changes = append(changes, models.FieldChange{Field: "password", From: redactedValue, To: redactedValue})
		updated.Password = envelope
	}
	if req.Demographics != nil {
		changes = append(changes, models.FieldChange{Field: "demographics"})
		updated.Demographics = req.Demographics
	}

	if len(changes) == 0 {
		return existing, nil
	}
	updated.UpdatedAt = time.Now().UTC()

	if storeErr := s.store.UpdateCredential(ctx, &updated); storeErr != nil {
		if errors.Is(storeErr, repository.ErrDuplicateCredential) {
			err = duplicateError()
		} else if errors.Is(storeErr, repository.ErrCredentialNotFound) {
			err = notFoundError()
		} else {
			err = persistenceError(storeErr)
		}
		return nil, err
	}

	cred = &updated
	return cred, nil
}

// Delete removes a credential. The only side effect is the audit event.
func (s *Service) Delete(ctx context.Context, ownerID, id string, reqCtx models.RequestContext) (err error) {
	start := time.Now()
	var platform models.Platform

	defer func() {
		s.emitMutationEvent(ownerID, platform, models.EventAccountDelete, id, nil, reqCtx, start, err)
	}()

	existing, loadErr := s.loadOwned(ctx, ownerID, id)
	if loadErr != nil {
		err = loadErr
		return err
	}
	platform = existing.Platform

	if storeErr := s.store.DeleteCredential(ctx, id); storeErr != nil {
		if errors.Is(storeErr, repository.ErrCredentialNotFound) {
			err = notFoundError()
		} else {
			err = persistenceError(storeErr)
		}
		return err
	}
	return nil
}

// Get returns one owned credential with the password envelope intact.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Credential, error) {
	return s.loadOwned(ctx, ownerID, id)
}

// List returns the owner's credentials, newest first.
func (s *Service) List(ctx context.Context, ownerID string, platform models.Platform, page models.Pagination) ([]*models.Credential, int, error) {
	creds, total, err := s.store.ListCredentials(ctx, ownerID, platform, page)
	if err != nil {
		return nil, 0, persistenceError(err)
	}
	return creds, total, nil
}

// RevealPassword decrypts the stored envelope for an owned credential.
// Cipher integrity violations surface as-is and are never masked as
// plaintext. The reveal is audited as an export event.
func (s *Service) RevealPassword(ctx context.Context, ownerID, id string, reqCtx models.RequestContext) (plaintext string, err error) {
	start := time.Now()
	var platform models.Platform

	defer func() {
		s.emitMutationEvent(ownerID, platform, models.EventExport, id, nil, reqCtx, start, err)
	}()

	cred, loadErr := s.loadOwned(ctx, ownerID, id)
	if loadErr != nil {
		err = loadErr
		return "", err
	}
	platform = cred.Platform

	plaintext, decErr := s.cipher.Decrypt(cred.Password)
	if decErr != nil {
		err = cipherError(decErr)
		return "", err
	}
	return plaintext, nil
}

func (s *Service) loadOwned(ctx context.Context, ownerID, id string) (*models.Credential, error) {
	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, notFoundError()
		}
		return nil, persistenceError(err)
	}
	// Ownership mismatches read as not-found so credential ids cannot
	// be probed across owners.
	if cred.OwnerID != ownerID {
		return nil, notFoundError()
	}
	return cred, nil
}

func validateCreate(ownerID string, req models.CreateAccountRequest) error {
	if ownerID == "" {
		return validationError("owner is required")
	}
	if req.Platform == "" {
		return validationError("platform is required")
	}
	if !models.IsKnownPlatform(req.Platform) {
		return validationError(fmt.Sprintf("unknown platform %q", req.Platform))
	}
	if req.Username != "" {
		if err := validateUsername(req.Username, models.PolicyFor(req.Platform)); err != nil {
			return err
		}
	}
	if req.Options.MinAge < 0 || req.Options.MaxAge < 0 {
		return validationError("age range must not be negative")
	}
	if req.Options.MaxAge > 0 && req.Options.MinAge > req.Options.MaxAge {
		return validationError("min_age must not exceed max_age")
	}
	return nil
}

func validateUsername(username string, policy models.PlatformPolicy) error {
	if len(username) > maxUsernameInput || len(username) > policy.UsernameMaxLen {
		return validationError("username exceeds the platform maximum length")
	}
	for _, r := range username {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return validationError("username must be alphanumeric")
		}
	}
	return nil
}

func (s *Service) observe(platform models.Platform, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.ProvisionAttempts.WithLabelValues(string(platform), outcome).Inc()
	s.metrics.ProvisionDuration.Observe(time.Since(start).Seconds())
}

// emitAttemptEvent fires the single audit event owed by a provisioning
// attempt. Emission is fire-and-forget; the emitter owns failure
// observation.
func (s *Service) emitAttemptEvent(ownerID string, platform models.Platform, eventType models.EventType, batchIndex *int, usernameSource string, result *models.ProvisionResult, reqCtx models.RequestContext, start time.Time, attemptErr error) {
	event := &models.AuditEvent{
		EventType: eventType,
		ActorID:   ownerID,
		Target: models.Target{
			EntityType: "credential",
			Platform:   platform,
		},
		RequestContext: reqCtx,
		Details: models.EventDetails{
			UsernameSource: usernameSource,
			BatchIndex:     batchIndex,
		},
		Performance: &models.Performance{DurationMs: time.Since(start).Milliseconds()},
	}

	if attemptErr != nil {
		event.Status = models.StatusFailure
		event.Error = &models.EventError{
			Code:    CodeOf(attemptErr),
			Message: MessageOf(attemptErr),
		}
	} else {
		event.Status = models.StatusSuccess
		event.Target.EntityID = result.Account.ID
		event.Target.Name = result.Account.Username
		// Snapshots are redacted: envelopes and secrets never land in
		// the audit store.
		event.Details.After = map[string]string{
			"username": result.Account.Username,
			"password": redactedValue,
		}
	}

	s.emitter.Emit(event)
}

func (s *Service) emitMutationEvent(ownerID string, platform models.Platform, eventType models.EventType, id string, changes []models.FieldChange, reqCtx models.RequestContext, start time.Time, opErr error) {
	event := &models.AuditEvent{
		EventType: eventType,
		ActorID:   ownerID,
		Target: models.Target{
			EntityType: "credential",
			EntityID:   id,
			Platform:   platform,
		},
		RequestContext: reqCtx,
		Details:        models.EventDetails{Changes: changes},
		Performance:    &models.Performance{DurationMs: time.Since(start).Milliseconds()},
	}

	if opErr != nil {
		event.Status = models.StatusFailure
		event.Error = &models.EventError{
			Code:    CodeOf(opErr),
			Message: MessageOf(opErr),
		}
	} else {
		event.Status = models.StatusSuccess
	}

	s.emitter.Emit(event)
}
