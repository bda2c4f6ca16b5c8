package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provio-systems/provio/internal/models"
)

const queryTimeout = 5 * time.Second

// PostgresStore implements Store on a pgx connection pool. Uniqueness
// of (owner_id, platform, username) is enforced by a composite unique
// index, closing the race between the orchestrator's pre-check and the
// insert.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks pool connectivity, used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	demographics, err := marshalNullable(cred.Demographics)
	if err != nil {
		return fmt.Errorf("failed to marshal demographics: %w", err)
	}

	query := `
		INSERT INTO credentials (id, owner_id, platform, username, password, demographics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		cred.ID, cred.OwnerID, cred.Platform, cred.Username,
		cred.Password, demographics, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCredential
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

const credentialColumns = `id, owner_id, platform, username, password, demographics, created_at, updated_at`

func scanCredential(row pgx.Row) (*models.Credential, error) {
	var cred models.Credential
	var demographics []byte

	err := row.Scan(
		&cred.ID, &cred.OwnerID, &cred.Platform, &cred.Username,
		&cred.Password, &demographics, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(demographics) > 0 {
		cred.Demographics = &models.Demographics{}
		if err := json.Unmarshal(demographics, cred.Demographics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal demographics: %w", err)
		}
	}

	return &cred, nil
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`

	cred, err := scanCredential(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) FindCredential(ctx context.Context, ownerID string, platform models.Platform, username string) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE owner_id = $1 AND platform = $2 AND username = $3
	`

	cred, err := scanCredential(s.pool.QueryRow(ctx, query, ownerID, platform, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, ownerID string, platform models.Platform, page models.Pagination) ([]*models.Credential, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := []string{"1=1"}
	args := []any{}
	if ownerID != "" {
		args = append(args, ownerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if platform != "" {
		args = append(args, platform)
		where = append(where, fmt.Sprintf("platform = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM credentials WHERE ` + clause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count credentials: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM credentials
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, credentialColumns, clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, total, nil
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	demographics, err := marshalNullable(cred.Demographics)
	if err != nil {
		return fmt.Errorf("failed to marshal demographics: %w", err)
	}

	query := `
		UPDATE credentials
		SET username = $2, password = $3, demographics = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		cred.ID, cred.Username, cred.Password, demographics, cred.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCredential
		}
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *PostgresStore) AddNameCandidate(ctx context.Context, candidate *models.NameCandidate) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO name_candidates (id, name, platform, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		candidate.ID, candidate.Name, candidate.Platform, candidate.Source, candidate.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameCandidateExists
		}
		return fmt.Errorf("failed to add name candidate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SampleName(ctx context.Context, platform models.Platform) (*models.NameCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// ORDER BY random() is fine at name-pool scale.
	query := `
		SELECT id, name, platform, source, created_at
		FROM name_candidates
		WHERE platform = $1
		ORDER BY random()
		LIMIT 1
	`

	var candidate models.NameCandidate
	err := s.pool.QueryRow(ctx, query, platform).Scan(
		&candidate.ID, &candidate.Name, &candidate.Platform, &candidate.Source, &candidate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNamePoolEmpty
		}
		return nil, fmt.Errorf("failed to sample name: %w", err)
	}
	return &candidate, nil
}

func (s *PostgresStore) CountNames(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM name_candidates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count names: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	target, err := json.Marshal(event.Target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}
	reqCtx, err := json.Marshal(event.RequestContext)
	if err != nil {
		return fmt.Errorf("failed to marshal request context: %w", err)
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	evtErr, err := marshalNullable(event.Error)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}
	perf, err := marshalNullable(event.Performance)
	if err != nil {
		return fmt.Errorf("failed to marshal performance: %w", err)
	}
	location, err := marshalNullable(event.Location)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			event_id, event_type, status, actor_id, target, request_context,
			details, error, performance, location,
			risk_score, flagged, reasons,
			retention_expires_at, retention_permanent,
			target_platform, signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = s.pool.Exec(ctx, query,
		event.EventID, event.EventType, event.Status, event.ActorID,
		target, reqCtx, details, evtErr, perf, location,
		event.Security.RiskScore, event.Security.Flagged, event.Security.Reasons,
		event.Retention.ExpiresAt, event.Retention.Permanent,
		event.Target.Platform, event.Signature, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*models.AuditEvent, error) {
	var event models.AuditEvent
	var target, reqCtx, details, evtErr, perf, location []byte
	var platform string

	err := row.Scan(
		&event.EventID, &event.EventType, &event.Status, &event.ActorID,
		&target, &reqCtx, &details, &evtErr, &perf, &location,
		&event.Security.RiskScore, &event.Security.Flagged, &event.Security.Reasons,
		&event.Retention.ExpiresAt, &event.Retention.Permanent,
		&platform, &event.Signature, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(target, &event.Target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	if err := json.Unmarshal(reqCtx, &event.RequestContext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request context: %w", err)
	}
	if err := json.Unmarshal(details, &event.Details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details: %w", err)
	}
	if len(evtErr) > 0 {
		event.Error = &models.EventError{}
		if err := json.Unmarshal(evtErr, event.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}
	if len(perf) > 0 {
		event.Performance = &models.Performance{}
		if err := json.Unmarshal(perf, event.Performance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal performance: %w", err)
		}
	}
	if len(location) > 0 {
		event.Location = &models.Location{}
		if err := json.Unmarshal(location, event.Location); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location: %w", err)
		}
	}

	return &event, nil
}

const eventSelectColumns = `event_id, event_type, status, actor_id, target, request_context,
	details, error, performance, location,
	risk_score, flagged, reasons,
	retention_expires_at, retention_permanent,
	target_platform, signature, created_at`

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*models.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + eventSelectColumns + ` FROM audit_events WHERE event_id = $1`

	event, err := scanEvent(s.pool.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) UpdateEventStatus(ctx context.Context, eventID string, status models.EventStatus, evtErr *models.EventError) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	errJSON, err := marshalNullable(evtErr)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	query := `
		UPDATE audit_events
		SET status = $2, error = COALESCE($3, error)
		WHERE event_id = $1
	`

	result, err := s.pool.Exec(ctx, query, eventID, status, errJSON)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateEventSecurity(ctx context.Context, eventID string, security models.Security, retention models.Retention) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE audit_events
		SET risk_score = $2, flagged = $3, reasons = $4,
		    retention_expires_at = $5, retention_permanent = $6
		WHERE event_id = $1
	`

	result, err := s.pool.Exec(ctx, query, eventID,
		security.RiskScore, security.Flagged, security.Reasons,
		retention.ExpiresAt, retention.Permanent,
	)
	if err != nil {
		return fmt.Errorf("failed to update event security: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) QueryEvents(ctx context.Context, filter models.EventFilter, page models.Pagination) (*models.EventPage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.EntityType != "" {
		add("target->>'entity_type' = $%d", filter.EntityType)
	}
	if filter.Platform != "" {
		add("target_platform = $%d", filter.Platform)
	}
	if filter.FlaggedOnly {
		where = append(where, "flagged = true")
	}
	if filter.MinRiskScore > 0 {
		add("risk_score >= $%d", filter.MinRiskScore)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_events WHERE ` + clause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	orderBy := "created_at DESC"
	if filter.SecuritySort {
		orderBy = "risk_score DESC, created_at DESC"
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, eventSelectColumns, clause, orderBy, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return &models.EventPage{
		Events: events,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}, nil
}

func (s *PostgresStore) ListEventsInWindow(ctx context.Context, from, to time.Time) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + eventSelectColumns + `
		FROM audit_events
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) DeleteExpiredEvents(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		DELETE FROM audit_events
		WHERE retention_expires_at < $1
		  AND retention_permanent = false
		  AND flagged = false
	`

	result, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired events: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	// Typed nil pointers also encode as SQL NULL.
	switch p := v.(type) {
	case *models.Demographics:
		if p == nil {
			return nil, nil
		}
	case *models.EventError:
		if p == nil {
			return nil, nil
		}
	case *models.Performance:
		if p == nil {
			return nil, nil
		}
	case *models.Location:
		if p == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
