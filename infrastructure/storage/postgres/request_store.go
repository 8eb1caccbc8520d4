package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

const requestColumns = `id, kind, requester, desired_post_id, desired_locations, motive, status, created_at, submitted_at, updated_at`

// RequestStore is a PostgreSQL-backed implementation of mutation.Store.
type RequestStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewRequestStore creates a new PostgreSQL request store.
func NewRequestStore(pool *pgxpool.Pool, schema string) *RequestStore {
	return &RequestStore{
		pool:   pool,
		schema: normalizeSchema(schema),
	}
}

// tableName returns the fully qualified table name.
func (s *RequestStore) tableName() string {
	return fmt.Sprintf("%s.requests", s.schema)
}

// Save persists a new request.
func (s *RequestStore) Save(ctx context.Context, req *mutation.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	requester, err := json.Marshal(req.Requester)
	if err != nil {
		return fmt.Errorf("marshal requester: %w", err)
	}
	locations, err := json.Marshal(nonNil(req.DesiredLocations))
	if err != nil {
		return fmt.Errorf("marshal locations: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, requester, requester_id, desired_post_id, desired_locations, motive, status, created_at, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query,
		req.ID,
		string(req.Kind),
		requester,
		req.Requester.AgentID(),
		req.DesiredPostID,
		locations,
		req.Motive,
		string(req.Status),
		req.CreatedAt,
		req.SubmittedAt,
		req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mutation.ErrRequestExists
		}
		return wrapError(err)
	}
	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*mutation.Request, error) {
	if id == "" {
		return nil, mutation.ErrRequestNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, requestColumns, s.tableName())

	req, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mutation.ErrRequestNotFound
		}
		return nil, wrapError(err)
	}
	return req, nil
}

// List returns requests matching the filter, oldest first.
func (s *RequestStore) List(ctx context.Context, filter mutation.ListFilter) ([]*mutation.Request, error) {
	where, args := buildRequestWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at ASC, id ASC`, requestColumns, s.tableName(), where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	requests := make([]*mutation.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return requests, nil
}

// Update locks the row, checks the expected status and writes the patch
// in one transaction.
func (s *RequestStore) Update(ctx context.Context, id string, patch mutation.Patch) (*mutation.Request, error) {
	if id == "" {
		return nil, mutation.ErrRequestNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := updateRequest(ctx, tx, s.tableName(), id, patch)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrapError(err)
	}
	return req, nil
}

// updateRequest applies patch inside tx, holding the row lock until the
// caller commits.
func updateRequest(ctx context.Context, tx pgx.Tx, table, id string, patch mutation.Patch) (*mutation.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, requestColumns, table)
	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mutation.ErrRequestNotFound
		}
		return nil, wrapError(err)
	}

	if err := patch.Check(req.Status); err != nil {
		return nil, err
	}
	patch.ApplyTo(req)

	locations, err := json.Marshal(nonNil(req.DesiredLocations))
	if err != nil {
		return nil, fmt.Errorf("marshal locations: %w", err)
	}

	update := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
			motive = $3,
			desired_post_id = $4,
			desired_locations = $5,
			submitted_at = $6,
			updated_at = $7
		WHERE id = $1
	`, table)

	if _, err := tx.Exec(ctx, update,
		req.ID,
		string(req.Status),
		req.Motive,
		req.DesiredPostID,
		locations,
		req.SubmittedAt,
		req.UpdatedAt,
	); err != nil {
		return nil, wrapError(err)
	}
	return req, nil
}

// buildRequestWhere constructs the WHERE clause from filter.
func buildRequestWhere(filter mutation.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRequest(row scanner) (*mutation.Request, error) {
	var req mutation.Request
	var kind, st string
	var requester, locations []byte
	var submittedAt *time.Time

	err := row.Scan(
		&req.ID,
		&kind,
		&requester,
		&req.DesiredPostID,
		&locations,
		&req.Motive,
		&st,
		&req.CreatedAt,
		&submittedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Kind = mutation.Kind(kind)
	req.Status = status.Status(st)
	req.SubmittedAt = submittedAt

	if err := json.Unmarshal(requester, &req.Requester); err != nil {
		return nil, fmt.Errorf("unmarshal requester: %w", err)
	}
	if err := json.Unmarshal(locations, &req.DesiredLocations); err != nil {
		return nil, fmt.Errorf("unmarshal locations: %w", err)
	}
	return &req, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ mutation.Store = (*RequestStore)(nil)
