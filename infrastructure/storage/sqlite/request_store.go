package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

const requestColumns = `id, kind, requester, desired_post_id, desired_locations, motive, status, created_at, submitted_at, updated_at`

// RequestStore is a SQLite-backed implementation of mutation.Store.
type RequestStore struct {
	db *sql.DB
}

// NewRequestStore opens a database and returns a request store over it.
func NewRequestStore(cfg Config, opts ...Option) (*RequestStore, error) {
	db, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &RequestStore{db: db}, nil
}

// NewRequestStoreFromDB creates a request store from an existing connection.
func NewRequestStoreFromDB(db *sql.DB) (*RequestStore, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &RequestStore{db: db}, nil
}

// Save persists a new request.
func (s *RequestStore) Save(ctx context.Context, req *mutation.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	requester, err := json.Marshal(req.Requester)
	if err != nil {
		return fmt.Errorf("marshal requester: %w", err)
	}
	locations, err := marshalLocations(req.DesiredLocations)
	if err != nil {
		return err
	}

	var submittedAt sql.NullInt64
	if req.SubmittedAt != nil {
		submittedAt = sql.NullInt64{Int64: toUnix(*req.SubmittedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requests (id, kind, requester, requester_id, desired_post_id, desired_locations, motive, status, created_at, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), requester, req.Requester.AgentID(), req.DesiredPostID,
		locations, req.Motive, string(req.Status), toUnix(req.CreatedAt), submittedAt, toUnix(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mutation.ErrRequestExists
		}
		return err
	}
	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return getRequest(ctx, s.db, id)
}

// List returns requests matching the filter, oldest first.
func (s *RequestStore) List(ctx context.Context, filter mutation.ListFilter) ([]*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.RequesterID != "" {
		conditions = append(conditions, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	requests := make([]*mutation.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Update applies patch with a single guarded UPDATE so the status check
// and the write cannot interleave with another writer.
func (s *RequestStore) Update(ctx context.Context, id string, patch mutation.Patch) (*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return updateRequest(ctx, s.db, id, patch)
}

// Close closes the database connection.
func (s *RequestStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for sharing with other stores.
func (s *RequestStore) DB() *sql.DB {
	return s.db
}

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRequest(ctx context.Context, q querier, id string) (*mutation.Request, error) {
	if id == "" {
		return nil, mutation.ErrRequestNotFound
	}

	row := q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mutation.ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func updateRequest(ctx context.Context, q querier, id string, patch mutation.Patch) (*mutation.Request, error) {
	if id == "" {
		return nil, mutation.ErrRequestNotFound
	}

	var st, motive, postID any
	if patch.Status != nil {
		st = string(*patch.Status)
	}
	if patch.Motive != nil {
		motive = *patch.Motive
	}
	if patch.DesiredPostID != nil {
		postID = *patch.DesiredPostID
	}

	var locations any
	if patch.DesiredLocations != nil {
		data, err := marshalLocations(patch.DesiredLocations)
		if err != nil {
			return nil, err
		}
		locations = data
	}

	var submittedAt, updatedAt sql.NullInt64
	if patch.SubmittedAt != nil {
		submittedAt = sql.NullInt64{Int64: toUnix(*patch.SubmittedAt), Valid: true}
	}
	if !patch.UpdatedAt.IsZero() {
		updatedAt = sql.NullInt64{Int64: toUnix(patch.UpdatedAt), Valid: true}
	}

	res, err := q.ExecContext(ctx,
		`UPDATE requests SET
			status = COALESCE(?, status),
			motive = COALESCE(?, motive),
			desired_post_id = COALESCE(?, desired_post_id),
			desired_locations = COALESCE(?, desired_locations),
			submitted_at = COALESCE(?, submitted_at),
			updated_at = COALESCE(?, updated_at)
		 WHERE id = ? AND (? = '' OR status = ?)`,
		st, motive, postID, locations, submittedAt, updatedAt,
		id, string(patch.ExpectedStatus), string(patch.ExpectedStatus),
	)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	current, err := getRequest(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if err := patch.Check(current.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update not applied", mutation.ErrStatusConflict)
	}
	return current, nil
}

func scanRequest(row scanner) (*mutation.Request, error) {
	var req mutation.Request
	var kind, st string
	var requester, locations []byte
	var createdAt, updatedAt int64
	var submittedAt sql.NullInt64

	if err := row.Scan(&req.ID, &kind, &requester, &req.DesiredPostID, &locations,
		&req.Motive, &st, &createdAt, &submittedAt, &updatedAt); err != nil {
		return nil, err
	}

	req.Kind = mutation.Kind(kind)
	req.Status = status.Status(st)
	req.CreatedAt = fromUnix(createdAt)
	req.UpdatedAt = fromUnix(updatedAt)
	if submittedAt.Valid {
		t := fromUnix(submittedAt.Int64)
		req.SubmittedAt = &t
	}

	if err := json.Unmarshal(requester, &req.Requester); err != nil {
		return nil, fmt.Errorf("unmarshal requester: %w", err)
	}
	if err := json.Unmarshal(locations, &req.DesiredLocations); err != nil {
		return nil, fmt.Errorf("unmarshal locations: %w", err)
	}
	return &req, nil
}

func marshalLocations(locations []string) ([]byte, error) {
	if locations == nil {
		locations = []string{}
	}
	data, err := json.Marshal(locations)
	if err != nil {
		return nil, fmt.Errorf("marshal locations: %w", err)
	}
	return data, nil
}

var _ mutation.Store = (*RequestStore)(nil)
