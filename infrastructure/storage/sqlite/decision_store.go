package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// DecisionStore is a SQLite-backed implementation of validation.Store.
type DecisionStore struct {
	db *sql.DB
}

// NewDecisionStoreFromDB creates a decision store from an existing connection.
func NewDecisionStoreFromDB(db *sql.DB) (*DecisionStore, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DecisionStore{db: db}, nil
}

// Create inserts d unless a decision for the same request and role exists.
func (s *DecisionStore) Create(ctx context.Context, d *validation.Decision) (*validation.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := insertDecision(ctx, s.db, d); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Record inserts d and applies patch to its request in one transaction.
// The requests table must live in the same database.
func (s *DecisionStore) Record(ctx context.Context, d *validation.Decision, patch mutation.Patch) (_ *validation.Decision, _ *mutation.Request, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertDecision(ctx, tx, d); err != nil {
		return nil, nil, err
	}
	updated, err := updateRequest(ctx, tx, d.RequestID, patch)
	if err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}
	return d.Clone(), updated, nil
}

func insertDecision(ctx context.Context, q querier, d *validation.Decision) error {
	if err := d.Validate(); err != nil {
		return err
	}

	var snapshot []byte
	if d.Snapshot != nil {
		var err error
		if snapshot, err = json.Marshal(d.Snapshot); err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO decisions (id, request_id, actor_id, role, outcome, comment, from_status, to_status, created_at, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequestID, d.ActorID, string(d.Role), string(d.Outcome), d.Comment,
		string(d.FromStatus), string(d.ToStatus), toUnix(d.CreatedAt), snapshot,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return validation.ErrDecisionExists
		}
		return err
	}
	return nil
}

// List returns decisions matching the filter in creation order.
func (s *DecisionStore) List(ctx context.Context, filter validation.ListFilter) ([]*validation.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if filter.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, string(filter.Role))
	}

	query := `SELECT id, request_id, actor_id, role, outcome, comment, from_status, to_status, created_at, snapshot FROM decisions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	decisions := make([]*validation.Decision, 0)
	for rows.Next() {
		var d validation.Decision
		var role, outcome, from, to string
		var createdAt int64
		var snapshot []byte
		if err := rows.Scan(&d.ID, &d.RequestID, &d.ActorID, &role, &outcome, &d.Comment,
			&from, &to, &createdAt, &snapshot); err != nil {
			return nil, err
		}
		d.Role = identity.Role(role)
		d.Outcome = validation.Outcome(outcome)
		d.FromStatus = status.Status(from)
		d.ToStatus = status.Status(to)
		d.CreatedAt = fromUnix(createdAt)
		if len(snapshot) > 0 {
			var sum mutation.Summary
			if err := json.Unmarshal(snapshot, &sum); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
			d.Snapshot = &sum
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

var (
	_ validation.Store    = (*DecisionStore)(nil)
	_ validation.Recorder = (*DecisionStore)(nil)
)
