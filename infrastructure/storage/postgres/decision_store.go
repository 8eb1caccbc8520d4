package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

const decisionColumns = `id, request_id, actor_id, role, outcome, comment, from_status, to_status, created_at, snapshot`

// DecisionStore is a PostgreSQL-backed implementation of validation.Store.
// The (request_id, role) unique constraint serializes concurrent reviewers.
type DecisionStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewDecisionStore creates a new PostgreSQL decision store.
func NewDecisionStore(pool *pgxpool.Pool, schema string) *DecisionStore {
	return &DecisionStore{
		pool:   pool,
		schema: normalizeSchema(schema),
	}
}

// tableName returns the fully qualified table name.
func (s *DecisionStore) tableName() string {
	return fmt.Sprintf("%s.decisions", s.schema)
}

// Create inserts d, failing with ErrDecisionExists when the pair is taken.
func (s *DecisionStore) Create(ctx context.Context, d *validation.Decision) (*validation.Decision, error) {
	if err := insertDecision(ctx, s.pool, s.tableName(), d); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Record inserts d and applies patch to its request in one transaction.
// The requests table must live in the same schema.
func (s *DecisionStore) Record(ctx context.Context, d *validation.Decision, patch mutation.Patch) (*validation.Decision, *mutation.Request, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, wrapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertDecision(ctx, tx, s.tableName(), d); err != nil {
		return nil, nil, err
	}
	updated, err := updateRequest(ctx, tx, s.schema+".requests", d.RequestID, patch)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, wrapError(err)
	}
	return d.Clone(), updated, nil
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertDecision(ctx context.Context, db execer, table string, d *validation.Decision) error {
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

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, table, decisionColumns)

	_, err := db.Exec(ctx, query,
		d.ID,
		d.RequestID,
		d.ActorID,
		string(d.Role),
		string(d.Outcome),
		d.Comment,
		string(d.FromStatus),
		string(d.ToStatus),
		d.CreatedAt,
		snapshot,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return validation.ErrDecisionExists
		}
		return wrapError(err)
	}
	return nil
}

// List returns decisions matching the filter in creation order.
func (s *DecisionStore) List(ctx context.Context, filter validation.ListFilter) ([]*validation.Decision, error) {
	where, args := buildDecisionWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at ASC, id ASC`, decisionColumns, s.tableName(), where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	decisions := make([]*validation.Decision, 0)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return decisions, nil
}

func buildDecisionWhere(filter validation.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanDecision(row scanner) (*validation.Decision, error) {
	var d validation.Decision
	var role, outcome, from, to string
	var snapshot []byte

	if err := row.Scan(
		&d.ID,
		&d.RequestID,
		&d.ActorID,
		&role,
		&outcome,
		&d.Comment,
		&from,
		&to,
		&d.CreatedAt,
		&snapshot,
	); err != nil {
		return nil, err
	}

	d.Role = identity.Role(role)
	d.Outcome = validation.Outcome(outcome)
	d.FromStatus = status.Status(from)
	d.ToStatus = status.Status(to)

	if len(snapshot) > 0 {
		var s mutation.Summary
		if err := json.Unmarshal(snapshot, &s); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		d.Snapshot = &s
	}
	return &d, nil
}

var (
	_ validation.Store    = (*DecisionStore)(nil)
	_ validation.Recorder = (*DecisionStore)(nil)
)
