package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/sitescope/internal/queue"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// claimTable describes how a table maps onto the claim-queue contract.
type claimTable[T any] struct {
	table        string
	statusColumn string
	errorColumn  string
	doneStatus   string
	columns      []string
	// scope restricts every statement, e.g. to one job or one task kind. May be nil.
	scope sq.Sqlizer
	scan  func(row pgx.Row) (*T, error)
	// onClaim and onDone add table-specific assignments to the claim and completion updates.
	onClaim func(b sq.UpdateBuilder, now time.Time) sq.UpdateBuilder
	onDone  func(b sq.UpdateBuilder, result []byte, now time.Time) sq.UpdateBuilder
	// onFail adds assignments to the permanent failure update.
	onFail func(b sq.UpdateBuilder, now time.Time) sq.UpdateBuilder
}

// claimBackend implements queue.Backend with conditional UPDATE statements.
type claimBackend[T any] struct {
	db DBTX
	t  claimTable[T]
}

// eligible matches rows that are pending and due, or processing under an expired lock.
func (c *claimBackend[T]) eligible(now, staleBefore time.Time) sq.Sqlizer {
	return sq.Or{
		sq.And{
			sq.Eq{c.t.statusColumn: "pending"},
			sq.Eq{"locked_by": nil},
			sq.Or{sq.Eq{"next_attempt_at": nil}, sq.LtOrEq{"next_attempt_at": now}},
		},
		sq.And{
			sq.Eq{c.t.statusColumn: "processing"},
			sq.Lt{"locked_at": staleBefore},
		},
	}
}

func (c *claimBackend[T]) scoped(where sq.And) sq.And {
	if c.t.scope != nil {
		return append(where, c.t.scope)
	}
	return where
}

func (c *claimBackend[T]) Candidates(ctx context.Context, limit int, now, staleBefore time.Time) ([]uuid.UUID, error) {
	query, args, err := psql.Select("id").
		From(c.t.table).
		Where(c.scoped(sq.And{c.eligible(now, staleBefore)})).
		OrderBy("locked_at ASC NULLS FIRST", "created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", c.t.table, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *claimBackend[T]) Claim(ctx context.Context, id uuid.UUID, workerID string, now, staleBefore time.Time) (*T, error) {
	b := psql.Update(c.t.table).
		Set(c.t.statusColumn, "processing").
		Set("locked_by", workerID).
		Set("locked_at", now).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", now)
	if c.t.onClaim != nil {
		b = c.t.onClaim(b, now)
	}
	query, args, err := b.
		Where(c.scoped(sq.And{sq.Eq{"id": id}, c.eligible(now, staleBefore)})).
		Suffix("RETURNING " + strings.Join(c.t.columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim query: %w", err)
	}

	task, err := c.t.scan(c.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s row: %w", c.t.table, err)
	}
	return task, nil
}

func (c *claimBackend[T]) Complete(ctx context.Context, id uuid.UUID, workerID string, result []byte, now time.Time) error {
	b := c.release(c.t.doneStatus, now).
		Set("next_attempt_at", nil).
		Set(c.t.errorColumn, nil)
	if c.t.onDone != nil {
		b = c.t.onDone(b, result, now)
	}
	return c.execOwned(ctx, b, id, workerID)
}

func (c *claimBackend[T]) Reschedule(ctx context.Context, id uuid.UUID, workerID, errMsg string, nextAttemptAt, now time.Time) error {
	b := c.release("pending", now).
		Set("next_attempt_at", nextAttemptAt).
		Set(c.t.errorColumn, errMsg)
	return c.execOwned(ctx, b, id, workerID)
}

func (c *claimBackend[T]) Fail(ctx context.Context, id uuid.UUID, workerID, errMsg string, now time.Time) error {
	b := c.release("failed", now).
		Set("next_attempt_at", nil).
		Set(c.t.errorColumn, errMsg)
	if c.t.onFail != nil {
		b = c.t.onFail(b, now)
	}
	return c.execOwned(ctx, b, id, workerID)
}

func (c *claimBackend[T]) release(status string, now time.Time) sq.UpdateBuilder {
	return psql.Update(c.t.table).
		Set(c.t.statusColumn, status).
		Set("locked_by", nil).
		Set("locked_at", nil).
		Set("updated_at", now)
}

// execOwned runs b only against a row still locked by workerID.
func (c *claimBackend[T]) execOwned(ctx context.Context, b sq.UpdateBuilder, id uuid.UUID, workerID string) error {
	query, args, err := b.
		Where(sq.Eq{"id": id, "locked_by": workerID, c.t.statusColumn: "processing"}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("release %s row: %w", c.t.table, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrLockLost
	}
	return nil
}
