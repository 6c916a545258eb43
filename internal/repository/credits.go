package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
)

// CreditsRepo persists the credit ledger and the derived balance table.
// The ledger is append-only; the balance row is only ever touched through
// the atomic upsert in applyDelta.
type CreditsRepo struct {
	db *pgxpool.Pool
}

func NewCreditsRepo(db *pgxpool.Pool) *CreditsRepo {
	return &CreditsRepo{db: db}
}

// Assign appends a ledger entry and applies the same delta to the balance
// row in one transaction. Returns the stored entry and the new balance.
// Serialization failures are retried with backoff; any other failure
// rolls the whole unit of work back.
func (r *CreditsRepo) Assign(ctx context.Context, authorID string, amount int64, eventType model.EventType, refs model.EntryRefs) (model.LedgerEntry, int64, error) {
	var (
		entry      model.LedgerEntry
		newBalance int64
	)

	err := retry.Do(ctx, txBackoff(), func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		entry, err = appendEntry(ctx, tx, authorID, amount, eventType, refs)
		if err != nil {
			return retryIfSerialization(err)
		}

		newBalance, err = applyDelta(ctx, tx, authorID, amount)
		if err != nil {
			return retryIfSerialization(err)
		}

		return retryIfSerialization(tx.Commit(ctx))
	})
	if err != nil {
		return model.LedgerEntry{}, 0, model.Persistence("credit assignment failed", err)
	}
	return entry, newBalance, nil
}

// ListForAuthor returns the author's entries newest-first, for display.
func (r *CreditsRepo) ListForAuthor(ctx context.Context, authorID string) ([]model.LedgerEntry, error) {
	return r.listForAuthor(ctx, authorID, "DESC")
}

// ListForAuthorChronological returns the entries oldest-first, the order
// the history reconstructor replays them in.
func (r *CreditsRepo) ListForAuthorChronological(ctx context.Context, authorID string) ([]model.LedgerEntry, error) {
	return r.listForAuthor(ctx, authorID, "ASC")
}

func (r *CreditsRepo) listForAuthor(ctx context.Context, authorID, dir string) ([]model.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, author_id, amount, event_type, story_id, purchase_id, created_at
		FROM credit_ledger
		WHERE author_id = $1
		ORDER BY created_at %s, id %s`, dir, dir)

	rows, err := r.db.Query(ctx, query, authorID)
	if err != nil {
		return nil, model.Persistence("ledger query failed", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AuthorID, &e.Amount, &e.EventType, &e.StoryID, &e.PurchaseID, &e.CreatedAt); err != nil {
			return nil, model.Persistence("ledger scan failed", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("ledger query failed", err)
	}
	return entries, nil
}

// Balance reads the cached total from the balance table. A missing row is
// a balance of zero, not an error.
func (r *CreditsRepo) Balance(ctx context.Context, authorID string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT total_credits FROM author_credit_balances WHERE author_id = $1`,
		authorID,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, model.Persistence("balance query failed", err)
	}
	return total, nil
}

// appendEntry inserts one immutable ledger row inside tx. There is no
// update or delete counterpart anywhere in this package.
func appendEntry(ctx context.Context, tx pgx.Tx, authorID string, amount int64, eventType model.EventType, refs model.EntryRefs) (model.LedgerEntry, error) {
	entry := model.LedgerEntry{
		AuthorID:   authorID,
		Amount:     amount,
		EventType:  eventType,
		StoryID:    refs.StoryID,
		PurchaseID: refs.PurchaseID,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (author_id, amount, event_type, story_id, purchase_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		authorID, amount, eventType, refs.StoryID, refs.PurchaseID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

// applyDelta adds amount to the author's balance row, creating it if
// absent, in a single statement. Two concurrent deltas both land: the
// add-or-initialize happens inside Postgres, never as a read-modify-write
// in application code.
func applyDelta(ctx context.Context, tx pgx.Tx, authorID string, amount int64) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		INSERT INTO author_credit_balances (author_id, total_credits, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (author_id) DO UPDATE
		SET total_credits = author_credit_balances.total_credits + EXCLUDED.total_credits,
		    last_updated  = now()
		RETURNING total_credits`,
		authorID, amount,
	).Scan(&total)
	return total, err
}

// txBackoff is the retry schedule for transient transaction failures.
func txBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewFibonacci(10*time.Millisecond))
}

// retryIfSerialization marks serialization and deadlock failures
// (SQLSTATE 40001/40P01) as retryable; everything else aborts the retry
// loop immediately.
func retryIfSerialization(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return retry.RetryableError(err)
		}
	}
	return err
}
