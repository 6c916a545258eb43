package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
)

const uniqueViolation = "23505"

// promotionColumns selects a promotion row plus its live redemption
// count. Every read path goes through it so computed fields are always
// attached.
const promotionColumns = `
	p.id, p.code, p.type, p.credit_amount, p.max_global_redemptions,
	p.max_redemptions_per_user, p.valid_from, p.valid_until, p.active,
	p.created_at, p.updated_at,
	(SELECT count(*) FROM promotion_code_redemptions r WHERE r.promotion_code_id = p.id) AS total_redemptions`

// PromotionsRepo persists promotion codes and their redemptions.
// Redemptions run inside a transaction that locks the code row, which is
// what actually enforces the caps under concurrency; the service-level
// checks only reject cheap cases early.
type PromotionsRepo struct {
	db *pgxpool.Pool
}

func NewPromotionsRepo(db *pgxpool.Pool) *PromotionsRepo {
	return &PromotionsRepo{db: db}
}

// Create inserts a new code. A duplicate code surfaces as
// ConflictError("code_exists"); the unique index is the authority, not a
// pre-read.
func (r *PromotionsRepo) Create(ctx context.Context, pc model.PromotionCode) (model.PromotionCode, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO promotion_codes
			(id, code, type, credit_amount, max_global_redemptions,
			 max_redemptions_per_user, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		pc.ID, pc.Code, pc.Type, pc.CreditAmount, pc.MaxGlobalRedemptions,
		pc.MaxRedemptionsPerUser, pc.ValidFrom, pc.ValidUntil, pc.Active,
	).Scan(&pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.PromotionCode{}, model.Conflict(model.CodeCodeExists, "promotion code already exists")
		}
		return model.PromotionCode{}, model.Persistence("promotion code insert failed", err)
	}
	pc.AttachComputed(0)
	return pc, nil
}

func (r *PromotionsRepo) GetByID(ctx context.Context, id uuid.UUID) (model.PromotionCode, error) {
	return r.getBy(ctx, "p.id = $1", id)
}

func (r *PromotionsRepo) GetByCode(ctx context.Context, code string) (model.PromotionCode, error) {
	return r.getBy(ctx, "p.code = $1", code)
}

func (r *PromotionsRepo) getBy(ctx context.Context, cond string, arg any) (model.PromotionCode, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+promotionColumns+" FROM promotion_codes p WHERE "+cond, arg)
	pc, err := scanPromotion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PromotionCode{}, model.NotFound("promotion code not found")
	}
	if err != nil {
		return model.PromotionCode{}, model.Persistence("promotion code query failed", err)
	}
	return pc, nil
}

// List returns one page of codes matching the filter, newest-first,
// together with the unpaged total.
func (r *PromotionsRepo) List(ctx context.Context, f model.PromotionCodeFilter) (model.PromotionCodePage, error) {
	where, args := promotionListFilter(f)

	var total int
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM promotion_codes p"+where, args...,
	).Scan(&total)
	if err != nil {
		return model.PromotionCodePage{}, model.Persistence("promotion code count failed", err)
	}

	offset := (f.Page - 1) * f.Limit
	pageArgs := append(args, f.Limit, offset)
	query := fmt.Sprintf(
		"SELECT %s FROM promotion_codes p%s ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d",
		promotionColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, pageArgs...)
	if err != nil {
		return model.PromotionCodePage{}, model.Persistence("promotion code list failed", err)
	}
	defer rows.Close()

	page := model.PromotionCodePage{Total: total, Page: f.Page, Limit: f.Limit}
	for rows.Next() {
		pc, err := scanPromotion(rows)
		if err != nil {
			return model.PromotionCodePage{}, model.Persistence("promotion code scan failed", err)
		}
		page.Items = append(page.Items, pc)
	}
	if err := rows.Err(); err != nil {
		return model.PromotionCodePage{}, model.Persistence("promotion code list failed", err)
	}
	return page, nil
}

// ToggleActive flips the active flag. The only mutation a stored code
// supports; everything else is immutable post-creation.
func (r *PromotionsRepo) ToggleActive(ctx context.Context, id uuid.UUID) (model.PromotionCode, error) {
	var updated bool
	err := r.db.QueryRow(ctx, `
		UPDATE promotion_codes
		SET active = NOT active, updated_at = now()
		WHERE id = $1
		RETURNING active`,
		id,
	).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PromotionCode{}, model.NotFound("promotion code not found")
	}
	if err != nil {
		return model.PromotionCode{}, model.Persistence("promotion code toggle failed", err)
	}
	return r.GetByID(ctx, id)
}

// Redeem performs the atomic redemption unit of work: lock the code row,
// re-check state and both caps, insert the redemption, append the ledger
// entry and bump the balance. Either all five happen or none do.
func (r *PromotionsRepo) Redeem(ctx context.Context, promotionCodeID uuid.UUID, authorID string) (model.Redemption, int64, error) {
	var (
		redemption model.Redemption
		newBalance int64
	)

	err := retry.Do(ctx, txBackoff(), func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// The row lock serializes all redemptions of this code, closing
		// the check-then-act race on both caps.
		var (
			creditAmount int64
			globalCap    *int
			perUserCap   int
			validFrom    *time.Time
			validUntil   *time.Time
			active       bool
		)
		err = tx.QueryRow(ctx, `
			SELECT credit_amount, max_global_redemptions, max_redemptions_per_user,
			       valid_from, valid_until, active
			FROM promotion_codes
			WHERE id = $1
			FOR UPDATE`,
			promotionCodeID,
		).Scan(&creditAmount, &globalCap, &perUserCap, &validFrom, &validUntil, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NotFound("promotion code not found")
		}
		if err != nil {
			return retryIfSerialization(err)
		}

		now := time.Now()
		switch {
		case !active:
			return model.Conflict(model.CodeInactive, "promotion code is inactive")
		case validFrom != nil && now.Before(*validFrom):
			return model.Conflict(model.CodeNotYetValid, "promotion code is not yet valid")
		case validUntil != nil && now.After(*validUntil):
			return model.Conflict(model.CodeExpired, "promotion code has expired")
		}

		var userCount int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM promotion_code_redemptions
			WHERE promotion_code_id = $1 AND author_id = $2`,
			promotionCodeID, authorID,
		).Scan(&userCount)
		if err != nil {
			return retryIfSerialization(err)
		}
		if userCount >= perUserCap {
			return model.Conflict(model.CodePerUserCapReached, "per-user redemption cap reached")
		}

		if globalCap != nil {
			var totalCount int
			err = tx.QueryRow(ctx, `
				SELECT count(*) FROM promotion_code_redemptions
				WHERE promotion_code_id = $1`,
				promotionCodeID,
			).Scan(&totalCount)
			if err != nil {
				return retryIfSerialization(err)
			}
			if totalCount >= *globalCap {
				return model.Conflict(model.CodeGlobalCapReached, "global redemption cap reached")
			}
		}

		redemption = model.Redemption{
			ID:              uuid.New(),
			PromotionCodeID: promotionCodeID,
			AuthorID:        authorID,
			CreditsGranted:  creditAmount,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO promotion_code_redemptions (id, promotion_code_id, author_id, credits_granted)
			VALUES ($1, $2, $3, $4)
			RETURNING redeemed_at`,
			redemption.ID, redemption.PromotionCodeID, redemption.AuthorID, redemption.CreditsGranted,
		).Scan(&redemption.RedeemedAt)
		if err != nil {
			return retryIfSerialization(err)
		}

		if _, err = appendEntry(ctx, tx, authorID, creditAmount, model.EventPromotion, model.EntryRefs{}); err != nil {
			return retryIfSerialization(err)
		}
		newBalance, err = applyDelta(ctx, tx, authorID, creditAmount)
		if err != nil {
			return retryIfSerialization(err)
		}

		return retryIfSerialization(tx.Commit(ctx))
	})
	if err != nil {
		var engineErr *model.Error
		if errors.As(err, &engineErr) {
			return model.Redemption{}, 0, engineErr
		}
		return model.Redemption{}, 0, model.Persistence("redemption failed", err)
	}
	return redemption, newBalance, nil
}

// promotionListFilter builds the WHERE clause and args for List. Kept
// separate so the SQL assembly is testable without a database.
func promotionListFilter(f model.PromotionCodeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(p.code ILIKE $%d OR p.type ILIKE $%d)", len(args), len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("p.type = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("p.active = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPromotion(row pgx.Row) (model.PromotionCode, error) {
	var (
		pc    model.PromotionCode
		count int
	)
	err := row.Scan(
		&pc.ID, &pc.Code, &pc.Type, &pc.CreditAmount, &pc.MaxGlobalRedemptions,
		&pc.MaxRedemptionsPerUser, &pc.ValidFrom, &pc.ValidUntil, &pc.Active,
		&pc.CreatedAt, &pc.UpdatedAt, &count,
	)
	if err != nil {
		return model.PromotionCode{}, err
	}
	pc.AttachComputed(count)
	return pc, nil
}
