package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
	"github.com/jacome7/mythoria-admin-sub000/internal/repository"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{3,64}$`)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// now is split out so validity-window tests can pin the clock.
var now = time.Now

// PromotionsStore is the persistence seam for the registry and the
// redemption service. Redeem must be atomic and authoritative for both
// caps: the service-level checks before it are only a cheap pre-filter.
type PromotionsStore interface {
	Create(ctx context.Context, pc model.PromotionCode) (model.PromotionCode, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.PromotionCode, error)
	GetByCode(ctx context.Context, code string) (model.PromotionCode, error)
	List(ctx context.Context, f model.PromotionCodeFilter) (model.PromotionCodePage, error)
	ToggleActive(ctx context.Context, id uuid.UUID) (model.PromotionCode, error)
	Redeem(ctx context.Context, promotionCodeID uuid.UUID, authorID string) (model.Redemption, int64, error)
}

// PromotionService is the promotion code registry plus the redemption
// state machine. Each redemption attempt is evaluated synchronously and
// is terminal: granted, or rejected with a stable reason code.
type PromotionService struct {
	store PromotionsStore
	cache BalanceCache
	bus   repository.MessageBus
}

func NewPromotionService(store PromotionsStore, cache BalanceCache, bus repository.MessageBus) *PromotionService {
	if bus == nil {
		bus = repository.NopBus{}
	}
	return &PromotionService{store: store, cache: cache, bus: bus}
}

// Create validates and stores a new code. Validation order: normalize,
// format, credit amount, validity window; uniqueness is left to the
// store's unique index.
func (s *PromotionService) Create(ctx context.Context, params model.CreatePromotionCodeParams) (model.PromotionCode, error) {
	code := NormalizeCode(params.Code)
	if !codePattern.MatchString(code) {
		return model.PromotionCode{}, model.Validation(model.CodeInvalidCodeFormat,
			"code must be 3-64 characters of A-Z, 0-9 or '-'")
	}
	if params.CreditAmount <= 0 {
		return model.PromotionCode{}, model.Validation(model.CodeInvalidCreditAmount,
			"credit amount must be positive")
	}
	if params.ValidFrom != nil && params.ValidUntil != nil && !params.ValidFrom.Before(*params.ValidUntil) {
		return model.PromotionCode{}, model.Validation(model.CodeInvalidValidityWindow,
			"validFrom must be before validUntil")
	}

	perUser := params.MaxRedemptionsPerUser
	if perUser <= 0 {
		perUser = 1
	}
	active := true
	if params.Active != nil {
		active = *params.Active
	}

	pc := model.PromotionCode{
		ID:                    uuid.New(),
		Code:                  code,
		Type:                  strings.TrimSpace(params.Type),
		CreditAmount:          params.CreditAmount,
		MaxGlobalRedemptions:  params.MaxGlobalRedemptions,
		MaxRedemptionsPerUser: perUser,
		ValidFrom:             params.ValidFrom,
		ValidUntil:            params.ValidUntil,
		Active:                active,
	}
	return s.store.Create(ctx, pc)
}

func (s *PromotionService) GetByID(ctx context.Context, id uuid.UUID) (model.PromotionCode, error) {
	return s.store.GetByID(ctx, id)
}

func (s *PromotionService) GetByCode(ctx context.Context, code string) (model.PromotionCode, error) {
	return s.store.GetByCode(ctx, NormalizeCode(code))
}

// List pages through the registry. Page defaults to 1, limit to 20 and is
// capped at 100.
func (s *PromotionService) List(ctx context.Context, f model.PromotionCodeFilter) (model.PromotionCodePage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.store.List(ctx, f)
}

// ToggleActive flips a code's active flag and returns the updated code.
func (s *PromotionService) ToggleActive(ctx context.Context, id uuid.UUID) (model.PromotionCode, error) {
	return s.store.ToggleActive(ctx, id)
}

// Redeem turns "author presents a code" into either a granted credit or a
// rejection. Rejection ladder: not_found, inactive, not_yet_valid or
// expired, per_user_cap_reached, global_cap_reached. The caps are
// re-checked inside the store's transaction; two attempts racing for the
// last slot cannot both win.
func (s *PromotionService) Redeem(ctx context.Context, authorID, code string) (model.Redemption, int64, error) {
	pc, err := s.store.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return model.Redemption{}, 0, err
	}

	at := now()
	switch {
	case !pc.Active:
		return model.Redemption{}, 0, model.Conflict(model.CodeInactive, "promotion code is inactive")
	case pc.ValidFrom != nil && at.Before(*pc.ValidFrom):
		return model.Redemption{}, 0, model.Conflict(model.CodeNotYetValid, "promotion code is not yet valid")
	case pc.ValidUntil != nil && at.After(*pc.ValidUntil):
		return model.Redemption{}, 0, model.Conflict(model.CodeExpired, "promotion code has expired")
	}

	// Cap checks happen inside the store's transaction, per-user before
	// global, under the code row lock.

	redemption, newBalance, err := s.store.Redeem(ctx, pc.ID, authorID)
	if err != nil {
		return model.Redemption{}, 0, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, authorID, newBalance); cacheErr != nil {
			slog.Warn("balance cache refresh failed", "author_id", authorID, "error", cacheErr)
		}
	}
	s.publish(model.TopicPromotionsRedeemed, model.PromotionRedeemedEvent{
		PromotionCodeID: pc.ID,
		Code:            pc.Code,
		AuthorID:        authorID,
		CreditsGranted:  redemption.CreditsGranted,
		NewBalance:      newBalance,
		RedeemedAt:      redemption.RedeemedAt,
	})

	return redemption, newBalance, nil
}

func (s *PromotionService) publish(topic string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(topic, data); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}

// NormalizeCode uppercases and trims a user-supplied code so lookups and
// uniqueness always compare the canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
