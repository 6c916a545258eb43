package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
	"github.com/jacome7/mythoria-admin-sub000/internal/repository"
)

// Bounds for the restricted admin assignment path. They cap the blast
// radius of a manual mistake; system-generated debits are not bounded
// here.
const (
	minAdminCredits = 1
	maxAdminCredits = 200
)

// CreditsStore is the persistence seam for the assignment service. Assign
// must be atomic: the ledger append and the balance delta commit together
// or not at all.
type CreditsStore interface {
	Assign(ctx context.Context, authorID string, amount int64, eventType model.EventType, refs model.EntryRefs) (model.LedgerEntry, int64, error)
	ListForAuthor(ctx context.Context, authorID string) ([]model.LedgerEntry, error)
	ListForAuthorChronological(ctx context.Context, authorID string) ([]model.LedgerEntry, error)
	Balance(ctx context.Context, authorID string) (int64, error)
}

// BalanceCache is the optional hot-read layer in front of the balance
// table. Implementations must treat their own failures as non-fatal.
type BalanceCache interface {
	Get(ctx context.Context, authorID string) (int64, bool, error)
	Set(ctx context.Context, authorID string, balance int64) error
}

// CreditService is the only sanctioned path to change an author's
// balance.
type CreditService struct {
	store CreditsStore
	cache BalanceCache
	bus   repository.MessageBus
}

// NewCreditService wires the service. cache may be nil (no Redis
// configured); bus may be nil (no broker configured).
func NewCreditService(store CreditsStore, cache BalanceCache, bus repository.MessageBus) *CreditService {
	if bus == nil {
		bus = repository.NopBus{}
	}
	return &CreditService{store: store, cache: cache, bus: bus}
}

// Assign applies a signed amount to an author and returns the new
// balance. This is the system-facing entry point: amounts are unbounded
// but must be non-zero and carry a valid event type.
func (s *CreditService) Assign(ctx context.Context, authorID string, amount int64, eventType model.EventType, refs model.EntryRefs) (int64, error) {
	if amount == 0 {
		return 0, model.Validation(model.CodeInvalidCreditAmount, "amount must be non-zero")
	}
	if !eventType.Valid() {
		return 0, model.Validation(model.CodeInvalidEventType, "unknown event type")
	}

	entry, newBalance, err := s.store.Assign(ctx, authorID, amount, eventType, refs)
	if err != nil {
		return 0, err
	}

	s.refreshCache(ctx, authorID, newBalance)
	s.publish(model.TopicCreditsAssigned, model.CreditAssignedEvent{
		AuthorID:   authorID,
		Amount:     amount,
		EventType:  eventType,
		NewBalance: newBalance,
		CreatedAt:  entry.CreatedAt,
	})

	return newBalance, nil
}

// AssignAdminCredits is the manual admin path: event type restricted to
// refund/voucher/promotion and the amount bounded to [1, 200].
func (s *CreditService) AssignAdminCredits(ctx context.Context, authorID string, amount int64, eventType model.EventType) (int64, error) {
	if !eventType.AdminAssignable() {
		return 0, model.Validation(model.CodeInvalidEventType, "event type not allowed for admin assignment")
	}
	if amount < minAdminCredits || amount > maxAdminCredits {
		return 0, model.Validation(model.CodeInvalidCreditAmount, "admin credit amount must be between 1 and 200")
	}
	return s.Assign(ctx, authorID, amount, eventType, model.EntryRefs{})
}

// GetBalance reads the current balance, preferring the cache and warming
// it on a miss. Cache trouble degrades to a database read.
func (s *CreditService) GetBalance(ctx context.Context, authorID string) (int64, error) {
	if s.cache != nil {
		balance, ok, err := s.cache.Get(ctx, authorID)
		if err != nil {
			slog.Warn("balance cache read failed, falling back to store",
				"author_id", authorID, "error", err)
		} else if ok {
			return balance, nil
		}
	}

	balance, err := s.store.Balance(ctx, authorID)
	if err != nil {
		return 0, err
	}
	s.refreshCache(ctx, authorID, balance)
	return balance, nil
}

// ListLedger returns the author's entries newest-first for display.
func (s *CreditService) ListLedger(ctx context.Context, authorID string) ([]model.LedgerEntry, error) {
	return s.store.ListForAuthor(ctx, authorID)
}

// RefreshBalance re-reads the authoritative balance and pushes it into
// the cache. Used by the cache-sync worker when a sibling instance wrote.
func (s *CreditService) RefreshBalance(ctx context.Context, authorID string) (int64, error) {
	balance, err := s.store.Balance(ctx, authorID)
	if err != nil {
		return 0, err
	}
	s.refreshCache(ctx, authorID, balance)
	return balance, nil
}

func (s *CreditService) refreshCache(ctx context.Context, authorID string, balance int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, authorID, balance); err != nil {
		slog.Warn("balance cache refresh failed", "author_id", authorID, "error", err)
	}
}

func (s *CreditService) publish(topic string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(topic, data); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}
