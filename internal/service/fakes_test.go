package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
)

// memCreditsStore is an in-memory CreditsStore with the same atomicity
// contract as the Postgres implementation: Assign holds one lock across
// the ledger append and the balance delta.
type memCreditsStore struct {
	mu         sync.Mutex
	entries    []model.LedgerEntry
	balances   map[string]int64
	nextID     int64
	failAssign error
}

func newMemCreditsStore() *memCreditsStore {
	return &memCreditsStore{balances: make(map[string]int64)}
}

func (m *memCreditsStore) Assign(_ context.Context, authorID string, amount int64, eventType model.EventType, refs model.EntryRefs) (model.LedgerEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAssign != nil {
		return model.LedgerEntry{}, 0, m.failAssign
	}

	m.nextID++
	entry := model.LedgerEntry{
		ID:         m.nextID,
		AuthorID:   authorID,
		Amount:     amount,
		EventType:  eventType,
		StoryID:    refs.StoryID,
		PurchaseID: refs.PurchaseID,
		CreatedAt:  time.Now(),
	}
	m.entries = append(m.entries, entry)
	m.balances[authorID] += amount
	return entry, m.balances[authorID], nil
}

func (m *memCreditsStore) ListForAuthor(_ context.Context, authorID string) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AuthorID == authorID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memCreditsStore) ListForAuthorChronological(_ context.Context, authorID string) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.LedgerEntry
	for _, e := range m.entries {
		if e.AuthorID == authorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memCreditsStore) Balance(_ context.Context, authorID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[authorID], nil
}

func (m *memCreditsStore) entryCount(authorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.AuthorID == authorID {
			n++
		}
	}
	return n
}

// memCache is an in-memory BalanceCache with injectable failures.
type memCache struct {
	mu     sync.Mutex
	values map[string]int64
	sets   int
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]int64)}
}

func (c *memCache) Get(_ context.Context, authorID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	v, ok := c.values[authorID]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, authorID string, balance int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.values[authorID] = balance
	c.sets++
	return nil
}

// recordBus captures published events.
type recordBus struct {
	mu     sync.Mutex
	topics []string
	data   [][]byte
}

func (b *recordBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.data = append(b.data, data)
	return nil
}

func (b *recordBus) published(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// memPromotionsStore is an in-memory PromotionsStore. Redeem holds the
// store lock across the cap re-checks and all three writes, mirroring the
// row lock the Postgres implementation takes.
type memPromotionsStore struct {
	mu          sync.Mutex
	codes       map[uuid.UUID]model.PromotionCode
	byCode      map[string]uuid.UUID
	redemptions []model.Redemption
	credits     *memCreditsStore
}

func newMemPromotionsStore(credits *memCreditsStore) *memPromotionsStore {
	return &memPromotionsStore{
		codes:   make(map[uuid.UUID]model.PromotionCode),
		byCode:  make(map[string]uuid.UUID),
		credits: credits,
	}
}

func (m *memPromotionsStore) Create(_ context.Context, pc model.PromotionCode) (model.PromotionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[pc.Code]; exists {
		return model.PromotionCode{}, model.Conflict(model.CodeCodeExists, "promotion code already exists")
	}
	pc.CreatedAt = time.Now()
	pc.UpdatedAt = pc.CreatedAt
	pc.AttachComputed(0)
	m.codes[pc.ID] = pc
	m.byCode[pc.Code] = pc.ID
	return pc, nil
}

func (m *memPromotionsStore) GetByID(_ context.Context, id uuid.UUID) (model.PromotionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *memPromotionsStore) GetByCode(_ context.Context, code string) (model.PromotionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byCode[code]
	if !ok {
		return model.PromotionCode{}, model.NotFound("promotion code not found")
	}
	return m.getLocked(id)
}

func (m *memPromotionsStore) getLocked(id uuid.UUID) (model.PromotionCode, error) {
	pc, ok := m.codes[id]
	if !ok {
		return model.PromotionCode{}, model.NotFound("promotion code not found")
	}
	pc.AttachComputed(m.countLocked(id, ""))
	return pc, nil
}

func (m *memPromotionsStore) List(_ context.Context, f model.PromotionCodeFilter) (model.PromotionCodePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page := model.PromotionCodePage{Page: f.Page, Limit: f.Limit}
	for id, pc := range m.codes {
		if f.Type != "" && pc.Type != f.Type {
			continue
		}
		if f.Active != nil && pc.Active != *f.Active {
			continue
		}
		pc.AttachComputed(m.countLocked(id, ""))
		page.Items = append(page.Items, pc)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (m *memPromotionsStore) ToggleActive(_ context.Context, id uuid.UUID) (model.PromotionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.codes[id]
	if !ok {
		return model.PromotionCode{}, model.NotFound("promotion code not found")
	}
	pc.Active = !pc.Active
	pc.UpdatedAt = time.Now()
	m.codes[id] = pc
	pc.AttachComputed(m.countLocked(id, ""))
	return pc, nil
}

func (m *memPromotionsStore) Redeem(ctx context.Context, promotionCodeID uuid.UUID, authorID string) (model.Redemption, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.codes[promotionCodeID]
	if !ok {
		return model.Redemption{}, 0, model.NotFound("promotion code not found")
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

	if m.countLocked(promotionCodeID, authorID) >= pc.MaxRedemptionsPerUser {
		return model.Redemption{}, 0, model.Conflict(model.CodePerUserCapReached, "per-user redemption cap reached")
	}
	if pc.MaxGlobalRedemptions != nil && m.countLocked(promotionCodeID, "") >= *pc.MaxGlobalRedemptions {
		return model.Redemption{}, 0, model.Conflict(model.CodeGlobalCapReached, "global redemption cap reached")
	}

	redemption := model.Redemption{
		ID:              uuid.New(),
		PromotionCodeID: promotionCodeID,
		AuthorID:        authorID,
		CreditsGranted:  pc.CreditAmount,
		RedeemedAt:      at,
	}
	m.redemptions = append(m.redemptions, redemption)

	_, newBalance, err := m.credits.Assign(ctx, authorID, pc.CreditAmount, model.EventPromotion, model.EntryRefs{})
	if err != nil {
		m.redemptions = m.redemptions[:len(m.redemptions)-1]
		return model.Redemption{}, 0, err
	}
	return redemption, newBalance, nil
}

// countLocked counts redemptions of a code, optionally for one author.
func (m *memPromotionsStore) countLocked(promotionCodeID uuid.UUID, authorID string) int {
	n := 0
	for _, r := range m.redemptions {
		if r.PromotionCodeID != promotionCodeID {
			continue
		}
		if authorID != "" && r.AuthorID != authorID {
			continue
		}
		n++
	}
	return n
}
