package service

import (
	"context"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
)

// HistoryService reconstructs "what was my balance after each event" for
// audit views. It reads only the ledger: the running sum over the full
// chronological history is the definition of the balance, so the final
// item's BalanceAfter must match the balance cache at all times.
type HistoryService struct {
	store CreditsStore
}

func NewHistoryService(store CreditsStore) *HistoryService {
	return &HistoryService{store: store}
}

// HistoryWithBalances replays the author's ledger oldest-first to
// accumulate the running balance, then returns the items newest-first for
// presentation.
func (s *HistoryService) HistoryWithBalances(ctx context.Context, authorID string) ([]model.HistoryItem, error) {
	entries, err := s.store.ListForAuthorChronological(ctx, authorID)
	if err != nil {
		return nil, err
	}

	items := make([]model.HistoryItem, len(entries))
	var running int64
	for i, entry := range entries {
		running += entry.Amount
		items[i] = model.HistoryItem{Entry: entry, BalanceAfter: running}
	}

	// Newest first for display.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
