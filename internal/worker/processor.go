package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/jacome7/mythoria-admin-sub000/internal/model"
)

// BalanceRefresher re-reads an author's authoritative balance and pushes
// it into the local cache.
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context, authorID string) (int64, error)
}

// CacheSyncWorker listens for credit assignment events and refreshes the
// Redis balance cache, so instances that did not perform the write still
// serve the new balance from cache.
type CacheSyncWorker struct {
	credits  BalanceRefresher
	natsConn *nats.Conn
}

func NewCacheSyncWorker(credits BalanceRefresher, nc *nats.Conn) *CacheSyncWorker {
	return &CacheSyncWorker{credits: credits, natsConn: nc}
}

// Run subscribes to the assignment topic and blocks until ctx is
// cancelled. QueueSubscribe spreads messages across worker instances:
// each event is handled by exactly one member of the group.
func (w *CacheSyncWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(model.TopicCreditsAssigned, "credits_cache_sync", func(m *nats.Msg) {
		if err := w.handle(ctx, m.Data); err != nil {
			slog.Error("worker: cache sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("balance cache sync worker is running")

	<-ctx.Done()

	slog.Info("worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

func (w *CacheSyncWorker) handle(ctx context.Context, data []byte) error {
	var event model.CreditAssignedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshal assignment event: %w", err)
	}
	if event.AuthorID == "" {
		return fmt.Errorf("assignment event without author id")
	}
	if _, err := w.credits.RefreshBalance(ctx, event.AuthorID); err != nil {
		return fmt.Errorf("refresh balance for %s: %w", event.AuthorID, err)
	}
	return nil
}

// Start implements the infrastructure.Server interface.
func (w *CacheSyncWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is
// via ctx).
func (w *CacheSyncWorker) Stop(ctx context.Context) error {
	return nil
}
