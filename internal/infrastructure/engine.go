package infrastructure

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jacome7/mythoria-admin-sub000/internal/service"
)

// Server is anything with a run-until-cancelled lifecycle. Currently only
// the cache-sync worker, but the app loop doesn't care.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Engine is the composed credit subsystem handed to the host process. The
// admin HTTP layer calls the services directly; Run only matters when a
// background worker was wired in.
type Engine struct {
	Credits    *service.CreditService
	Promotions *service.PromotionService
	History    *service.HistoryService

	servers []Server
}

// Run starts the background servers and blocks until ctx is cancelled.
// Safe to skip entirely for deployments without a worker.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.servers) == 0 {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range e.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()

	for _, srv := range e.servers {
		_ = srv.Stop(context.Background())
	}

	return g.Wait()
}
