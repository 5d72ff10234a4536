package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/barterloop/barterloop/internal/server"
	"github.com/barterloop/barterloop/internal/server/handler"
)

// shutdownGrace bounds how long in-flight requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP API server until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "serve mode starting")

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Trades:  handler.NewTradeHandler(deps.Trades, a.logger),
			Proofs:  handler.NewProofHandler(deps.Proofs, a.logger),
			Trust:   handler.NewTrustHandler(deps.TrustEngine, a.logger),
			Objects: handler.NewObjectHandler(deps.ObjectStore, a.logger),
			Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
		},
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// MigrateMode applies pending schema migrations and exits. Wire skips them
// when database.run_migrations is false, so this mode forces a run.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "migrate mode starting")
	return deps.PG.RunMigrations(ctx)
}
