package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"data-explorer-be/internal/bootstrap"
	"data-explorer-be/internal/config"
	"data-explorer-be/internal/server"
	"data-explorer-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const purgeInterval = 10 * time.Minute

func main() {
	// 0. Initialize Tracer
	cfg := config.Load()
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled, cfg.App.OtelEndpoint)
	defer shutdownTracer(context.Background())

	// 1. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	// 2. Background Services
	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return container.ConsumerService.Consume(gctx)
	})
	if container.Purger != nil {
		g.Go(func() error {
			purgeIdleSessions(gctx, container, cfg.Session.TTL)
			return nil
		})
	}

	// 3. Server
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

func purgeIdleSessions(ctx context.Context, c *bootstrap.Container, ttl time.Duration) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purger.PurgeIdle(ctx, time.Now().Add(-ttl))
			if err != nil {
				c.Logger.Warn("Purge", "Failed to purge idle sessions", map[string]interface{}{"error": err.Error()})
				continue
			}
			if n > 0 {
				c.Logger.Info("Purge", "Purged idle sessions", map[string]interface{}{"count": n})
			}
		}
	}
}
