// Package dashboard exposes a read-only HTTP view of a running game:
// world state, leaderboard, custom rules, bidding state, and an SSE
// stream of narrative replies.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fabler/fabler/internal/models"
	"github.com/fabler/fabler/internal/session"
	"github.com/fabler/fabler/internal/store"
)

// GameView is the read surface the dashboard renders. *session.Engine
// implements it.
type GameView interface {
	Started() bool
	WorldState() []string
	LeaderboardRows() []session.LeaderboardRow
	CustomRules(includeSecret bool) []models.CustomRule
	DescribeBidding() string
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Game  GameView
	Store *store.Store // narrative reply source for the SSE stream
	Addr  string
	Out   io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Game == nil {
		return fmt.Errorf("dashboard: game view is required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8640"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts.Game, opts.Store)

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://%s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
