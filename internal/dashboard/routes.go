package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fabler/fabler/internal/session"
	"github.com/fabler/fabler/internal/store"
)

var _ GameView = (*session.Engine)(nil)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, game GameView, st *store.Store) {
	api := router.Group("/api")
	api.GET("/world", handleWorld(game))
	api.GET("/leaderboard", handleLeaderboard(game))
	api.GET("/rules", handleRules(game))
	api.GET("/state", handleState(game))

	router.GET("/events", handleSSE(st))
}

func handleWorld(game GameView) gin.HandlerFunc {
	return func(c *gin.Context) {
		world := game.WorldState()
		if world == nil {
			world = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"world": world})
	}
}

func handleLeaderboard(game GameView) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows := game.LeaderboardRows()
		if rows == nil {
			rows = []session.LeaderboardRow{}
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
	}
}

// ruleEntry is the public shape of a custom rule. Secret rules never
// reach this endpoint.
type ruleEntry struct {
	ID   uint   `json:"id"`
	Rule string `json:"rule"`
}

func handleRules(game GameView) gin.HandlerFunc {
	return func(c *gin.Context) {
		rules := game.CustomRules(false)
		entries := make([]ruleEntry, 0, len(rules))
		for _, r := range rules {
			entries = append(entries, ruleEntry{ID: r.ID, Rule: r.Rule})
		}
		c.JSON(http.StatusOK, gin.H{"rules": entries})
	}
}

func handleState(game GameView) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"started": game.Started(),
			"bidding": game.DescribeBidding(),
		})
	}
}
