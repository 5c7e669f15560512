package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fabler/fabler/internal/models"
	"github.com/fabler/fabler/internal/store"
)

// replyEvent holds data for a narrative reply SSE event.
type replyEvent struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// handleSSE streams narrative replies as they land in the room log. The
// store is polled; only replies created after the client connected are sent.
func handleSSE(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Tests exercise the handshake without a store.
		if st == nil {
			return
		}

		// Skip everything already in the log.
		var lastSeenID uint
		err := st.Tx(func(conn *store.Conn) error {
			msgs, err := conn.NarratorRepliesAfter(0, 0)
			if err != nil {
				return err
			}
			if len(msgs) > 0 {
				lastSeenID = msgs[len(msgs)-1].ID
			}
			return nil
		})
		if err != nil {
			log.Printf("dashboard: sse initial scan: %v", err)
			return
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var newMsgs []models.Message
				err := st.Tx(func(conn *store.Conn) error {
					var qErr error
					newMsgs, qErr = conn.NarratorRepliesAfter(lastSeenID, 50)
					return qErr
				})
				if err != nil {
					log.Printf("dashboard: sse poll: %v", err)
					continue
				}
				if len(newMsgs) == 0 {
					continue
				}
				lastSeenID = newMsgs[len(newMsgs)-1].ID

				for _, msg := range newMsgs {
					writeSSE(c.Writer, "reply", replyEvent{
						ID:        msg.ID,
						Content:   msg.Content,
						CreatedAt: msg.CreatedAt,
					})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
