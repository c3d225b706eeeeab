package handler

import (
	"time"

	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 15 * time.Second

// streamEvents relays a topic to the client as server-sent events until the
// client disconnects. The first event confirms the subscription.
func streamEvents(c *gin.Context, sub Subscriber, topic string) {
	events, cancel := sub.Subscribe(topic)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("subscribed", gin.H{"topic": topic})
	c.Writer.Flush()

	utils.Debug("event stream opened", map[string]any{"topic": topic})
	defer utils.Debug("event stream closed", map[string]any{"topic": topic})

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}
