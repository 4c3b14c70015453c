package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	RealtimeEventChange      = "change"
	RealtimeEventSubscribed  = "subscribed"
	RealtimeEventFeed        = "feed"
	realtimeEventHeartbeat   = "heartbeat"
	defaultHeartbeatInterval = 25 * time.Second
	websocketWriteTimeout    = 10 * time.Second
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriptionPayload struct {
	Table  string             `json:"table"`
	Event  realtime.EventType `json:"event"`
	Column string             `json:"column,omitempty"`
	Value  string             `json:"value,omitempty"`
}

type heartbeatPayload struct {
	Timestamp int64 `json:"ts"`
}

func filterFromQuery(c *gin.Context) (realtime.Filter, error) {
	return realtime.ParseFilter(c.Query("table"), c.Query("event"), c.Query("column"), c.Query("value"))
}

func (h *httpHandler) handleRealtimeStream(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	ctx := c.Request.Context()
	events, cleanup := h.hub.Subscribe(ctx, filter)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(RealtimeEventSubscribed, subscriptionPayload{
		Table:  filter.Table,
		Event:  filter.Event,
		Column: filter.Column,
		Value:  filter.Value,
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(RealtimeEventChange, event)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: tick.Unix()})
			return true
		}
	})
}

// handleRealtimeFeed streams a zone feed snapshot and re-sends it whenever the
// reputation of an author on it changes. Posts created after the snapshot are
// not added; clients reconnect to pick them up.
func (h *httpHandler) handleRealtimeFeed(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithCode(c, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	ctx := c.Request.Context()
	events, cleanup := h.hub.Subscribe(ctx, realtime.Filter{Table: "reputation", Event: realtime.EventUpdate})
	defer cleanup()

	zone := strings.TrimSpace(c.Query("zone"))
	items, err := h.contentService.ListPosts(ctx, content.ListPostsInput{
		Zone:   zone,
		Limit:  limit,
		Viewer: authorHash(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	authors := make(map[string]struct{}, len(items))
	for _, item := range items {
		authors[item.AuthorHash] = struct{}{}
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(RealtimeEventFeed, feedResponsePayload{Zone: zone, Posts: items})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			hash, score, ok := reputation.ScoreFromEvent(event)
			if _, shown := authors[hash]; !ok || !shown {
				return true
			}
			items = content.ApplyReputationUpdate(items, hash, score)
			c.SSEvent(RealtimeEventFeed, feedResponsePayload{Zone: zone, Posts: items})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: tick.Unix()})
			return true
		}
	})
}

func (h *httpHandler) handleRealtimeWebsocket(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	events, cleanup := h.hub.Subscribe(c.Request.Context(), filter)
	defer cleanup()

	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The read loop only detects disconnects; clients never send frames.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-disconnected:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Info("websocket write failed", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteTimeout)); err != nil {
				return
			}
		}
	}
}
