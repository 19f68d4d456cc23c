package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"

	"github.com/tbourn/go-devradar-backend/internal/http/middleware"
	"github.com/tbourn/go-devradar-backend/internal/websocket"
)

// Live upgrades browsers to the websocket roster feed.
type Live struct {
	hub      *websocket.Hub
	upgrader gws.Upgrader
}

// WithLive enables GET /ws. Origins follow websocket.Upgrader.
func (h *Handlers) WithLive(hub *websocket.Hub, allowedOrigins []string) *Handlers {
	if hub != nil {
		h.live = &Live{hub: hub, upgrader: websocket.Upgrader(allowedOrigins)}
	}
	return h
}

// LiveRoster godoc
// @ID          liveRoster
// @Summary     Live marker feed
// @Description Upgrades to a websocket. The server sends {"type":"roster","data":[markers]} after every roster change and answers {"type":"ping"} with a pong.
// @Tags        Roster
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     503  {object} handlers.ErrorResponse "Live updates disabled"
// @Router      /ws [get]
func (h *Handlers) LiveRoster(c *gin.Context) {
	if h.live == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "live updates disabled")
		return
	}
	conn, err := h.live.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade refused")
		return
	}
	if !websocket.NewClient(h.live.hub, conn).Start() {
		_ = conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseGoingAway, "shutting down"))
		_ = conn.Close()
	}
}
