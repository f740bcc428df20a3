package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/adapters/membership"
	"github.com/gavelinrobert-beep/Hearth/internal/adapters/signal"
	"github.com/gavelinrobert-beep/Hearth/internal/auth"
	"github.com/gavelinrobert-beep/Hearth/internal/config"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

const tokenTTL = 24 * time.Hour

// SetupRouter wires the public surface: the signaling websocket, room
// listing, health, and the admin endpoints the platform backend uses to
// sync channels and memberships into this process.
func SetupRouter(cfg *config.Config, gateway *signal.Gateway, directory *membership.Memory, registry *core.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", gateway.HandleSignal)

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/voice/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": registry.List()})
	})

	api.POST("/channels", func(c *gin.Context) {
		var body struct {
			ID       domain.ChannelID   `json:"id" binding:"required"`
			ServerID domain.ServerID    `json:"serverId" binding:"required"`
			Type     domain.ChannelType `json:"type" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
			return
		}
		directory.AddChannel(domain.Channel{ID: body.ID, ServerID: body.ServerID, Type: body.Type})
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})

	// Token minting for the platform backend. A missing id gets a fresh
	// uuid, so the same endpoint covers user provisioning.
	api.POST("/auth/token", func(c *gin.Context) {
		var body struct {
			UserID   domain.UserID `json:"userId"`
			Username string        `json:"username" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
			return
		}
		user, err := domain.NewUser(body.UserID, body.Username)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if user.ID == "" {
			user.ID = domain.UserID(uuid.NewString())
		}
		token, err := auth.Issue([]byte(cfg.Secret), auth.Identity{UserID: user.ID, Username: user.Username}, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": user.ID, "token": token})
	})

	api.POST("/servers/:id/members", func(c *gin.Context) {
		var body struct {
			UserID domain.UserID `json:"userId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
			return
		}
		directory.AddMember(domain.ServerID(c.Param("id")), body.UserID)
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})

	return r
}
