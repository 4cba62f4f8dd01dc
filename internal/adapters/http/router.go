package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Lobby/internal/adapters/signal"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "LobbySessions"
	clientTokenKey  = "client_token"
	snapshotTimeout = 2 * time.Second
)

// Lobby is what the HTTP surface needs from the engine.
type Lobby interface {
	signal.Engine
	Snapshot(ctx context.Context) (app.Snapshot, error)
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a correlation token in the cookie session.
// The token only tags log lines; it grants nothing.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, lobby Lobby) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(lobby, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.SendBuffer,
		MessageRate:  cfg.MessageRate,
		MessageBurst: cfg.MessageBurst,
	})

	api := r.Group("/api")

	api.GET("/ws/lobby", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws lobby endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/lobby", func(c *gin.Context) {
		snap, ok := snapshot(c, lobby)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sessions": snap.Sessions,
			"pending":  snap.Pending,
			"names":    snap.Names,
			"playback": snap.Playback,
		})
	})

	api.GET("/voice/channels", func(c *gin.Context) {
		snap, ok := snapshot(c, lobby)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, snap.VoiceChannels)
	})

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func snapshot(c *gin.Context, lobby Lobby) (app.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()
	snap, err := lobby.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("snapshot")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lobby unavailable"})
		return app.Snapshot{}, false
	}
	return snap, true
}
