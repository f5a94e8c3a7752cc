package http

import (
	"context"
	"net/http"
	"net/http/pprof"

	"github.com/dkeye/atrium/internal/adapters/signal"
	"github.com/dkeye/atrium/internal/app"
	"github.com/dkeye/atrium/internal/config"
	"github.com/dkeye/atrium/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ClientTokenMiddleware mints a stable cookie token used only to correlate
// log lines across reconnects; it carries no identity.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Controller *signal.Controller
	Aggregator *app.Aggregator
	Venues     core.VenueRegistry
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("AtriumSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client_token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Controller.HandleSignal(ctx, c)
	})

	api.GET("/occupancy", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Aggregator.Aggregate())
	})

	api.GET("/venues", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Venues.List())
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Mode == "debug" {
		dbg := r.Group("/debug/pprof")
		dbg.GET("/", gin.WrapF(pprof.Index))
		dbg.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		dbg.GET("/profile", gin.WrapF(pprof.Profile))
		dbg.GET("/symbol", gin.WrapF(pprof.Symbol))
		dbg.POST("/symbol", gin.WrapF(pprof.Symbol))
		dbg.GET("/trace", gin.WrapF(pprof.Trace))
		for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			dbg.GET("/"+p, gin.WrapH(pprof.Handler(p)))
		}
	}

	return r
}
