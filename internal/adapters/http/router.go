// Package http serves the operator surface next to the chat socket: health,
// Prometheus metrics, read-only views of live state and the WebSocket entry.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app/orch"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/core"
)

type Deps struct {
	Orch     *orch.Orchestrator
	Gatherer prometheus.Gatherer
	// WS upgrades a request into a framed session. Mounted only when ws.enabled is set.
	WS http.HandlerFunc
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": d.Orch.Registry.Count()})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.WS != nil && cfg.WS.Enabled {
		r.GET("/ws", gin.WrapF(d.WS))
	}

	if cfg.Ops.Password == "" {
		log.Warn().Str("module", "adapters.http").Msg("ops.password not set, /api disabled")
	} else {
		mountAPI(r.Group("/api", gin.BasicAuth(gin.Accounts{cfg.Ops.User: cfg.Ops.Password})), d.Orch)
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Bool("ws", cfg.WS.Enabled).Msg("router setup")
	return r
}

func mountAPI(api *gin.RouterGroup, o *orch.Orchestrator) {
	api.GET("/sessions", listSessions(o))
	api.DELETE("/sessions/:sid", closeSession(o))
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})
	api.GET("/streams", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Streams.List())
	})
}

func listSessions(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := o.Registry.Snapshot()
		out := make([]core.MemberDTO, 0, len(sessions))
		for _, s := range sessions {
			dto := core.MemberDTO{SID: s.ID()}
			if u, ok := s.User(); ok {
				dto.UserID, dto.Username = u.ID, u.Username
			}
			out = append(out, dto)
		}
		c.JSON(http.StatusOK, out)
	}
}

// closeSession drops a live connection. Teardown runs on the transport side.
func closeSession(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := core.SessionID(c.Param("sid"))
		s, ok := o.Registry.GetSession(sid)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		s.Close()
		log.Info().Str("module", "adapters.http").Str("sid", string(sid)).Msg("session closed by operator")
		c.Status(http.StatusNoContent)
	}
}
