// Package ops exposes the operator surface: status, audit queries and the
// kill switch, behind JWT auth. It reads shared state; only the kill switch
// and trading toggle mutate anything.
package ops

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/executor"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/state"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

// Server wires HTTP endpoints around the execution core.
type Server struct {
	Router       *gin.Engine
	Bus          *events.Bus
	Store        *db.Store
	Tracker      *state.Tracker
	Exec         *executor.Executor
	JWTSecret    string
	PasswordHash string
	Meta         SystemMeta
}

// SystemMeta describes runtime facts exposed on the status endpoint.
type SystemMeta struct {
	PaperBroker bool
	Symbols     []string
	Timeframe   string
	Version     string
	StartedAt   time.Time
}

func NewServer(bus *events.Bus, store *db.Store, tracker *state.Tracker, exec *executor.Executor, meta SystemMeta, jwtSecret, passwordHash string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:       r,
		Bus:          bus,
		Store:        store,
		Tracker:      tracker,
		Exec:         exec,
		JWTSecret:    jwtSecret,
		PasswordHash: passwordHash,
		Meta:         meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/positions", s.getPositions)
			protected.GET("/orders", s.getOrders)
			protected.GET("/orders/:id", s.getOrder)
			protected.GET("/signals", s.getSignals)
			protected.GET("/events", s.getEvents)
			protected.GET("/trades/summary", s.getTradeSummary)

			protected.POST("/killswitch", s.activateKillSwitch)
			protected.DELETE("/killswitch", s.deactivateKillSwitch)
			protected.POST("/trading/enable", s.setTrading(true))
			protected.POST("/trading/disable", s.setTrading(false))
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
