package ops

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

func limitParam(c *gin.Context, def, max int) int {
	limit := def
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func (s *Server) getStatus(c *gin.Context) {
	killActive, killReason := s.Tracker.KillSwitchActive()
	c.JSON(http.StatusOK, gin.H{
		"paper_broker": s.Meta.PaperBroker,
		"symbols":      s.Meta.Symbols,
		"timeframe":    s.Meta.Timeframe,
		"version":      s.Meta.Version,
		"started_at":   s.Meta.StartedAt.UTC().Format(time.RFC3339),
		"uptime":       time.Since(s.Meta.StartedAt).Round(time.Second).String(),
		"kill_switch": gin.H{
			"active": killActive,
			"reason": killReason,
		},
		"state":     s.Tracker.Summary(),
		"execution": s.Exec.GetExecutionSummary(),
	})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Tracker.Positions()})
}

func (s *Server) getOrders(c *gin.Context) {
	orders, err := s.Store.RecentOrders(c.Request.Context(), limitParam(c, 50, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if orders == nil {
		orders = []db.OrderRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.Store.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "ORDER_NOT_FOUND",
				"error": "no order with that client order id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) getSignals(c *gin.Context) {
	signals, err := s.Store.RecentSignals(c.Request.Context(), limitParam(c, 50, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if signals == nil {
		signals = []db.SignalRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) getEvents(c *gin.Context) {
	evts, err := s.Store.RecentEvents(c.Request.Context(), limitParam(c, 100, 1000))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if evts == nil {
		evts = []db.EventRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

func (s *Server) getTradeSummary(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}
	sum, err := s.Store.GetTradeSummary(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) activateKillSwitch(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&req)
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	s.Tracker.ActivateKillSwitch(req.Reason)
	c.JSON(http.StatusOK, gin.H{
		"kill_switch": true,
		"reason":      req.Reason,
	})
}

// deactivateKillSwitch is the only way back from a latched kill switch.
func (s *Server) deactivateKillSwitch(c *gin.Context) {
	s.Tracker.DeactivateKillSwitch()
	c.JSON(http.StatusOK, gin.H{"kill_switch": false})
}

func (s *Server) setTrading(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.Tracker.SetTradingEnabled(enabled)
		c.JSON(http.StatusOK, gin.H{"trading_enabled": enabled})
	}
}
