// Package api exposes queue status and control over HTTP for the UI and
// for operators.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/netstate"
	"github.com/roach88/offlineq/internal/offline"
)

// Server holds what the handlers need. Manual and Analytics are optional:
// without Manual, PUT /network answers 409; without Analytics, POST /events
// answers 503.
type Server struct {
	Queue     *offline.Queue
	Manual    *netstate.Manual
	Analytics *analytics.Analytics
	Logger    *slog.Logger
}

// Status is the aggregate the UI polls.
type Status struct {
	PendingCount        int  `json:"pendingCount"`
	IsOnline            bool `json:"isOnline"`
	HasPendingMutations bool `json:"hasPendingMutations"`
}

type enqueueRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId"`
}

type networkRequest struct {
	IsConnected *bool `json:"isConnected" binding:"required"`
}

type eventRequest struct {
	Event      string               `json:"event" binding:"required"`
	Properties analytics.Properties `json:"properties"`
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.status)
	r.GET("/mutations", s.listMutations)
	r.POST("/mutations", s.enqueue)
	r.DELETE("/mutations/:id", s.dequeue)
	r.PUT("/network", s.setNetwork)
	r.POST("/events", s.track)
	return r
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger().Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) status(c *gin.Context) {
	n := s.Queue.PendingCount()
	c.JSON(http.StatusOK, Status{
		PendingCount:        n,
		IsOnline:            s.Queue.IsOnline(),
		HasPendingMutations: n > 0,
	})
}

func (s *Server) listMutations(c *gin.Context) {
	list := s.Queue.PendingMutations()
	if list == nil {
		list = []mutation.Mutation{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.Queue.Enqueue(c.Request.Context(), req.Type, req.Payload, req.UserID)
	if err != nil {
		c.JSON(queueErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "accepted"})
}

func (s *Server) dequeue(c *gin.Context) {
	if err := s.Queue.Dequeue(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(queueErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setNetwork(c *gin.Context) {
	if s.Manual == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "connectivity is probed, not set manually"})
		return
	}
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Manual.SetConnected(*req.IsConnected)
	c.JSON(http.StatusOK, gin.H{"isConnected": *req.IsConnected, "isOnline": s.Queue.IsOnline()})
}

func (s *Server) track(c *gin.Context) {
	if s.Analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics disabled"})
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, ok := analytics.ParseEvent(req.Event)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event " + req.Event})
		return
	}
	s.Analytics.Track(c.Request.Context(), ev, req.Properties)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, offline.ErrEmptyType), errors.Is(err, offline.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, offline.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
