// Package server exposes the deliberation engine over HTTP. Query results
// stream as server-sent events so the learner sees stage progress while the
// debate runs.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// QueryService is the engine surface the HTTP layer needs. Narrow on
// purpose so handler tests can fake it.
type QueryService interface {
	SubmitQuery(ctx context.Context, sessionID, courseScope, text string) (string, <-chan engine.ProgressEvent, error)
	History(sessionID string) ([]*engine.Turn, error)
	CloseSession(sessionID string) error
}

// Server wires the gin router over a QueryService.
type Server struct {
	svc     QueryService
	scopes  capability.ScopeChecker
	log     *logrus.Entry
	started time.Time
}

// New builds the server and its routes. gin mode is the caller's business;
// main sets release mode, tests leave the default. A nil scopes checker
// defaults to allow-all.
func New(svc QueryService, scopes capability.ScopeChecker, log *logrus.Entry) *Server {
	if scopes == nil {
		scopes = capability.AllowAllScopes{}
	}
	return &Server{svc: svc, scopes: scopes, log: log, started: time.Now().UTC()}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	api.GET("/status", s.status)
	api.POST("/query/stream", s.queryStream)
	api.GET("/sessions/:id/history", s.history)
	api.DELETE("/sessions/:id", s.closeSession)

	return r
}

// #region middleware

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}).Info("request")
	}
}

// #endregion middleware

// #region health

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// #endregion health

// #region query-stream

type queryRequest struct {
	SessionID   string `json:"session_id"`
	CourseScope string `json:"course_scope"`
	Query       string `json:"query"`
}

// queryStream submits a query and streams progress events until the
// terminal one. The first event names the session so a new caller can
// continue the conversation.
func (s *Server) queryStream(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.scopes.Authorized(c.Request.Context(), req.CourseScope) {
		c.JSON(http.StatusForbidden, gin.H{"error": "course scope not authorized"})
		return
	}

	sessionID, events, err := s.svc.SubmitQuery(c.Request.Context(), req.SessionID, req.CourseScope, req.Query)
	if err != nil {
		c.JSON(submitStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("session", gin.H{"session_id": sessionID})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("progress", ev)
		return true
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery), errors.Is(err, engine.ErrEmptyScope):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// #endregion query-stream

// #region sessions

func (s *Server) history(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	turns, err := s.svc.History(id)
	if err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "turns": turns})
}

func (s *Server) closeSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.svc.CloseSession(id); err != nil {
		switch {
		case errors.Is(err, engine.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, engine.ErrSessionBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "closed": true})
}

// #endregion sessions
