package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxLoginsLimit = 1000

func (s *Server) handleConnections(c *gin.Context) {
	conns, err := s.monitor.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"total":       len(conns),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.monitor.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleLogins returns the most recent logins, newest first.
func (s *Server) handleLogins(c *gin.Context) {
	if s.logins == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login history is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if limit > maxLoginsLimit {
		limit = maxLoginsLimit
	}

	logins, err := s.logins.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logins": logins,
		"count":  len(logins),
	})
}

func (s *Server) handleSystem(c *gin.Context) {
	dir := "."
	if s.cfg.Database.Enabled && s.cfg.Database.Path != "" {
		dir = filepath.Dir(s.cfg.Database.Path)
	}
	c.JSON(http.StatusOK, gin.H{
		"host": s.host,
		"load": s.probe.Sample(dir),
	})
}
