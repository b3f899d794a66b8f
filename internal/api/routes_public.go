package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quarry-project/quarry/internal/protocol"
	"github.com/quarry-project/quarry/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "quarry",
		"version": util.Version,
	})
}

// handleStatus serves the document a StatusRequest on the game port receives.
func (s *Server) handleStatus(c *gin.Context) {
	doc, err := s.monitor.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":             "quarry",
		"version":          util.Version,
		"game_version":     protocol.VersionName,
		"protocol_version": protocol.ProtocolVersion,
	})
}
