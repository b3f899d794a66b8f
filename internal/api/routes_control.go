package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleDisconnect closes one connection by id.
func (s *Server) handleDisconnect(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}

	found, err := s.monitor.Disconnect(c.Request.Context(), id, "kicked")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found", "id": id})
		return
	}

	log.Info().
		Uint64("conn_id", id).
		Str("client_ip", c.ClientIP()).
		Msg("API: connection disconnected")

	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "id": id})
}
