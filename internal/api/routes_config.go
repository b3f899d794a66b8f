package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleGetConfig returns the live server settings. Secrets are omitted.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"motd":        s.cfg.GetMOTD(),
		"address":     s.cfg.Address,
		"max_players": s.cfg.GetMaxPlayers(),
		"inbox_size":  s.cfg.InboxSize,
		"api": gin.H{
			"address":     s.cfg.API.Address,
			"tls_enabled": s.cfg.API.TLSEnabled,
		},
		"database": gin.H{
			"enabled":        s.cfg.Database.Enabled,
			"retention_days": s.cfg.Database.RetentionDays,
			"cleanup_time":   s.cfg.Database.CleanupTime,
		},
		"mqtt": gin.H{
			"enabled":    s.cfg.MQTT.Enabled,
			"broker_url": s.cfg.MQTT.BrokerURL,
			"port":       s.cfg.MQTT.Port,
		},
	})
}

type setMOTDRequest struct {
	MOTD string `json:"motd" binding:"required"`
}

// handleSetMOTD changes the message of the day. New status queries see it
// immediately.
func (s *Server) handleSetMOTD(c *gin.Context) {
	var req setMOTDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetMOTD(req.MOTD)
	s.save(c)
}

type setMaxPlayersRequest struct {
	MaxPlayers int `json:"max_players" binding:"required,min=1"`
}

func (s *Server) handleSetMaxPlayers(c *gin.Context) {
	var req setMaxPlayersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetMaxPlayers(req.MaxPlayers)
	s.save(c)
}

func (s *Server) save(c *gin.Context) {
	if err := s.cfg.Save(); err != nil {
		log.Error().Err(err).Msg("API: failed to save config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}
	log.Info().Str("client_ip", c.ClientIP()).Msg("API: configuration updated")
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}
