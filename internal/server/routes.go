package server

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type envelopeRequest struct {
	Type       uint64 `json:"type"`
	PayloadHex string `json:"payload_hex"`
}

type dispatchRequest struct {
	Envelopes []envelopeRequest `json:"envelopes" binding:"required"`
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": "offersctl",
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/kinds", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"kinds": KindViews()})
	})

	s.router.POST("/decode", s.requireToken(), func(c *gin.Context) {
		var req envelopeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		payload, err := hex.DecodeString(req.PayloadHex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("payload_hex: %v", err)})
			return
		}
		if !onionmsg.IsKnownType(req.Type) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("type %d is not an offers message", req.Type)})
			return
		}
		msg, err := s.codec.DecodeBytes(req.Type, payload)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"type":    req.Type,
				"outcome": onionmsg.Classify(err).String(),
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"type":    req.Type,
			"outcome": onionmsg.OutcomeDecoded.String(),
			"message": MessageView(msg),
		})
	})

	s.router.POST("/dispatch", s.requireToken(), func(c *gin.Context) {
		var req dispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		envs := make([]onionmsg.Envelope, 0, len(req.Envelopes))
		for i, e := range req.Envelopes {
			payload, err := hex.DecodeString(e.PayloadHex)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("envelopes[%d].payload_hex: %v", i, err)})
				return
			}
			envs = append(envs, onionmsg.Envelope{Type: e.Type, Payload: payload})
		}
		results, err := s.dispatcher.Dispatch(c.Request.Context(), envs)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		views := make([]ResultView, 0, len(results))
		for _, r := range results {
			views = append(views, NewResultView(r))
		}
		c.JSON(http.StatusOK, gin.H{"results": views})
	})
}
