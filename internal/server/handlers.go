package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) setupRoutes() {
	s.ginEngine.POST("/embed", s.handleEmbed)
	s.ginEngine.GET("/health", s.handleHealth)
	s.ginEngine.POST("/model", s.handleModel)
}

type embedRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	texts := req.Texts
	if req.Text != "" {
		texts = append(texts, req.Text)
	}
	if len(texts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no texts provided"})
		return
	}

	embeddings, err := s.client.Embed(c.Request.Context(), texts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	atomic.AddInt64(&s.stats.requests, 1)

	c.JSON(http.StatusOK, gin.H{
		"embeddings": embeddings,
		"model":      s.client.Model(),
		"dimension":  s.client.Dimension(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	info, err := s.client.Info(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"model":     info.Model,
		"dimension": info.Dimension,
		"ready":     info.Ready,
		"uptime":    time.Since(s.stats.start).String(),
		"requests":  atomic.LoadInt64(&s.stats.requests),
	})
}

type modelRequest struct {
	Model string `json:"model" binding:"required"`
}

func (s *Server) handleModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.client.LoadModel(c.Request.Context(), req.Model); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  s.client.Model(),
	})
}
