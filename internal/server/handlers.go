package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cuentos/internal/narrator"
	"cuentos/internal/story"
)

// generationFailed is the only error body clients ever see.
const generationFailed = "Fallo en la creación"

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Service: serviceName, Version: s.version})
}

func (s *Server) themes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"themes": story.Themes(), "minAge": story.MinAge, "maxAge": story.MaxAge})
}

func (s *Server) generate(c *gin.Context) {
	logger := requestLogger(c, s.logger)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req story.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "err", err)
		fail(c)
		return
	}

	ctx := narrator.ContextWithLogger(c.Request.Context(), logger)
	res, err := s.narrator.Narrate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("client went away", "err", err)
		} else {
			logger.Error("story generation failed", "kind", narrator.Kind(err), "err", err)
		}
		fail(c)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", res.Audio)
}

func fail(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: generationFailed})
}
