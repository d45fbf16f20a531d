package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scipunch/feedsorter/item"
)

// Aggregator is the merged item view served over HTTP
type Aggregator interface {
	GetItems(ctx context.Context, limit int) []item.Item
}

type Server struct {
	agg      Aggregator
	maxLimit int
}

// New serves agg; requests asking for more than maxLimit items are capped
func New(agg Aggregator, maxLimit int) *Server {
	return &Server{agg: agg, maxLimit: maxLimit}
}

// Engine builds a gin engine with all routes registered
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/items", s.listItems)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listItems(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}

	items := s.agg.GetItems(c.Request.Context(), limit)

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}
