package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Default server timeouts. Reads are generous because batch payloads can
// run to tens of megabytes over slow links.
const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 120 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(handler *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, handler)
	return router
}

func registerRoutes(router *gin.Engine, handler *Handler) {
	router.POST("/analyze", handler.Analyze)

	router.GET("/health", handler.Health)
	router.GET("/health/ready", handler.Ready)
	router.GET("/health/dlq", handler.DLQHealth)
	router.GET("/health/stats", handler.Stats)

	router.GET("/metrics", handler.Metrics)
	router.GET("/tasks/:task_id", handler.GetTask)
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(port int, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}
