package handler

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gatepass/internal/httpmiddleware"
	"gatepass/internal/metrics"
)

// EngineConfig controls the middleware stack built by NewEngine.
type EngineConfig struct {
	CORSOrigins []string
	Limiter     httpmiddleware.Limiter
	AccessLog   bool
}

// NewEngine builds the gin engine with the standard middleware and h's routes.
func NewEngine(cfg EngineConfig, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(requestMetrics())
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(securityHeaders())
	if cfg.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.Limiter, h.Log))
	}
	h.Register(r)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the caller's origin so credentials keep working.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestSeconds.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
