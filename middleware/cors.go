package middleware

import (
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured origin list; "*" allows any origin. Origins without an
// http or https scheme are skipped, and an empty list disables cross-origin access.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Accept-Encoding", "Authorization", "Cache-Control", "X-Requested-With", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range allowedOrigins {
		switch {
		case o == "*":
			cfg.AllowAllOrigins = true
		case strings.HasPrefix(o, "http://"), strings.HasPrefix(o, "https://"):
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		default:
			log.WithField("origin", o).Warn("cors.origin_ignored")
		}
	}
	if cfg.AllowAllOrigins {
		cfg.AllowOrigins = nil
	}

	if !cfg.AllowAllOrigins && len(cfg.AllowOrigins) == 0 {
		log.Warn("cors.disabled")
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cfg)
}
