package routes

import (
	"net/http"
	"time"

	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupHealthRoutes reports index size and Redis reachability. An empty
// index is reported as not ready, since every answer would be "not found".
func SetupHealthRoutes(router *gin.Engine, index vectorstore.Index, rdb *redis.Client) {
	router.GET("/health", func(c *gin.Context) {
		redisStatus := "disabled"
		if rdb != nil {
			ctx, cancel := utils.WithShortTimeout(c.Request.Context())
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "unreachable"
			} else {
				redisStatus = "ok"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"ready":     index.Len() > 0,
			"timestamp": time.Now().UTC(),
			"index": gin.H{
				"chunks":    index.Len(),
				"dimension": index.Dimension(),
			},
			"redis": redisStatus,
		})
	})
}
