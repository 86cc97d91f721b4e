package routes

import (
	"fmt"

	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/pipeline"
	"compliance-rag-assistant/internal/telemetry"
	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/middleware"
	"compliance-rag-assistant/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const maxRequestBody = 64 << 10

// Deps is what the HTTP layer needs. Redis and Metrics may be nil.
type Deps struct {
	Config   *config.Config
	Pipeline *pipeline.Context
	Index    vectorstore.Index
	Redis    *redis.Client
	Metrics  *telemetry.Metrics
}

// NewRouter builds the gin engine with the middleware chain and all routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.CustomRecovery(recoverPanic))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(d.Metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(d.Config.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(maxRequestBody))
	router.Use(middleware.RateLimitMiddleware(d.Redis, d.Config))

	SetupHealthRoutes(router, d.Index, d.Redis)
	SetupAskRoutes(router, d.Pipeline, d.Config.RequestTimeout)
	return router
}

func recoverPanic(c *gin.Context, recovered any) {
	logger.Error("Handler panicked", "path", c.Request.URL.Path, "panic", fmt.Sprint(recovered))
	utils.RespondWithInternalError(c, "Something went wrong while answering.", nil)
}
