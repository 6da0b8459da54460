package controllers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-dashboard/metrics"
)

// RouterConfig carries what SetupRouter needs to mount every endpoint
type RouterConfig struct {
	AppName     string
	CORSOrigins []string
	Logger      *logrus.Logger

	Options  *OptionController
	Auth     *AuthController
	Activity *ActivityController
}

// SetupRouter builds the gin engine with middleware and routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(cfg.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"app":    cfg.AppName,
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/token", cfg.Auth.HandleLogin)
	router.GET("/users/me", cfg.Auth.HandleMe)

	options := router.Group("/options")
	{
		options.GET("", cfg.Options.HandleListOptions)
		options.POST("", cfg.Options.HandleCreateOption)
		options.GET("/:id", cfg.Options.HandleGetOption)
		options.PUT("/:id", cfg.Options.HandleUpdateOption)
		options.DELETE("/:id", cfg.Options.HandleDeleteOption)
		options.GET("/:id/enriched", cfg.Options.HandleGetEnrichedOption)
	}

	quotes := router.Group("/quotes")
	{
		quotes.GET("/:ticker", cfg.Options.HandleGetQuote)
		quotes.DELETE("/:ticker", cfg.Options.HandleRefreshQuote)
	}

	if cfg.Activity != nil {
		activity := router.Group("/activity")
		{
			activity.GET("", cfg.Activity.HandleGetCurrentActivity)
			activity.GET("/logs", cfg.Activity.HandleListActivityLogs)
			activity.GET("/:date", cfg.Activity.HandleGetActivityByDate)
		}
	}

	return router
}
