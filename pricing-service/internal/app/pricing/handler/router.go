package handler

import (
	"net/http"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "pricing-service"

func SetupRoutes(pricingHandler *PricingHandler, authMiddleware *AuthMiddleware) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(logger.GinLoggerMiddleware())
	router.Use(metrics.GinPrometheusMiddleware(serviceName))

	// каталог читает SPA с другого origin
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowWildcard:    true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", logger.RequestIDHeader},
		ExposeHeaders:    []string{logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Публичные эндпоинты
	stores := router.Group("/stores")
	{
		stores.GET("", pricingHandler.ListStores)
		stores.GET("/:id", pricingHandler.GetStore)
	}

	items := router.Group("/items")
	{
		items.GET("", pricingHandler.SearchItems)
		items.GET("/deals/featured", pricingHandler.GetFeaturedDeals)
		items.GET("/:id", pricingHandler.GetItem)
		items.GET("/:id/compare", pricingHandler.ComparePrices)
		items.GET("/:id/prices", pricingHandler.ListPrices)
		items.GET("/:id/history", pricingHandler.GetPriceHistory)
	}

	// Администрирование каталога и цен
	admin := router.Group("")
	admin.Use(authMiddleware.Authenticate())
	admin.Use(authMiddleware.RequireRole(RoleAdmin, RoleManager))
	{
		admin.POST("/stores", pricingHandler.CreateStore)
		admin.DELETE("/stores/:id", pricingHandler.DeactivateStore)
		admin.POST("/stores/:id/activate", pricingHandler.ActivateStore)

		admin.POST("/items", pricingHandler.CreateItem)
		admin.PUT("/items/:id", pricingHandler.UpdateItem)
		admin.DELETE("/items/:id", authMiddleware.RequireRole(RoleAdmin), pricingHandler.DeleteItem)
		admin.POST("/items/:id/recompute", pricingHandler.RecomputeItem)

		admin.PUT("/items/:id/prices/:store_id", pricingHandler.UpsertPrice)
		admin.DELETE("/items/:id/prices/:store_id", pricingHandler.RemovePrice)
	}

	return router
}
