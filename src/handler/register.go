package handler

import (
	"context"
	"reflect"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterConfig struct {
	UserOpService UserOpService
	Health        *HealthHandler
	// APISecret guards the routes that use the sponsor key or the relay queue.
	APISecret    string
	AllowOrigins []string
}

func RegisterRoutes(ctx context.Context, router *gin.Engine, config RouterConfig) {

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if value, ok := field.Interface().(decimal.Decimal); ok {
				return value.String()
			}
			return nil
		}, decimal.Decimal{})
	}

	if len(config.AllowOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = config.AllowOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-API-Secret", "X-Requested-With"}
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	SetMiddlewares(ctx, router)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	userOpHandler := NewUserOpHandler(config.UserOpService)
	secret := SharedSecretMiddleware(config.APISecret)

	v1 := router.Group("/api/v1")
	{
		if config.Health != nil {
			v1.GET("/health", config.Health.HandleHealthCheck)
		}

		userops := v1.Group("/userops")
		userops.POST("/fill", userOpHandler.Fill)
		userops.POST("/pack", userOpHandler.Pack)
		userops.POST("/hash", userOpHandler.Hash)
		userops.POST("/verify", userOpHandler.Verify)
		userops.POST("/estimate", userOpHandler.Estimate)
		userops.POST("/sign", secret, userOpHandler.Sign)
		userops.POST("/submit", secret, userOpHandler.Submit)
		userops.GET("/:hash", userOpHandler.GetOperation())

		v1.GET("/accounts/:address/nonce", userOpHandler.GetNonce())
	}
}
