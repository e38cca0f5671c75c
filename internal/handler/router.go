package handler

import (
	"creditledger/internal/config"
	"creditledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, charger service.Charger, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, charger, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 身份解析
		auth := api.Group("/auth")
		{
			auth.POST("/user", h.ResolveUser)
		}

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
		}

		// 积分包目录
		api.GET("/packages", h.ListPackages)

		// 购买相关
		payments := api.Group("/payments")
		{
			payments.POST("/create-intent", h.CreateIntent)
			payments.GET("/detail", h.GetIntent)
			payments.GET("/list", h.ListIntents)
		}

		// 消费相关
		credits := api.Group("/credits")
		{
			credits.POST("/spend", h.Spend)
		}

		// 渠道结算通知
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/payment", h.SettlementWebhook)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
