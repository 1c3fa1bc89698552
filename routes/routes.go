package routes

import (
	"context"
	"net/http"
	"time"

	"hardware_ledger/app"
	"hardware_ledger/controllers"
	"hardware_ledger/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	hw := controllers.NewHardwareController(s)
	ic := controllers.NewIssueController(s)
	auth := controllers.NewAuthController(s)

	// 复用的中间件
	authMW := app.AuthRequired(a.Tokens, a.Sessions())
	idem := app.Idempotent(a.Responses(), a.Config.IdempotencyTTL, a.Logger.Named("idempotency"))

	// ------------------------------
	// 健康检查 / 指标（公开）
	// ------------------------------
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })
	r.GET("/readyz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ready(ctx); err != nil {
			a.Logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api", authMW)

	// ------------------------------
	// 登录态
	// ------------------------------
	authGroup := api.Group("/auth")
	{
		authGroup.GET("/whoami", auth.WhoAmI)
		authGroup.POST("/logout", auth.Logout)
		authGroup.POST("/logout-all", auth.LogoutAll)
	}

	// ------------------------------
	// 借还记录（静态段先于 /hardware/:id）
	// ------------------------------
	issues := api.Group("/hardware/issues")
	{
		issues.GET("/active", ic.ListActive)
		issues.GET("/history", ic.ListHistory)
		issues.GET("/due-today", ic.ListDueToday)
		issues.GET("/overdue", ic.ListOverdue)
		issues.GET("/:id", ic.Get)

		issues.POST("", idem, ic.Issue)
		issues.POST("/register", idem, ic.RegisterAndIssue)
		issues.POST("/:id/return", idem, ic.Return)
		issues.PUT("/:id", ic.Update)
		issues.DELETE("/:id", idem, ic.Delete)
	}

	// ------------------------------
	// 物品登记
	// ------------------------------
	hardware := api.Group("/hardware")
	{
		hardware.GET("", hw.List)
		hardware.GET("/code/:code", hw.GetByCode)
		hardware.GET("/:id", hw.Get)
		hardware.POST("", idem, hw.Create)
		hardware.PUT("/:id", hw.Update)
		hardware.DELETE("/:id", hw.Delete)
		hardware.POST("/:id/reconcile", hw.Reconcile)
	}
}
