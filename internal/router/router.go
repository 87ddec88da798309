package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/controller"
	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/model"
	"hiremote_portal/pkg/logger"
	"hiremote_portal/pkg/metrics"
	"hiremote_portal/web"
)

// Controllers 全部控制器
type Controllers struct {
	Auth      *controller.AuthController
	Dashboard *controller.DashboardController
	Upload    *controller.UploadController
	File      *controller.FileController
	Assistant *controller.AssistantController
	API       *controller.APIController
	Health    *controller.HealthController
}

// Options 路由依赖
type Options struct {
	Sessions *middleware.SessionManager
	Users    middleware.UserLoader
	Limiter  *middleware.RateLimiter
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// 单次请求体上限（字节）
	MaxUploadBytes int64
	// 同一用户两次助手调用的最小间隔
	AssistantInterval time.Duration
}

// New 创建 Gin 引擎并注册全部路由
func New(opts Options, ctl Controllers) (*gin.Engine, error) {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("解析页面模板失败: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	r.Use(
		gin.Recovery(),
		logger.GinLogger(opts.Logger, middleware.ContextKeyUserEmail),
		opts.Metrics.Middleware(),
	)

	InitRoutes(r, opts, ctl)
	return r, nil
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, opts Options, ctl Controllers) {
	interval := opts.AssistantInterval
	if interval <= 0 {
		interval = time.Second
	}

	// 1. 运维
	r.GET("/healthz", ctl.Health.Healthz)
	r.GET("/metrics", opts.Metrics.Handler())
	r.StaticFS("/static", http.FS(web.Static()))

	// 2. 页面路由，Cookie 会话
	pages := r.Group("/", opts.Sessions.LoadUser())
	{
		pages.GET("", ctl.Auth.Index)
		pages.GET("/login", ctl.Auth.LoginPage)
		pages.POST("/login", ctl.Auth.Login)
		pages.GET("/logout", ctl.Auth.Logout)

		authed := pages.Group("", middleware.RequireLogin())
		{
			authed.GET("/dashboard", ctl.Dashboard.Dashboard)
			authed.GET("/reports",
				middleware.RequireRole(model.RoleClient, model.RoleManager),
				ctl.Dashboard.Reports)

			// GET /files/20240101120000/cash.jpg
			authed.GET("/files/*filepath", ctl.File.Download)

			upload := authed.Group("/upload", middleware.BodyLimit(opts.MaxUploadBytes))
			{
				upload.POST("/shift", middleware.RequireRole(model.RoleEmployee), ctl.Upload.Shift)
				upload.POST("/report", middleware.RequireRole(model.RoleManager), ctl.Upload.Report)
			}

			// POST /api/assistant 页面聊天组件
			authed.POST("/api/assistant",
				middleware.BodyLimit(1<<20),
				middleware.Throttle(opts.Limiter, "assistant", interval),
				ctl.Assistant.Chat)
		}
	}

	// 3. JSON API，Bearer Token
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/auth/token
		v1.POST("/auth/token", ctl.API.Token)

		bearer := v1.Group("", middleware.BearerAuth(opts.Users))
		{
			bearer.GET("/submissions", ctl.API.Submissions)
			bearer.GET("/assistant/usage", ctl.Assistant.Usage)
			bearer.GET("/assistant/usage/daily",
				middleware.RequireRole(model.RoleManager),
				ctl.Assistant.DailyUsage)
		}
	}
}
