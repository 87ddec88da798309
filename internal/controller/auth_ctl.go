package controller

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
	"hiremote_portal/pkg/metrics"
)

// ==================== AuthController 登录控制器 ====================

// AuthController 页面登录 / 登出
type AuthController struct {
	authService *service.AuthService
	sessions    *middleware.SessionManager
	guard       *middleware.LoginGuard
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewAuthController 创建登录控制器
func NewAuthController(
	authService *service.AuthService,
	sessions *middleware.SessionManager,
	guard *middleware.LoginGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuthController {
	return &AuthController{
		authService: authService,
		sessions:    sessions,
		guard:       guard,
		metrics:     m,
		logger:      logger,
	}
}

// Index 首页：已登录去落地页，否则去登录页
func (ctl *AuthController) Index(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		c.Redirect(http.StatusFound, user.LandingPath())
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

// LoginPage 登录页
func (ctl *AuthController) LoginPage(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		c.Redirect(http.StatusFound, user.LandingPath())
		return
	}
	page(c, http.StatusOK, "login.html", gin.H{"Title": "Sign in", "Email": ""})
}

// Login 提交登录表单
func (ctl *AuthController) Login(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	password := c.PostForm("password")
	key := middleware.LoginKey(email, c.ClientIP())

	if res := ctl.guard.Blocked(key); !res.Allowed {
		ctl.observe("throttled")
		minutes := int(math.Ceil(res.RetryAfter.Minutes()))
		ctl.loginFailed(c, http.StatusTooManyRequests, email,
			fmt.Sprintf("Too many attempts. Please try again in %d minute(s).", minutes))
		return
	}

	user, err := ctl.authService.Login(c.Request.Context(), email, password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			serverError(c, ctl.logger, "登录失败", err)
			return
		}
		ctl.guard.Fail(key)
		ctl.observe("invalid")
		ctl.logger.Info("登录失败", zap.String("email", email), zap.String("ip", c.ClientIP()))
		ctl.loginFailed(c, http.StatusUnauthorized, email, "Invalid email or password.")
		return
	}

	ctl.guard.Succeed(key)
	if err := ctl.sessions.Login(c, user); err != nil {
		serverError(c, ctl.logger, "写入会话失败", err)
		return
	}
	ctl.observe("success")
	ctl.logger.Info("登录成功", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	flashRedirect(c, "success", "Welcome back!", user.LandingPath())
}

func (ctl *AuthController) loginFailed(c *gin.Context, status int, email, message string) {
	page(c, status, "login.html", gin.H{
		"Title":   "Sign in",
		"Email":   email,
		"Flashes": []middleware.Flash{{Kind: "danger", Message: message}},
	})
}

// Logout 登出
func (ctl *AuthController) Logout(c *gin.Context) {
	if err := ctl.sessions.Logout(c); err != nil {
		ctl.logger.Warn("清空会话失败", zap.Error(err))
	}
	flashRedirect(c, "info", "Signed out successfully.", "/login")
}

func (ctl *AuthController) observe(result string) {
	if ctl.metrics != nil {
		ctl.metrics.Logins.WithLabelValues(result).Inc()
	}
}
