package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/api/dto"
	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
)

// ==================== APIController JSON 接口 ====================

// APIController /api/v1 接口
type APIController struct {
	authService *service.AuthService
	submissions *service.SubmissionService
	guard       *middleware.LoginGuard
	logger      *zap.Logger
}

// NewAPIController 创建 API 控制器
func NewAPIController(
	authService *service.AuthService,
	submissions *service.SubmissionService,
	guard *middleware.LoginGuard,
	logger *zap.Logger,
) *APIController {
	return &APIController{
		authService: authService,
		submissions: submissions,
		guard:       guard,
		logger:      logger,
	}
}

// Token POST /api/v1/auth/token
func (ctl *APIController) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	key := middleware.LoginKey(req.Email, c.ClientIP())
	if res := ctl.guard.Blocked(key); !res.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    429,
			"message": "登录失败次数过多，请稍后再试",
		})
		return
	}

	result, err := ctl.authService.IssueToken(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			ctl.guard.Fail(key)
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Invalid email or password.",
			})
			return
		}
		ctl.logger.Error("签发 Token 失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "签发 Token 失败",
		})
		return
	}

	ctl.guard.Succeed(key)
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "登录成功",
		"data":    result,
	})
}

// Submissions GET /api/v1/submissions
// 与页面列表使用同一套门店范围限制
func (ctl *APIController) Submissions(c *gin.Context) {
	var query service.SubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	items, effective, err := ctl.submissions.List(c.Request.Context(), middleware.CurrentUser(c), query)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": msg,
			})
			return
		}
		ctl.logger.Error("查询提交失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "查询失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": dto.SubmissionListResponse{
			Filters: effective,
			Total:   len(items),
			Items:   items,
		},
	})
}
