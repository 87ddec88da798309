package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hiremote_portal/pkg/database"
)

// HealthController 健康检查
type HealthController struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, logger *zap.Logger) *HealthController {
	return &HealthController{db: db, logger: logger}
}

// Healthz GET /healthz
func (ctl *HealthController) Healthz(c *gin.Context) {
	if err := database.Ping(ctl.db); err != nil {
		ctl.logger.Error("数据库不可用", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
