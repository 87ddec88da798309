package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hiremote_portal/internal/config"
	"hiremote_portal/internal/controller"
	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
	"hiremote_portal/internal/router"
	"hiremote_portal/internal/service"
	"hiremote_portal/internal/task"
	"hiremote_portal/pkg/database"
	"hiremote_portal/pkg/logger"
	"hiremote_portal/pkg/metrics"
)

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	Metrics     *metrics.Metrics
	Repos       *Repositories
	Services    *Services
	Sessions    *middleware.SessionManager
	Limiter     *middleware.RateLimiter
	Controllers router.Controllers
	Tasks       *task.TaskManager
}

// Repositories 仓库集合
type Repositories struct {
	User          repository.UserRepository
	Store         repository.StoreRepository
	SubmissionUow *repository.SubmissionUnitOfWork
	AssistantLog  repository.AssistantCallLogRepository
}

// Services 服务集合
type Services struct {
	Auth       *service.AuthService
	Storage    *service.StorageService
	Submission *service.SubmissionService
	Assistant  *service.AssistantService
}

// ==================== 初始化函数 ====================

// bootstrap 加载配置、日志与数据库，所有子命令共用
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.SetGlobal(l)

	db, err := initDatabase(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	middleware.SetJWTConfig(&middleware.JWTConfig{
		SecretKey:      cfg.SecretKey,
		AccessTokenTTL: 2 * time.Hour,
		Issuer:         "hiremote-portal",
	})
	return cfg, l, db, nil
}

// initDatabase 连接数据库并注册审计回调，建表由 initSchema 完成
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.InitDB(database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, err
	}
	if err := middleware.RegisterAuditCallbacks(db); err != nil {
		return nil, fmt.Errorf("注册审计回调失败: %w", err)
	}
	return db, nil
}

// initSchema 建表并按需写入预置门店与账号
func initSchema(ctx context.Context, deps *Dependencies, seed bool) (*database.InitResult, error) {
	opts := database.InitOptions{
		Models: model.All(),
		Logger: deps.Logger,
	}
	if seed {
		opts.Seed = func(ctx context.Context) (int, error) {
			return deps.Services.Auth.Seed(ctx, service.DefaultSeedUsers)
		}
	}
	return database.NewInitializer(deps.DB, opts).Initialize(ctx)
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, l *zap.Logger, db *gorm.DB) (*Dependencies, error) {
	m := metrics.New()

	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- 服务层 --------
	services, err := initServices(cfg, l, repos, m)
	if err != nil {
		return nil, err
	}

	// -------- 会话 & 限流 --------
	sessions := middleware.NewSessionManager(cfg.SecretKey, cfg.SessionTTL, cfg.SessionSecure, repos.User, l)
	limiter := middleware.NewRateLimiter()
	guard := middleware.NewLoginGuard(limiter)

	deps := &Dependencies{
		Config:   cfg,
		Logger:   l,
		DB:       db,
		Metrics:  m,
		Repos:    repos,
		Services: services,
		Sessions: sessions,
		Limiter:  limiter,
	}

	// -------- Controller 层 --------
	deps.Controllers = router.Controllers{
		Auth:      controller.NewAuthController(services.Auth, sessions, guard, m, l),
		Dashboard: controller.NewDashboardController(services.Submission, l),
		Upload:    controller.NewUploadController(services.Submission, l),
		File:      controller.NewFileController(services.Submission, l),
		Assistant: controller.NewAssistantController(services.Assistant, l),
		API:       controller.NewAPIController(services.Auth, services.Submission, guard, l),
		Health:    controller.NewHealthController(db, l),
	}

	// -------- 定时任务 --------
	taskDeps := &task.TaskManagerDeps{
		Index:  repos.SubmissionUow.Attachments,
		Logger: l,
	}
	// S3 没有批次目录可枚举，只清理本地存储
	if local, ok := services.Storage.GetProvider().(*service.LocalStorage); ok {
		taskDeps.Store = local
	}
	deps.Tasks = task.NewTaskManager(taskDeps, &task.TaskManagerConfig{CleanupCron: cfg.CleanupCron})

	return deps, nil
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          repository.NewUserRepository(db),
		Store:         repository.NewStoreRepository(db),
		SubmissionUow: repository.NewSubmissionUnitOfWork(db),
		AssistantLog:  repository.NewAssistantCallLogRepository(db),
	}
}

// initServices 初始化所有服务
func initServices(cfg *config.Config, l *zap.Logger, repos *Repositories, m *metrics.Metrics) (*Services, error) {
	storageSvc, err := service.NewStorageService(service.StorageConfig{
		Provider:  cfg.Storage.Provider,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Endpoint:  cfg.Storage.Endpoint,
		BasePath:  cfg.Storage.BasePath,
	})
	if err != nil {
		return nil, fmt.Errorf("存储服务初始化失败: %w", err)
	}

	assistantSvc, err := service.NewAssistantService(service.AssistantConfig{
		Provider: cfg.Assistant.Provider,
		APIKey:   cfg.Assistant.APIKey,
		Model:    cfg.Assistant.Model,
		Endpoint: cfg.Assistant.Endpoint,
		Timeout:  cfg.Assistant.Timeout,
	}, repos.AssistantLog, m, l)
	if err != nil {
		return nil, fmt.Errorf("助手服务初始化失败: %w", err)
	}
	if !assistantSvc.Enabled() {
		l.Info("未配置 ASSISTANT_PROVIDER，聊天助手已关闭")
	}

	return &Services{
		Auth:       service.NewAuthService(repos.User, repos.Store, l),
		Storage:    storageSvc,
		Submission: service.NewSubmissionService(repos.SubmissionUow, storageSvc, m, l),
		Assistant:  assistantSvc,
	}, nil
}

// ==================== 服务启动 ====================

// runServer 启动 HTTP 服务，收到退出信号后优雅关闭
func runServer(deps *Dependencies) error {
	cfg, l := deps.Config, deps.Logger
	gin.SetMode(cfg.GinMode)

	r, err := router.New(router.Options{
		Sessions:       deps.Sessions,
		Users:          deps.Repos.User,
		Limiter:        deps.Limiter,
		Metrics:        deps.Metrics,
		Logger:         l,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, deps.Controllers)
	if err != nil {
		return err
	}

	if err := deps.Tasks.Start(); err != nil {
		return err
	}
	defer deps.Tasks.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	case <-quit:
	}

	l.Info("正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务强制关闭: %w", err)
	}
	l.Info("服务已退出")
	return nil
}
