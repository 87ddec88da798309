package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
)

// ==================== 种子数据 ====================

// SeedUser 预置账号
type SeedUser struct {
	Name        string
	Email       string
	Password    string
	Role        model.UserRole
	StoreNumber string
}

// DefaultSeedUsers 默认演示账号
var DefaultSeedUsers = []SeedUser{
	{Name: "Alex Employee", Email: "employee@hiremote.com", Password: "password123", Role: model.RoleEmployee, StoreNumber: "101"},
	{Name: "Bianca Manager", Email: "manager@hiremote.com", Password: "operations123", Role: model.RoleManager, StoreNumber: "H1"},
	{Name: "Chris Client", Email: "client@hiremote.com", Password: "clientaccess", Role: model.RoleClient, StoreNumber: "101"},
}

// ==================== AuthService 认证服务 ====================

// AuthService 认证服务
type AuthService struct {
	userRepo  repository.UserRepository
	storeRepo repository.StoreRepository
	logger    *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo repository.UserRepository, storeRepo repository.StoreRepository, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:  userRepo,
		storeRepo: storeRepo,
		logger:    logger,
	}
}

// Login 邮箱密码登录
// 账号不存在与密码错误返回同一个错误
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser 根据 ID 获取用户（含门店）
func (s *AuthService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// TokenResult API 登录结果
type TokenResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

// IssueToken 校验账号并签发 Access Token
func (s *AuthService) IssueToken(ctx context.Context, email, password string) (*TokenResult, error) {
	user, err := s.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, err := middleware.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("签发 Token 失败: %w", err)
	}

	return &TokenResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(middleware.GetJWTConfig().AccessTokenTTL),
		User:        user,
	}, nil
}

// ==================== 初始化 ====================

// Seed 写入预置门店与账号，已存在的账号保持不变
func (s *AuthService) Seed(ctx context.Context, seeds []SeedUser) (int, error) {
	created := 0
	for _, seed := range seeds {
		exists, err := s.userRepo.ExistsByEmail(ctx, seed.Email)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		store, err := s.storeRepo.Ensure(ctx, seed.StoreNumber, "Store "+seed.StoreNumber)
		if err != nil {
			return created, fmt.Errorf("初始化门店 %s 失败: %w", seed.StoreNumber, err)
		}

		hash, err := HashPassword(seed.Password)
		if err != nil {
			return created, err
		}

		user := &model.User{
			Name:     seed.Name,
			Email:    seed.Email,
			Password: hash,
			Role:     seed.Role,
			StoreID:  store.ID,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return created, fmt.Errorf("创建账号 %s 失败: %w", seed.Email, err)
		}
		created++
		s.logger.Info("预置账号已创建",
			zap.String("email", user.Email),
			zap.String("role", string(user.Role)),
			zap.String("store", seed.StoreNumber),
		)
	}
	return created, nil
}

// ChangePassword 重置密码
func (s *AuthService) ChangePassword(ctx context.Context, email, newPassword string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, user.ID, hash)
}

// HashPassword 生成 bcrypt 哈希
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", newValidationError("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("密码加密失败: %w", err)
	}
	return string(hash), nil
}
