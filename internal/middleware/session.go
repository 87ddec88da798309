package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/gob"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"hiremote_portal/internal/model"
)

// ==================== 会话配置 ====================

const (
	// SessionName 会话 Cookie 名
	SessionName = "hiremote_session"

	sessionUserKey = "user_id"

	// ContextKeyUser gin.Context 中当前用户 (*model.User) 的 key
	ContextKeyUser = "current_user"
	// ContextKeyUserEmail 当前用户邮箱，供访问日志使用
	ContextKeyUserEmail = "current_user_email"

	contextKeySession = "session"
)

// Flash 一次性提示消息
type Flash struct {
	Kind    string // success | info | warning | danger
	Message string
}

func init() {
	gob.Register(Flash{})
}

// UserLoader 按 ID 加载用户（含门店）
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionManager Cookie 会话管理
type SessionManager struct {
	store  *sessions.CookieStore
	users  UserLoader
	logger *zap.Logger
}

// NewSessionManager 创建会话管理器
// 签名与加密密钥都由 secret 派生
func NewSessionManager(secret string, ttl time.Duration, secure bool, users UserLoader, logger *zap.Logger) *SessionManager {
	hashKey := sha512.Sum512([]byte("hiremote:session:sign:" + secret))
	blockKey := sha256.Sum256([]byte("hiremote:session:encrypt:" + secret))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(store.Options.MaxAge)

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{store: store, users: users, logger: logger}
}

// ==================== Gin 中间件 ====================

// LoadUser 解析会话并把当前用户放入 Context，未登录时不拦截
func (m *SessionManager) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 签名校验失败时 Get 仍返回一个新会话
		sess, err := m.store.Get(c.Request, SessionName)
		if err != nil {
			m.logger.Debug("会话 Cookie 无效，已忽略", zap.Error(err))
		}
		c.Set(contextKeySession, sess)

		if id, ok := sess.Values[sessionUserKey].(int64); ok && id > 0 {
			user, err := m.users.GetByID(c.Request.Context(), id)
			if err != nil {
				m.logger.Error("加载会话用户失败", zap.Int64("user_id", id), zap.Error(err))
			}
			if user != nil {
				setCurrentUser(c, user)
			} else {
				delete(sess.Values, sessionUserKey)
			}
		}

		c.Next()
	}
}

// RequireLogin 要求已登录
// 页面请求跳转登录页，API 请求返回 401
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Next()
			return
		}

		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please log in to continue."})
			return
		}
		AddFlash(c, "warning", "Please log in to continue.")
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}

// RequireRole 要求当前用户为指定角色之一
func RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":    401,
					"message": "未登录",
				})
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		AbortForbidden(c)
	}
}

// AbortForbidden 返回 403
func AbortForbidden(c *gin.Context) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":    403,
			"message": "无权限访问",
		})
		return
	}
	c.Data(http.StatusForbidden, "text/plain; charset=utf-8", []byte("403 Forbidden"))
	c.Abort()
}

// ==================== 会话操作 ====================

// Login 把用户写入会话
func (m *SessionManager) Login(c *gin.Context, user *model.User) error {
	sess := session(c)
	if sess == nil {
		return nil
	}
	sess.Values[sessionUserKey] = user.ID
	setCurrentUser(c, user)
	return sess.Save(c.Request, c.Writer)
}

// Logout 清空会话，保留本次写入的 Flash
func (m *SessionManager) Logout(c *gin.Context) error {
	sess := session(c)
	if sess == nil {
		return nil
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	c.Set(ContextKeyUser, (*model.User)(nil))
	c.Set(ContextKeyUserEmail, "")
	return sess.Save(c.Request, c.Writer)
}

// AddFlash 添加一条 Flash 并立即写回 Cookie
func AddFlash(c *gin.Context, kind, message string) {
	sess := session(c)
	if sess == nil {
		return
	}
	sess.AddFlash(Flash{Kind: kind, Message: message})
	_ = sess.Save(c.Request, c.Writer)
}

// Flashes 取出并清空 Flash
func Flashes(c *gin.Context) []Flash {
	sess := session(c)
	if sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = sess.Save(c.Request, c.Writer)

	flashes := make([]Flash, 0, len(raw))
	for _, f := range raw {
		if fl, ok := f.(Flash); ok {
			flashes = append(flashes, fl)
		}
	}
	return flashes
}

// ==================== 辅助函数 ====================

// CurrentUser 当前登录用户，未登录返回 nil
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextKeyUser); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

func setCurrentUser(c *gin.Context, user *model.User) {
	c.Set(ContextKeyUser, user)
	c.Set(ContextKeyUserEmail, user.Email)
	c.Request = c.Request.WithContext(WithAuditInfo(c.Request.Context(), user.ID, user.Email))
}

func session(c *gin.Context) *sessions.Session {
	if v, ok := c.Get(contextKeySession); ok {
		if s, ok := v.(*sessions.Session); ok {
			return s
		}
	}
	return nil
}

// wantsJSON API 路由或明确要求 JSON 的请求
func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
