package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== RateLimiter 限流器 ====================

// RateLimiter 基于 sync.Map 的按 key 限流器
// 支持两种用法：固定冷却间隔 (Check) 与失败计数锁定 (Fail/Blocked)
type RateLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

// lockEntry 锁条目
type lockEntry struct {
	mu           sync.Mutex
	lastTime     time.Time
	failures     int
	firstFailure time.Time
	blockedUntil time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now}
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

func (r *RateLimiter) entry(key string) *lockEntry {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	return actual.(*lockEntry)
}

// Check 冷却间隔内只允许一次
func (r *RateLimiter) Check(key string, interval time.Duration) CheckResult {
	entry := r.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(entry.lastTime)
	if elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Blocked 是否处于失败锁定期
func (r *RateLimiter) Blocked(key string) CheckResult {
	actual, ok := r.locks.Load(key)
	if !ok {
		return CheckResult{Allowed: true}
	}
	entry := actual.(*lockEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if wait := entry.blockedUntil.Sub(r.now()); wait > 0 {
		return CheckResult{Allowed: false, RetryAfter: wait}
	}
	return CheckResult{Allowed: true}
}

// Fail 记录一次失败
// window 内失败达到 max 次后锁定 cooldown，返回是否因此进入锁定
func (r *RateLimiter) Fail(key string, max int, window, cooldown time.Duration) bool {
	entry := r.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	if entry.failures == 0 || now.Sub(entry.firstFailure) > window {
		entry.failures = 0
		entry.firstFailure = now
	}
	entry.failures++

	if entry.failures >= max {
		entry.blockedUntil = now.Add(cooldown)
		entry.failures = 0
		return true
	}
	return false
}

// Reset 重置指定 key
func (r *RateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== 登录保护 ====================

// LoginGuard 登录失败锁定策略
type LoginGuard struct {
	Limiter     *RateLimiter
	MaxFailures int
	Window      time.Duration
	Cooldown    time.Duration
}

// NewLoginGuard 默认 15 分钟内失败 5 次锁定 5 分钟
func NewLoginGuard(limiter *RateLimiter) *LoginGuard {
	return &LoginGuard{
		Limiter:     limiter,
		MaxFailures: 5,
		Window:      15 * time.Minute,
		Cooldown:    5 * time.Minute,
	}
}

// LoginKey 按邮箱 + IP 生成登录限流 Key
func LoginKey(email, ip string) string {
	return fmt.Sprintf("login:%s:%s", strings.ToLower(strings.TrimSpace(email)), ip)
}

// Blocked 是否被锁定
func (g *LoginGuard) Blocked(key string) CheckResult {
	return g.Limiter.Blocked(key)
}

// Fail 记录失败
func (g *LoginGuard) Fail(key string) {
	g.Limiter.Fail(key, g.MaxFailures, g.Window, g.Cooldown)
}

// Succeed 登录成功后清零
func (g *LoginGuard) Succeed(key string) {
	g.Limiter.Reset(key)
}

// ==================== Gin 中间件 ====================

// Throttle 按当前用户限制调用频率，超限返回 429
func Throttle(limiter *RateLimiter, scope string, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":ip:" + c.ClientIP()
		if user := CurrentUser(c); user != nil {
			key = fmt.Sprintf("%s:user:%d", scope, user.ID)
		}

		result := limiter.Check(key, interval)
		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", fmt.Sprintf("%d", seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Too many requests, retry in %ds.", seconds),
			})
			return
		}
		c.Next()
	}
}
