package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClientOptions 出站 HTTP 客户端配置
type HTTPClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Proxy     string // 为空时直连
	Debug     bool
}

// NewHTTPClient 创建一个配置好代理、超时和 UA 的 Resty 客户端
// 它是全系统统一的出站请求入口
func NewHTTPClient(opts HTTPClientOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Hiremote-Portal/1.0"
	}

	client := resty.New().
		SetDebug(opts.Debug).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	return client
}
