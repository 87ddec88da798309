package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
	"hiremote_portal/pkg/metrics"
	"hiremote_portal/pkg/utils"
)

const (
	// MaxHistoryTurns 转发给模型的最大历史轮数
	MaxHistoryTurns = 20
	// MaxMessageChars 单条提问最大字符数
	MaxMessageChars = 4000

	defaultGeminiModel = "gemini-2.5-flash"
	defaultHTTPModel   = "gpt-4o-mini"
)

// assistantInstruction 系统提示词
const assistantInstruction = `You are the Hiremote operations assistant.
You help store employees, operations managers and clients use the Hiremote portal:
submitting end-of-shift packets (scratcher video, cash photo, sales photo),
sending daily, weekly and monthly reports, and filtering submissions by store,
employee, category and date. Keep answers short and practical.`

// ==================== 配置 ====================

// AssistantConfig 助手配置
type AssistantConfig struct {
	Provider string // gemini | http | 空=关闭
	APIKey   string
	Model    string
	Endpoint string // http 提供者的 chat completions 地址
	Timeout  time.Duration
}

// ChatTurn 一轮对话
type ChatTurn struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// ==================== 提供者 ====================

// AssistantProvider 大模型提供者
type AssistantProvider interface {
	Name() string
	Model() string
	Reply(ctx context.Context, history []ChatTurn, message string) (string, error)
}

// NewAssistantProvider 根据配置创建提供者，未配置时返回 nil
func NewAssistantProvider(cfg AssistantConfig) (AssistantProvider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, errors.New("gemini 提供者缺少 API Key")
		}
		if cfg.Model == "" {
			cfg.Model = defaultGeminiModel
		}
		return &geminiProvider{apiKey: cfg.APIKey, model: cfg.Model}, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, errors.New("http 提供者缺少 Endpoint")
		}
		if cfg.Model == "" {
			cfg.Model = defaultHTTPModel
		}
		return newHTTPProvider(cfg), nil
	default:
		return nil, fmt.Errorf("不支持的助手提供者: %s", cfg.Provider)
	}
}

// ---------- Gemini ----------

type geminiProvider struct {
	apiKey string
	model  string
}

func (p *geminiProvider) Name() string  { return "gemini" }
func (p *geminiProvider) Model() string { return p.model }

func (p *geminiProvider) Reply(ctx context.Context, history []ChatTurn, message string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("Gemini 初始化失败: %w", err)
	}
	defer client.Close()

	gm := client.GenerativeModel(p.model)
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(assistantInstruction)}}

	cs := gm.StartChat()
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("Gemini 调用失败: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("Gemini 返回为空")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("Gemini 未返回文本")
	}
	return sb.String(), nil
}

// ---------- OpenAI 兼容 HTTP ----------

type httpProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
	model    string
}

func newHTTPProvider(cfg AssistantConfig) *httpProvider {
	return &httpProvider{
		client:   utils.NewHTTPClient(utils.HTTPClientOptions{Timeout: cfg.Timeout}),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

func (p *httpProvider) Name() string  { return "http" }
func (p *httpProvider) Model() string { return p.model }

type chatCompletionRequest struct {
	Model    string     `json:"model"`
	Messages []ChatTurn `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatTurn `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *httpProvider) Reply(ctx context.Context, history []ChatTurn, message string) (string, error) {
	messages := make([]ChatTurn, 0, len(history)+2)
	messages = append(messages, ChatTurn{Role: "system", Content: assistantInstruction})
	messages = append(messages, history...)
	messages = append(messages, ChatTurn{Role: "user", Content: message})

	var result chatCompletionResponse
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chatCompletionRequest{Model: p.model, Messages: messages}).
		SetResult(&result).
		SetError(&result)
	if p.apiKey != "" {
		req.SetAuthToken(p.apiKey)
	}

	resp, err := req.Post(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("助手请求失败: %w", err)
	}
	if resp.IsError() {
		if result.Error != nil && result.Error.Message != "" {
			return "", fmt.Errorf("助手返回错误 %d: %s", resp.StatusCode(), result.Error.Message)
		}
		return "", fmt.Errorf("助手返回错误 %d", resp.StatusCode())
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", errors.New("助手返回为空")
	}
	return result.Choices[0].Message.Content, nil
}

// ==================== AssistantService ====================

// AssistantService 聊天助手服务
type AssistantService struct {
	provider AssistantProvider
	logRepo  repository.AssistantCallLogRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewAssistantService 按配置创建助手服务，未配置提供者时服务处于关闭状态
func NewAssistantService(cfg AssistantConfig, logRepo repository.AssistantCallLogRepository, m *metrics.Metrics, logger *zap.Logger) (*AssistantService, error) {
	provider, err := NewAssistantProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewAssistantServiceWithProvider(provider, logRepo, m, logger), nil
}

// NewAssistantServiceWithProvider 使用现成的提供者创建助手服务
func NewAssistantServiceWithProvider(provider AssistantProvider, logRepo repository.AssistantCallLogRepository, m *metrics.Metrics, logger *zap.Logger) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{
		provider: provider,
		logRepo:  logRepo,
		metrics:  m,
		logger:   logger,
	}
}

// Enabled 是否已配置提供者
func (s *AssistantService) Enabled() bool {
	return s.provider != nil
}

// Chat 发送一条消息并返回回复
func (s *AssistantService) Chat(ctx context.Context, user *model.User, message string, history []ChatTurn) (string, error) {
	if !s.Enabled() {
		return "", ErrAssistantDisabled
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", newValidationError("message is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageChars {
		return "", newValidationError("message is too long (max %d characters)", MaxMessageChars)
	}

	turns := NormalizeHistory(history)

	start := time.Now()
	reply, err := s.provider.Reply(ctx, turns, message)
	duration := time.Since(start)

	callLog := &model.AssistantCallLog{
		Provider:     s.provider.Name(),
		ModelName:    s.provider.Model(),
		HistoryTurns: len(turns),
		MessageChars: utf8.RuneCountInString(message),
		ReplyChars:   utf8.RuneCountInString(reply),
		DurationMs:   duration.Milliseconds(),
		Status:       model.AssistantCallSuccess,
	}
	if user != nil {
		callLog.UserID = user.ID
	}
	if err != nil {
		callLog.Status = model.AssistantCallFailed
		callLog.ErrorMsg = truncate(err.Error(), 1000)
	}
	s.record(ctx, callLog)

	if err != nil {
		s.logger.Error("助手调用失败",
			zap.String("provider", callLog.Provider),
			zap.Int64("user_id", callLog.UserID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}
	return reply, nil
}

// record 记录调用日志，写库失败不影响回复
func (s *AssistantService) record(ctx context.Context, callLog *model.AssistantCallLog) {
	if s.metrics != nil {
		s.metrics.AssistantCall.WithLabelValues(callLog.Status).Inc()
	}
	if s.logRepo == nil {
		return
	}
	if err := s.logRepo.Create(context.WithoutCancel(ctx), callLog); err != nil {
		s.logger.Warn("写入助手调用日志失败", zap.Error(err))
	}
}

// Usage 用户在时间范围内的调用统计
func (s *AssistantService) Usage(ctx context.Context, user *model.User, since, until time.Time) (*repository.AssistantUsageStats, error) {
	if s.logRepo == nil {
		return &repository.AssistantUsageStats{}, nil
	}
	return s.logRepo.GetUsageByUser(ctx, user.ID, since, until)
}

// DailyUsage 全站按天统计
func (s *AssistantService) DailyUsage(ctx context.Context, since, until time.Time) ([]repository.DailyAssistantUsage, error) {
	if s.logRepo == nil {
		return nil, nil
	}
	return s.logRepo.GetDailyUsage(ctx, since, until)
}

// NormalizeHistory 规范化历史记录
// 丢弃空内容与未知角色，model 视为 assistant，只保留最近 MaxHistoryTurns 轮
func NormalizeHistory(history []ChatTurn) []ChatTurn {
	turns := make([]ChatTurn, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(t.Role))
		switch role {
		case "user":
		case "assistant", "model", "bot":
			role = "assistant"
		default:
			continue
		}
		turns = append(turns, ChatTurn{Role: role, Content: content})
	}
	if len(turns) > MaxHistoryTurns {
		turns = turns[len(turns)-MaxHistoryTurns:]
	}
	return turns
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
