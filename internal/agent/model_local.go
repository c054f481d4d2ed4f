package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"apply-agent-go/internal/logger"
)

const (
	// OpenAI-compatible endpoint of a locally hosted model server (Ollama / llama.cpp)
	defaultLocalAPIURL   = "http://localhost:11434/v1/chat/completions"
	defaultLocalModel    = "qwen2.5:7b"
	defaultRequestTimout = 120 * time.Second
)

// SamplingParams 解码参数。申请表字段推理要求可复现：
// 温度为0、低top_k/top_p、固定seed，配合重复惩罚抑制小模型的复读
type SamplingParams struct {
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
	Seed          int
	MaxTokens     int
}

// DefaultSamplingParams 面向确定性推理的缺省解码参数
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		Temperature:   0,
		TopK:          10,
		TopP:          0.3,
		RepeatPenalty: 1.1,
		Seed:          42,
		MaxTokens:     2048,
	}
}

// --- OpenAI Compatible Request/Response Structures ---

type openAIChatRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"` // Eino schema.Message is compatible for role/content
	// Sampling parameters. Ollama and llama.cpp accept the extended fields;
	// servers that don't simply ignore them.
	Temperature   float64 `json:"temperature"`
	TopK          int     `json:"top_k,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	Seed          int     `json:"seed,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	Stream        bool    `json:"stream"`
}

type openAIChatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// LocalChatModel 通过OpenAI兼容接口访问本地推理服务的聊天模型客户端，
// 实现 model.ToolCallingChatModel 接口。全部数据留在本机，不出网。
type LocalChatModel struct {
	modelName  string
	apiURL     string
	sampling   SamplingParams
	httpClient *http.Client
}

// NewLocalChatModel 创建本地模型客户端。endpoint或modelName为空时取缺省值
func NewLocalChatModel(endpoint, modelName string, sampling SamplingParams, timeout time.Duration) *LocalChatModel {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultLocalAPIURL
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultLocalModel
	}
	if timeout <= 0 {
		timeout = defaultRequestTimout
	}

	logger.Info().Str("api_url", endpoint).Str("model", modelName).Msg("使用本地LLM客户端")

	return &LocalChatModel{
		modelName:  modelName,
		apiURL:     endpoint,
		sampling:   sampling,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate 实现 model.ToolCallingChatModel 接口
func (lm *LocalChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 解码参数固定在客户端配置里，不接受逐次调用覆盖
	}

	reqPayload := openAIChatRequest{
		Model:         lm.modelName,
		Messages:      messages,
		Temperature:   lm.sampling.Temperature,
		TopK:          lm.sampling.TopK,
		TopP:          lm.sampling.TopP,
		RepeatPenalty: lm.sampling.RepeatPenalty,
		Seed:          lm.sampling.Seed,
		MaxTokens:     lm.sampling.MaxTokens,
		Stream:        false,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lm.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := lm.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var apiResp openAIChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := apiResp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.RoleType("assistant")
	}

	return result, nil
}

// Stream 实现 model.ToolCallingChatModel 接口。字段推理是单次调用，不需要流式输出
func (lm *LocalChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("LocalChatModel 的 Stream 方法未实现")
}

// WithTools 实现 model.ToolCallingChatModel 接口。
// 字段推理靠提示词要求结构化JSON输出，不走工具调用，这里原样返回自身
func (lm *LocalChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		logger.Warn().Int("count", len(tools)).Msg("[本地模型] 收到工具绑定请求，但字段推理不使用工具调用")
	}
	return lm, nil
}

var _ model.ToolCallingChatModel = (*LocalChatModel)(nil)
