package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockChatModel 测试用的模型替身。支持固定响应、按调用次序的响应序列
// 和注入错误，并记录收到的消息以便断言提示词内容
type MockChatModel struct {
	mu sync.Mutex

	// Response 固定响应内容（Responses为空时使用）
	Response string
	// Responses 按调用次序返回的响应序列，超出后报错
	Responses []string
	// Err 非nil时每次调用直接返回该错误
	Err error
	// ErrOnce 非nil时只在首次调用返回该错误，之后走正常响应
	ErrOnce error

	// CallCount 已收到的调用次数
	CallCount int
	// LastMessages 最近一次调用收到的消息
	LastMessages []*schema.Message
}

// Generate 实现 model.ToolCallingChatModel 接口
func (m *MockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastMessages = messages

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ErrOnce != nil && m.CallCount == 1 {
		return nil, m.ErrOnce
	}

	content := m.Response
	if len(m.Responses) > 0 {
		idx := m.CallCount - 1
		if m.ErrOnce != nil {
			idx-- // 首次调用被注入错误消耗掉了
		}
		if idx < 0 || idx >= len(m.Responses) {
			return nil, fmt.Errorf("mock响应序列已耗尽（第%d次调用）", m.CallCount)
		}
		content = m.Responses[idx]
	}

	return &schema.Message{Role: schema.Assistant, Content: content}, nil
}

// Stream 实现 model.ToolCallingChatModel 接口
func (m *MockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("MockChatModel 不支持流式输出")
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (m *MockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

var _ model.ToolCallingChatModel = (*MockChatModel)(nil)
