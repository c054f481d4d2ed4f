package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsSamplingParams(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	lm := NewLocalChatModel(srv.URL, "qwen2.5:7b", DefaultSamplingParams(), 5*time.Second)
	msg, err := lm.Generate(context.Background(), []*schema.Message{
		schema.UserMessage("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)

	// 推理必须可复现：温度0、固定seed、低top_k/top_p都要随请求发出
	assert.Equal(t, float64(0), captured["temperature"], "温度必须为0")
	assert.Equal(t, float64(42), captured["seed"], "seed必须固定")
	assert.Equal(t, float64(10), captured["top_k"])
	assert.InDelta(t, 0.3, captured["top_p"].(float64), 1e-9)
	assert.InDelta(t, 1.1, captured["repeat_penalty"].(float64), 1e-9)
	assert.Equal(t, false, captured["stream"])
}

func TestGenerateErrorPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	lm := NewLocalChatModel(srv.URL, "", DefaultSamplingParams(), 5*time.Second)
	_, err := lm.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500", "错误里应该带上HTTP状态")
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer srv.Close()

	lm := NewLocalChatModel(srv.URL, "m", DefaultSamplingParams(), 5*time.Second)
	_, err := lm.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
}

func TestWithToolsIgnoresTools(t *testing.T) {
	lm := NewLocalChatModel("", "", DefaultSamplingParams(), 0)
	got, err := lm.WithTools([]*schema.ToolInfo{{Name: "noop"}})
	require.NoError(t, err)
	assert.Same(t, lm, got.(*LocalChatModel), "不支持工具调用，应该原样返回自身")
}
