package reasoner // 字段推理器：确定性分类优先，剩余字段交给本地LLM单次推理

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/logger"
	"apply-agent-go/internal/parser"
	"apply-agent-go/internal/tracing"
	"apply-agent-go/internal/types"
)

// Options 推理器行为参数
type Options struct {
	MaxRetries    int           // LLM调用失败后的重试次数
	RetryWait     time.Duration // 重试间隔
	CallTimeout   time.Duration // 单次调用超时
	JobSummaryCap int           // 职位描述截断长度（字符）
}

// OptionsFromConfig 从配置装配推理参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRetries:    cfg.LLM.MaxRetries,
		RetryWait:     time.Duration(cfg.LLM.RetryWaitSecs) * time.Second,
		CallTimeout:   config.GetDuration(cfg.LLM.CallTimeout, 45*time.Second),
		JobSummaryCap: cfg.LLM.JobSummaryCap,
	}
}

// Reasoner 把规范化表单描述和候选人档案变成一组字段填写决定。
// 确定性路径不依赖LLM；LLM不可用时整体回退到确定性结果
type Reasoner struct {
	model  model.ToolCallingChatModel
	opts   Options
	tracer oteltrace.Tracer
}

// NewReasoner 创建推理器。model为nil时所有字段走确定性回退
func NewReasoner(m model.ToolCallingChatModel, opts Options) *Reasoner {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 120 * time.Second
	}
	if opts.JobSummaryCap <= 0 {
		opts.JobSummaryCap = 1500
	}
	return &Reasoner{
		model:  m,
		opts:   opts,
		tracer: otel.Tracer("apply-agent/reasoner"),
	}
}

// llmMappingResponse LLM输出的期望形状
type llmMappingResponse struct {
	FieldMappings []struct {
		SemanticName string  `json:"semantic_name"`
		Value        string  `json:"value"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	} `json:"field_mappings"`
}

// MapFields 为描述符中的每个字段产出填写决定。
// 产出的映射与描述符字段一一对应且顺序一致；必填但无法解析的
// 字段收进NeedsUserInput。该方法永不因LLM故障而失败
func (r *Reasoner) MapFields(ctx context.Context, desc *types.FormDescriptor, profile *types.Profile, job *types.Job) (*types.MappingSet, error) {
	if desc == nil || len(desc.Fields) == 0 {
		return nil, fmt.Errorf("表单描述为空，无字段可推理")
	}
	if profile == nil {
		return nil, fmt.Errorf("候选人档案为空")
	}

	ctx, span := r.tracer.Start(ctx, "reasoner.MapFields",
		oteltrace.WithAttributes(attribute.Int("field_count", len(desc.Fields))))
	defer span.End()

	result := make([]types.FieldMapping, len(desc.Fields))
	var llmFields []types.FormField
	llmIndex := map[string]int{} // 语义名 -> result下标

	for i := range desc.Fields {
		f := &desc.Fields[i]

		// 关键词命中的字段先走确定性取值
		if f.Confidence >= parser.ConfidenceKeyword {
			m := parser.DeterministicMapping(f, profile, types.ProvenanceDeterministic)
			if m.Provenance == types.ProvenanceDeterministic {
				result[i] = m
				continue
			}
		}

		// 文件字段不送LLM：脚本只做高亮，不可能填值
		if f.Kind == types.KindFile {
			result[i] = unresolvedMapping(f)
			continue
		}

		llmFields = append(llmFields, *f)
		llmIndex[f.SemanticName] = i
	}

	if len(llmFields) > 0 {
		r.resolveWithLLM(ctx, desc, profile, job, llmFields, llmIndex, result)
	}

	set := &types.MappingSet{Mappings: result}
	for i := range desc.Fields {
		if desc.Fields[i].Required && result[i].Provenance == types.ProvenanceUnresolved {
			set.NeedsUserInput = append(set.NeedsUserInput, desc.Fields[i].SemanticName)
		}
	}

	span.SetAttributes(
		attribute.Int("llm_field_count", len(llmFields)),
		attribute.Int("needs_user_input", len(set.NeedsUserInput)),
	)
	return set, nil
}

// resolveWithLLM 对确定性路径搞不定的字段做一次批量LLM推理，
// 结果经选项校验后写回result；LLM整体失败时逐字段回退到确定性取值
func (r *Reasoner) resolveWithLLM(ctx context.Context, desc *types.FormDescriptor, profile *types.Profile, job *types.Job, fields []types.FormField, index map[string]int, result []types.FieldMapping) {
	parsed, err := r.callModel(ctx, profile, job, fields)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int("field_count", len(fields)).
			Msg("[推理器] LLM推理失败，回退到确定性取值")
		span := oteltrace.SpanFromContext(ctx)
		tracing.RecordLLMFallback(span, err.Error())

		for i := range fields {
			ri := index[fields[i].SemanticName]
			result[ri] = parser.DeterministicMapping(&fields[i], profile, types.ProvenanceDefault)
		}
		return
	}

	seen := make(map[string]bool, len(parsed.FieldMappings))
	for _, pm := range parsed.FieldMappings {
		ri, ok := index[pm.SemanticName]
		if !ok {
			// LLM编造了描述符之外的语义名，丢弃
			logger.Ctx(ctx).Debug().Str("semantic_name", pm.SemanticName).Msg("[推理器] 丢弃未知语义名")
			continue
		}
		if seen[pm.SemanticName] {
			continue
		}
		seen[pm.SemanticName] = true

		f := desc.FieldByName(pm.SemanticName)
		result[ri] = r.validateLLMValue(f, pm.Value, pm.Confidence, pm.Reasoning)
	}

	// LLM漏掉的字段按unresolved处理
	for i := range fields {
		if !seen[fields[i].SemanticName] {
			ri := index[fields[i].SemanticName]
			result[ri] = unresolvedMapping(&fields[i])
		}
	}
}

// validateLLMValue 校验单个LLM给出的值。选择类字段的值必须能落在
// 真实选项上（长下拉用完整选项集），否则unresolved，绝不编造
func (r *Reasoner) validateLLMValue(f *types.FormField, value string, confidence float64, reasoning string) types.FieldMapping {
	value = strings.TrimSpace(value)
	if value == "" {
		return unresolvedMapping(f)
	}

	switch f.Kind {
	case types.KindSelectShort, types.KindSelectLong, types.KindRadio:
		opts := f.Options
		if len(f.AllOptions) > 0 {
			opts = f.AllOptions
		}
		matched := parser.MatchOption(value, opts)
		if matched == "" {
			return unresolvedMapping(f)
		}
		value = matched
	case types.KindCheckbox:
		// 复选框只接受明确的肯定/否定
		switch strings.ToLower(value) {
		case "yes", "true", "checked", "1":
			value = "true"
		case "no", "false", "unchecked", "0":
			value = "false"
		default:
			return unresolvedMapping(f)
		}
	}

	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	return types.FieldMapping{
		SemanticName: f.SemanticName,
		OriginalID:   f.OriginalID,
		Value:        value,
		Confidence:   confidence,
		Provenance:   types.ProvenanceLLM,
		Reasoning:    reasoning,
	}
}

// callModel 单次LLM调用加有限重试。只重试可恢复错误和不可解析输出
func (r *Reasoner) callModel(ctx context.Context, profile *types.Profile, job *types.Job, fields []types.FormField) (*llmMappingResponse, error) {
	if r.model == nil {
		return nil, fmt.Errorf("未配置LLM模型")
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: BuildMappingPrompt(profile, job, fields, r.opts.JobSummaryCap)},
	}

	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Ctx(ctx).Info().Int("attempt", attempt+1).Msg("[推理器] 重试LLM调用")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.opts.RetryWait):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		resp, err := r.model.Generate(callCtx, messages)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("LLM调用失败: %w", err)
			if !isRetryableError(err) {
				return nil, lastErr
			}
			continue
		}

		jsonStr, err := parser.ExtractJSON(resp.Content)
		if err != nil {
			// 输出救不回来也值得再试一次
			lastErr = fmt.Errorf("LLM输出无法解析: %w", err)
			continue
		}

		var parsed llmMappingResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			lastErr = fmt.Errorf("LLM输出反序列化失败: %w", err)
			continue
		}
		return &parsed, nil
	}

	return nil, lastErr
}

// isRetryableError 判断LLM调用错误是否值得重试：超时、网络故障和服务端5xx
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// 本地模型客户端的5xx错误形如 "API 请求失败，状态 503 Service Unavailable: ..."
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout", "connection refused", "connection reset", "eof",
		"状态 500", "状态 502", "状态 503", "状态 504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func unresolvedMapping(f *types.FormField) types.FieldMapping {
	return types.FieldMapping{
		SemanticName: f.SemanticName,
		OriginalID:   f.OriginalID,
		Provenance:   types.ProvenanceUnresolved,
	}
}
