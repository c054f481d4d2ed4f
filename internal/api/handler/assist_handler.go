package handler

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/emitter"
	"apply-agent-go/internal/parser"
	"apply-agent-go/internal/reasoner"
	"apply-agent-go/internal/session"
	"apply-agent-go/internal/storage"
	"apply-agent-go/internal/tracing"
	"apply-agent-go/internal/types"
)

// AssistHandler 表单分析流水线：规范化描述符 -> 字段映射 -> 生成填表脚本。
// 脚本只在浏览器里填写表单，绝不提交、绝不跳转
type AssistHandler struct {
	cfg        *config.Config
	storage    *storage.Storage
	manager    *session.Manager
	normalizer *parser.Normalizer
	reasoner   *reasoner.Reasoner
	emitter    *emitter.Emitter
	tracer     oteltrace.Tracer
	logger     *log.Logger
}

// NewAssistHandler 创建表单分析处理器
func NewAssistHandler(cfg *config.Config, storage *storage.Storage, manager *session.Manager, rsn *reasoner.Reasoner) *AssistHandler {
	return &AssistHandler{
		cfg:        cfg,
		storage:    storage,
		manager:    manager,
		normalizer: parser.NewNormalizer(cfg.LLM.ShortOptionMax, cfg.LLM.OptionSampleN),
		reasoner:   rsn,
		emitter:    emitter.NewEmitter(cfg.Assist.EnableOverlayUI, cfg.Assist.HighlightMillis),
		tracer:     otel.Tracer("apply-agent/assist"),
		logger:     log.New(os.Stdout, "[AssistHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// AnalyzeFormRequest 扩展端捕获的表单结构与上下文。
// session_id可选：带上时结果会回写到会话的当前职位
type AnalyzeFormRequest struct {
	SessionID  string                   `json:"session_id,omitempty"`
	ProfileID  string                   `json:"profile_id,omitempty"`
	JobID      string                   `json:"job_id,omitempty"`
	Descriptor *types.RawFormDescriptor `json:"descriptor"`
}

// AnalyzeFormResponse 分析产物：规范化描述符、映射集与填表脚本
type AnalyzeFormResponse struct {
	Descriptor    *types.FormDescriptor `json:"descriptor"`
	IdentifierMap types.IdentifierMap   `json:"identifier_map"`
	MappingSet    *types.MappingSet     `json:"mapping_set"`
	Instrument    *types.Instrument     `json:"instrument"`
	FromCache     bool                  `json:"from_cache"`
	Attached      bool                  `json:"attached"` // 是否已回写到会话
}

// HandleAnalyzeForm 分析一张申请表单
// POST /api/v1/assist/analyze-form
func (h *AssistHandler) HandleAnalyzeForm(ctx context.Context, c *app.RequestContext) {
	var req AnalyzeFormRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if req.Descriptor == nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "descriptor 不能为空"})
		return
	}

	ctx, span := h.tracer.Start(ctx, "assist.AnalyzeForm",
		oteltrace.WithAttributes(attribute.Int("raw_field_count", len(req.Descriptor.Fields))))
	defer span.End()

	profileID := req.ProfileID
	jobID := req.JobID
	var epoch uint64

	// 带会话时：上下文从会话取，分析代次在开工前先记录
	if req.SessionID != "" {
		sess, err := h.manager.Get(ctx, req.SessionID)
		if err != nil {
			writeSessionError(c, err, h.logger)
			return
		}
		cur := sess.CurrentJob()
		if cur == nil {
			c.JSON(consts.StatusConflict, utils.H{"error": "会话当前没有待分析的职位"})
			return
		}
		profileID = sess.ProfileID
		jobID = cur.Job.JobID

		// 同一会话同时只允许一个分析在跑
		if h.storage.Redis != nil {
			lockValue, err := h.storage.Redis.AcquireAnalyzeLock(ctx, req.SessionID, 2*time.Minute)
			if err != nil {
				h.logger.Printf("获取分析锁失败: %v", err)
			} else if lockValue == "" {
				c.JSON(consts.StatusConflict, utils.H{"error": "该会话的表单分析正在进行中"})
				return
			} else {
				defer func() {
					if _, err := h.storage.Redis.ReleaseAnalyzeLock(context.WithoutCancel(ctx), req.SessionID, lockValue); err != nil {
						h.logger.Printf("释放分析锁失败: %v", err)
					}
				}()
			}
		}

		// 排队中的职位（失败重试、恢复后）在这里重新进入填写
		epoch, err = h.manager.BeginAnalysis(ctx, req.SessionID)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeSession)
			writeSessionError(c, err, h.logger)
			return
		}
	}

	if profileID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "profile_id 不能为空"})
		return
	}

	profile, ok := h.loadProfile(ctx, c, profileID)
	if !ok {
		return
	}
	job := h.loadJob(ctx, jobID)

	desc, idMap, err := h.normalizer.Normalize(req.Descriptor)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		c.JSON(consts.StatusBadRequest, utils.H{"error": "表单描述符不合法: " + err.Error()})
		return
	}

	set, fromCache := h.resolveMappings(ctx, desc, profile, job)
	if set == nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "字段映射失败"})
		return
	}

	inst, err := h.emitter.Emit(desc, idMap, set)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		h.logger.Printf("生成填表脚本失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成填表脚本失败"})
		return
	}

	resp := &AnalyzeFormResponse{
		Descriptor:    desc,
		IdentifierMap: idMap,
		MappingSet:    set,
		Instrument:    inst,
		FromCache:     fromCache,
	}

	if req.SessionID != "" {
		if _, err := h.manager.AttachAnalysis(ctx, req.SessionID, epoch, set, inst); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeSession)
			writeSessionError(c, err, h.logger)
			return
		}
		// 代次不匹配时AttachAnalysis静默丢弃，这里据实回报
		if sess, err := h.manager.Get(ctx, req.SessionID); err == nil {
			if cur := sess.CurrentJob(); cur != nil && cur.State == session.JobWaitingUser {
				resp.Attached = true
			}
		}
	}

	c.JSON(consts.StatusOK, resp)
}

// resolveMappings 先查缓存，未命中走推理流水线并回填缓存
func (h *AssistHandler) resolveMappings(ctx context.Context, desc *types.FormDescriptor, profile *types.Profile, job *types.Job) (*types.MappingSet, bool) {
	hash := parser.DescriptorHash(desc)
	cacheEnabled := h.storage.Redis != nil && !h.cfg.Assist.DisableMappingCache

	if cacheEnabled {
		cached, err := h.storage.Redis.GetCachedMappingSet(ctx, profile.ProfileID, hash)
		if err != nil {
			h.logger.Printf("查询映射缓存失败: %v", err)
		} else if cached != nil {
			return cached, true
		}
	}

	set, err := h.reasoner.MapFields(ctx, desc, profile, job)
	if err != nil {
		tracing.RecordErrorWithInfo(oteltrace.SpanFromContext(ctx), err, tracing.ErrorTypeLLM,
			attribute.Int("field_count", len(desc.Fields)))
		h.logger.Printf("字段映射失败: %v", err)
		return nil, false
	}

	if cacheEnabled {
		ttl := config.GetDuration(h.cfg.Assist.MappingCacheTTL, 30*time.Minute)
		if err := h.storage.Redis.CacheMappingSet(ctx, profile.ProfileID, hash, set, ttl); err != nil {
			h.logger.Printf("写入映射缓存失败: %v", err)
		}
	}
	return set, false
}

// loadProfile 读取并反序列化候选人档案
func (h *AssistHandler) loadProfile(ctx context.Context, c *app.RequestContext, profileID string) (*types.Profile, bool) {
	record, err := h.storage.MySQL.GetProfile(ctx, profileID)
	if err != nil {
		tracing.RecordError(oteltrace.SpanFromContext(ctx), err, tracing.ErrorTypeDB)
		h.logger.Printf("查询档案失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询档案失败"})
		return nil, false
	}
	if record == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "档案不存在"})
		return nil, false
	}
	profile, err := recordToProfile(record)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "档案数据损坏"})
		return nil, false
	}
	return profile, true
}

// loadJob 岗位是提示词的辅助上下文，取不到不阻断分析
func (h *AssistHandler) loadJob(ctx context.Context, jobID string) *types.Job {
	if jobID == "" {
		return nil
	}
	record, err := h.storage.MySQL.GetJob(ctx, jobID)
	if err != nil {
		h.logger.Printf("查询岗位失败: %v", err)
		return nil
	}
	if record == nil {
		return nil
	}
	job := recordToJob(record)
	return &job
}
