package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/session"
	"apply-agent-go/internal/storage"
	"apply-agent-go/internal/types"
)

// SessionHandler 申请会话编排的HTTP入口。
// 提交动作始终由用户在浏览器里完成，这里只负责状态流转
type SessionHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	manager *session.Manager
	monitor *session.Monitor
	logger  *log.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(cfg *config.Config, storage *storage.Storage, manager *session.Manager, monitor *session.Monitor) *SessionHandler {
	return &SessionHandler{
		cfg:     cfg,
		storage: storage,
		manager: manager,
		monitor: monitor,
		logger:  log.New(os.Stdout, "[SessionHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// CreateSessionRequest 创建会话的请求体。
// jobs和job_ids二选一：job_ids从岗位目录取，jobs直接内联
type CreateSessionRequest struct {
	ProfileID string      `json:"profile_id"`
	JobIDs    []string    `json:"job_ids,omitempty"`
	Jobs      []types.Job `json:"jobs,omitempty"`
}

// HandleCreateSession 创建一个多职位申请会话
// POST /api/v1/sessions
func (h *SessionHandler) HandleCreateSession(ctx context.Context, c *app.RequestContext) {
	var req CreateSessionRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if req.ProfileID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "profile_id 不能为空"})
		return
	}

	record, err := h.storage.MySQL.GetProfile(ctx, req.ProfileID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询档案失败"})
		return
	}
	if record == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "档案不存在"})
		return
	}
	owner := ownerFromContext(c)
	if owner != "" && record.OwnerID != owner {
		c.JSON(consts.StatusForbidden, utils.H{"error": "无权使用该档案"})
		return
	}

	jobs := req.Jobs
	if len(jobs) == 0 && len(req.JobIDs) > 0 {
		records, err := h.storage.MySQL.GetJobs(ctx, req.JobIDs)
		if err != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位失败"})
			return
		}
		if len(records) != len(req.JobIDs) {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "部分岗位不存在"})
			return
		}
		for i := range records {
			jobs = append(jobs, recordToJob(&records[i]))
		}
	}
	if len(jobs) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "会话至少需要一个岗位"})
		return
	}

	sess, err := h.manager.CreateSession(ctx, owner, req.ProfileID, jobs)
	if err != nil {
		h.logger.Printf("创建会话失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "创建会话失败"})
		return
	}
	c.JSON(consts.StatusOK, sessionView(sess))
}

// HandleStartSession 启动会话，激活第一个职位
// POST /api/v1/sessions/:session_id/start
func (h *SessionHandler) HandleStartSession(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.StartSession(ctx, id)
	})
}

// HandleGetSession 查询会话快照与进度
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) HandleGetSession(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.Get(ctx, id)
	})
}

// HandleCurrentJob 取当前活动职位及其分析产物
// GET /api/v1/sessions/:session_id/current-job
func (h *SessionHandler) HandleCurrentJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("session_id")
	cur, err := h.manager.CurrentJob(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	epoch, err := h.manager.AnalyzeEpoch(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"job": cur, "analyze_epoch": epoch})
}

// HandleMarkFormFilled 扩展端回报表单已填完，职位进入人工提交等待
// POST /api/v1/sessions/:session_id/form-filled
func (h *SessionHandler) HandleMarkFormFilled(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.MarkFormFilled(ctx, id)
	})
}

// HandleConfirmSubmission 用户确认已手动提交当前职位，会话推进到下一个
// POST /api/v1/sessions/:session_id/confirm-submission
func (h *SessionHandler) HandleConfirmSubmission(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.ConfirmSubmission(ctx, id)
	})
}

// HandleSkipJob 跳过当前职位
// POST /api/v1/sessions/:session_id/skip
func (h *SessionHandler) HandleSkipJob(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.Skip(ctx, id)
	})
}

// FailureReport 扩展端上报的职位处理失败
type FailureReport struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// HandleReportFailure 上报当前职位失败；可重试原因在次数预算内原地重试
// POST /api/v1/sessions/:session_id/report-failure
func (h *SessionHandler) HandleReportFailure(ctx context.Context, c *app.RequestContext) {
	var report FailureReport
	if err := json.Unmarshal(c.Request.Body(), &report); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if report.Reason == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "reason 不能为空"})
		return
	}
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.ReportFailure(ctx, id, session.FailReason(report.Reason), report.Detail)
	})
}

// HandleCancelSession 取消会话，丢弃在途分析结果
// POST /api/v1/sessions/:session_id/cancel
func (h *SessionHandler) HandleCancelSession(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.Cancel(ctx, id)
	})
}

// HandleRecoverSession 服务重启后从快照恢复会话
// POST /api/v1/sessions/:session_id/recover
func (h *SessionHandler) HandleRecoverSession(ctx context.Context, c *app.RequestContext) {
	h.respond(c, func(id string) (*session.Session, error) {
		return h.manager.Recover(ctx, id)
	})
}

// HandleCheckSubmission 轮询当前职位是否在等待用户手动提交
// GET /api/v1/sessions/:session_id/check-submission
func (h *SessionHandler) HandleCheckSubmission(ctx context.Context, c *app.RequestContext) {
	st, err := h.monitor.CheckSubmission(ctx, c.Param("session_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, st)
}

// HandleListEvents 查会话的申请事件流水（按时间升序）
// GET /api/v1/sessions/:session_id/events
func (h *SessionHandler) HandleListEvents(ctx context.Context, c *app.RequestContext) {
	id := c.Param("session_id")
	if id == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "session_id 不能为空"})
		return
	}
	events, err := h.storage.MySQL.ListSessionEvents(ctx, id)
	if err != nil {
		h.logger.Printf("查询事件流水失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询事件流水失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"events": events})
}

// respond 通用的"操作会话→返回快照"流程
func (h *SessionHandler) respond(c *app.RequestContext, op func(id string) (*session.Session, error)) {
	id := c.Param("session_id")
	if id == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "session_id 不能为空"})
		return
	}
	sess, err := op(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, sessionView(sess))
}

// writeError 会话错误到HTTP状态码的映射
func (h *SessionHandler) writeError(c *app.RequestContext, err error) {
	writeSessionError(c, err, h.logger)
}

// writeSessionError 把会话层错误翻译成HTTP状态码
func writeSessionError(c *app.RequestContext, err error, logger *log.Logger) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionTerminal),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNoCurrentJob):
		c.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	default:
		logger.Printf("会话操作失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "会话操作失败"})
	}
}

// sessionView 会话快照的对外形态，带进度摘要
func sessionView(s *session.Session) utils.H {
	submitted, failed, skipped, remaining := s.Progress()
	jobs := make([]utils.H, 0, len(s.Jobs))
	for i := range s.Jobs {
		t := &s.Jobs[i]
		view := utils.H{
			"index":    t.Index,
			"job_id":   t.Job.JobID,
			"title":    t.Job.Title,
			"company":  t.Job.Company,
			"url":      t.Job.ApplicationURL,
			"state":    t.State,
			"attempts": t.Attempts,
		}
		if t.FailReason != "" {
			view["fail_reason"] = t.FailReason
		}
		jobs = append(jobs, view)
	}
	return utils.H{
		"session_id":    s.ID,
		"owner_id":      s.OwnerID,
		"profile_id":    s.ProfileID,
		"state":         s.State,
		"current_index": s.CurrentIndex,
		"progress": utils.H{
			"submitted": submitted,
			"failed":    failed,
			"skipped":   skipped,
			"remaining": remaining,
		},
		"done":       submitted + failed + skipped,
		"total":      len(s.Jobs),
		"jobs":       jobs,
		"created_at": s.CreatedAt.Format(time.RFC3339),
		"updated_at": s.UpdatedAt.Format(time.RFC3339),
	}
}
