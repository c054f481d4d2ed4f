package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"apply-agent-go/internal/api/handler"
	"apply-agent-go/internal/config"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Profile *handler.ProfileHandler
	Job     *handler.JobHandler
	Session *handler.SessionHandler
	Assist  *handler.AssistHandler
}

// RegisterRoutes 注册 API 路由。
// auth_tokens配置非空时启用Bearer令牌认证，令牌映射到owner_id
func RegisterRoutes(h *server.Hertz, cfg *config.Config, hs *Handlers) {
	// 健康检查不走认证
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if len(cfg.AuthTokens) > 0 {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, token string) (bool, error) {
				owner, ok := cfg.AuthTokens[token]
				if !ok {
					return false, nil
				}
				ctx.Set("owner_id", owner)
				return true, nil
			}),
		))
	}

	// 候选人档案
	api.POST("/profiles", hs.Profile.HandleCreateProfile)
	api.GET("/profiles", hs.Profile.HandleListProfiles)
	api.GET("/profiles/:profile_id", hs.Profile.HandleGetProfile)
	api.PUT("/profiles/:profile_id", hs.Profile.HandleUpdateProfile)
	api.DELETE("/profiles/:profile_id", hs.Profile.HandleDeleteProfile)
	api.POST("/profiles/:profile_id/resume", hs.Profile.HandleUploadResume)
	api.GET("/profiles/:profile_id/resume-url", hs.Profile.HandleResumeDownloadURL)

	// 岗位目录
	api.POST("/jobs/ingest", hs.Job.HandleIngestJobs)
	api.GET("/jobs", hs.Job.HandleListJobs)
	api.GET("/jobs/:job_id", hs.Job.HandleGetJob)

	// 申请会话
	api.POST("/sessions", hs.Session.HandleCreateSession)
	api.GET("/sessions/:session_id", hs.Session.HandleGetSession)
	api.POST("/sessions/:session_id/start", hs.Session.HandleStartSession)
	api.GET("/sessions/:session_id/current-job", hs.Session.HandleCurrentJob)
	api.POST("/sessions/:session_id/form-filled", hs.Session.HandleMarkFormFilled)
	api.POST("/sessions/:session_id/confirm-submission", hs.Session.HandleConfirmSubmission)
	api.POST("/sessions/:session_id/skip", hs.Session.HandleSkipJob)
	api.POST("/sessions/:session_id/report-failure", hs.Session.HandleReportFailure)
	api.POST("/sessions/:session_id/cancel", hs.Session.HandleCancelSession)
	api.POST("/sessions/:session_id/recover", hs.Session.HandleRecoverSession)
	api.GET("/sessions/:session_id/check-submission", hs.Session.HandleCheckSubmission)
	api.GET("/sessions/:session_id/events", hs.Session.HandleListEvents)

	// 表单分析
	api.POST("/assist/analyze-form", hs.Assist.HandleAnalyzeForm)
}
