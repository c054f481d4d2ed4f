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
	"github.com/gofrs/uuid/v5"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/storage"
	"apply-agent-go/internal/storage/models"
	"apply-agent-go/internal/types"
)

// ProfileHandler 候选人档案的增删改查与简历文件管理
type ProfileHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	logger  *log.Logger
}

// NewProfileHandler 创建档案处理器
func NewProfileHandler(cfg *config.Config, storage *storage.Storage) *ProfileHandler {
	return &ProfileHandler{
		cfg:     cfg,
		storage: storage,
		logger:  log.New(os.Stdout, "[ProfileHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleCreateProfile 新建档案
// POST /api/v1/profiles
func (h *ProfileHandler) HandleCreateProfile(ctx context.Context, c *app.RequestContext) {
	ownerID := ownerFromContext(c)

	var doc types.Profile
	if err := json.Unmarshal(c.Request.Body(), &doc); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "档案JSON解析失败: " + err.Error()})
		return
	}
	if !doc.ValidateEmail() {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "邮箱格式不合法"})
		return
	}
	doc.Normalize()

	if doc.ProfileID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成档案ID失败"})
			return
		}
		doc.ProfileID = id.String()
	}
	doc.OwnerID = ownerID

	record, err := profileToRecord(&doc)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	if err := h.storage.MySQL.SaveProfile(ctx, record); err != nil {
		h.logger.Printf("保存档案失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "保存档案失败"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{"profile_id": doc.ProfileID})
}

// HandleGetProfile 取单个档案
// GET /api/v1/profiles/:profile_id
func (h *ProfileHandler) HandleGetProfile(ctx context.Context, c *app.RequestContext) {
	record, ok := h.loadOwnedProfile(ctx, c)
	if !ok {
		return
	}

	doc, err := recordToProfile(record)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// HandleListProfiles 列出当前owner的档案
// GET /api/v1/profiles
func (h *ProfileHandler) HandleListProfiles(ctx context.Context, c *app.RequestContext) {
	ownerID := ownerFromContext(c)

	records, err := h.storage.MySQL.ListProfilesByOwner(ctx, ownerID)
	if err != nil {
		h.logger.Printf("查询档案列表失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询档案列表失败"})
		return
	}

	out := make([]utils.H, 0, len(records))
	for i := range records {
		doc, err := recordToProfile(&records[i])
		if err != nil {
			continue
		}
		out = append(out, utils.H{
			"profile_id": doc.ProfileID,
			"full_name":  doc.FullName(),
			"email":      doc.Email(),
			"has_resume": records[i].ResumeObjectKey != "",
			"updated_at": records[i].UpdatedAt,
		})
	}
	c.JSON(consts.StatusOK, utils.H{"profiles": out})
}

// HandleUpdateProfile 整体覆盖档案
// PUT /api/v1/profiles/:profile_id
func (h *ProfileHandler) HandleUpdateProfile(ctx context.Context, c *app.RequestContext) {
	record, ok := h.loadOwnedProfile(ctx, c)
	if !ok {
		return
	}

	var doc types.Profile
	if err := json.Unmarshal(c.Request.Body(), &doc); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "档案JSON解析失败: " + err.Error()})
		return
	}
	if !doc.ValidateEmail() {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "邮箱格式不合法"})
		return
	}
	doc.Normalize()
	doc.ProfileID = record.ProfileID
	doc.OwnerID = record.OwnerID
	doc.ResumeFileRef = record.ResumeObjectKey

	updated, err := profileToRecord(&doc)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	updated.ResumeObjectKey = record.ResumeObjectKey
	updated.CreatedAt = record.CreatedAt

	if err := h.storage.MySQL.SaveProfile(ctx, updated); err != nil {
		h.logger.Printf("更新档案失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "更新档案失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"profile_id": record.ProfileID})
}

// HandleDeleteProfile 删除档案及其简历文件
// DELETE /api/v1/profiles/:profile_id
func (h *ProfileHandler) HandleDeleteProfile(ctx context.Context, c *app.RequestContext) {
	record, ok := h.loadOwnedProfile(ctx, c)
	if !ok {
		return
	}

	if record.ResumeObjectKey != "" && h.storage.MinIO != nil {
		if err := h.storage.MinIO.DeleteResume(ctx, record.ResumeObjectKey); err != nil {
			h.logger.Printf("删除简历文件失败: %v", err)
		}
	}
	if err := h.storage.MySQL.DeleteProfile(ctx, record.ProfileID); err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "删除档案失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": record.ProfileID})
}

// HandleUploadResume 上传简历文件并挂到档案上
// POST /api/v1/profiles/:profile_id/resume
func (h *ProfileHandler) HandleUploadResume(ctx context.Context, c *app.RequestContext) {
	record, ok := h.loadOwnedProfile(ctx, c)
	if !ok {
		return
	}
	if h.storage.MinIO == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "对象存储不可用"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	objectKey, err := h.storage.MinIO.UploadResume(ctx, record.ProfileID, fileHeader.Filename, file, fileHeader.Size)
	if err != nil {
		h.logger.Printf("上传简历失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "上传简历失败"})
		return
	}

	record.ResumeObjectKey = objectKey
	if err := h.storage.MySQL.SaveProfile(ctx, record); err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "更新档案失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"resume_object_key": objectKey})
}

// HandleResumeDownloadURL 生成简历文件的临时下载地址
// GET /api/v1/profiles/:profile_id/resume-url
func (h *ProfileHandler) HandleResumeDownloadURL(ctx context.Context, c *app.RequestContext) {
	record, ok := h.loadOwnedProfile(ctx, c)
	if !ok {
		return
	}
	if record.ResumeObjectKey == "" {
		c.JSON(consts.StatusNotFound, utils.H{"error": "档案未上传简历"})
		return
	}
	if h.storage.MinIO == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "对象存储不可用"})
		return
	}

	expiry := config.GetDuration(h.cfg.Assist.ResumeURLExpiry, 15*time.Minute)
	url, err := h.storage.MinIO.PresignedResumeURL(ctx, record.ResumeObjectKey, expiry)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成下载地址失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"url": url, "expires_in": expiry.String()})
}

// loadOwnedProfile 取路径参数里的档案并校验归属
func (h *ProfileHandler) loadOwnedProfile(ctx context.Context, c *app.RequestContext) (*models.Profile, bool) {
	profileID := c.Param("profile_id")
	if profileID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "profile_id 不能为空"})
		return nil, false
	}

	record, err := h.storage.MySQL.GetProfile(ctx, profileID)
	if err != nil {
		h.logger.Printf("查询档案失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询档案失败"})
		return nil, false
	}
	if record == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "档案不存在"})
		return nil, false
	}
	if owner := ownerFromContext(c); owner != "" && record.OwnerID != owner {
		c.JSON(consts.StatusForbidden, utils.H{"error": "无权访问该档案"})
		return nil, false
	}
	return record, true
}

// ownerFromContext 从认证中间件取owner身份
func ownerFromContext(c *app.RequestContext) string {
	if v, ok := c.Get("owner_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// profileToRecord 档案文档转库记录
func profileToRecord(doc *types.Profile) (*models.Profile, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &models.Profile{
		ProfileID:       doc.ProfileID,
		OwnerID:         doc.OwnerID,
		Document:        data,
		ResumeObjectKey: doc.ResumeFileRef,
	}, nil
}

// recordToProfile 库记录转档案文档
func recordToProfile(record *models.Profile) (*types.Profile, error) {
	var doc types.Profile
	if len(record.Document) > 0 {
		if err := json.Unmarshal(record.Document, &doc); err != nil {
			return nil, err
		}
	}
	doc.ProfileID = record.ProfileID
	doc.OwnerID = record.OwnerID
	doc.ResumeFileRef = record.ResumeObjectKey
	return &doc, nil
}
