package handler

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/storage"
	"apply-agent-go/internal/storage/models"
	"apply-agent-go/internal/types"
)

// JobHandler 岗位目录的读取与导入。
// 目录由抓取端维护，这里对核心流程暴露只读视图加一个批量导入口
type JobHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	logger  *log.Logger
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(cfg *config.Config, storage *storage.Storage) *JobHandler {
	return &JobHandler{
		cfg:     cfg,
		storage: storage,
		logger:  log.New(os.Stdout, "[JobHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleIngestJobs 批量导入岗位，已存在的按job_id覆盖
// POST /api/v1/jobs/ingest
func (h *JobHandler) HandleIngestJobs(ctx context.Context, c *app.RequestContext) {
	var jobs []types.Job
	if err := json.Unmarshal(c.Request.Body(), &jobs); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if len(jobs) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "岗位列表不能为空"})
		return
	}

	records := make([]models.Job, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		if j.JobID == "" || j.ApplicationURL == "" {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 和 application_url 不能为空"})
			return
		}
		j.Platform = types.ParsePlatform(string(j.Platform))
		if j.FetchedAt.IsZero() {
			j.FetchedAt = time.Now()
		}
		records = append(records, jobToRecord(j))
	}

	if err := h.storage.MySQL.UpsertJobs(ctx, records); err != nil {
		h.logger.Printf("导入岗位失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "导入岗位失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"ingested": len(records)})
}

// HandleGetJob 取单个岗位，描述走Redis缓存
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	job, err := h.getJobCached(ctx, jobID)
	if err != nil {
		h.logger.Printf("查询岗位失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位失败"})
		return
	}
	if job == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"job": job, "apply_url": job.ApplyURL()})
}

// HandleListJobs 分页列出岗位
// GET /api/v1/jobs?platform=lever&limit=50&offset=0
func (h *JobHandler) HandleListJobs(ctx context.Context, c *app.RequestContext) {
	platform := c.Query("platform")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.storage.MySQL.ListJobs(ctx, platform, limit, offset)
	if err != nil {
		h.logger.Printf("查询岗位列表失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位列表失败"})
		return
	}

	jobs := make([]types.Job, 0, len(records))
	for i := range records {
		jobs = append(jobs, recordToJob(&records[i]))
	}
	c.JSON(consts.StatusOK, utils.H{"jobs": jobs, "count": len(jobs)})
}

// getJobCached 岗位描述较大，命中Redis时省一次MySQL读
func (h *JobHandler) getJobCached(ctx context.Context, jobID string) (*types.Job, error) {
	if h.storage.Redis != nil {
		if cached, err := h.storage.Redis.GetJobDescription(ctx, jobID); err == nil && cached != "" {
			var job types.Job
			if err := json.Unmarshal([]byte(cached), &job); err == nil {
				return &job, nil
			}
		}
	}

	record, err := h.storage.MySQL.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	job := recordToJob(record)

	if h.storage.Redis != nil {
		if data, err := json.Marshal(&job); err == nil {
			if err := h.storage.Redis.CacheJobDescription(ctx, jobID, string(data)); err != nil {
				h.logger.Printf("写入岗位缓存失败: %v", err)
			}
		}
	}
	return &job, nil
}

// jobToRecord 岗位转库记录
func jobToRecord(j *types.Job) models.Job {
	return models.Job{
		JobID:           j.JobID,
		Title:           j.Title,
		Company:         j.Company,
		Location:        j.Location,
		Description:     j.Description,
		ApplicationURL:  j.ApplicationURL,
		Platform:        string(j.Platform),
		WorkType:        j.WorkType,
		JobType:         j.JobType,
		ExperienceLevel: j.ExperienceLevel,
		Salary:          j.Salary,
		FetchedAt:       j.FetchedAt,
	}
}

// recordToJob 库记录转岗位
func recordToJob(r *models.Job) types.Job {
	return types.Job{
		JobID:           r.JobID,
		Title:           r.Title,
		Company:         r.Company,
		Location:        r.Location,
		Description:     r.Description,
		ApplicationURL:  r.ApplicationURL,
		Platform:        types.ATSPlatform(r.Platform),
		WorkType:        r.WorkType,
		JobType:         r.JobType,
		ExperienceLevel: r.ExperienceLevel,
		Salary:          r.Salary,
		FetchedAt:       r.FetchedAt,
	}
}
