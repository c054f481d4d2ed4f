package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/logger"
	"apply-agent-go/internal/storage/models"
)

var mysqlTracer = otel.Tracer("apply-agent-go/storage/mysql")

type spanCtxKey struct{}

// gormTracingPlugin 给GORM的CRUD回调挂OpenTelemetry追踪点
type gormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

func (p *gormTracingPlugin) Name() string { return "GormOpenTelemetryPlugin" }

// Initialize 注册GORM回调以启用追踪
func (p *gormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	return nil
}

func (p *gormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, table),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", table),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, spanCtxKey{}, span)
	}
}

func (p *gormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// 查不到记录是业务常态，不算错误
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// MySQL 档案库、岗位目录与事件轨迹的关系存储
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 建立连接、配置连接池并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(&gormTracingPlugin{tracer: mysqlTracer, dbName: cfg.Database}); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("成功连接到MySQL并完成结构迁移")
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	silentDB := m.db.Session(&gorm.Session{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	return silentDB.AutoMigrate(
		&models.Profile{},
		&models.Job{},
		&models.ApplicationEvent{},
	)
}

// DB 返回GORM连接，供跨表事务使用
func (m *MySQL) DB() *gorm.DB { return m.db }

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// --- 档案库 ---

// SaveProfile 新建或整体覆盖档案
func (m *MySQL) SaveProfile(ctx context.Context, p *models.Profile) error {
	if p.ProfileID == "" {
		return fmt.Errorf("档案缺少profile_id")
	}
	return m.db.WithContext(ctx).Save(p).Error
}

// GetProfile 按ID取档案，不存在返回(nil, nil)
func (m *MySQL) GetProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	var p models.Profile
	err := m.db.WithContext(ctx).First(&p, "profile_id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询档案失败: %w", err)
	}
	return &p, nil
}

// ListProfilesByOwner 列出某owner的全部档案
func (m *MySQL) ListProfilesByOwner(ctx context.Context, ownerID string) ([]models.Profile, error) {
	var out []models.Profile
	if err := m.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询档案列表失败: %w", err)
	}
	return out, nil
}

// DeleteProfile 删除档案
func (m *MySQL) DeleteProfile(ctx context.Context, profileID string) error {
	return m.db.WithContext(ctx).Delete(&models.Profile{}, "profile_id = ?", profileID).Error
}

// --- 岗位目录 ---

// UpsertJobs 批量写入职位，主键冲突时覆盖可变字段
func (m *MySQL) UpsertJobs(ctx context.Context, jobs []models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "company", "location", "description",
			"application_url", "platform", "work_type", "job_type", "experience_level", "salary", "fetched_at",
		}),
	}).Create(&jobs).Error
}

// GetJob 按ID取职位，不存在返回(nil, nil)
func (m *MySQL) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var j models.Job
	err := m.db.WithContext(ctx).First(&j, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询职位失败: %w", err)
	}
	return &j, nil
}

// GetJobs 按ID批量取职位，保持入参顺序，缺失的ID对应nil不占位
func (m *MySQL) GetJobs(ctx context.Context, jobIDs []string) ([]models.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	var rows []models.Job
	if err := m.db.WithContext(ctx).Where("job_id IN ?", jobIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("批量查询职位失败: %w", err)
	}
	byID := make(map[string]models.Job, len(rows))
	for _, r := range rows {
		byID[r.JobID] = r
	}
	out := make([]models.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// ListJobs 分页列出职位，platform为空表示不过滤
func (m *MySQL) ListJobs(ctx context.Context, platform string, limit, offset int) ([]models.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := m.db.WithContext(ctx).Order("fetched_at DESC").Limit(limit).Offset(offset)
	if platform != "" {
		q = q.Where("platform = ?", platform)
	}
	var out []models.Job
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询职位列表失败: %w", err)
	}
	return out, nil
}

// --- 事件轨迹 ---

// InsertApplicationEvent 落一条会话事件
func (m *MySQL) InsertApplicationEvent(ctx context.Context, evt *models.ApplicationEvent) error {
	return m.db.WithContext(ctx).Create(evt).Error
}

// ListSessionEvents 按会话查事件轨迹
func (m *MySQL) ListSessionEvents(ctx context.Context, sessionID string) ([]models.ApplicationEvent, error) {
	var out []models.ApplicationEvent
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询会话事件失败: %w", err)
	}
	return out, nil
}
