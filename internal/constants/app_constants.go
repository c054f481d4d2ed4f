package constants

import "time"

const (
	// Redis键前缀
	JobDescriptionCachePrefix = "jd_text:"      // 岗位描述缓存
	MappingCachePrefix        = "form_mapping:" // analyze-form结果缓存
	AnalyzeLockPrefix         = "analyze_lock:" // analyze-form去重锁
	JobDescriptionCacheTTL    = 24 * time.Hour

	// 每个JobTask允许的最大重试次数（提交失败后重置为pending的次数上限）
	MaxJobRetries = 2
)
