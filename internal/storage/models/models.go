package models

import (
	"time"

	"gorm.io/datatypes"
)

// Profile 候选人档案。档案本体是半结构化JSON文档，
// 列只抽出检索和鉴权需要的字段
type Profile struct {
	ProfileID string         `gorm:"column:profile_id;primaryKey;type:varchar(64)" json:"profile_id"`
	OwnerID   string         `gorm:"column:owner_id;type:varchar(64);index;not null" json:"owner_id"`
	Document  datatypes.JSON `gorm:"column:document;type:json" json:"document"`
	// ResumeObjectKey MinIO中简历文件的对象键，空表示未上传
	ResumeObjectKey string    `gorm:"column:resume_object_key;type:varchar(255)" json:"resume_object_key"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}

// Job 岗位目录中的一条职位
type Job struct {
	JobID           string    `gorm:"column:job_id;primaryKey;type:varchar(64)" json:"job_id"`
	Title           string    `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Company         string    `gorm:"column:company;type:varchar(255);index" json:"company"`
	Location        string    `gorm:"column:location;type:varchar(255)" json:"location"`
	Description     string    `gorm:"column:description;type:text" json:"description"`
	ApplicationURL  string    `gorm:"column:application_url;type:varchar(1024)" json:"application_url"`
	Platform        string    `gorm:"column:platform;type:varchar(32);index" json:"platform"`
	WorkType        string    `gorm:"column:work_type;type:varchar(32)" json:"work_type"`
	JobType         string    `gorm:"column:job_type;type:varchar(32)" json:"job_type"`
	ExperienceLevel string    `gorm:"column:experience_level;type:varchar(32)" json:"experience_level"`
	Salary          string    `gorm:"column:salary;type:varchar(128)" json:"salary"`
	FetchedAt       time.Time `gorm:"column:fetched_at" json:"fetched_at"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Job) TableName() string {
	return "jobs"
}

// ApplicationEvent 申请会话事件的落库副本，供审计查询。
// 实时通知走RabbitMQ，这里是持久轨迹
type ApplicationEvent struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"column:session_id;type:varchar(64);index" json:"session_id"`
	ProfileID string    `gorm:"column:profile_id;type:varchar(64);index" json:"profile_id"`
	JobID     string    `gorm:"column:job_id;type:varchar(64)" json:"job_id"`
	Kind      string    `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Detail    string    `gorm:"column:detail;type:varchar(512)" json:"detail"`
	At        time.Time `gorm:"column:at;index" json:"at"`
}

// TableName 指定表名
func (ApplicationEvent) TableName() string {
	return "application_events"
}
