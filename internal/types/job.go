package types

import (
	"strings"
	"time"
)

// ATSPlatform 职位所属的招聘系统平台
type ATSPlatform string

const (
	PlatformLever           ATSPlatform = "lever"
	PlatformGreenhouse      ATSPlatform = "greenhouse"
	PlatformWorkday         ATSPlatform = "workday"
	PlatformAshby           ATSPlatform = "ashby"
	PlatformJobvite         ATSPlatform = "jobvite"
	PlatformICIMS           ATSPlatform = "icims"
	PlatformSmartRecruiters ATSPlatform = "smartrecruiters"
	PlatformUnknown         ATSPlatform = "unknown"
)

// ParsePlatform 将平台标签解析为枚举值，未知标签归为unknown
func ParsePlatform(tag string) ATSPlatform {
	switch ATSPlatform(strings.ToLower(strings.TrimSpace(tag))) {
	case PlatformLever, PlatformGreenhouse, PlatformWorkday, PlatformAshby,
		PlatformJobvite, PlatformICIMS, PlatformSmartRecruiters:
		return ATSPlatform(strings.ToLower(strings.TrimSpace(tag)))
	default:
		return PlatformUnknown
	}
}

// Job 岗位记录。由抓取端写入，对核心流程只读；URL是天然主键
type Job struct {
	JobID           string      `json:"job_id"`
	Title           string      `json:"title"`
	Company         string      `json:"company"`
	Location        string      `json:"location"`
	Description     string      `json:"description"`
	ApplicationURL  string      `json:"application_url"`
	Platform        ATSPlatform `json:"platform"`
	WorkType        string      `json:"work_type"`        // remote / hybrid / onsite
	JobType         string      `json:"job_type"`         // full_time / part_time / contract
	ExperienceLevel string      `json:"experience_level"` // entry / mid / senior
	Salary          string      `json:"salary"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// CanonicalApplyURL 返回交给浏览器端使用的申请地址。
// Lever的职位页和申请页是两个URL，需要补上/apply后缀；重复调用结果不变。
func CanonicalApplyURL(rawURL string, platform ATSPlatform) string {
	if platform != PlatformLever {
		return rawURL
	}
	url := strings.TrimRight(rawURL, "/")
	if url == "" {
		return rawURL
	}
	if strings.HasSuffix(url, "/apply") {
		return url
	}
	return url + "/apply"
}

// ApplyURL 本岗位经平台改写后的申请地址
func (j *Job) ApplyURL() string {
	return CanonicalApplyURL(j.ApplicationURL, j.Platform)
}
