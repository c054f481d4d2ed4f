package session

import (
	"errors"
	"time"

	"apply-agent-go/internal/types"
)

// SessionState 申请会话状态
type SessionState string

const (
	SessionPending    SessionState = "pending"                // 已创建未启动
	SessionInProgress SessionState = "in_progress"            // 正在推进职位队列
	SessionWaiting    SessionState = "waiting_for_submission" // 等待用户人工提交当前职位
	SessionCompleted  SessionState = "completed"              // 队列走完，终态
	SessionCancelled  SessionState = "cancelled"              // 用户取消，终态
)

// Terminal 会话终态不可再变
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// JobState 会话内单个职位的状态
type JobState string

const (
	JobPending     JobState = "pending"          // 排队中
	JobFormFilling JobState = "form_filling"     // 正在分析表单并生成脚本
	JobWaitingUser JobState = "waiting_for_user" // 脚本已下发，等用户核对并提交
	JobSubmitted   JobState = "submitted"        // 用户确认已提交，终态
	JobFailed      JobState = "failed"           // 重试耗尽或不可恢复失败，终态
	JobSkipped     JobState = "skipped"          // 用户跳过，终态
)

// Terminal 职位终态不可再变
func (s JobState) Terminal() bool {
	return s == JobSubmitted || s == JobFailed || s == JobSkipped
}

// Active 职位是否占用会话（同一时刻至多一个）
func (s JobState) Active() bool {
	return s == JobFormFilling || s == JobWaitingUser
}

// FailReason 职位失败原因。可恢复原因允许有限重试
type FailReason string

const (
	ReasonTimeout       FailReason = "timeout"
	ReasonNetworkError  FailReason = "network error"
	ReasonPageNotFound  FailReason = "page not found"
	ReasonFormNotFound  FailReason = "form not detected"
	ReasonFieldsMissing FailReason = "fields not found"
	ReasonUserSkipped   FailReason = "user skipped"
	ReasonInternal      FailReason = "internal error"
)

// Retryable 判断失败原因是否可恢复
func (r FailReason) Retryable() bool {
	switch r {
	case ReasonTimeout, ReasonNetworkError, ReasonPageNotFound, ReasonFormNotFound, ReasonFieldsMissing:
		return true
	default:
		return false
	}
}

// JobTask 会话内一个职位的推进记录
type JobTask struct {
	Index      int        `json:"index"`
	Job        types.Job  `json:"job"`
	State      JobState   `json:"state"`
	Attempts   int        `json:"attempts"` // 已消耗的重试次数
	FailReason FailReason `json:"fail_reason,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Mapping 与 Instrument 只在form_filling/waiting_for_user期间有值，
	// 职位进入终态后保留最后一次结果供查询
	Mapping    *types.MappingSet `json:"mapping,omitempty"`
	Instrument *types.Instrument `json:"instrument,omitempty"`
}

// Session 一次多职位申请会话
type Session struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id,omitempty"`
	ProfileID    string       `json:"profile_id"`
	State        SessionState `json:"state"`
	Jobs         []JobTask    `json:"jobs"`
	CurrentIndex int          `json:"current_index"` // 只增不减
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// analyzeEpoch 表单分析代次。取消、跳过、失败重试和恢复都会换代，
	// 携带旧代次的迟到分析结果一律丢弃
	analyzeEpoch uint64
}

// CurrentJob 返回当前职位，队列已走完返回nil
func (s *Session) CurrentJob() *JobTask {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Jobs) {
		return nil
	}
	return &s.Jobs[s.CurrentIndex]
}

// Progress 统计各终态职位数
func (s *Session) Progress() (submitted, failed, skipped, remaining int) {
	for i := range s.Jobs {
		switch s.Jobs[i].State {
		case JobSubmitted:
			submitted++
		case JobFailed:
			failed++
		case JobSkipped:
			skipped++
		default:
			remaining++
		}
	}
	return
}

var (
	// ErrSessionNotFound 会话不存在或已被回收
	ErrSessionNotFound = errors.New("会话不存在")
	// ErrSessionTerminal 会话已进入终态
	ErrSessionTerminal = errors.New("会话已结束")
	// ErrInvalidTransition 当前状态下不允许该操作
	ErrInvalidTransition = errors.New("非法状态迁移")
	// ErrNoCurrentJob 队列已走完
	ErrNoCurrentJob = errors.New("没有进行中的职位")
)
