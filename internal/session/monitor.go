package session

import (
	"context"
	"fmt"
	"time"
)

// SubmissionStatus check_submission的回答：当前是否卡在人工提交闸口
type SubmissionStatus struct {
	SessionState     SessionState `json:"session_state"`
	JobIndex         int          `json:"job_index"`
	JobID            string       `json:"job_id,omitempty"`
	JobState         JobState     `json:"job_state,omitempty"`
	Submitted        bool         `json:"submitted"`             // 最近一个走完的职位是否以提交告终
	CanProceedToNext bool         `json:"can_proceed_to_next"`   // 闸口是否放行，会话可以推进
	Waiting          bool         `json:"waiting"`               // 是否在等用户提交
	WaitingFor       string       `json:"waiting_for,omitempty"` // 已等待时长
	Reminder         bool         `json:"reminder"`              // 等待超过提醒阈值
}

// Monitor 提交监视器：回答"现在轮到用户做什么"。
// 会话在用户人工提交前整体阻塞，监视器不会替用户提交任何东西
type Monitor struct {
	manager     *Manager
	remindAfter time.Duration
}

// NewMonitor remindAfter<=0时取10分钟
func NewMonitor(m *Manager, remindAfter time.Duration) *Monitor {
	if remindAfter <= 0 {
		remindAfter = 10 * time.Minute
	}
	return &Monitor{manager: m, remindAfter: remindAfter}
}

// CheckSubmission 查询当前职位的提交等待状态。
// 等待提交本身不是错误，调用方据两个布尔位决定自己的UI：
// submitted看最近一个走完的职位是否真被提交，can_proceed_to_next看闸口是否放行
func (mo *Monitor) CheckSubmission(ctx context.Context, sessionID string) (*SubmissionStatus, error) {
	sess, err := mo.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st := &SubmissionStatus{SessionState: sess.State, JobIndex: sess.CurrentIndex}

	// 最近一个进入终态的职位决定submitted位
	for i := min(sess.CurrentIndex, len(sess.Jobs)-1); i >= 0; i-- {
		if sess.Jobs[i].State.Terminal() {
			st.Submitted = sess.Jobs[i].State == JobSubmitted
			break
		}
	}

	cur := sess.CurrentJob()
	if cur == nil {
		return st, nil
	}

	st.JobID = cur.Job.JobID
	st.JobState = cur.State
	if cur.State == JobWaitingUser {
		st.Waiting = true
		waited := mo.manager.now().Sub(cur.UpdatedAt)
		st.WaitingFor = waited.Truncate(time.Second).String()
		st.Reminder = waited >= mo.remindAfter
	} else {
		st.CanProceedToNext = !sess.State.Terminal()
	}
	return st, nil
}

// MarkFormFilled 扩展端确认填表脚本已执行：职位进入等待人工提交。
// 与AttachAnalysis的区别是这里不携带服务端分析产物
func (m *Manager) MarkFormFilled(ctx context.Context, id string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		switch cur.State {
		case JobFormFilling:
			cur.State = JobWaitingUser
			cur.UpdatedAt = m.now()
			s.State = SessionWaiting
			return nil
		case JobWaitingUser:
			return nil // 幂等
		default:
			return fmt.Errorf("%w: 职位状态为 %s", ErrInvalidTransition, cur.State)
		}
	})
}
