package session // 多职位申请会话的编排：状态推进、失败重试、人工提交闸口与回收

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"apply-agent-go/internal/constants"
	"apply-agent-go/internal/logger"
	"apply-agent-go/internal/types"
)

// EventPublisher 会话事件出口（RabbitMQ实现在storage包）。nil时事件被丢弃
type EventPublisher interface {
	PublishApplicationEvent(ctx context.Context, evt ApplicationEvent) error
}

// SnapshotStore 会话快照持久化（Redis实现在storage包），进程重启后靠它恢复
type SnapshotStore interface {
	SaveSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// ApplicationEvent 对外广播的会话事件
type ApplicationEvent struct {
	SessionID string    `json:"session_id"`
	ProfileID string    `json:"profile_id"`
	JobID     string    `json:"job_id,omitempty"`
	Kind      string    `json:"kind"` // session_started / job_ready / job_submitted / job_failed / job_skipped / session_completed / session_cancelled
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// managedSession 会话本体加独立互斥锁，避免一把大锁串住所有会话
type managedSession struct {
	mu   sync.Mutex
	sess *Session
}

// Manager 会话编排器。会话常驻内存，变更后尽力写快照
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession

	events EventPublisher
	store  SnapshotStore
	ttl    time.Duration
	now    func() time.Time

	gcStop chan struct{}
	gcOnce sync.Once
}

// NewManager ttl<=0时取24小时
func NewManager(events EventPublisher, store SnapshotStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		sessions: make(map[string]*managedSession),
		events:   events,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		gcStop:   make(chan struct{}),
	}
}

// CreateSession 建立一次多职位申请会话。申请URL在这里统一规范化
func (m *Manager) CreateSession(ctx context.Context, ownerID, profileID string, jobs []types.Job) (*Session, error) {
	if profileID == "" {
		return nil, fmt.Errorf("缺少档案ID")
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("职位列表为空")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("生成会话ID失败: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:        id.String(),
		OwnerID:   ownerID,
		ProfileID: profileID,
		State:     SessionPending,
		Jobs:      make([]JobTask, len(jobs)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, j := range jobs {
		j.ApplicationURL = types.CanonicalApplyURL(j.ApplicationURL, j.Platform)
		sess.Jobs[i] = JobTask{Index: i, Job: j, State: JobPending, UpdatedAt: now}
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &managedSession{sess: sess}
	m.mu.Unlock()

	m.persist(ctx, sess)
	logger.Ctx(ctx).Info().Str("session_id", sess.ID).Int("job_count", len(jobs)).Msg("[会话] 创建申请会话")
	return snapshotOf(sess), nil
}

// StartSession 启动会话：首个职位进入表单填写
func (m *Manager) StartSession(ctx context.Context, id string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State != SessionPending {
			return fmt.Errorf("%w: 会话状态为 %s", ErrInvalidTransition, s.State)
		}
		s.State = SessionInProgress
		m.activateCurrentLocked(ctx, s)
		m.publish(ctx, s, "", "session_started", "")
		return nil
	})
}

// Get 取会话快照
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.readSession(id, func(s *Session) error { return nil })
}

// CurrentJob 取当前职位快照
func (m *Manager) CurrentJob(ctx context.Context, id string) (*JobTask, error) {
	var task *JobTask
	_, err := m.readSession(id, func(s *Session) error {
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		cp := *cur
		task = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// AnalyzeEpoch 返回当前职位的分析代次。表单分析完成回写时带上取到的代次，
// 取消会话会使代次失效，迟到的LLM结果因此被丢弃
func (m *Manager) AnalyzeEpoch(ctx context.Context, id string) (uint64, error) {
	var epoch uint64
	_, err := m.readSession(id, func(s *Session) error {
		if s.CurrentJob() == nil {
			return ErrNoCurrentJob
		}
		epoch = s.analyzeEpoch
		return nil
	})
	return epoch, err
}

// BeginAnalysis 表单分析开工：排队中的当前职位在这里进入form_filling，
// 返回本轮分析应携带的代次。失败重试和恢复把职位重置回pending后，
// 下一次分析经由这里重新激活
func (m *Manager) BeginAnalysis(ctx context.Context, id string) (uint64, error) {
	var epoch uint64
	_, err := m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		if s.State == SessionPending {
			return fmt.Errorf("%w: 会话尚未启动", ErrInvalidTransition)
		}
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		switch cur.State {
		case JobPending:
			s.State = SessionInProgress
			m.activateCurrentLocked(ctx, s)
		case JobFormFilling:
		default:
			return fmt.Errorf("%w: 职位状态为 %s", ErrInvalidTransition, cur.State)
		}
		epoch = s.analyzeEpoch
		return nil
	})
	return epoch, err
}

// AttachAnalysis 表单分析流水线完成后回写映射与脚本：
// 职位 form_filling -> waiting_for_user，会话进入等待人工提交。
// epoch不匹配说明会话在分析期间被取消或重置，结果直接丢弃
func (m *Manager) AttachAnalysis(ctx context.Context, id string, epoch uint64, mapping *types.MappingSet, inst *types.Instrument) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		if s.State.Terminal() || s.analyzeEpoch != epoch {
			logger.Ctx(ctx).Info().Str("session_id", s.ID).Int("job_index", cur.Index).
				Msg("[会话] 丢弃过期的表单分析结果")
			return nil
		}
		if cur.State != JobFormFilling {
			return fmt.Errorf("%w: 职位状态为 %s", ErrInvalidTransition, cur.State)
		}
		cur.Mapping = mapping
		cur.Instrument = inst
		cur.State = JobWaitingUser
		cur.UpdatedAt = m.now()
		s.State = SessionWaiting
		m.publish(ctx, s, cur.Job.JobID, "job_ready", "")
		return nil
	})
}

// ConfirmSubmission 用户确认已人工提交当前职位，队列推进
func (m *Manager) ConfirmSubmission(ctx context.Context, id string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		if cur.State != JobWaitingUser {
			return fmt.Errorf("%w: 只有等待提交的职位可以确认，当前 %s", ErrInvalidTransition, cur.State)
		}
		cur.State = JobSubmitted
		cur.UpdatedAt = m.now()
		m.publish(ctx, s, cur.Job.JobID, "job_submitted", "")
		m.advanceLocked(ctx, s)
		return nil
	})
}

// Skip 跳过当前职位。等待提交或填写中的职位都可以跳
func (m *Manager) Skip(ctx context.Context, id string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		if cur.State.Terminal() {
			return fmt.Errorf("%w: 职位已是终态 %s", ErrInvalidTransition, cur.State)
		}
		cur.State = JobSkipped
		cur.FailReason = ReasonUserSkipped
		cur.UpdatedAt = m.now()
		s.analyzeEpoch++ // 填写中被跳过时丢弃在途分析结果
		m.publish(ctx, s, cur.Job.JobID, "job_skipped", "")
		m.advanceLocked(ctx, s)
		return nil
	})
}

// ReportFailure 上报当前职位处理失败。可恢复原因在重试额度内重新排队重试，
// 否则职位判失败并推进队列
func (m *Manager) ReportFailure(ctx context.Context, id string, reason FailReason, detail string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		cur := s.CurrentJob()
		if cur == nil {
			return ErrNoCurrentJob
		}
		if cur.State.Terminal() {
			return fmt.Errorf("%w: 职位已是终态 %s", ErrInvalidTransition, cur.State)
		}

		cur.FailReason = reason
		cur.LastError = detail
		cur.UpdatedAt = m.now()
		s.analyzeEpoch++

		// 额度内的可恢复失败重置回排队，清掉本轮的分析产物和错误详情，
		// 重新走一遍完整的表单分析
		if reason.Retryable() && cur.Attempts < constants.MaxJobRetries {
			cur.Attempts++
			cur.State = JobPending
			cur.LastError = ""
			cur.Mapping = nil
			cur.Instrument = nil
			s.State = SessionInProgress
			logger.Ctx(ctx).Warn().Str("session_id", s.ID).Int("job_index", cur.Index).
				Str("reason", string(reason)).Int("attempt", cur.Attempts).Msg("[会话] 职位处理失败，重试")
			return nil
		}

		cur.State = JobFailed
		m.publish(ctx, s, cur.Job.JobID, "job_failed", string(reason))
		m.advanceLocked(ctx, s)
		return nil
	})
}

// Cancel 取消整个会话。在途的表单分析结果经代次校验被丢弃
func (m *Manager) Cancel(ctx context.Context, id string) (*Session, error) {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: 会话状态为 %s", ErrSessionTerminal, s.State)
		}
		s.analyzeEpoch++
		s.State = SessionCancelled
		m.publish(ctx, s, "", "session_cancelled", "")
		return nil
	})
}

// Recover 恢复一个被取消或被中断的会话：内存里没有就从快照库读回，
// 被取消的会话回到in_progress继续推进，中断在填写中的职位重新排队分析。
// 已完成的会话没有可恢复的内容，原样返回
func (m *Manager) Recover(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	_, inMemory := m.sessions[id]
	m.mu.RUnlock()

	if !inMemory {
		if m.store == nil {
			return nil, ErrSessionNotFound
		}
		loaded, err := m.store.LoadSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("读取会话快照失败: %w", err)
		}
		if loaded == nil {
			return nil, ErrSessionNotFound
		}
		m.mu.Lock()
		if _, ok := m.sessions[id]; !ok {
			m.sessions[id] = &managedSession{sess: loaded}
		}
		m.mu.Unlock()
	}

	return m.withSession(ctx, id, func(s *Session) error {
		if s.State == SessionCompleted {
			return nil
		}
		cancelled := s.State == SessionCancelled
		cur := s.CurrentJob()
		if cur == nil {
			if cancelled {
				s.State = SessionInProgress
			}
			m.finishLocked(ctx, s)
			return nil
		}

		if cancelled {
			// 取消后反悔：当前职位重置回排队，错误清空，重试计数保留
			s.analyzeEpoch++
			cur.State = JobPending
			cur.FailReason = ""
			cur.LastError = ""
			cur.Mapping = nil
			cur.Instrument = nil
			cur.UpdatedAt = m.now()
			s.State = SessionInProgress
			logger.Ctx(ctx).Info().Str("session_id", s.ID).Int("job_index", cur.Index).Msg("[会话] 恢复已取消的会话")
			return nil
		}

		switch cur.State {
		case JobFormFilling:
			// 分析被重启打断，重新排队换代重来
			s.analyzeEpoch++
			cur.State = JobPending
			cur.LastError = ""
			cur.Mapping = nil
			cur.Instrument = nil
			cur.UpdatedAt = m.now()
			s.State = SessionInProgress
		case JobWaitingUser:
			s.State = SessionWaiting
		case JobPending:
			if s.State != SessionPending {
				s.State = SessionInProgress
			}
		}
		logger.Ctx(ctx).Info().Str("session_id", s.ID).Str("state", string(s.State)).Msg("[会话] 恢复会话")
		return nil
	})
}

// StartGC 启动后台回收循环，按interval扫描
func (m *Manager) StartGC(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.gcStop:
				return
			case <-ticker.C:
				n := m.SweepStale(context.Background())
				if n > 0 {
					logger.Info().Int("count", n).Msg("[会话] 回收过期会话")
				}
			}
		}
	}()
}

// StopGC 停止回收循环
func (m *Manager) StopGC() {
	m.gcOnce.Do(func() { close(m.gcStop) })
}

// SweepStale 移除进入终态后超过TTL的会话，返回回收数量。
// 活跃会话不回收：等待人工提交没有时限，过期不会替用户做任何迁移
func (m *Manager) SweepStale(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*managedSession
	for id, ms := range m.sessions {
		ms.mu.Lock()
		old := ms.sess.State.Terminal() && ms.sess.UpdatedAt.Before(cutoff)
		ms.mu.Unlock()
		if old {
			stale = append(stale, ms)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, ms := range stale {
		if m.store != nil {
			if err := m.store.DeleteSession(ctx, ms.sess.ID); err != nil {
				logger.Warn().Err(err).Str("session_id", ms.sess.ID).Msg("[会话] 删除会话快照失败")
			}
		}
	}
	return len(stale)
}

// --- 内部辅助 ---

// withSession 在会话锁内执行fn，成功后写快照并返回会话副本
func (m *Manager) withSession(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := fn(ms.sess); err != nil {
		return nil, err
	}
	ms.sess.UpdatedAt = m.now()
	m.persist(ctx, ms.sess)
	return snapshotOf(ms.sess), nil
}

// readSession 只读访问：不刷新活动时间，也不写快照。
// 轮询接口走这里，免得把该回收的会话越轮询越年轻
func (m *Manager) readSession(id string, fn func(*Session) error) (*Session, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := fn(ms.sess); err != nil {
		return nil, err
	}
	return snapshotOf(ms.sess), nil
}

// activateCurrentLocked 当前职位从pending进入form_filling
func (m *Manager) activateCurrentLocked(ctx context.Context, s *Session) {
	cur := s.CurrentJob()
	if cur == nil {
		m.finishLocked(ctx, s)
		return
	}
	if cur.State == JobPending {
		cur.State = JobFormFilling
		cur.UpdatedAt = m.now()
		s.analyzeEpoch++
	}
}

// advanceLocked 游标推进到下一个未终态职位。游标只增不减
func (m *Manager) advanceLocked(ctx context.Context, s *Session) {
	for s.CurrentIndex < len(s.Jobs) && s.Jobs[s.CurrentIndex].State.Terminal() {
		s.CurrentIndex++
	}
	if s.CurrentIndex >= len(s.Jobs) {
		m.finishLocked(ctx, s)
		return
	}
	s.State = SessionInProgress
	m.activateCurrentLocked(ctx, s)
}

// finishLocked 队列走完，会话完成
func (m *Manager) finishLocked(ctx context.Context, s *Session) {
	if s.State.Terminal() {
		return
	}
	s.State = SessionCompleted
	m.publish(ctx, s, "", "session_completed", "")
}

func (m *Manager) publish(ctx context.Context, s *Session, jobID, kind, detail string) {
	if m.events == nil {
		return
	}
	evt := ApplicationEvent{
		SessionID: s.ID,
		ProfileID: s.ProfileID,
		JobID:     jobID,
		Kind:      kind,
		Detail:    detail,
		At:        m.now(),
	}
	if err := m.events.PublishApplicationEvent(ctx, evt); err != nil {
		// 事件只是旁路通知，发布失败不影响会话推进
		logger.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("[会话] 发布事件失败")
	}
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", s.ID).Msg("[会话] 写会话快照失败")
	}
}

// snapshotOf 深拷贝会话，调用方拿到的副本与内部状态解耦
func snapshotOf(s *Session) *Session {
	cp := *s
	cp.Jobs = make([]JobTask, len(s.Jobs))
	copy(cp.Jobs, s.Jobs)
	return &cp
}
