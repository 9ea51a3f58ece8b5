package cron

import (
	"Zalor/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

// 每十分钟清理一次附件暂存目录
const stagingCleanSpec = "0 */10 * * * *"

type Manager struct {
	engine          *cron.Cron
	stagingCleanJob *job.StagingCleanJob
}

func NewCronManager(stagingCleanJob *job.StagingCleanJob) *Manager {
	return &Manager{
		engine: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		stagingCleanJob: stagingCleanJob,
	}
}

// InitCron 注册全部任务并启动调度
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	mgr.Start()
	return nil
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(stagingCleanSpec, s.stagingCleanJob); err != nil {
		return err
	}
	return nil
}

// Entries 已注册的任务数
func (s *Manager) Entries() int {
	return len(s.engine.Entries())
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "jobs", s.Entries())
	s.engine.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
