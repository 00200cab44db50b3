package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/logging"
	cronv3 "github.com/robfig/cron/v3"
)

// Job 定时任务。注册到容器后由调度服务统一收集与编排。
type Job interface {
	// Name 任务名，用于日志
	Name() string
	// Spec cron 表达式
	Spec() string
	// Run 任务体
	Run()
}

// CronOptions 调度器配置
type CronOptions struct {
	// WithSeconds 启用秒级字段（6 段表达式）
	WithSeconds bool
}

// CronService 定时任务调度服务，实现 hosting.HostedService。
type CronService struct {
	engine *cronv3.Cron
	logger logging.Logger
	mu     sync.Mutex
	ids    map[string]cronv3.EntryID
}

// NewCronService 创建调度服务
func NewCronService(opts CronOptions, logger logging.Logger) *CronService {
	var cronOpts []cronv3.Option
	if opts.WithSeconds {
		cronOpts = append(cronOpts, cronv3.WithSeconds())
	}
	return &CronService{
		engine: cronv3.New(cronOpts...),
		logger: logger,
		ids:    make(map[string]cronv3.EntryID),
	}
}

// AddJob 登记任务
func (s *CronService) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[job.Name()]; exists {
		return fmt.Errorf("cron job '%s' already scheduled", job.Name())
	}
	id, err := s.engine.AddFunc(job.Spec(), job.Run)
	if err != nil {
		return fmt.Errorf("failed to schedule cron job '%s': %w", job.Name(), err)
	}
	s.ids[job.Name()] = id

	s.logger.Info("cron job scheduled",
		logging.Field{Key: "name", Value: job.Name()},
		logging.Field{Key: "spec", Value: job.Spec()})
	return nil
}

// JobCount 已登记的任务数
func (s *CronService) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Start 启动调度并阻塞到 ctx 取消
func (s *CronService) Start(ctx context.Context) error {
	s.engine.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止调度，等待运行中的任务结束
func (s *CronService) Stop(ctx context.Context) error {
	done := s.engine.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
