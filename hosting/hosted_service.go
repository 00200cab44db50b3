package hosting

import (
	"context"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// HostedService 随应用启动与停止的后台服务
type HostedService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []HostedService
	logger   logging.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	return &HostedServiceManager{logger: logger}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, service)
}

// StartAll 启动全部服务。每个服务在自己的 goroutine 里运行，
// 启动失败通过返回的通道上报。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.Lock()
	services := append([]HostedService(nil), m.services...)
	m.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, service := range services {
		m.wg.Add(1)
		go func(s HostedService) {
			defer m.wg.Done()
			if err := s.Start(ctx); err != nil {
				m.logger.Error("hosted service failed",
					logging.Field{Key: "error", Value: err.Error()})
				errCh <- err
			}
		}(service)
	}
	return errCh
}

// StopAll 按添加顺序的逆序停止全部服务
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	services := append([]HostedService(nil), m.services...)
	m.mu.Unlock()

	var firstErr error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil {
			m.logger.Error("failed to stop hosted service",
				logging.Field{Key: "error", Value: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Wait 等待全部服务 goroutine 退出
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}
