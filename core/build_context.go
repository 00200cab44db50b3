package core

import (
	"sync"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

// Configurator 配置器函数类型。
// 配置器用于扩展应用程序：注册服务、添加托管服务、登记清理函数。
type Configurator func(*BuildContext)

// BuildContext 构建上下文，提供给配置器的核心组件集合。
type BuildContext struct {
	container     *di.Container
	configuration config.Configuration
	logger        logging.Logger
	environment   Environment

	hostedServices []hosting.HostedService

	cleanupKeys []string
	cleanups    map[string]func()
	mu          sync.Mutex
}

// Container 返回底层 DI 容器，
// 可直接用 di.Register[T](ctx.Container(), ...) 注册服务。
func (c *BuildContext) Container() *di.Container {
	return c.container
}

// GetLogger 获取日志记录器
func (c *BuildContext) GetLogger() logging.Logger {
	return c.logger
}

// GetConfiguration 获取配置对象
func (c *BuildContext) GetConfiguration() config.Configuration {
	return c.configuration
}

// GetEnvironment 获取环境信息
func (c *BuildContext) GetEnvironment() Environment {
	return c.environment
}

// AddHostedService 添加托管服务
func (c *BuildContext) AddHostedService(service hosting.HostedService) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostedServices = append(c.hostedServices, service)
}

// SetCleanup 登记资源清理函数。关闭时按登记顺序执行，同键覆盖。
func (c *BuildContext) SetCleanup(key string, cleanup func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cleanups[key]; !exists {
		c.cleanupKeys = append(c.cleanupKeys, key)
	}
	c.cleanups[key] = cleanup
}

// Environment 环境接口
type Environment interface {
	Name() string
	IsDevelopment() bool
	IsProduction() bool
}

type environment struct {
	name string
}

// NewEnvironment 创建环境
func NewEnvironment(name string) Environment {
	return &environment{name: name}
}

func (e *environment) Name() string        { return e.name }
func (e *environment) IsDevelopment() bool { return e.name == "development" }
func (e *environment) IsProduction() bool  { return e.name == "production" }
