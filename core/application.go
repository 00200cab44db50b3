package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

// Application 应用程序接口
type Application interface {
	Run() error
	RunAsync(ctx context.Context) error
	Stop(ctx context.Context) error
	Services() *di.Container
	Configuration() config.Configuration
	Logger() logging.Logger
	Environment() Environment
	GetService(ptr any)
	Close()
}

// ApplicationBuilder 应用程序构建器
type ApplicationBuilder struct {
	environment     string
	configBuilder   *config.ConfigurationBuilder
	loggingBuilder  *logging.LoggingBuilder
	configurators   []Configurator
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// NewApplicationBuilder 创建应用程序构建器
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		environment:     "development",
		configBuilder:   config.NewConfigurationBuilder(),
		loggingBuilder:  logging.NewLoggingBuilder(),
		shutdownTimeout: 30 * time.Second,
	}
}

// UseEnvironment 设置环境
func (b *ApplicationBuilder) UseEnvironment(env string) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.environment = env
	return b
}

// ConfigureConfiguration 配置配置系统
func (b *ApplicationBuilder) ConfigureConfiguration(configure func(*config.ConfigurationBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.configBuilder)
	}
	return b
}

// ConfigureLogging 配置日志系统
func (b *ApplicationBuilder) ConfigureLogging(configure func(*logging.LoggingBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.loggingBuilder)
	}
	return b
}

// Configure 添加配置器，支持链式调用
func (b *ApplicationBuilder) Configure(configurators ...Configurator) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configurators = append(b.configurators, configurators...)
	return b
}

// AddTask 添加一个简单的后台任务
func (b *ApplicationBuilder) AddTask(task func(ctx context.Context) error) *ApplicationBuilder {
	return b.Configure(func(ctx *BuildContext) {
		ctx.AddHostedService(&functionalService{task: task})
	})
}

type functionalService struct {
	task func(ctx context.Context) error
}

func (f *functionalService) Start(ctx context.Context) error { return f.task(ctx) }
func (f *functionalService) Stop(ctx context.Context) error  { return nil }

// UseShutdownTimeout 设置关闭超时
func (b *ApplicationBuilder) UseShutdownTimeout(timeout time.Duration) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownTimeout = timeout
	return b
}

// Build 构建应用程序：构建配置与日志，创建容器并注册核心服务，
// 执行全部配置器。
func (b *ApplicationBuilder) Build() Application {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.configBuilder.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build configuration: %v", err))
	}

	loggerFactory := b.loggingBuilder.Build()
	logger := loggerFactory.CreateLogger("Application")

	logger.Info("Building application",
		logging.Field{Key: "environment", Value: b.environment})

	container := di.NewContainer()

	// 核心服务注册为实例：配置、日志、容器自身
	di.RegisterInstance[config.Configuration](container, cfg)
	di.RegisterInstance[logging.LoggerFactory](container, loggerFactory)
	di.RegisterInstance[logging.Logger](container, logger)
	di.RegisterInstance[*di.Container](container, container)

	buildContext := &BuildContext{
		container:     container,
		configuration: cfg,
		logger:        logger,
		environment:   NewEnvironment(b.environment),
		cleanups:      make(map[string]func()),
	}

	for _, configurator := range b.configurators {
		configurator(buildContext)
	}

	logger.Info("Application built",
		logging.Field{Key: "hosted_services", Value: len(buildContext.hostedServices)})

	return &application{
		container:       container,
		configuration:   cfg,
		logger:          logger,
		environment:     buildContext.environment,
		hostedServices:  buildContext.hostedServices,
		cleanupKeys:     buildContext.cleanupKeys,
		cleanups:        buildContext.cleanups,
		shutdownTimeout: b.shutdownTimeout,
		stopCh:          make(chan struct{}),
	}
}

type application struct {
	container       *di.Container
	configuration   config.Configuration
	logger          logging.Logger
	environment     Environment
	hostedServices  []hosting.HostedService
	serviceManager  *hosting.HostedServiceManager
	cleanupKeys     []string
	cleanups        map[string]func()
	shutdownTimeout time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	closeOnce       sync.Once
	running         bool
	mu              sync.Mutex
}

// Run 运行应用程序（阻塞到收到退出信号或 Stop）
func (a *application) Run() error {
	return a.RunAsync(context.Background())
}

// RunAsync 运行应用程序，ctx 取消时触发关闭
func (a *application) RunAsync(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("Starting application",
		logging.Field{Key: "environment", Value: a.environment.Name()})

	a.serviceManager = hosting.NewHostedServiceManager(a.logger)
	for _, service := range a.hostedServices {
		a.serviceManager.Add(service)
	}
	errCh := a.serviceManager.StartAll(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info("Received shutdown signal",
			logging.Field{Key: "signal", Value: sig.String()})
	case <-a.stopCh:
		a.logger.Info("Application stop requested")
	case <-ctx.Done():
		a.logger.Info("Context cancelled")
	case err := <-errCh:
		a.logger.Error("Hosted service failed, stopping application",
			logging.Field{Key: "error", Value: err.Error()})
		runErr = err
	}

	a.logger.Info("Shutting down application",
		logging.Field{Key: "timeout", Value: a.shutdownTimeout.String()})
	cancel()

	shutdownCtx, stopCancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer stopCancel()

	if err := a.serviceManager.StopAll(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.serviceManager.Wait()

	a.Close()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.logger.Info("Application stopped")
	return runErr
}

// Stop 请求停止应用程序
func (a *application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return nil
}

// Close 执行清理函数并关闭容器（销毁单例与作用域实例）。
// 幂等；Run 正常退出时自动调用。
func (a *application) Close() {
	a.closeOnce.Do(func() {
		for _, key := range a.cleanupKeys {
			a.logger.Debug("Running cleanup", logging.Field{Key: "key", Value: key})
			a.cleanups[key]()
		}
		a.container.Close()
	})
}

// Services 获取服务容器
func (a *application) Services() *di.Container { return a.container }

// Configuration 获取配置
func (a *application) Configuration() config.Configuration { return a.configuration }

// Logger 获取日志记录器
func (a *application) Logger() logging.Logger { return a.logger }

// Environment 获取环境
func (a *application) Environment() Environment { return a.environment }

// GetService 获取服务实例（通过指针参数）
//
// 使用示例：
//
//	var myService *MyService
//	app.GetService(&myService)
func (a *application) GetService(ptr any) {
	if err := a.container.Inject(ptr); err != nil {
		panic(fmt.Sprintf("app: failed to get service: %v", err))
	}
}
