package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// WebOptions Web 服务配置
type WebOptions struct {
	Addr string
	Mode string // gin 运行模式
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions() *WebOptions {
	return &WebOptions{
		Addr: ":8080",
		Mode: gin.ReleaseMode,
	}
}

// RouteRegistrar 路由注册函数，handler 通过解析器接口取服务
type RouteRegistrar func(engine *gin.Engine, resolver *di.Container)

// Builder Web 服务配置构建器
type Builder struct {
	opts       *WebOptions
	registrars []RouteRegistrar
}

// NewBuilder 创建 Web 构建器
func NewBuilder() *Builder {
	return &Builder{opts: NewDefaultOptions()}
}

// Listen 设置监听地址
func (b *Builder) Listen(addr string) *Builder {
	b.opts.Addr = addr
	return b
}

// UseMode 设置 gin 运行模式
func (b *Builder) UseMode(mode string) *Builder {
	b.opts.Mode = mode
	return b
}

// AddRoutes 添加路由注册函数
func (b *Builder) AddRoutes(registrar RouteRegistrar) *Builder {
	b.registrars = append(b.registrars, registrar)
	return b
}

const scopeKey = "ioc.request.scope"

// ScopeMiddleware 请求作用域中间件：每个请求打开一个作用域子容器，
// 请求结束时关闭（作用域服务随之释放）。
func ScopeMiddleware(container *di.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := container.OpenScope()
		c.Set(scopeKey, scope)
		defer scope.Close()
		c.Next()
	}
}

// RequestScope 取出当前请求的作用域容器
func RequestScope(c *gin.Context) *di.Container {
	v, ok := c.Get(scopeKey)
	if !ok {
		return nil
	}
	return v.(*di.Container)
}

// BuildEngine 构建 gin 引擎：安装请求作用域中间件并注册全部路由
func (b *Builder) BuildEngine(container *di.Container) *gin.Engine {
	if b.opts.Mode != "" {
		gin.SetMode(b.opts.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ScopeMiddleware(container))

	for _, registrar := range b.registrars {
		registrar(engine, container)
	}
	return engine
}

// WebService HTTP 托管服务
type WebService struct {
	server *http.Server
	logger logging.Logger
}

// NewWebService 创建 HTTP 托管服务
func NewWebService(addr string, engine *gin.Engine, logger logging.Logger) *WebService {
	return &WebService{
		server: &http.Server{Addr: addr, Handler: engine},
		logger: logger,
	}
}

// Start 启动监听并阻塞到服务器关闭
func (s *WebService) Start(ctx context.Context) error {
	s.logger.Info("http server listening",
		logging.Field{Key: "addr", Value: s.server.Addr})
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 优雅关闭
func (s *WebService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
