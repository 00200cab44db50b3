package web

import (
	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// Configure 返回 Web 配置器：构建 gin 引擎（带请求作用域中间件），
// 注册引擎到容器并挂载 HTTP 托管服务。
// 使用示例: builder.Configure(web.Configure(func(b *web.Builder) { b.Listen(":8080") }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		engine := builder.BuildEngine(ctx.Container())
		di.RegisterInstance[*gin.Engine](ctx.Container(), engine)

		service := NewWebService(builder.opts.Addr, engine, ctx.GetLogger())
		di.RegisterInstance[*WebService](ctx.Container(), service)
		ctx.AddHostedService(service)
	}
}
