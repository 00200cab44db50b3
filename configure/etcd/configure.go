package etcd

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Builder etcd 配置构建器
type Builder struct {
	opts *EtcdOptions
}

// NewBuilder 创建 etcd 构建器
func NewBuilder() *Builder {
	return &Builder{opts: NewDefaultOptions()}
}

// Endpoints 设置服务端地址
func (b *Builder) Endpoints(endpoints ...string) *Builder {
	b.opts.Endpoints = endpoints
	return b
}

// Auth 设置认证信息
func (b *Builder) Auth(username, password string) *Builder {
	b.opts.Username = username
	b.opts.Password = password
	return b
}

// Configure 返回 etcd 配置器：创建客户端并注册到容器。
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		client, err := NewClient(*builder.opts)
		if err != nil {
			ctx.GetLogger().Fatal("Failed to create etcd client",
				logging.Field{Key: "error", Value: err.Error()})
		}

		di.RegisterInstance[*clientv3.Client](ctx.Container(), client)
		ctx.GetLogger().Info("etcd client registered",
			logging.Field{Key: "endpoints", Value: builder.opts.Endpoints})

		ctx.SetCleanup("etcd", func() {
			ctx.GetLogger().Info("Closing etcd client")
			if err := client.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close etcd client",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
