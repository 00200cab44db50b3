package redis

import (
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/redis/go-redis/v9"
)

// Builder Redis 客户端配置构建器
type Builder struct {
	configs []RedisClientOptions
}

// NewBuilder 创建 Redis 构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClient 添加一个 Redis 客户端配置
func (b *Builder) AddClient(name string, configure func(*RedisClientOptions)) *Builder {
	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	b.configs = append(b.configs, *opts)
	return b
}

// Build 构建客户端工厂
func (b *Builder) Build(logger logging.Logger) (*RedisClientFactory, error) {
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewRedisClientFactory()
	for _, opts := range b.configs {
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("invalid redis configuration: %w", err)
		}
		if err := factory.Register(opts); err != nil {
			return nil, err
		}
		logger.Info("redis client registered",
			logging.Field{Key: "name", Value: opts.Name},
			logging.Field{Key: "addr", Value: opts.Addr},
			logging.Field{Key: "db", Value: opts.DB})
	}
	return factory, nil
}

// Configure 返回 Redis 配置器。
// 每个客户端以名称为服务键注册；名为 default 的客户端同时注册为默认服务。
// 使用示例: builder.Configure(redis.Configure(func(b *redis.Builder) { ... }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build redis clients",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.Container()
		di.RegisterInstance[*RedisClientFactory](container, factory)

		factory.Each(func(name string, client *redis.Client) {
			di.RegisterInstance[*redis.Client](container, client, di.WithName(name))
			if name == "default" {
				di.RegisterInstance[*redis.Client](container, client)
			}
		})

		ctx.SetCleanup("redis", func() {
			ctx.GetLogger().Info("Closing redis clients")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close redis clients",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
