package mongodb

import (
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/mgo"
)

// Builder MongoDB 配置构建器
type Builder struct {
	configs []MongoOptions
}

// NewBuilder 创建 MongoDB 构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Add 添加一个客户端配置
func (b *Builder) Add(name, uri string, configure func(*MongoOptions)) *Builder {
	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}
	b.configs = append(b.configs, *opts)
	return b
}

// Build 创建全部客户端
func (b *Builder) Build(logger logging.Logger) (*MongoFactory, error) {
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewMongoFactory()
	for _, opts := range b.configs {
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("invalid mongo configuration: %w", err)
		}
		if err := factory.Register(opts); err != nil {
			return nil, err
		}
		logger.Info("mongo client registered",
			logging.Field{Key: "name", Value: opts.Name})
	}
	return factory, nil
}

// Configure 返回 MongoDB 配置器。
// 客户端以名称为服务键注册；名为 default 的客户端同时注册为默认服务。
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build mongodb clients",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.Container()
		di.RegisterInstance[*MongoFactory](container, factory)

		factory.Each(func(name string, client *mgo.Client) {
			di.RegisterInstance[*mgo.Client](container, client, di.WithName(name))
			if name == "default" {
				di.RegisterInstance[*mgo.Client](container, client)
			}
		})

		ctx.SetCleanup("mongodb", func() {
			ctx.GetLogger().Info("Closing mongo clients")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close mongo clients",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
