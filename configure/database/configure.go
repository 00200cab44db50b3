package database

import (
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
)

// Builder 数据库连接配置构建器
type Builder struct {
	configs []DatabaseOptions
}

// NewBuilder 创建数据库构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// AddConnection 添加一个数据库连接配置
func (b *Builder) AddConnection(name, dsn string, configure func(*DatabaseOptions)) *Builder {
	opts := NewDefaultOptions(name)
	opts.DSN = dsn
	if configure != nil {
		configure(opts)
	}
	b.configs = append(b.configs, *opts)
	return b
}

// Build 打开全部连接
func (b *Builder) Build(logger logging.Logger) (*DatabaseFactory, error) {
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewDatabaseFactory()
	for _, opts := range b.configs {
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("invalid database configuration: %w", err)
		}
		if err := factory.Register(opts); err != nil {
			return nil, err
		}
		logger.Info("database connection opened",
			logging.Field{Key: "name", Value: opts.Name},
			logging.Field{Key: "driver", Value: opts.Driver})
	}
	return factory, nil
}

// Configure 返回数据库配置器。
// 每个连接以名称为服务键注册；名为 default 的连接同时注册为默认服务。
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build database connections",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.Container()
		di.RegisterInstance[*DatabaseFactory](container, factory)

		factory.Each(func(name string, db *gorm.DB) {
			di.RegisterInstance[*gorm.DB](container, db, di.WithName(name))
			if name == "default" {
				di.RegisterInstance[*gorm.DB](container, db)
			}
		})

		ctx.SetCleanup("database", func() {
			ctx.GetLogger().Info("Closing database connections")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close database connections",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
