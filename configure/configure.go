package configure

import (
	"github.com/gocrud/ioc/configure/cron"
	"github.com/gocrud/ioc/configure/database"
	"github.com/gocrud/ioc/configure/etcd"
	"github.com/gocrud/ioc/configure/mongodb"
	"github.com/gocrud/ioc/configure/redis"
	"github.com/gocrud/ioc/configure/web"
	"github.com/gocrud/ioc/core"
)

// Database 便捷导出数据库配置器
// 使用示例: builder.Configure(configure.Database(func(b *database.Builder) { ... }))
func Database(options func(*database.Builder)) core.Configurator {
	return database.Configure(options)
}

// Redis 便捷导出 redis 配置器
func Redis(options func(*redis.Builder)) core.Configurator {
	return redis.Configure(options)
}

// Mongo 便捷导出 mongodb 配置器
func Mongo(options func(*mongodb.Builder)) core.Configurator {
	return mongodb.Configure(options)
}

// Cron 便捷导出 cron 配置器
func Cron(options func(*cron.Builder)) core.Configurator {
	return cron.Configure(options)
}

// Web 便捷导出 web 配置器
func Web(options func(*web.Builder)) core.Configurator {
	return web.Configure(options)
}

// Etcd 便捷导出 etcd 配置器
func Etcd(options func(*etcd.Builder)) core.Configurator {
	return etcd.Configure(options)
}
