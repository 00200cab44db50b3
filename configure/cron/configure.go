package cron

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Builder 调度器配置构建器
type Builder struct {
	opts CronOptions
	jobs []Job
}

// NewBuilder 创建调度构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// WithSeconds 启用秒级表达式
func (b *Builder) WithSeconds() *Builder {
	b.opts.WithSeconds = true
	return b
}

// AddJob 直接添加任务实例（不经容器）
func (b *Builder) AddJob(job Job) *Builder {
	b.jobs = append(b.jobs, job)
	return b
}

// Configure 返回定时任务配置器。
// 除了构建器上直接添加的任务，还通过容器的切片解析收集
// 所有注册为 cron.Job 的服务 —— 各模块各自注册任务即可。
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		service := NewCronService(builder.opts, ctx.GetLogger())

		for _, job := range builder.jobs {
			if err := service.AddJob(job); err != nil {
				ctx.GetLogger().Fatal("Failed to schedule cron job",
					logging.Field{Key: "error", Value: err.Error()})
			}
		}

		// 容器里注册的全部 Job（快照语义：此刻已注册的任务）
		jobs, err := di.ResolveMany[Job](ctx.Container())
		if err == nil {
			for _, job := range jobs {
				if err := service.AddJob(job); err != nil {
					ctx.GetLogger().Fatal("Failed to schedule cron job",
						logging.Field{Key: "error", Value: err.Error()})
				}
			}
		}

		di.RegisterInstance[*CronService](ctx.Container(), service)
		ctx.AddHostedService(service)
	}
}
