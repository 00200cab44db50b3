package cron_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	croncfg "github.com/gocrud/ioc/configure/cron"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

type tickJob struct {
	name string
	spec string
	runs *atomic.Int32
}

func (j *tickJob) Name() string { return j.name }
func (j *tickJob) Spec() string { return j.spec }
func (j *tickJob) Run()         { j.runs.Add(1) }

// Test 配置器收集容器里注册的全部任务
func TestCronCollectsRegisteredJobs(t *testing.T) {
	var runs atomic.Int32

	builder := core.NewApplicationBuilder()

	// 各模块把任务注册为 cron.Job 服务
	builder.Configure(func(ctx *core.BuildContext) {
		di.RegisterInstance[croncfg.Job](ctx.Container(),
			&tickJob{name: "a", spec: "@every 1h", runs: &runs})
		di.RegisterInstance[croncfg.Job](ctx.Container(),
			&tickJob{name: "b", spec: "@every 1h", runs: &runs})
	})
	// 调度配置器必须在任务注册之后执行（切片解析是快照）
	builder.Configure(croncfg.Configure(func(b *croncfg.Builder) {
		b.AddJob(&tickJob{name: "direct", spec: "@every 1h", runs: &runs})
	}))

	app := builder.Build()
	defer app.Close()

	service, err := di.Resolve[*croncfg.CronService](app.Services())
	if err != nil {
		t.Fatalf("Failed to resolve cron service: %v", err)
	}
	if service.JobCount() != 3 {
		t.Errorf("Expected 3 scheduled jobs, got %d", service.JobCount())
	}
}

// Test 秒级任务真实触发
func TestCronJobRuns(t *testing.T) {
	var runs atomic.Int32

	builder := core.NewApplicationBuilder()
	builder.Configure(croncfg.Configure(func(b *croncfg.Builder) {
		b.WithSeconds()
		b.AddJob(&tickJob{name: "fast", spec: "* * * * * *", runs: &runs})
	}))

	app := builder.Build()
	defer app.Close()

	var service *croncfg.CronService
	app.GetService(&service)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = service.Start(ctx)
		close(done)
	}()

	deadline := time.After(2500 * time.Millisecond)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Cron job did not run")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	<-done
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := service.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
