package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type PingService struct {
	Config config.Configuration `di:""`
	Logger logging.Logger       `di:""`
}

func (s *PingService) Addr() string {
	return s.Config.GetWithDefault("ping.addr", "none")
}

// Test 构建应用并解析核心服务
func TestApplicationBuildAndResolve(t *testing.T) {
	builder := core.NewApplicationBuilder()

	builder.ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
		b.AddMap(map[string]any{"ping.addr": "127.0.0.1:9"})
	})
	builder.Configure(func(ctx *core.BuildContext) {
		di.Register[*PingService](ctx.Container(), di.WithSingleton())
	})

	app := builder.Build()
	defer app.Close()

	var svc *PingService
	app.GetService(&svc)

	if svc.Config == nil || svc.Logger == nil {
		t.Fatal("Core services must be injected")
	}
	if svc.Addr() != "127.0.0.1:9" {
		t.Errorf("Configuration not wired, got %s", svc.Addr())
	}

	// 容器自身可解析
	c, err := di.Resolve[*di.Container](app.Services())
	if err != nil || c != app.Services() {
		t.Error("Container must resolve to itself")
	}
}

// Test 托管服务随 Run 启动并在 Stop 时结束
func TestApplicationHostedServiceLifecycle(t *testing.T) {
	started := make(chan struct{})

	builder := core.NewApplicationBuilder().
		UseShutdownTimeout(2 * time.Second).
		AddTask(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		})

	app := builder.Build()

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Hosted task did not start")
	}

	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

// Test 清理函数按登记顺序执行，重复 Close 幂等
func TestApplicationCloseRunsCleanups(t *testing.T) {
	var order []string

	builder := core.NewApplicationBuilder()
	builder.Configure(func(ctx *core.BuildContext) {
		ctx.SetCleanup("first", func() { order = append(order, "first") })
		ctx.SetCleanup("second", func() { order = append(order, "second") })
	})

	app := builder.Build()
	app.Close()
	app.Close() // 幂等

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected ordered cleanups, got %v", order)
	}
}
