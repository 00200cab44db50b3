package redis_test

import (
	"testing"

	"github.com/gocrud/ioc/configure/redis"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	goredis "github.com/redis/go-redis/v9"
)

// MockRedisService 模拟依赖 Redis 客户端的服务
type MockRedisService struct {
	Cache *goredis.Client `di:"cache"`
	Queue *goredis.Client `di:"queue,?"`
}

func TestRedisConfiguration(t *testing.T) {
	builder := core.NewApplicationBuilder()

	builder.Configure(redis.Configure(func(b *redis.Builder) {
		b.AddClient("cache", func(o *redis.RedisClientOptions) {
			o.Addr = "localhost:6379"
		})
	}))

	builder.Configure(func(ctx *core.BuildContext) {
		di.Register[*MockRedisService](ctx.Container())
	})

	app := builder.Build()
	defer app.Close()

	var svc *MockRedisService
	app.GetService(&svc)

	if svc.Cache == nil {
		t.Error("Cache client should be injected by name")
	}
	if svc.Queue != nil {
		t.Error("Queue client should stay nil (optional and not configured)")
	}

	cache, err := di.ResolveNamed[*goredis.Client](app.Services(), "cache")
	if err != nil {
		t.Errorf("Failed to resolve named client 'cache': %v", err)
	}
	if cache != svc.Cache {
		t.Error("Named resolution must return the registered client")
	}
}

func TestRedisDefaultClient(t *testing.T) {
	builder := core.NewApplicationBuilder()

	builder.Configure(redis.Configure(func(b *redis.Builder) {
		b.AddClient("default", nil)
	}))

	app := builder.Build()
	defer app.Close()

	client, err := di.Resolve[*goredis.Client](app.Services())
	if err != nil {
		t.Fatalf("Default client must resolve unnamed: %v", err)
	}
	if client == nil {
		t.Fatal("Resolved default client is nil")
	}
}

func TestRedisBuilderErrors(t *testing.T) {
	logger := logging.NewLogger()
	builder := redis.NewBuilder()

	builder.AddClient("invalid", func(o *redis.RedisClientOptions) {
		o.Addr = "" // 必填项缺失
	})

	if _, err := builder.Build(logger); err == nil {
		t.Fatal("Expected error from invalid configuration, got nil")
	}

	dup := redis.NewBuilder()
	dup.AddClient("same", nil)
	dup.AddClient("same", nil)
	if _, err := dup.Build(logger); err == nil {
		t.Fatal("Expected error from duplicate client name, got nil")
	}
}
