package di_test

import (
	"testing"

	"github.com/gocrud/ioc/di"
)

// 基准测试接口和实现
type BenchLogger interface {
	Log(msg string)
}

type BenchConsoleLogger struct{}

func (l *BenchConsoleLogger) Log(msg string) {}

type BenchRepository struct {
	Logger BenchLogger `di:""`
}

type BenchService struct {
	Repo   *BenchRepository `di:""`
	Logger BenchLogger      `di:""`
}

func newBenchContainer() *di.Container {
	c := di.NewContainer()
	di.Register[BenchLogger](c, di.Use[*BenchConsoleLogger](), di.WithSingleton())
	di.Register[*BenchRepository](c)
	di.Register[*BenchService](c)
	return c
}

// Benchmark 单例热路径解析
func BenchmarkResolveSingleton(b *testing.B) {
	c := newBenchContainer()
	if _, err := di.Resolve[BenchLogger](c); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := di.Resolve[BenchLogger](c); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark 多层瞬态解析
func BenchmarkResolveTransientGraph(b *testing.B) {
	c := newBenchContainer()
	if _, err := di.Resolve[*BenchService](c); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := di.Resolve[*BenchService](c); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark 并发解析（读多写零的缓存路径）
func BenchmarkResolveParallel(b *testing.B) {
	c := newBenchContainer()
	if _, err := di.Resolve[*BenchService](c); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := di.Resolve[*BenchService](c); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// Benchmark 作用域解析
func BenchmarkResolveScoped(b *testing.B) {
	c := di.NewContainer()
	di.Register[*BenchConsoleLogger](c, di.WithScoped())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope := c.OpenScope()
		if _, err := di.Resolve[*BenchConsoleLogger](scope); err != nil {
			b.Fatal(err)
		}
		scope.Close()
	}
}
