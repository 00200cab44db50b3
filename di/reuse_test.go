package di_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/gocrud/ioc/di"
)

type Counter struct {
	ID int
}

var counterN int
var counterMu sync.Mutex

func NewCounter() *Counter {
	counterMu.Lock()
	defer counterMu.Unlock()
	counterN++
	return &Counter{ID: counterN}
}

// Test 单例 - 重复解析返回同一实例
func TestSingletonResolve(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter), di.WithSingleton())

	c1, err := di.Resolve[*Counter](c)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	c2, _ := di.Resolve[*Counter](c)
	c3, _ := di.Resolve[*Counter](c)

	if c1 != c2 || c2 != c3 {
		t.Error("Expected same singleton instance")
	}
	if counterN != 1 {
		t.Errorf("Expected 1 construction, got %d", counterN)
	}
}

// Test 单例跨作用域子容器共享
func TestSingletonSharedAcrossScopes(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter), di.WithSingleton())

	root, _ := di.Resolve[*Counter](c)

	child := c.OpenScope()
	inChild, err := di.Resolve[*Counter](child)
	if err != nil {
		t.Fatalf("Failed to resolve in child: %v", err)
	}

	if root != inChild {
		t.Error("Singleton must be shared between parent and scoped child")
	}
}

// Test 当前作用域 - 父子容器各自的实例
func TestCurrentScopeReuse(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter), di.WithScoped())

	p1, err := di.Resolve[*Counter](c)
	if err != nil {
		t.Fatalf("Failed to resolve in parent: %v", err)
	}
	p2, _ := di.Resolve[*Counter](c)
	if p1 != p2 {
		t.Error("Scoped instance must be stable within the parent")
	}

	child := c.OpenScope()
	ch1, err := di.Resolve[*Counter](child)
	if err != nil {
		t.Fatalf("Failed to resolve in child: %v", err)
	}
	ch2, _ := di.Resolve[*Counter](child)
	if ch1 != ch2 {
		t.Error("Scoped instance must be stable within the child")
	}
	if p1 == ch1 {
		t.Error("Parent and child scoped instances must differ")
	}
}

// ResolutionPair 两个字段引用同一个解析作用域服务
type ResolutionPair struct {
	A *Counter `di:""`
	B *Counter `di:""`
}

// Test 解析作用域 - 一次顶层解析内单例，跨解析独立
func TestResolutionScopeReuse(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter), di.WithResolutionScoped())
	di.Register[*ResolutionPair](c)

	p1, err := di.Resolve[*ResolutionPair](c)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if p1.A != p1.B {
		t.Error("Resolution-scoped service must be shared within one resolve")
	}

	p2, _ := di.Resolve[*ResolutionPair](c)
	if p1.A == p2.A {
		t.Error("Resolution-scoped service must differ across resolves")
	}
}

// DisposableThing 记录销毁次数
type DisposableThing struct {
	mu       sync.Mutex
	disposed int
}

func (d *DisposableThing) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed++
}

func (d *DisposableThing) Disposed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

func NewDisposableThing() *DisposableThing { return &DisposableThing{} }

// Test 作用域销毁：恰好一次释放，销毁后解析报错
func TestScopedDisposal(t *testing.T) {
	c := di.NewContainer()

	di.Register[*DisposableThing](c, di.WithCtor(NewDisposableThing), di.WithScoped())

	scope := c.OpenScope()
	d, err := di.Resolve[*DisposableThing](scope)
	if err != nil {
		t.Fatalf("Failed to resolve in scope: %v", err)
	}

	scope.Close()
	scope.Close() // 幂等

	if d.Disposed() != 1 {
		t.Errorf("Expected exactly one dispose, got %d", d.Disposed())
	}

	_, err = di.Resolve[*DisposableThing](scope)
	if !errors.Is(err, di.ErrScopeIsDisposed) {
		t.Errorf("Expected ErrScopeIsDisposed, got: %v", err)
	}
}

// Test 根容器关闭销毁单例作用域，子容器关闭不触碰
func TestRootCloseDisposesSingletons(t *testing.T) {
	c := di.NewContainer()

	di.Register[*DisposableThing](c, di.WithCtor(NewDisposableThing), di.WithSingleton())

	d, err := di.Resolve[*DisposableThing](c)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}

	child := c.OpenScope()
	child.Close()
	if d.Disposed() != 0 {
		t.Error("Child close must not dispose the shared singleton scope")
	}

	c.Close()
	if d.Disposed() != 1 {
		t.Errorf("Root close must dispose singletons exactly once, got %d", d.Disposed())
	}
}

// Test 并发解析单例 - 至多构造一次
func TestSingletonConcurrency(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter), di.WithSingleton())

	const goroutines = 64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	results := make([]*Counter, goroutines)
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := di.Resolve[*Counter](c)
			results[i], errs[i] = v, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("Goroutine %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatal("All goroutines must observe the same singleton")
		}
	}
	if counterN != 1 {
		t.Errorf("Expected 1 construction under contention, got %d", counterN)
	}
}

// Test 并发解析瞬态 - 互不相同
func TestTransientConcurrency(t *testing.T) {
	counterN = 0
	c := di.NewContainer()

	di.Register[*Counter](c, di.WithCtor(NewCounter))

	const goroutines = 64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	results := make([]*Counter, goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], _ = di.Resolve[*Counter](c)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, r := range results {
		if r == nil {
			t.Fatal("Nil transient result")
		}
		if seen[r.ID] {
			t.Fatalf("Duplicate transient instance %d", r.ID)
		}
		seen[r.ID] = true
	}
}
