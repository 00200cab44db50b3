package di

import (
	"fmt"
	"reflect"
)

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）。
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// registration 泛型注册入口的可选配置。
type registration struct {
	reuse     Reuse
	key       any
	ctor      any
	implType  reflect.Type
	metadata  any
	condition func(*Request) bool
	noCache   bool
}

// Option 配置服务注册。
type Option func(*registration)

// WithName 设置服务名称，用于命名注入。
func WithName(name string) Option {
	return func(r *registration) { r.key = name }
}

// WithKey 设置任意服务键（nil、int 或 string）。
func WithKey(key any) Option {
	return func(r *registration) { r.key = key }
}

// WithReuse 设置生命周期策略。
func WithReuse(reuse Reuse) Option {
	return func(r *registration) { r.reuse = reuse }
}

// WithSingleton 单例生命周期。
func WithSingleton() Option { return WithReuse(Singleton) }

// WithTransient 瞬态生命周期（默认）。
func WithTransient() Option { return WithReuse(Transient) }

// WithScoped 当前作用域生命周期。
func WithScoped() Option { return WithReuse(InCurrentScope) }

// WithResolutionScoped 解析作用域生命周期。
func WithResolutionScoped() Option { return WithReuse(InResolutionScope) }

// WithCtor 指定构造函数，参数自动注入。
func WithCtor(ctor any) Option {
	return func(r *registration) { r.ctor = ctor }
}

// Use 指定接口的实现类型（字段注入模式）。
func Use[TImpl any]() Option {
	return func(r *registration) { r.implType = TypeOf[TImpl]() }
}

// WithMetadata 附加服务元数据，Meta 包装器按可赋值性匹配。
func WithMetadata(metadata any) Option {
	return func(r *registration) { r.metadata = metadata }
}

// WithCondition 装饰器适用性判定。
func WithCondition(cond func(*Request) bool) Option {
	return func(r *registration) { r.condition = cond }
}

// WithoutExpressionCache 禁用该工厂的表达式缓存。
func WithoutExpressionCache() Option {
	return func(r *registration) { r.noCache = true }
}

func applyOptions(opts []Option) *registration {
	r := &registration{reuse: Transient}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *registration) serviceSetup() *Setup {
	setup := SetupService()
	if r.metadata != nil {
		setup = setup.WithSetupMetadata(r.metadata)
	}
	if r.noCache {
		setup = setup.NoCache()
	}
	return setup
}

func (r *registration) factoryFor(serviceType reflect.Type) (*Factory, error) {
	if r.ctor != nil {
		return NewReflectionFactoryCtor(r.ctor, r.reuse, r.serviceSetup())
	}
	impl := r.implType
	if impl == nil {
		impl = serviceType
	}
	return NewReflectionFactoryType(impl, r.reuse, r.serviceSetup())
}

// Register 注册类型 T 的服务。
// T 为接口时必须用 di.Use[Impl]() 或 di.WithCtor(fn) 指定实现。
func Register[TService any](c *Container, opts ...Option) {
	r := applyOptions(opts)
	serviceType := TypeOf[TService]()

	f, err := r.factoryFor(serviceType)
	if err == nil {
		_, err = c.Register(f, serviceType, r.key)
	}
	if err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", serviceType, err))
	}
}

// RegisterAll 把同一个实现注册到多个服务类型下。
// 所有服务类型共享同一个工厂：单例实现在各服务类型之间共享实例。
func RegisterAll[TImpl any](c *Container, services []reflect.Type, opts ...Option) {
	r := applyOptions(opts)
	implType := TypeOf[TImpl]()
	if r.implType == nil {
		r.implType = implType
	}

	f, err := r.factoryFor(implType)
	if err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", implType, err))
	}

	for _, svc := range append([]reflect.Type{implType}, services...) {
		if _, err := c.Register(f, svc, r.key); err != nil {
			panic(fmt.Sprintf("di: failed to register %v as %v: %v", implType, svc, err))
		}
	}
}

// RegisterDelegate 注册工厂委托。
// 委托作为常量嵌入表达式，执行期经容器弱引用取得解析器。
func RegisterDelegate[T any](c *Container, fn func(*Container) (T, error), opts ...Option) {
	r := applyOptions(opts)
	serviceType := TypeOf[T]()

	invoke := func(w *weakRef, f func(*Container) (T, error)) (T, error) {
		resolver, err := w.Get()
		if err != nil {
			var zero T
			return zero, err
		}
		return f(resolver)
	}

	setup := r.serviceSetup()
	factory := NewDelegateFactory(func(_ *Request, c *Container) (Expression, error) {
		return newCallExpr(reflect.ValueOf(invoke), []Expression{
			&ConstExpr{Index: constWeakSelf, typ: weakRefType},
			c.GetConstantExpression(fn, reflect.TypeOf(fn)),
		}), nil
	}, r.reuse, setup, serviceType)

	if _, err := c.Register(factory, serviceType, r.key); err != nil {
		panic(fmt.Sprintf("di: failed to register delegate for %v: %v", serviceType, err))
	}
}

// RegisterInstance 把已创建的实例注册为服务（捕获到常量表的瞬态闭包）。
func RegisterInstance[T any](c *Container, instance T, opts ...Option) {
	r := applyOptions(opts)
	serviceType := TypeOf[T]()

	setup := r.serviceSetup()
	factory := NewDelegateFactory(func(_ *Request, c *Container) (Expression, error) {
		return c.GetConstantExpression(instance, serviceType), nil
	}, Transient, setup, serviceType)

	if _, err := c.Register(factory, serviceType, r.key); err != nil {
		panic(fmt.Sprintf("di: failed to register instance of %v: %v", serviceType, err))
	}
}

// RegisterDecorator 注册装饰器：ctor 接收被装饰的 T（可带其他依赖）并返回 T。
func RegisterDecorator[T any](c *Container, ctor any, opts ...Option) {
	r := applyOptions(opts)
	serviceType := TypeOf[T]()

	f, err := NewReflectionFactoryCtor(ctor, Transient, SetupDecorator(r.condition))
	if err == nil {
		_, err = c.Register(f, serviceType, nil)
	}
	if err != nil {
		panic(fmt.Sprintf("di: failed to register decorator for %v: %v", serviceType, err))
	}
}

// RegisterFuncDecorator 注册 func(T) T 形式的装饰函数，
// 存放在该函数类型下并作为一元变换参与组合。
func RegisterFuncDecorator[T any](c *Container, wrap func(T) T, opts ...Option) {
	r := applyOptions(opts)
	funcType := reflect.TypeOf(wrap)

	factory := NewDelegateFactory(func(_ *Request, c *Container) (Expression, error) {
		return c.GetConstantExpression(wrap, funcType), nil
	}, Transient, SetupDecorator(r.condition), funcType)

	if _, err := c.Register(factory, funcType, nil); err != nil {
		panic(fmt.Sprintf("di: failed to register func decorator for %v: %v", funcType, err))
	}
}

// ---------------------------------------------------------------------------
// 泛型解析入口

// Resolve 解析类型 T 的默认注册。
func Resolve[T any](c *Container) (T, error) {
	return castResolved[T](c.Resolve(TypeOf[T]()))
}

// MustResolve 解析失败时 panic。
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// ResolveNamed 按名称解析类型 T。
func ResolveNamed[T any](c *Container, name string) (T, error) {
	return castResolved[T](c.ResolveKeyed(TypeOf[T](), name))
}

// ResolveKeyedAs 按任意键解析类型 T。
func ResolveKeyedAs[T any](c *Container, key any) (T, error) {
	return castResolved[T](c.ResolveKeyed(TypeOf[T](), key))
}

// ResolveMany 解析 []T：对当前注册集合的快照逐项求值。
func ResolveMany[T any](c *Container) ([]T, error) {
	return castResolved[[]T](c.Resolve(TypeOf[[]T]()))
}

// ResolveFunc 解析 func() T 包装器。
func ResolveFunc[T any](c *Container) (func() T, error) {
	return castResolved[func() T](c.Resolve(TypeOf[func() T]()))
}

// ResolveLazy 解析 *Lazy[T] 包装器。
func ResolveLazy[T any](c *Container) (*Lazy[T], error) {
	return castResolved[*Lazy[T]](c.Resolve(TypeOf[*Lazy[T]]()))
}

func castResolved[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("di: resolved value is %T, expected %v", v, TypeOf[T]())
	}
	return t, nil
}
