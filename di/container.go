package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// IfUnresolved 控制解析未命中时的行为。
type IfUnresolved int

const (
	// IfUnresolvedThrow 未命中返回 ErrUnableToResolve。
	IfUnresolvedThrow IfUnresolved = iota
	// IfUnresolvedReturnNil 未命中返回 nil。
	// 只抑制解析未命中；结构性/校验失败仍然报错。
	IfUnresolvedReturnNil
)

type namedFactory struct {
	name string
	f    *Factory
}

// factoriesEntry 单个服务类型的注册槽。
// 默认注册先占 lastDefault，第二个默认注册时提升为按插入序号索引的树；
// 命名注册保持插入顺序。
type factoriesEntry struct {
	lastDefault     *Factory
	defaults        *hashTree[int, *Factory]
	maxDefaultIndex int
	named           []namedFactory
}

func (e *factoriesEntry) addDefault(f *Factory) {
	if e.lastDefault == nil && e.defaults == nil {
		e.lastDefault = f
		return
	}
	if e.defaults == nil {
		// 第二个默认注册：提升为索引表
		e.defaults = e.defaults.AddOrUpdate(0, 0, e.lastDefault)
		e.maxDefaultIndex = 1
	}
	e.defaults = e.defaults.AddOrUpdate(uint32(e.maxDefaultIndex), e.maxDefaultIndex, f)
	e.maxDefaultIndex++
	e.lastDefault = f
}

func (e *factoriesEntry) addIndexed(index int, f *Factory) {
	if e.defaults == nil && e.lastDefault != nil {
		e.defaults = e.defaults.AddOrUpdate(0, 0, e.lastDefault)
		e.maxDefaultIndex = 1
	}
	e.defaults = e.defaults.AddOrUpdate(uint32(index), index, f)
	if index >= e.maxDefaultIndex {
		e.maxDefaultIndex = index + 1
	}
	e.lastDefault = f
}

func (e *factoriesEntry) findNamed(name string) *Factory {
	for _, n := range e.named {
		if n.name == name {
			return n.f
		}
	}
	return nil
}

func (e *factoriesEntry) orderedDefaults() []*Factory {
	if e.defaults == nil {
		if e.lastDefault != nil {
			return []*Factory{e.lastDefault}
		}
		return nil
	}
	var out []*Factory
	e.defaults.Enumerate(func(_ int, f *Factory) bool {
		out = append(out, f)
		return true
	})
	return out
}

// DecoratorEntry 装饰器表条目：工厂加惰性记忆化的 func(T)T 表达式。
type DecoratorEntry struct {
	factory *Factory

	// cachedExpr 该装饰器自身的 λ 体，按条目记忆化（shared.mu 保护）。
	cachedExpr Expression

	// generic 开放泛型装饰器按封闭类型特化后登记在 specialized。
	generic     bool
	specialized map[reflect.Type]*DecoratorEntry
}

// containerShared 父容器与 OpenScope 子容器共享的部分。
type containerShared struct {
	mu                sync.Mutex
	factories         map[reflect.Type]*factoriesEntry
	generics          map[string]*Factory
	decorators        map[reflect.Type][]*DecoratorEntry
	genericDecorators map[string][]*DecoratorEntry
	rules             *Rules
	store             *constStore
	singleton         *Scope
	errFormat         ErrorFormatter

	defaultCache ref[reflect.Type, CompiledFactory]
	keyedCache   ref[typeKey, CompiledFactory]
	exprCache    ref[int, Expression]
}

// weakRef 编译表达式持有的容器弱引用。
// 所属容器（根或子容器）关闭时清空；失活后的访问返回 ErrContainerIsGarbageCollected。
type weakRef struct {
	p atomic.Pointer[Container]
}

// Get 返回存活的容器。
func (w *weakRef) Get() (*Container, error) {
	c := w.p.Load()
	if c == nil {
		return nil, &ContainerError{Kind: ErrContainerIsGarbageCollected, Message: ErrContainerIsGarbageCollected.Error()}
	}
	return c, nil
}

func (w *weakRef) clear() { w.p.Store(nil) }

// Container 注册表与解析器。多个 goroutine 可并发解析同一容器；
// 注册表由容器级互斥锁保护，解析缓存为无锁读加 CAS 写的持久哈希树。
type Container struct {
	shared   *containerShared
	current  *Scope
	weakSelf *weakRef
	state    *State
	isRoot   bool
	closed   atomic.Bool
}

// NewContainer 创建容器。不带参数时应用默认设置（内置包装器与切片规则）；
// 传入 di.Minimal 得到裸容器；任意 func(*Container) 都可作为设置函数。
func NewContainer(setup ...func(*Container)) *Container {
	shared := &containerShared{
		factories:         make(map[reflect.Type]*factoriesEntry),
		generics:          make(map[string]*Factory),
		decorators:        make(map[reflect.Type][]*DecoratorEntry),
		genericDecorators: make(map[string][]*DecoratorEntry),
		rules:             newRules(),
		store:             &constStore{},
		singleton:         NewScope(),
	}
	c := &Container{
		shared:   shared,
		current:  NewScope(),
		weakSelf: &weakRef{},
		isRoot:   true,
	}
	c.weakSelf.p.Store(c)
	c.state = &State{slots: [reservedConstants]any{c.weakSelf, shared.singleton, c.current}, store: shared.store}

	if len(setup) == 0 {
		DefaultSetup(c)
	} else {
		for _, s := range setup {
			s(c)
		}
	}
	return c
}

// Minimal 裸容器设置：不安装任何内置包装器。
func Minimal(*Container) {}

// Rules 返回容器的解析规则。规则应在开始解析前配置完毕。
func (c *Container) Rules() *Rules { return c.shared.rules }

// SetErrorFormatter 替换错误构造函数。
func (c *Container) SetErrorFormatter(f ErrorFormatter) {
	c.shared.errFormat = f
}

// SingletonScope 单例作用域，父子容器共享。
func (c *Container) SingletonScope() *Scope { return c.shared.singleton }

// CurrentScope 当前作用域，每容器独立。
func (c *Container) CurrentScope() *Scope { return c.current }

// WeakSelf 容器的弱自引用，供延迟到执行期的表达式回连注册表。
func (c *Container) WeakSelf() *weakRef { return c.weakSelf }

// ---------------------------------------------------------------------------
// 注册

// Register 把工厂注册到服务类型与键下。
// 键为 nil（默认）、int（索引）或 string（名称，重名报错）。
// 装饰器设置的工厂进入装饰器表。
func (c *Container) Register(f *Factory, serviceType reflect.Type, key any) (*Factory, error) {
	if err := c.validateRegistration(f, serviceType); err != nil {
		return nil, err
	}

	c.shared.mu.Lock()
	if f.Setup.Kind == FactoryKindDecorator {
		c.shared.decorators[serviceType] = append(c.shared.decorators[serviceType], &DecoratorEntry{factory: f})
		c.shared.mu.Unlock()
		c.invalidateResolutionCache(serviceType, nil, true)
		// func(T)T 形式的装饰器影响 T 的解析结果
		if serviceType.Kind() == reflect.Func && serviceType.NumIn() == 1 && serviceType.NumOut() == 1 &&
			serviceType.In(0) == serviceType.Out(0) {
			c.invalidateResolutionCache(serviceType.In(0), nil, true)
		}
		return f, nil
	}

	entry := c.shared.factories[serviceType]
	if entry == nil {
		entry = &factoriesEntry{}
		c.shared.factories[serviceType] = entry
	}

	switch k := key.(type) {
	case nil:
		entry.addDefault(f)
	case int:
		entry.addIndexed(k, f)
	case string:
		if entry.findNamed(k) != nil {
			c.shared.mu.Unlock()
			return nil, c.errorf(ErrDuplicateServiceName, "service %v already registered with name %q", serviceType, k)
		}
		entry.named = append(entry.named, namedFactory{name: k, f: f})
	default:
		c.shared.mu.Unlock()
		return nil, fmt.Errorf("di: unsupported service key type %T (want nil, int or string)", key)
	}
	c.shared.mu.Unlock()

	c.invalidateResolutionCache(serviceType, key, false)
	return f, nil
}

func (c *Container) validateRegistration(f *Factory, serviceType reflect.Type) error {
	impl := f.ImplType
	if impl == nil || impl == serviceType {
		return nil
	}
	if impl.Kind() == reflect.Interface && impl != serviceType {
		return c.errorf(ErrExpectedNonAbstractImplType, "implementation %v for service %v", impl, serviceType)
	}
	if !impl.AssignableTo(serviceType) {
		return c.errorf(ErrExpectedImplAssignableToService, "implementation %v for service %v", impl, serviceType)
	}
	return nil
}

// RegisterGeneric 注册开放泛型族。
// family 是泛型族名（GenericFamilyOf 的结果，如 "pkg.Repo"），
// provide 负责封闭：按请求的封闭服务类型产出工厂。
// 封闭结果会注册在封闭类型下，后续解析复用同一封闭工厂。
func (c *Container) RegisterGeneric(family string, provide ProvideFactoryFunc, setup *Setup) (*Factory, error) {
	if family == "" {
		return nil, c.errorf(ErrOpenGenericMissingTypeArgs, "empty generic family name")
	}
	if strings.ContainsAny(family, "[]") {
		return nil, c.errorf(ErrOpenGenericImplWithNonGenericService,
			"family %q is a closed type, want an open family name from GenericFamilyOf", family)
	}
	if setup == nil {
		setup = SetupService()
	}
	f := NewProviderFactory(provide, setup)

	c.shared.mu.Lock()
	if setup.Kind == FactoryKindDecorator {
		c.shared.genericDecorators[family] = append(c.shared.genericDecorators[family], &DecoratorEntry{factory: f, generic: true})
	} else {
		c.shared.generics[family] = f
	}
	c.shared.mu.Unlock()
	return f, nil
}

// IsRegistered 报告服务是否已注册；给出 name 时检查命名注册。
func (c *Container) IsRegistered(serviceType reflect.Type, name ...string) bool {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	entry := c.shared.factories[serviceType]
	if entry == nil {
		return false
	}
	if len(name) > 0 && name[0] != "" {
		return entry.findNamed(name[0]) != nil
	}
	return entry.lastDefault != nil || entry.defaults != nil || len(entry.named) > 0
}

// invalidateResolutionCache 注册后使受影响的编译工厂失效（墓碑写入），
// 保证注册返回之后开始的解析看到新注册。
func (c *Container) invalidateResolutionCache(serviceType reflect.Type, key any, allKeys bool) {
	_ = c.shared.defaultCache.Swap(func(t *hashTree[reflect.Type, CompiledFactory]) *hashTree[reflect.Type, CompiledFactory] {
		t = t.AddOrUpdate(typeHash(serviceType), serviceType, nil)
		sliceT := reflect.SliceOf(serviceType)
		return t.AddOrUpdate(typeHash(sliceT), sliceT, nil)
	})

	var stale []typeKey
	if allKeys {
		c.shared.keyedCache.Load().Enumerate(func(k typeKey, cf CompiledFactory) bool {
			if cf != nil && k.typ == serviceType {
				stale = append(stale, k)
			}
			return true
		})
	} else if key != nil {
		stale = append(stale, typeKey{typ: serviceType, key: key})
	}
	if len(stale) > 0 {
		_ = c.shared.keyedCache.Swap(func(t *hashTree[typeKey, CompiledFactory]) *hashTree[typeKey, CompiledFactory] {
			for _, k := range stale {
				t = t.AddOrUpdate(typeKeyHash(k), k, nil)
			}
			return t
		})
	}
}

// ---------------------------------------------------------------------------
// 解析入口

// Resolve 解析默认注册的服务。
func (c *Container) Resolve(serviceType reflect.Type, ifUnresolved ...IfUnresolved) (any, error) {
	if cf, ok := c.shared.defaultCache.Load().Get(typeHash(serviceType), serviceType); ok && cf != nil {
		return cf(c.state, &ResolutionScope{})
	}
	return c.resolveSlow(serviceType, nil, mode(ifUnresolved))
}

// ResolveKeyed 按键解析服务。
func (c *Container) ResolveKeyed(serviceType reflect.Type, key any, ifUnresolved ...IfUnresolved) (any, error) {
	if key == nil {
		return c.Resolve(serviceType, ifUnresolved...)
	}
	tk := typeKey{typ: serviceType, key: key}
	if cf, ok := c.shared.keyedCache.Load().Get(typeKeyHash(tk), tk); ok && cf != nil {
		return cf(c.state, &ResolutionScope{})
	}
	return c.resolveSlow(serviceType, key, mode(ifUnresolved))
}

func mode(m []IfUnresolved) IfUnresolved {
	if len(m) > 0 {
		return m[0]
	}
	return IfUnresolvedThrow
}

func (c *Container) resolveSlow(serviceType reflect.Type, key any, ifUnresolved IfUnresolved) (any, error) {
	if c.closed.Load() {
		return nil, &ContainerError{Kind: ErrContainerIsGarbageCollected, Message: ErrContainerIsGarbageCollected.Error()}
	}

	req := newRequest(c, serviceType, key)
	f, err := c.getOrAddFactory(req, ifUnresolved)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	expr, err := f.GetExpression(req, c)
	if err != nil {
		return nil, err
	}
	cf := compileFactory(expr)

	if key == nil {
		if err := c.shared.defaultCache.Swap(func(t *hashTree[reflect.Type, CompiledFactory]) *hashTree[reflect.Type, CompiledFactory] {
			return t.AddOrUpdate(typeHash(serviceType), serviceType, cf)
		}); err != nil {
			return nil, err
		}
	} else {
		tk := typeKey{typ: serviceType, key: key}
		if err := c.shared.keyedCache.Swap(func(t *hashTree[typeKey, CompiledFactory]) *hashTree[typeKey, CompiledFactory] {
			return t.AddOrUpdate(typeKeyHash(tk), tk, cf)
		}); err != nil {
			return nil, err
		}
	}

	return cf(c.state, &ResolutionScope{})
}

// ---------------------------------------------------------------------------
// 工厂定位（解析管线 §工厂选择）

// getOrAddFactory 定位请求的工厂：精确类型 → 泛型族 → 未注册规则。
// 提供器工厂按请求封闭并记忆化注册到封闭类型下。
func (c *Container) getOrAddFactory(req *Request, ifUnresolved IfUnresolved) (*Factory, error) {
	f, err := c.lookupFactory(req)
	if err != nil {
		return nil, err
	}

	if f != nil && f.ProvidesFactoryPerRequest {
		closed, err := f.FactoryPerRequest(req, c)
		if err != nil {
			return nil, err
		}
		switch {
		case closed == nil:
			// 不适用（如元数据未命中）：落入未注册服务规则
			f = nil
		case closed != f:
			if req.ServiceKey == nil {
				if _, err := c.Register(closed, req.ServiceType, nil); err != nil {
					return nil, err
				}
			}
			f = closed
		}
	}

	if f == nil {
		for _, rule := range c.Rules().UnregisteredServices {
			rf, err := rule(req, c)
			if err != nil {
				return nil, err
			}
			if rf != nil {
				if _, err := c.Register(rf, req.ServiceType, req.ServiceKey); err != nil {
					return nil, err
				}
				f = rf
				break
			}
		}
	}

	if f == nil && ifUnresolved == IfUnresolvedThrow {
		return nil, c.errorf(ErrUnableToResolve, "%s", req)
	}
	return f, nil
}

func (c *Container) lookupFactory(req *Request) (*Factory, error) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()

	t := req.ServiceType
	if entry := c.shared.factories[t]; entry != nil {
		f, err := c.selectFromEntry(entry, req)
		if err != nil || f != nil {
			return f, err
		}
	}

	if fam := genericFamilyOf(t); fam != "" {
		if pf := c.shared.generics[fam]; pf != nil {
			return pf, nil
		}
	}
	return nil, nil
}

func (c *Container) selectFromEntry(entry *factoriesEntry, req *Request) (*Factory, error) {
	switch k := req.ServiceKey.(type) {
	case nil:
		if entry.defaults != nil {
			ordered := entry.orderedDefaults()
			if len(ordered) == 1 {
				return ordered[0], nil
			}
			if pick := c.shared.rules.SingleDefaultFactory; pick != nil {
				if f := pick(req, ordered); f != nil {
					return f, nil
				}
			}
			return nil, c.errorf(ErrExpectedSingleDefaultFactory, "%d default registrations for %v\n  in %s",
				len(ordered), req.ServiceType, req)
		}
		return entry.lastDefault, nil
	case int:
		if entry.defaults != nil {
			f, _ := entry.defaults.Get(uint32(k), k)
			return f, nil
		}
		if k == 0 {
			return entry.lastDefault, nil
		}
		return nil, nil
	case string:
		return entry.findNamed(k), nil
	default:
		return nil, nil
	}
}

// genericFamilyOf 命名泛型实例化的族名：类型字符串去掉参数表。
// 指针解引用到元素类型；非泛型或匿名组合类型返回空串。
func genericFamilyOf(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return genericFamilyOf(t.Elem())
	}
	if t.Name() == "" {
		return ""
	}
	s := t.String()
	if i := strings.IndexByte(s, '['); i > 0 {
		return s[:i]
	}
	return ""
}

// GenericFamilyOf 返回封闭泛型实例化类型的族名，供 RegisterGeneric 使用。
func GenericFamilyOf(t reflect.Type) string { return genericFamilyOf(t) }

// ---------------------------------------------------------------------------
// 键枚举与包装解包

// GetKeys 按注册顺序返回服务类型的所有键：
// 单个默认注册产出 nil，多个默认注册产出插入序号，命名注册产出名称。
// pred 非空时按工厂过滤。
func (c *Container) GetKeys(serviceType reflect.Type, pred func(*Factory) bool) []any {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()

	entry := c.shared.factories[serviceType]
	if entry == nil {
		return nil
	}
	var keys []any
	if entry.defaults != nil {
		entry.defaults.Enumerate(func(i int, f *Factory) bool {
			if pred == nil || pred(f) {
				keys = append(keys, i)
			}
			return true
		})
	} else if entry.lastDefault != nil {
		if pred == nil || pred(entry.lastDefault) {
			keys = append(keys, nil)
		}
	}
	for _, n := range entry.named {
		if pred == nil || pred(n.f) {
			keys = append(keys, n.name)
		}
	}
	return keys
}

// GetFactoryOrDefault 返回键对应的已注册工厂，未注册时为 nil。
// 不触发提供器特化和未注册服务规则。
func (c *Container) GetFactoryOrDefault(serviceType reflect.Type, key any) *Factory {
	return c.factoryForKey(serviceType, key)
}

// factoryForKey 返回键对应的工厂，不触发提供器特化和未注册规则。
func (c *Container) factoryForKey(serviceType reflect.Type, key any) *Factory {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	entry := c.shared.factories[serviceType]
	if entry == nil {
		return nil
	}
	switch k := key.(type) {
	case nil:
		return entry.lastDefault
	case int:
		if entry.defaults != nil {
			f, _ := entry.defaults.Get(uint32(k), k)
			return f
		}
		if k == 0 {
			return entry.lastDefault
		}
	case string:
		return entry.findNamed(k)
	}
	return nil
}

// GetWrappedServiceTypeOrSelf 解开泛型包装链（[]T、func() T、Lazy 等），
// 返回最终的被包装服务类型。
func (c *Container) GetWrappedServiceTypeOrSelf(t reflect.Type) reflect.Type {
	for {
		switch {
		case t.Kind() == reflect.Slice:
			t = t.Elem()
		case t.Kind() == reflect.Func && t.NumOut() >= 1:
			t = t.Out(0)
		default:
			if wrapped, ok := c.wrapperArgOf(t); ok {
				t = wrapped
				continue
			}
			return t
		}
	}
}

// ---------------------------------------------------------------------------
// 常量表与表达式缓存

// GetConstantExpression 返回（必要时插入）常量的索引表达式。
func (c *Container) GetConstantExpression(v any, typ reflect.Type) *ConstExpr {
	return &ConstExpr{Index: c.shared.store.getOrAdd(v), typ: typ}
}

func (c *Container) cachedFactorExpression(factoryID int) Expression {
	e, _ := c.shared.exprCache.Load().Get(intHash(factoryID), factoryID)
	return e
}

func (c *Container) cacheFactorExpression(factoryID int, expr Expression) error {
	return c.shared.exprCache.Swap(func(t *hashTree[int, Expression]) *hashTree[int, Expression] {
		return t.AddOrUpdate(intHash(factoryID), factoryID, expr)
	})
}

// ---------------------------------------------------------------------------
// 装饰器组合

// decoratorExpressionOrNil 为服务请求构建装饰表达式。
// 先折叠 func(T)T 装饰器，再按注册序套用直接装饰器
//（具体条目在前，开放泛型条目特化后登记为封闭条目）。
// 返回 λ（待对被装饰表达式求值）或完全替换表达式；无装饰时为 nil。
func (c *Container) decoratorExpressionOrNil(req *Request) (Expression, error) {
	if req.FactoryKind != FactoryKindService {
		return nil, nil
	}
	if req.isDecorated(req.FactoryID) {
		return nil, nil
	}

	t := req.ServiceType
	funcT := reflect.FuncOf([]reflect.Type{t}, []reflect.Type{t}, false)

	c.shared.mu.Lock()
	funcEntries := append([]*DecoratorEntry(nil), c.shared.decorators[funcT]...)
	direct := append([]*DecoratorEntry(nil), c.shared.decorators[t]...)
	var generic []*DecoratorEntry
	if fam := genericFamilyOf(t); fam != "" {
		generic = append(generic, c.shared.genericDecorators[fam]...)
	}
	c.shared.mu.Unlock()

	if len(funcEntries) == 0 && len(direct) == 0 && len(generic) == 0 {
		return nil, nil
	}

	decReq := req.MakeDecorated()

	// 开放泛型装饰器：按封闭服务类型特化并记忆化为封闭条目
	for _, g := range generic {
		e, err := c.specializedDecorator(g, t, decReq)
		if err != nil {
			return nil, err
		}
		if e != nil {
			direct = append(direct, e)
		}
	}

	lam := newLambdaExpr(funcT)
	var body Expression = lam.Params()[0]
	paramLive := true
	applied := false

	apply := func(dexpr Expression) {
		if dexpr.Type() == funcT {
			body = &InvokeExpr{Target: dexpr, Args: []Expression{body}, typ: t}
		} else {
			// 非 λ 结果：完全替换运行中的表达式
			body = dexpr
			paramLive = false
		}
		applied = true
	}

	for _, e := range funcEntries {
		if !e.factory.Setup.applicable(decReq) {
			continue
		}
		dexpr, err := c.decoratorFuncExpr(e, decReq, funcT, t)
		if err != nil {
			return nil, err
		}
		apply(dexpr)
	}
	for _, e := range direct {
		if !e.factory.Setup.applicable(decReq) {
			continue
		}
		dexpr, err := c.decoratorFuncExpr(e, decReq, funcT, t)
		if err != nil {
			return nil, err
		}
		apply(dexpr)
	}

	if !applied {
		return nil, nil
	}
	if !paramLive {
		return body, nil
	}
	lam.Body = body
	return lam, nil
}

// specializedDecorator 返回开放泛型装饰器对封闭类型的条目（按类型记忆化）。
func (c *Container) specializedDecorator(g *DecoratorEntry, t reflect.Type, decReq *Request) (*DecoratorEntry, error) {
	c.shared.mu.Lock()
	if g.specialized == nil {
		g.specialized = make(map[reflect.Type]*DecoratorEntry)
	}
	if e, ok := g.specialized[t]; ok {
		c.shared.mu.Unlock()
		return e, nil
	}
	c.shared.mu.Unlock()

	closed, err := g.factory.FactoryPerRequest(decReq, c)
	if err != nil {
		return nil, err
	}
	if closed == nil {
		return nil, nil
	}

	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if e, ok := g.specialized[t]; ok {
		return e, nil
	}
	e := &DecoratorEntry{factory: closed}
	g.specialized[t] = e
	return e, nil
}

// decoratorFuncExpr 物化装饰器的 func(T)T 表达式，按条目记忆化。
// 反射装饰器把被装饰的 T 绑定到 λ 形参（factory-with-args 机制）；
// 委托装饰器直接使用其产出表达式。
func (c *Container) decoratorFuncExpr(e *DecoratorEntry, decReq *Request, funcT, t reflect.Type) (Expression, error) {
	c.shared.mu.Lock()
	cached := e.cachedExpr
	c.shared.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var expr Expression
	var err error
	if _, isReflection := e.factory.impl.(*reflectionFactory); isReflection {
		dlam := newLambdaExpr(funcT)
		dreq := decReq.Push(t, nil, nil)
		body, ferr := e.factory.funcArgsExpression(dreq, c, dlam)
		if ferr != nil {
			if errors.Is(ferr, ErrSomeFuncParamsAreUnused) {
				return nil, c.errorf(ErrDecoratorShouldSupportFuncResolution,
					"decorator %v takes no %v argument\n  in %s", e.factory.ImplType, t, decReq)
			}
			return nil, ferr
		}
		dlam.Body = body
		expr = dlam
	} else {
		dreq := decReq.Push(funcT, nil, nil)
		expr, err = e.factory.GetExpression(dreq, c)
		if err != nil {
			return nil, err
		}
	}

	c.shared.mu.Lock()
	e.cachedExpr = expr
	c.shared.mu.Unlock()
	return expr, nil
}

// ---------------------------------------------------------------------------
// 作用域容器与回退链

// OpenScope 打开作用域子容器：共享注册表、装饰器、缓存、常量存储和
// 单例作用域，但持有全新的当前作用域和弱自引用。
// 子容器的 scoped 服务落在自己的当前作用域里。
func (c *Container) OpenScope() *Container {
	child := &Container{
		shared:   c.shared,
		current:  NewScope(),
		weakSelf: &weakRef{},
		isRoot:   false,
	}
	child.weakSelf.p.Store(child)
	child.state = &State{
		slots: [reservedConstants]any{child.weakSelf, c.shared.singleton, child.current},
		store: c.shared.store,
	}
	return child
}

// ResolveUnregisteredFrom 安装回退规则：本容器未注册的服务
// 转向另一容器定位工厂，实现容器间的回退链。
func (c *Container) ResolveUnregisteredFrom(other *Container) {
	c.Rules().WithUnregisteredServiceRule(func(req *Request, _ *Container) (*Factory, error) {
		return other.getOrAddFactory(newRequest(other, req.ServiceType, req.ServiceKey), IfUnresolvedReturnNil)
	})
}

// Close 销毁容器：释放当前作用域并清空弱自引用；根容器额外释放单例作用域
// 并丢弃全部缓存。子容器关闭不触碰共享的单例作用域。
func (c *Container) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.current.Dispose()
	c.weakSelf.clear()
	if c.isRoot {
		c.shared.singleton.Dispose()
		c.shared.defaultCache.Reset()
		c.shared.keyedCache.Reset()
		c.shared.exprCache.Reset()
	}
}
