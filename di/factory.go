package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// 进程级单调工厂 id 计数器。
var factoryIDCounter atomic.Int64

func nextFactoryID() int {
	return int(factoryIDCounter.Add(1))
}

// Factory 注册的构造配方：公共头部（id、复用、设置、实现类型）加变体实现。
// 变体为反射工厂、委托工厂或按请求提供器之一。
type Factory struct {
	ID       int
	Reuse    Reuse
	Setup    *Setup
	ImplType reflect.Type

	impl factoryImpl

	// ProvidesFactoryPerRequest 提供器工厂按请求产出特化工厂。
	ProvidesFactoryPerRequest bool
}

type factoryImpl interface {
	createExpression(f *Factory, req *Request, c *Container) (Expression, error)
}

type perRequestProvider interface {
	factoryPerRequest(req *Request, c *Container) (*Factory, error)
}

func newFactory(impl factoryImpl, reuse Reuse, setup *Setup, implType reflect.Type) *Factory {
	if setup == nil {
		setup = SetupService()
	}
	if reuse == nil {
		reuse = Transient
	}
	f := &Factory{
		ID:       nextFactoryID(),
		Reuse:    reuse,
		Setup:    setup,
		ImplType: implType,
		impl:     impl,
	}
	_, f.ProvidesFactoryPerRequest = impl.(perRequestProvider)
	return f
}

// FactoryPerRequest 对提供器工厂执行按请求特化；非提供器返回自身。
func (f *Factory) FactoryPerRequest(req *Request, c *Container) (*Factory, error) {
	if p, ok := f.impl.(perRequestProvider); ok {
		return p.factoryPerRequest(req, c)
	}
	return f, nil
}

// GetExpression 工厂表达式入口：固化身份、套用装饰器、命中或构建
// 复用包装后的核心表达式，最后对 λ 形式的装饰器做应用。
func (f *Factory) GetExpression(req *Request, c *Container) (Expression, error) {
	req, err := req.ResolveTo(f)
	if err != nil {
		return nil, err
	}

	decor, err := c.decoratorExpressionOrNil(req)
	if err != nil {
		return nil, err
	}
	if decor != nil {
		if _, isLambda := decor.(*LambdaExpr); !isLambda {
			// 非 λ 装饰结果是完全替换
			return decor, nil
		}
	}

	var expr Expression
	if f.Setup.cache == couldCacheExpression {
		expr = c.cachedFactorExpression(f.ID)
	}
	if expr == nil {
		expr, err = f.impl.createExpression(f, req, c)
		if err != nil {
			return nil, err
		}
		expr, err = f.Reuse.apply(expr, req, c)
		if err != nil {
			return nil, err
		}
		if f.Setup.cache == couldCacheExpression {
			if err := c.cacheFactorExpression(f.ID, expr); err != nil {
				return nil, err
			}
		}
	}

	if decor != nil {
		expr = newInvokeExpr(decor.(*LambdaExpr), []Expression{expr})
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// 反射工厂

// reflectionFactory 通过构造函数或结构体字段注入构建实现类型。
type reflectionFactory struct {
	ctor         reflect.Value // 构造函数，可为零值
	structType   reflect.Type  // 无构造函数时的实现结构体（或其指针类型）
	injectFields bool
}

// NewReflectionFactoryCtor 以构造函数创建反射工厂。
// 函数至少返回一个值，末位可选 error；可变参数的构造函数不受支持。
func NewReflectionFactoryCtor(ctor any, reuse Reuse, setup *Setup) (*Factory, error) {
	fv := reflect.ValueOf(ctor)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		return nil, &ContainerError{Kind: ErrUnableToSelectConstructor,
			Message: fmt.Sprintf("%v: constructor must be a func with at least one result, got %v", ErrUnableToSelectConstructor, ft)}
	}
	if ft.IsVariadic() {
		return nil, &ContainerError{Kind: ErrUnableToSelectConstructor,
			Message: fmt.Sprintf("%v: variadic constructor %v", ErrUnableToSelectConstructor, ft)}
	}
	rf := &reflectionFactory{ctor: fv, injectFields: true}
	return newFactory(rf, reuse, setup, ft.Out(0)), nil
}

// NewReflectionFactoryType 以实现类型创建反射工厂（字段注入模式）。
func NewReflectionFactoryType(implType reflect.Type, reuse Reuse, setup *Setup) (*Factory, error) {
	elem := implType
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Interface {
		return nil, &ContainerError{Kind: ErrExpectedNonAbstractImplType,
			Message: fmt.Sprintf("%v: %v", ErrExpectedNonAbstractImplType, implType)}
	}
	rf := &reflectionFactory{structType: implType, injectFields: true}
	return newFactory(rf, reuse, setup, implType), nil
}

func (rf *reflectionFactory) createExpression(f *Factory, req *Request, c *Container) (Expression, error) {
	if rf.ctor.IsValid() {
		return rf.ctorExpression(f, req, c, nil, nil)
	}
	return rf.structExpression(f, req, c)
}

// ctorExpression 合成构造函数调用表达式。
// lam 非空时按「类型贪婪首配」把构造参数绑定到 λ 形参（factory-with-args）。
func (rf *reflectionFactory) ctorExpression(f *Factory, req *Request, c *Container, lam *LambdaExpr, usedParams []bool) (Expression, error) {
	ft := rf.ctor.Type()
	args := make([]Expression, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)

		if lam != nil {
			if p := matchLambdaParam(lam, usedParams, pt); p != nil {
				args[i] = p
				continue
			}
		}

		dep := &Dependency{Kind: DepCtorParam, Name: fmt.Sprintf("arg%d", i), Type: pt}
		childReq := rf.pushParam(f, req, c, pt, i, dep)

		pf, err := c.getOrAddFactory(childReq, IfUnresolvedThrow)
		if err != nil {
			return nil, err
		}
		args[i], err = pf.GetExpression(childReq, c)
		if err != nil {
			return nil, err
		}
	}

	var expr Expression = newCallExpr(rf.ctor, args)
	return rf.withMemberBinds(expr, req, c)
}

// pushParam 推导参数的服务键：规则优先；装饰器/包装器帧继承父键。
func (rf *reflectionFactory) pushParam(f *Factory, req *Request, c *Container, pt reflect.Type, index int, dep *Dependency) *Request {
	if key, ok := c.Rules().parameterKey(req, pt, index); ok {
		return req.Push(pt, key, dep)
	}
	if f.Setup.Kind != FactoryKindService {
		return req.PushPreservingKey(pt, dep)
	}
	return req.Push(pt, nil, dep)
}

// withMemberBinds 对指针结构体结果追加字段注入（di 标签驱动）。
func (rf *reflectionFactory) withMemberBinds(expr Expression, req *Request, c *Container) (Expression, error) {
	if !rf.injectFields {
		return expr, nil
	}
	rt := expr.Type()
	if rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return expr, nil
	}
	binds, err := c.fieldBinds(req, rt.Elem())
	if err != nil {
		return nil, err
	}
	if len(binds) == 0 {
		return expr, nil
	}
	return &InitExpr{Inner: expr, Binds: binds}, nil
}

// structExpression 字段注入模式：实例化结构体并绑定 di 标签字段。
func (rf *reflectionFactory) structExpression(_ *Factory, req *Request, c *Container) (Expression, error) {
	styp := rf.structType
	ptr := styp.Kind() == reflect.Pointer
	elem := styp
	if ptr {
		elem = styp.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, c.errorf(ErrNoPublicConstructor, "type %v has neither a constructor nor an injectable struct form\n  in %s", styp, req)
	}
	binds, err := c.fieldBinds(req, elem)
	if err != nil {
		return nil, err
	}
	return &StructExpr{Struct: elem, Ptr: ptr, Binds: binds}, nil
}

// matchLambdaParam 贪婪首配：返回第一个类型一致且未使用的 λ 形参。
func matchLambdaParam(lam *LambdaExpr, used []bool, pt reflect.Type) *ParamExpr {
	for i, p := range lam.Params() {
		if !used[i] && p.Type() == pt {
			used[i] = true
			return p
		}
	}
	return nil
}

// funcArgsExpression 为 func(A, ...) T 包装器合成 λ 体。
// 未被任何构造参数消费的 λ 形参视为无用并报错。
func (f *Factory) funcArgsExpression(req *Request, c *Container, lam *LambdaExpr) (Expression, error) {
	rf, ok := f.impl.(*reflectionFactory)
	if !ok || !rf.ctor.IsValid() {
		return nil, c.errorf(ErrUnsupportedFuncWithArgs,
			"factory for %v does not accept func arguments\n  in %s", req.ServiceType, req)
	}

	req, err := req.ResolveTo(f)
	if err != nil {
		return nil, err
	}

	used := make([]bool, len(lam.Params()))
	body, err := rf.ctorExpression(f, req, c, lam, used)
	if err != nil {
		return nil, err
	}

	var unused []string
	for i, u := range used {
		if !u {
			unused = append(unused, lam.Params()[i].Type().String())
		}
	}
	if len(unused) > 0 {
		return nil, c.errorf(ErrSomeFuncParamsAreUnused, "unused func params [%s]\n  in %s",
			strings.Join(unused, ", "), req)
	}

	expr, err := f.Reuse.apply(body, req, c)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// 委托工厂

// DelegateExpressionFunc 用户委托：按请求产出表达式。
type DelegateExpressionFunc func(req *Request, c *Container) (Expression, error)

type delegateFactory struct {
	fn DelegateExpressionFunc
}

// NewDelegateFactory 以表达式委托创建工厂。
func NewDelegateFactory(fn DelegateExpressionFunc, reuse Reuse, setup *Setup, implType reflect.Type) *Factory {
	return newFactory(&delegateFactory{fn: fn}, reuse, setup, implType)
}

func (df *delegateFactory) createExpression(_ *Factory, req *Request, c *Container) (Expression, error) {
	expr, err := df.fn(req, c)
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return nil, c.errorf(ErrDelegateReturnedNilExpression, "for %v\n  in %s", req.ServiceType, req)
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// 按请求提供器

// ProvideFactoryFunc 按请求返回特化工厂；返回 (nil, nil) 表示不适用，
// 查找将落入未注册服务规则。
type ProvideFactoryFunc func(req *Request, c *Container) (*Factory, error)

type providerFactory struct {
	provide ProvideFactoryFunc
}

// NewProviderFactory 创建按请求特化的提供器工厂（开放泛型、元数据匹配等）。
func NewProviderFactory(provide ProvideFactoryFunc, setup *Setup) *Factory {
	return newFactory(&providerFactory{provide: provide}, Transient, setup, nil)
}

func (pf *providerFactory) factoryPerRequest(req *Request, c *Container) (*Factory, error) {
	return pf.provide(req, c)
}

func (pf *providerFactory) createExpression(_ *Factory, req *Request, c *Container) (Expression, error) {
	// 提供器必须先由注册表特化为封闭工厂；直接求值说明服务类型未封闭。
	return nil, c.errorf(ErrExpectedClosedGenericServiceType, "for %v\n  in %s", req.ServiceType, req)
}
