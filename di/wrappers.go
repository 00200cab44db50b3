package di

import (
	"fmt"
	"reflect"
	"sync"
)

// ---------------------------------------------------------------------------
// 包装器类型

// Lazy 延迟解析的服务。New 由容器反射填充，Get 记忆化首次结果。
type Lazy[T any] struct {
	New func() (any, error)

	once  sync.Once
	value T
	err   error
}

// Get 返回被包装的服务，至多构造一次。
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		raw, err := l.New()
		if err != nil {
			l.err = err
			return
		}
		if raw == nil {
			return
		}
		v, ok := raw.(T)
		if !ok {
			l.err = fmt.Errorf("di: lazy value is %T, want %v", raw, reflect.TypeOf((*T)(nil)).Elem())
			return
		}
		l.value = v
	})
	return l.value, l.err
}

// Many 动态枚举：每次 Items 调用都经容器弱引用重新枚举注册键，
// 因此解析之后新增的注册也会出现在结果里（与切片的快照语义相反）。
type Many[T any] struct {
	Resolve func() ([]any, error)

	item [0]T
}

// Items 解析当前注册的全部条目。
func (m *Many[T]) Items() ([]T, error) {
	raw, err := m.Resolve()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("di: many item is %T, want %v", r, reflect.TypeOf((*T)(nil)).Elem())
		}
		out = append(out, v)
	}
	return out, nil
}

// Meta 服务与其注册元数据的配对。
type Meta[T, M any] struct {
	Value    T
	Metadata M
}

// DebugExpr 暴露服务的构造表达式 IR，用于诊断。
type DebugExpr[T any] struct {
	Expr Expression

	item [0]T
}

func (d *DebugExpr[T]) String() string { return ExprString(d.Expr) }

// ---------------------------------------------------------------------------
// 类型参数恢复

// wrapperTypeArg 从包装器结构体的标记字段恢复被包装的类型参数。
// setup.WrappedArg 显式指定字段下标；否则按标记字段（item/value）推断，
// 多个候选且未显式指定时报错。
func wrapperTypeArg(st reflect.Type, setup *Setup) (reflect.Type, error) {
	if setup != nil && setup.WrappedArg >= 0 {
		return markerElem(st.Field(setup.WrappedArg).Type), nil
	}
	var found []reflect.Type
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Name == "item" || f.Name == "value" {
			found = append(found, markerElem(f.Type))
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, &ContainerError{Kind: ErrUnableToFindOpenGenericImplTypeArg,
			Message: fmt.Sprintf("%v: no marker field on %v", ErrUnableToFindOpenGenericImplTypeArg, st)}
	default:
		return nil, &ContainerError{Kind: ErrWrapperExpectsSingleTypeArg,
			Message: fmt.Sprintf("%v: %v has %d candidate type args", ErrWrapperExpectsSingleTypeArg, st, len(found))}
	}
}

// markerElem [0]T 标记数组还原为 T。
func markerElem(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Array && t.Len() == 0 {
		return t.Elem()
	}
	return t
}

func structOf(t reflect.Type) (st reflect.Type, ptr bool) {
	if t.Kind() == reflect.Pointer {
		return t.Elem(), true
	}
	return t, false
}

func fieldIndex(st reflect.Type, name string) int {
	f, ok := st.FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("di: wrapper %v misses field %s", st, name))
	}
	return f.Index[0]
}

// wrapperArgOf 供包装解包使用：仅对注册为包装器族的类型恢复参数。
func (c *Container) wrapperArgOf(t reflect.Type) (reflect.Type, bool) {
	fam := genericFamilyOf(t)
	if fam == "" {
		return nil, false
	}
	c.shared.mu.Lock()
	pf := c.shared.generics[fam]
	c.shared.mu.Unlock()
	if pf == nil || pf.Setup.Kind != FactoryKindWrapper {
		return nil, false
	}
	st, _ := structOf(t)
	if st.Kind() != reflect.Struct {
		return nil, false
	}
	arg, err := wrapperTypeArg(st, pf.Setup)
	if err != nil {
		return nil, false
	}
	return arg, true
}

// ---------------------------------------------------------------------------
// 默认设置

var (
	lazyFamily  = GenericFamilyOf(reflect.TypeOf(Lazy[int]{}))
	manyFamily  = GenericFamilyOf(reflect.TypeOf(Many[int]{}))
	metaFamily  = GenericFamilyOf(reflect.TypeOf(Meta[int, int]{}))
	debugFamily = GenericFamilyOf(reflect.TypeOf(DebugExpr[int]{}))
)

// DefaultSetup 安装内置包装器：func/切片规则加 Lazy、Many、Meta、DebugExpr 族。
func DefaultSetup(c *Container) {
	c.Rules().
		WithUnregisteredServiceRule(funcWrapperRule).
		WithUnregisteredServiceRule(sliceWrapperRule)

	mustRegisterGeneric(c, lazyFamily, lazyProvider, SetupWrapper())
	mustRegisterGeneric(c, manyFamily, manyProvider, SetupWrapper())
	mustRegisterGeneric(c, debugFamily, debugExprProvider, SetupWrapper())

	metaSetup := SetupWrapper()
	metaSetup.WrappedArg = 0 // Value 字段
	mustRegisterGeneric(c, metaFamily, metaProvider, metaSetup)
}

func mustRegisterGeneric(c *Container, family string, provide ProvideFactoryFunc, setup *Setup) {
	if _, err := c.RegisterGeneric(family, provide, setup); err != nil {
		panic(err)
	}
}

// ---------------------------------------------------------------------------
// func 包装器

var anyErrFuncType = reflect.TypeOf((*func() (any, error))(nil)).Elem()

// funcWrapperRule 合成 func() T / func(A, ...) T / func(...) (T, error) 包装器。
// 额外实参按类型贪婪首配到被包装服务的构造参数。
func funcWrapperRule(req *Request, _ *Container) (*Factory, error) {
	t := req.ServiceType
	if t.Kind() != reflect.Func || t.IsVariadic() {
		return nil, nil
	}
	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != errorType {
			return nil, nil
		}
	default:
		return nil, nil
	}

	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		ft := req.ServiceType
		wrapped := ft.Out(0)
		lam := newLambdaExpr(ft)

		inner := req.PushPreservingKey(wrapped, nil)
		f, err := c.getOrAddFactory(inner, IfUnresolvedThrow)
		if err != nil {
			return nil, err
		}

		if ft.NumIn() == 0 {
			body, err := f.GetExpression(inner, c)
			if err != nil {
				return nil, err
			}
			lam.Body = body
			return lam, nil
		}

		body, err := f.funcArgsExpression(inner, c, lam)
		if err != nil {
			return nil, err
		}
		lam.Body = body
		return lam, nil
	}, Transient, SetupWrapper(), t), nil
}

// ---------------------------------------------------------------------------
// 切片（enumerable）规则

// sliceWrapperRule 为 []T 合成快照表达式：解析时枚举已注册键并逐个求值，
// 之后的注册不会出现（与 Many 相反）。组合模式保护：条目类型与非包装器
// 父帧相同时过滤父工厂自身。
func sliceWrapperRule(req *Request, _ *Container) (*Factory, error) {
	t := req.ServiceType
	if t.Kind() != reflect.Slice {
		return nil, nil
	}

	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		item := req.ServiceType.Elem()

		excludeID := 0
		if p := req.NonWrapperParent(); p != nil && p.ServiceType == item {
			excludeID = p.FactoryID
		}
		keys := c.GetKeys(item, func(f *Factory) bool {
			return excludeID == 0 || f.ID != excludeID
		})
		if len(keys) == 0 {
			return nil, c.errorf(ErrNoRegisteredEnumerableItems, "for item %v\n  in %s", item, req)
		}

		items := make([]Expression, 0, len(keys))
		for _, k := range keys {
			childReq := req.Push(item, k, nil)
			f, err := c.getOrAddFactory(childReq, IfUnresolvedReturnNil)
			if err != nil || f == nil {
				continue
			}
			e, err := f.GetExpression(childReq, c)
			if err != nil {
				continue
			}
			items = append(items, e)
		}
		if len(items) == 0 {
			return nil, c.errorf(ErrUnableToResolveEnumerableItems, "for item %v\n  in %s", item, req)
		}
		return &SliceExpr{Elem: item, Items: items}, nil
	}, Transient, SetupWrapper(), t), nil
}

// ---------------------------------------------------------------------------
// Lazy 提供器

func lazyProvider(req *Request, c *Container) (*Factory, error) {
	st, ptr := structOf(req.ServiceType)
	if !ptr || st.Kind() != reflect.Struct {
		return nil, nil
	}
	wrapped, err := wrapperTypeArg(st, nil)
	if err != nil {
		return nil, err
	}

	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		// 经 func() T 包装器递归：被包装服务的构造推迟到首次 Get
		funcT := reflect.FuncOf(nil, []reflect.Type{wrapped}, false)
		funcReq := req.PushPreservingKey(funcT, nil)
		ff, err := c.getOrAddFactory(funcReq, IfUnresolvedThrow)
		if err != nil {
			return nil, err
		}
		fexpr, err := ff.GetExpression(funcReq, c)
		if err != nil {
			return nil, err
		}
		newLam := newLambdaExpr(anyErrFuncType)
		newLam.Body = newInvokeExpr(fexpr, nil)
		return &StructExpr{
			Struct: st,
			Ptr:    true,
			Binds:  []FieldBind{{Index: fieldIndex(st, "New"), Expr: newLam}},
		}, nil
	}, Transient, SetupWrapper(), req.ServiceType), nil
}

// ---------------------------------------------------------------------------
// Many 提供器

var (
	weakRefType     = reflect.TypeOf((*weakRef)(nil))
	reflectTypeType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
)

// resolveManyItems 枚举期解析：每次调用都通过弱引用回到注册表，
// 因此结果反映最新的注册集合。容器已销毁时失败。
func resolveManyItems(w *weakRef, item reflect.Type, excludeID int, key any) ([]any, error) {
	c, err := w.Get()
	if err != nil {
		return nil, err
	}
	keys := c.GetKeys(item, func(f *Factory) bool {
		return excludeID == 0 || f.ID != excludeID
	})
	var out []any
	for _, k := range keys {
		if key != nil && k != key {
			continue
		}
		v, err := c.ResolveKeyed(item, k, IfUnresolvedReturnNil)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func manyProvider(req *Request, c *Container) (*Factory, error) {
	st, ptr := structOf(req.ServiceType)
	if !ptr || st.Kind() != reflect.Struct {
		return nil, nil
	}
	item, err := wrapperTypeArg(st, nil)
	if err != nil {
		return nil, err
	}

	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		excludeID := 0
		if p := req.NonWrapperParent(); p != nil && p.ServiceType == item {
			excludeID = p.FactoryID
		}

		resolveLam := newLambdaExpr(reflect.TypeOf((*func() ([]any, error))(nil)).Elem())
		resolveLam.Body = newCallExpr(reflect.ValueOf(resolveManyItems), []Expression{
			&ConstExpr{Index: constWeakSelf, typ: weakRefType},
			c.GetConstantExpression(item, reflectTypeType),
			c.GetConstantExpression(excludeID, reflect.TypeOf(0)),
			c.GetConstantExpression(req.ServiceKey, anyType),
		})

		return &StructExpr{
			Struct: st,
			Ptr:    true,
			Binds:  []FieldBind{{Index: fieldIndex(st, "Resolve"), Expr: resolveLam}},
		}, nil
	}, Transient, SetupWrapper(), req.ServiceType), nil
}

// ---------------------------------------------------------------------------
// Meta 提供器

// metaProvider 查找首个（或按键指定的）元数据可赋值给 M 的工厂。
// 元数据未命中不报错：提供器返回空，查找落入未注册服务规则。
func metaProvider(req *Request, c *Container) (*Factory, error) {
	st, ptr := structOf(req.ServiceType)
	if st.Kind() != reflect.Struct || st.NumField() < 2 {
		return nil, nil
	}
	serviceT := st.Field(0).Type
	metaT := st.Field(1).Type

	match := func(f *Factory) bool {
		return f.Setup.Metadata != nil && reflect.TypeOf(f.Setup.Metadata).AssignableTo(metaT)
	}

	var foundKey any
	var found *Factory
	if req.ServiceKey != nil {
		if f := c.factoryForKey(serviceT, req.ServiceKey); f != nil && match(f) {
			found, foundKey = f, req.ServiceKey
		}
	} else {
		for _, k := range c.GetKeys(serviceT, match) {
			if f := c.factoryForKey(serviceT, k); f != nil {
				found, foundKey = f, k
				break
			}
		}
	}
	if found == nil {
		// 元数据未命中：包装器不适用
		return nil, nil
	}

	metadata := found.Setup.Metadata
	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		childReq := req.Push(serviceT, foundKey, nil)
		serviceExpr, err := found.GetExpression(childReq, c)
		if err != nil {
			return nil, err
		}
		return &StructExpr{
			Struct: st,
			Ptr:    ptr,
			Binds: []FieldBind{
				{Index: 0, Expr: serviceExpr},
				{Index: 1, Expr: c.GetConstantExpression(metadata, metaT)},
			},
		}, nil
	}, Transient, SetupWrapper(), req.ServiceType), nil
}

// ---------------------------------------------------------------------------
// DebugExpr 提供器

var expressionType = reflect.TypeOf((*Expression)(nil)).Elem()

func debugExprProvider(req *Request, c *Container) (*Factory, error) {
	st, ptr := structOf(req.ServiceType)
	if !ptr || st.Kind() != reflect.Struct {
		return nil, nil
	}
	wrapped, err := wrapperTypeArg(st, nil)
	if err != nil {
		return nil, err
	}

	return NewDelegateFactory(func(req *Request, c *Container) (Expression, error) {
		inner := req.PushPreservingKey(wrapped, nil)
		f, err := c.getOrAddFactory(inner, IfUnresolvedThrow)
		if err != nil {
			return nil, err
		}
		serviceExpr, err := f.GetExpression(inner, c)
		if err != nil {
			return nil, err
		}
		return &StructExpr{
			Struct: st,
			Ptr:    true,
			Binds:  []FieldBind{{Index: fieldIndex(st, "Expr"), Expr: c.GetConstantExpression(serviceExpr, expressionType)}},
		}, nil
	}, Transient, SetupWrapper(), req.ServiceType), nil
}
