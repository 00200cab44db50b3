package di

import (
	"fmt"
	"reflect"
	"sync"
)

// 常量表保留槽位。0..2 之后的槽位用于追加的用户常量。
const (
	constWeakSelf       = 0 // 容器的弱自引用
	constSingletonScope = 1 // 单例作用域（父子容器共享）
	constCurrentScope   = 2 // 当前作用域（每容器独立）
	reservedConstants   = 3
)

// constStore 追加式常量存储，父容器与 OpenScope 子容器共享，
// 保证编译后的工厂在任意一方的 State 上按相同下标取值。
type constStore struct {
	mu    sync.Mutex
	items []any
}

// getOrAdd 线性扫描已有常量，未命中时追加。只在表达式构建慢路径使用。
// 不可比较的值（函数、切片等）不去重，直接追加。
func (s *constStore) getOrAdd(v any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil || reflect.TypeOf(v).Comparable() {
		for i, item := range s.items {
			if item != nil && !reflect.TypeOf(item).Comparable() {
				continue
			}
			if item == v {
				return reservedConstants + i
			}
		}
	}
	s.items = append(s.items, v)
	return reservedConstants + len(s.items) - 1
}

func (s *constStore) get(i int) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[i-reservedConstants]
}

// State 编译后工厂的运行时输入：三个每容器槽位加共享常量存储。
// 父子容器的 State 下标兼容，但槽位 0 和 2 各自独立。
type State struct {
	slots [reservedConstants]any
	store *constStore
}

// Get 按下标取常量。
func (s *State) Get(i int) any {
	if i < reservedConstants {
		return s.slots[i]
	}
	return s.store.get(i)
}

// CompiledFactory 编译后的构造闭包。
// 同一次顶层解析中的嵌套调用共享 ResolutionScope 槽位。
type CompiledFactory func(state *State, res *ResolutionScope) (any, error)

type paramFrame struct {
	owner *LambdaExpr
	vals  []reflect.Value
	next  *paramFrame
}

type evalEnv struct {
	state  *State
	res    *ResolutionScope
	params *paramFrame
}

type evalFn func(env *evalEnv) (reflect.Value, error)

// Expression 语言中立的构造 IR 节点。
// 每个节点能编译为求值闭包；整棵树通过 compileFactory 降低为 CompiledFactory。
type Expression interface {
	// Type 表达式产出值的类型。
	Type() reflect.Type
	compile() evalFn
	exprString() string
}

// compileFactory 把表达式树一次性降低为闭包。
func compileFactory(e Expression) CompiledFactory {
	f := e.compile()
	return func(state *State, res *ResolutionScope) (any, error) {
		v, err := f(&evalEnv{state: state, res: res})
		if err != nil {
			return nil, err
		}
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	}
}

func coerce(v reflect.Value, t reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(t)
	}
	if v.Type() == t || v.Type().AssignableTo(t) {
		return v
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t)
	}
	return v
}

// ---------------------------------------------------------------------------
// 常量索引

// ConstExpr 按下标引用容器常量表。
type ConstExpr struct {
	Index int
	typ   reflect.Type
}

func (e *ConstExpr) Type() reflect.Type { return e.typ }

func (e *ConstExpr) compile() evalFn {
	idx, typ := e.Index, e.typ
	return func(env *evalEnv) (reflect.Value, error) {
		v := env.state.Get(idx)
		if v == nil {
			return reflect.Zero(typ), nil
		}
		return reflect.ValueOf(v), nil
	}
}

func (e *ConstExpr) exprString() string { return fmt.Sprintf("const[%d]:%s", e.Index, e.typ) }

// ---------------------------------------------------------------------------
// 函数调用（构造函数或任意 func 值）

// CallExpr 调用 Fn，取第一个返回值；
// 末位 error 返回值非 nil 时中止求值（与工厂函数约定一致）。
type CallExpr struct {
	Fn   reflect.Value
	Args []Expression
	typ  reflect.Type
}

func newCallExpr(fn reflect.Value, args []Expression) *CallExpr {
	return &CallExpr{Fn: fn, Args: args, typ: fn.Type().Out(0)}
}

func (e *CallExpr) Type() reflect.Type { return e.typ }

func (e *CallExpr) compile() evalFn {
	fn := e.Fn
	ft := fn.Type()
	argFns := make([]evalFn, len(e.Args))
	for i, a := range e.Args {
		argFns[i] = a.compile()
	}
	return func(env *evalEnv) (reflect.Value, error) {
		args := make([]reflect.Value, len(argFns))
		for i, af := range argFns {
			v, err := af(env)
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = coerce(v, ft.In(i))
		}
		results := fn.Call(args)
		if n := len(results); n > 1 {
			if last := results[n-1]; last.Type() == errorType && !last.IsNil() {
				return reflect.Value{}, last.Interface().(error)
			}
		}
		return results[0], nil
	}
}

func (e *CallExpr) exprString() string { return fmt.Sprintf("call %s", e.Fn.Type()) }

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ---------------------------------------------------------------------------
// 结构体构造与成员绑定

// FieldBind 成员赋值：结构体字段下标与其值表达式。
type FieldBind struct {
	Index int
	Expr  Expression
}

// StructExpr 构造结构体并绑定字段。Ptr 为 true 时产出 *Struct。
type StructExpr struct {
	Struct reflect.Type
	Ptr    bool
	Binds  []FieldBind
}

func (e *StructExpr) Type() reflect.Type {
	if e.Ptr {
		return reflect.PointerTo(e.Struct)
	}
	return e.Struct
}

func (e *StructExpr) compile() evalFn {
	styp, ptr := e.Struct, e.Ptr
	binds := make([]struct {
		idx int
		fn  evalFn
		ft  reflect.Type
	}, len(e.Binds))
	for i, b := range e.Binds {
		binds[i].idx = b.Index
		binds[i].fn = b.Expr.compile()
		binds[i].ft = styp.Field(b.Index).Type
	}
	return func(env *evalEnv) (reflect.Value, error) {
		pv := reflect.New(styp)
		elem := pv.Elem()
		for _, b := range binds {
			v, err := b.fn(env)
			if err != nil {
				return reflect.Value{}, err
			}
			elem.Field(b.idx).Set(coerce(v, b.ft))
		}
		if ptr {
			return pv, nil
		}
		return elem, nil
	}
}

func (e *StructExpr) exprString() string { return fmt.Sprintf("new %s", e.Type()) }

// InitExpr 在内层表达式产出的 *Struct 上追加成员绑定。
type InitExpr struct {
	Inner Expression
	Binds []FieldBind
}

func (e *InitExpr) Type() reflect.Type { return e.Inner.Type() }

func (e *InitExpr) compile() evalFn {
	inner := e.Inner.compile()
	binds := make([]struct {
		idx int
		fn  evalFn
	}, len(e.Binds))
	for i, b := range e.Binds {
		binds[i].idx = b.Index
		binds[i].fn = b.Expr.compile()
	}
	return func(env *evalEnv) (reflect.Value, error) {
		v, err := inner(env)
		if err != nil {
			return reflect.Value{}, err
		}
		elem := v
		if elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		for _, b := range binds {
			fv, err := b.fn(env)
			if err != nil {
				return reflect.Value{}, err
			}
			field := elem.Field(b.idx)
			field.Set(coerce(fv, field.Type()))
		}
		return v, nil
	}
}

func (e *InitExpr) exprString() string { return "init " + e.Inner.exprString() }

// ---------------------------------------------------------------------------
// 函数抽象与应用

// LambdaExpr 函数抽象：编译为 reflect.MakeFunc 合成的函数值。
// 函数签名末位为 error 时错误通过返回值传出，否则以 panic 抛出。
type LambdaExpr struct {
	FuncType reflect.Type
	Body     Expression
	params   []*ParamExpr
}

// newLambdaExpr 创建 λ 节点；Body 由调用方在拿到参数节点后填充。
func newLambdaExpr(funcType reflect.Type) *LambdaExpr {
	l := &LambdaExpr{FuncType: funcType}
	l.params = make([]*ParamExpr, funcType.NumIn())
	for i := range l.params {
		l.params[i] = &ParamExpr{lambda: l, index: i, typ: funcType.In(i)}
	}
	return l
}

// Params λ 的形参节点，Body 通过它们引用实参。
func (e *LambdaExpr) Params() []*ParamExpr { return e.params }

func (e *LambdaExpr) Type() reflect.Type { return e.FuncType }

func (e *LambdaExpr) compile() evalFn {
	ft := e.FuncType
	bodyFn := e.Body.compile()
	lam := e
	numOut := ft.NumOut()
	returnsErr := numOut > 1 && ft.Out(numOut-1) == errorType
	return func(env *evalEnv) (reflect.Value, error) {
		captured := *env
		fn := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
			callEnv := captured
			callEnv.params = &paramFrame{owner: lam, vals: args, next: captured.params}
			v, err := bodyFn(&callEnv)
			out := make([]reflect.Value, numOut)
			if err != nil {
				if !returnsErr {
					panic(err)
				}
				for i := 0; i < numOut-1; i++ {
					out[i] = reflect.Zero(ft.Out(i))
				}
				out[numOut-1] = reflect.ValueOf(err)
				return out
			}
			out[0] = coerce(v, ft.Out(0))
			for i := 1; i < numOut; i++ {
				out[i] = reflect.Zero(ft.Out(i))
			}
			return out
		})
		return fn, nil
	}
}

func (e *LambdaExpr) exprString() string { return fmt.Sprintf("lambda %s", e.FuncType) }

// ParamExpr λ 形参引用。
type ParamExpr struct {
	lambda *LambdaExpr
	index  int
	typ    reflect.Type
}

func (e *ParamExpr) Type() reflect.Type { return e.typ }

func (e *ParamExpr) compile() evalFn {
	lam, idx, typ := e.lambda, e.index, e.typ
	return func(env *evalEnv) (reflect.Value, error) {
		for f := env.params; f != nil; f = f.next {
			if f.owner == lam {
				return f.vals[idx], nil
			}
		}
		return reflect.Zero(typ), fmt.Errorf("di: unbound lambda parameter %d of %s", idx, typ)
	}
}

func (e *ParamExpr) exprString() string { return fmt.Sprintf("param[%d]:%s", e.index, e.typ) }

// InvokeExpr 函数应用：对 Target 产出的函数值求值并调用。
type InvokeExpr struct {
	Target Expression
	Args   []Expression
	typ    reflect.Type
}

func newInvokeExpr(target Expression, args []Expression) *InvokeExpr {
	return &InvokeExpr{Target: target, Args: args, typ: target.Type().Out(0)}
}

func (e *InvokeExpr) Type() reflect.Type { return e.typ }

func (e *InvokeExpr) compile() evalFn {
	targetFn := e.Target.compile()
	ft := e.Target.Type()
	argFns := make([]evalFn, len(e.Args))
	for i, a := range e.Args {
		argFns[i] = a.compile()
	}
	return func(env *evalEnv) (reflect.Value, error) {
		fn, err := targetFn(env)
		if err != nil {
			return reflect.Value{}, err
		}
		args := make([]reflect.Value, len(argFns))
		for i, af := range argFns {
			v, err := af(env)
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = coerce(v, ft.In(i))
		}
		results := fn.Call(args)
		if n := len(results); n > 1 {
			if last := results[n-1]; last.Type() == errorType && !last.IsNil() {
				return reflect.Value{}, last.Interface().(error)
			}
		}
		return results[0], nil
	}
}

func (e *InvokeExpr) exprString() string { return "invoke " + e.Target.exprString() }

// ---------------------------------------------------------------------------
// 切片构造与转换

// SliceExpr 构造 []Elem。
type SliceExpr struct {
	Elem  reflect.Type
	Items []Expression
}

func (e *SliceExpr) Type() reflect.Type { return reflect.SliceOf(e.Elem) }

func (e *SliceExpr) compile() evalFn {
	elem := e.Elem
	itemFns := make([]evalFn, len(e.Items))
	for i, it := range e.Items {
		itemFns[i] = it.compile()
	}
	return func(env *evalEnv) (reflect.Value, error) {
		s := reflect.MakeSlice(reflect.SliceOf(elem), len(itemFns), len(itemFns))
		for i, f := range itemFns {
			v, err := f(env)
			if err != nil {
				return reflect.Value{}, err
			}
			s.Index(i).Set(coerce(v, elem))
		}
		return s, nil
	}
}

func (e *SliceExpr) exprString() string { return fmt.Sprintf("slice []%s len %d", e.Elem, len(e.Items)) }

// ConvertExpr 条件转换：仅在内层类型与目标不兼容时执行转换。
type ConvertExpr struct {
	Inner Expression
	To    reflect.Type
}

func (e *ConvertExpr) Type() reflect.Type { return e.To }

func (e *ConvertExpr) compile() evalFn {
	inner := e.Inner.compile()
	to := e.To
	return func(env *evalEnv) (reflect.Value, error) {
		v, err := inner(env)
		if err != nil {
			return reflect.Value{}, err
		}
		return coerce(v, to), nil
	}
}

func (e *ConvertExpr) exprString() string { return fmt.Sprintf("convert to %s", e.To) }

// ---------------------------------------------------------------------------
// 作用域读取

type scopeSel int

const (
	scopeSingleton scopeSel = iota
	scopeCurrent
	scopeResolution
)

// ScopeGetExpr 把内层表达式包进 scope.GetOrAdd(factoryID, inner)。
// 单例与当前作用域取自常量槽位，解析作用域取自编译工厂的作用域参数。
type ScopeGetExpr struct {
	Which     scopeSel
	FactoryID int
	Inner     Expression
}

func (e *ScopeGetExpr) Type() reflect.Type { return e.Inner.Type() }

func (e *ScopeGetExpr) compile() evalFn {
	which, id, typ := e.Which, e.FactoryID, e.Inner.Type()
	inner := e.Inner.compile()
	return func(env *evalEnv) (reflect.Value, error) {
		var scope *Scope
		switch which {
		case scopeSingleton:
			scope, _ = env.state.Get(constSingletonScope).(*Scope)
		case scopeCurrent:
			scope, _ = env.state.Get(constCurrentScope).(*Scope)
		case scopeResolution:
			scope = env.res.init()
		}
		if scope == nil {
			return reflect.Value{}, &ContainerError{Kind: ErrScopeIsDisposed, Message: ErrScopeIsDisposed.Error()}
		}
		v, err := scope.GetOrAdd(id, func() (any, error) {
			rv, err := inner(env)
			if err != nil {
				return nil, err
			}
			if !rv.IsValid() {
				return nil, nil
			}
			return rv.Interface(), nil
		})
		if err != nil {
			return reflect.Value{}, err
		}
		if v == nil {
			return reflect.Zero(typ), nil
		}
		return reflect.ValueOf(v), nil
	}
}

func (e *ScopeGetExpr) exprString() string {
	return fmt.Sprintf("scoped(%d) %s", e.FactoryID, e.Inner.exprString())
}

// ExprString 返回表达式树的单行描述，用于诊断与 DebugExpr 包装器。
func ExprString(e Expression) string {
	if e == nil {
		return "<nil>"
	}
	return e.exprString()
}
