package di

// Reuse 生命周期策略：决定工厂表达式如何被复用包装。
type Reuse interface {
	Name() string
	apply(expr Expression, req *Request, c *Container) (Expression, error)
}

// Transient 瞬态：每次解析创建新实例，不做任何包装。
var Transient Reuse = transientReuse{}

// Singleton 单例：整个根容器生命周期内一个实例，父子容器共享。
var Singleton Reuse = singletonReuse{}

// InCurrentScope 当前作用域内单例：OpenScope 的父子容器各有一个实例。
var InCurrentScope Reuse = currentScopeReuse{}

// InResolutionScope 解析作用域内单例：一次顶层解析内共享，跨解析独立。
var InResolutionScope Reuse = resolutionScopeReuse{}

type transientReuse struct{}

func (transientReuse) Name() string { return "transient" }

func (transientReuse) apply(expr Expression, _ *Request, _ *Container) (Expression, error) {
	return expr, nil
}

type singletonReuse struct{}

func (singletonReuse) Name() string { return "singleton" }

// apply 单例复用。
// 链上存在函数型包装器时必须推迟构造（func/Lazy 的语义是延迟调用），
// 包装为单例作用域上按工厂 id 记忆化的 scoped-get。
// 否则立即编译表达式、对单例作用域求值，并用常量引用替换整个表达式 —— 急切捕获。
func (singletonReuse) apply(expr Expression, req *Request, c *Container) (Expression, error) {
	scoped := &ScopeGetExpr{Which: scopeSingleton, FactoryID: req.FactoryID, Inner: expr}
	if req.hasFuncWrapperAncestor() {
		return scoped, nil
	}

	cf := compileFactory(scoped)
	v, err := cf(c.state, &ResolutionScope{})
	if err != nil {
		return nil, err
	}
	return c.GetConstantExpression(v, expr.Type()), nil
}

type currentScopeReuse struct{}

func (currentScopeReuse) Name() string { return "current-scope" }

func (currentScopeReuse) apply(expr Expression, req *Request, _ *Container) (Expression, error) {
	return &ScopeGetExpr{Which: scopeCurrent, FactoryID: req.FactoryID, Inner: expr}, nil
}

type resolutionScopeReuse struct{}

func (resolutionScopeReuse) Name() string { return "resolution-scope" }

func (resolutionScopeReuse) apply(expr Expression, req *Request, _ *Container) (Expression, error) {
	return &ScopeGetExpr{Which: scopeResolution, FactoryID: req.FactoryID, Inner: expr}, nil
}
