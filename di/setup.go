package di

// FactoryKind 区分工厂在解析链里扮演的角色。
type FactoryKind int

const (
	// FactoryKindService 普通服务工厂。
	FactoryKindService FactoryKind = iota
	// FactoryKindWrapper 泛型包装器工厂（func、Lazy、Many 等）。
	FactoryKindWrapper
	// FactoryKindDecorator 装饰器工厂。
	FactoryKindDecorator
)

func (k FactoryKind) String() string {
	switch k {
	case FactoryKindService:
		return "service"
	case FactoryKindWrapper:
		return "wrapper"
	case FactoryKindDecorator:
		return "decorator"
	default:
		return "unknown"
	}
}

type cachePolicy int

const (
	couldCacheExpression cachePolicy = iota
	shouldNotCacheExpression
)

// Setup 控制工厂的缓存策略、包装参数选择和装饰器适用性。
type Setup struct {
	Kind FactoryKind

	// Metadata 服务元数据，Meta 包装器按可赋值性匹配。
	Metadata any

	// Condition 装饰器适用性判定，nil 表示总是适用。
	Condition func(*Request) bool

	// WrappedArg 包装器结构体中被包装类型参数对应的字段下标。
	// -1 表示按标记字段自动推断；多参数包装器必须显式指定。
	WrappedArg int

	cache cachePolicy
}

// SetupService 默认的服务设置。
func SetupService() *Setup {
	return &Setup{Kind: FactoryKindService, WrappedArg: -1}
}

// SetupWrapper 包装器设置。包装器表达式按请求合成，不缓存。
func SetupWrapper() *Setup {
	return &Setup{Kind: FactoryKindWrapper, WrappedArg: -1, cache: shouldNotCacheExpression}
}

// SetupDecorator 装饰器设置。装饰器表达式从不进入工厂表达式缓存。
func SetupDecorator(condition func(*Request) bool) *Setup {
	return &Setup{Kind: FactoryKindDecorator, WrappedArg: -1, Condition: condition, cache: shouldNotCacheExpression}
}

// WithSetupMetadata 返回携带元数据的服务设置。
func (s *Setup) WithSetupMetadata(metadata any) *Setup {
	n := *s
	n.Metadata = metadata
	return &n
}

// NoCache 禁用该工厂的表达式缓存。
func (s *Setup) NoCache() *Setup {
	n := *s
	n.cache = shouldNotCacheExpression
	return &n
}

func (s *Setup) applicable(req *Request) bool {
	return s.Condition == nil || s.Condition(req)
}
