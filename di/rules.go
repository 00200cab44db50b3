package di

import "reflect"

// UnregisteredServiceRule 未注册服务钩子：返回非 nil 工厂即接管该请求。
type UnregisteredServiceRule func(req *Request, c *Container) (*Factory, error)

// ParameterKeyRule 为构造函数参数推导服务键。
type ParameterKeyRule func(req *Request, paramType reflect.Type, index int) (any, bool)

// FieldKeyRule 为注入字段推导服务键。
type FieldKeyRule func(req *Request, field reflect.StructField) (any, bool)

// Rules 容器的可插拔解析规则。
type Rules struct {
	// UnregisteredServices 按序查询，首个非 nil 结果胜出。
	// 内置的切片（enumerable）规则也安装在这里。
	UnregisteredServices []UnregisteredServiceRule

	// Parameters 构造参数键规则。
	Parameters []ParameterKeyRule

	// Fields 字段键规则。
	Fields []FieldKeyRule

	// SingleDefaultFactory 多个默认注册时的裁决规则；
	// 未设置时解析默认键会失败 ExpectedSingleDefaultFactory。
	SingleDefaultFactory func(req *Request, factories []*Factory) *Factory
}

func newRules() *Rules {
	return &Rules{}
}

// WithUnregisteredServiceRule 追加未注册服务规则。
func (r *Rules) WithUnregisteredServiceRule(rule UnregisteredServiceRule) *Rules {
	r.UnregisteredServices = append(r.UnregisteredServices, rule)
	return r
}

// WithParameterKeyRule 追加构造参数键规则。
func (r *Rules) WithParameterKeyRule(rule ParameterKeyRule) *Rules {
	r.Parameters = append(r.Parameters, rule)
	return r
}

// WithFieldKeyRule 追加字段键规则。
func (r *Rules) WithFieldKeyRule(rule FieldKeyRule) *Rules {
	r.Fields = append(r.Fields, rule)
	return r
}

// WithSingleDefaultFactory 设置默认注册歧义裁决规则。
func (r *Rules) WithSingleDefaultFactory(pick func(req *Request, factories []*Factory) *Factory) *Rules {
	r.SingleDefaultFactory = pick
	return r
}

func (r *Rules) parameterKey(req *Request, paramType reflect.Type, index int) (any, bool) {
	for _, rule := range r.Parameters {
		if key, ok := rule(req, paramType, index); ok {
			return key, true
		}
	}
	return nil, false
}

func (r *Rules) fieldKey(req *Request, field reflect.StructField) (any, bool) {
	for _, rule := range r.Fields {
		if key, ok := rule(req, field); ok {
			return key, true
		}
	}
	return nil, false
}
