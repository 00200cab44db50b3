package di

import (
	"fmt"
	"reflect"
	"strings"
)

// DependencyKind 依赖描述符的种类。
type DependencyKind int

const (
	// DepCtorParam 构造函数参数。
	DepCtorParam DependencyKind = iota
	// DepField 结构体字段。
	DepField
)

// Dependency 描述一个注入点（构造函数参数或字段）。
type Dependency struct {
	Kind DependencyKind
	Name string
	Type reflect.Type
}

func (d *Dependency) String() string {
	if d == nil {
		return ""
	}
	if d.Kind == DepField {
		return "field " + d.Name
	}
	return "param " + d.Name
}

// Request 解析链中的一帧。不可变：Push/ResolveTo 等操作返回新帧。
// 帧链自叶向根连接，用于递归检测和诊断输出。
type Request struct {
	parent    *Request
	container *Container

	ServiceType reflect.Type
	ServiceKey  any
	Dep         *Dependency

	FactoryID   int
	FactoryKind FactoryKind
	ImplType    reflect.Type
	Metadata    any

	// decoratedID 非零时表示该服务已在装饰链内部，
	// 防止装饰器体内解析同一服务时再次触发装饰。
	decoratedID int
}

func newRequest(c *Container, serviceType reflect.Type, key any) *Request {
	return &Request{container: c, ServiceType: serviceType, ServiceKey: key}
}

// Parent 返回父帧，根帧返回 nil。
func (r *Request) Parent() *Request { return r.parent }

// Container 返回发起解析的容器。
func (r *Request) Container() *Container { return r.container }

// Push 压入子帧，使用给定的服务键。
func (r *Request) Push(serviceType reflect.Type, key any, dep *Dependency) *Request {
	return &Request{
		parent:      r,
		container:   r.container,
		ServiceType: serviceType,
		ServiceKey:  key,
		Dep:         dep,
		decoratedID: r.decoratedID,
	}
}

// PushPreservingKey 压入子帧并继承父帧的服务键。
// 包装器借此把命名解析透传到被包装的服务。
func (r *Request) PushPreservingKey(serviceType reflect.Type, dep *Dependency) *Request {
	return r.Push(serviceType, r.ServiceKey, dep)
}

// ResolveTo 把工厂身份固化到帧上，并沿祖先链检测递归依赖。
// 两个服务帧共享同一工厂 id 即视为环。
func (r *Request) ResolveTo(f *Factory) (*Request, error) {
	n := *r
	n.FactoryID = f.ID
	n.FactoryKind = f.Setup.Kind
	n.ImplType = f.ImplType
	n.Metadata = f.Setup.Metadata

	if f.Setup.Kind == FactoryKindService {
		for p := r.parent; p != nil; p = p.parent {
			if p.FactoryID == f.ID && p.FactoryKind == FactoryKindService {
				return nil, r.container.errorf(ErrRecursiveDependency, "%s", n.String())
			}
		}
	}
	return &n, nil
}

// MakeDecorated 打上装饰标记：同一服务在自己的装饰链内不会被再次装饰。
func (r *Request) MakeDecorated() *Request {
	n := *r
	n.decoratedID = r.FactoryID
	return &n
}

// isDecorated 报告该帧或祖先是否已带有指定工厂的装饰标记。
func (r *Request) isDecorated(factoryID int) bool {
	for p := r; p != nil; p = p.parent {
		if p.decoratedID == factoryID {
			return true
		}
	}
	return false
}

// NonWrapperParent 返回最近的非包装器祖先帧，不存在时为 nil。
func (r *Request) NonWrapperParent() *Request {
	for p := r.parent; p != nil; p = p.parent {
		if p.FactoryKind != FactoryKindWrapper {
			return p
		}
	}
	return nil
}

// hasFuncWrapperAncestor 报告链上是否存在函数类型的包装器帧。
// 单例复用据此决定急切捕获还是惰性 scoped-get。
func (r *Request) hasFuncWrapperAncestor() bool {
	for p := r.parent; p != nil; p = p.parent {
		if p.FactoryKind == FactoryKindWrapper && p.ServiceType != nil && p.ServiceType.Kind() == reflect.Func {
			return true
		}
	}
	return false
}

// String 打印从当前帧到根的解析链。
func (r *Request) String() string {
	var b strings.Builder
	for p := r; p != nil; p = p.parent {
		if p != r {
			b.WriteString("\n  in ")
		}
		writeFrame(&b, p)
	}
	return b.String()
}

func writeFrame(b *strings.Builder, r *Request) {
	b.WriteString(typeName(r.ServiceType))
	if r.ServiceKey != nil {
		fmt.Fprintf(b, " (key=%v)", r.ServiceKey)
	}
	if r.Dep != nil {
		b.WriteString(" as ")
		b.WriteString(r.Dep.String())
	}
	if r.ImplType != nil && r.ImplType != r.ServiceType {
		b.WriteString(" impl ")
		b.WriteString(typeName(r.ImplType))
	}
	if r.FactoryID != 0 {
		fmt.Fprintf(b, " #%d", r.FactoryID)
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
