package di

import (
	"fmt"
	"reflect"
	"strings"
)

// fieldInjection 单个注入字段的元数据，解析自 di 标签。
// 标签语法与字段注入约定：
//
//	Logger Logger       `di:""`        // 按类型注入
//	Cache  *Client      `di:"cache"`   // 按名称注入
//	Queue  *Client      `di:"queue,?"` // 可选：未注册时保持零值
type fieldInjection struct {
	Index    int
	Name     string
	Type     reflect.Type
	Key      any
	Optional bool
}

func parseFieldTag(tag string) (key any, optional bool) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if name == "?" || name == "optional" {
		name = ""
		optional = true
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "?" || p == "optional" {
			optional = true
		}
	}
	if name != "" {
		key = name
	}
	return key, optional
}

// injectableFields 枚举结构体的可注入字段：带 di 标签的导出字段，
// 以及字段键规则给出键的导出字段。
func (c *Container) injectableFields(req *Request, structType reflect.Type) []fieldInjection {
	var fields []fieldInjection
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}

		var key any
		var optional bool
		if tag, has := field.Tag.Lookup("di"); has {
			key, optional = parseFieldTag(tag)
		} else if ruleKey, ok := c.Rules().fieldKey(req, field); ok {
			key = ruleKey
		} else {
			continue
		}
		fields = append(fields, fieldInjection{
			Index:    i,
			Name:     field.Name,
			Type:     field.Type,
			Key:      key,
			Optional: optional,
		})
	}
	return fields
}

// fieldBinds 为结构体表达式构建字段绑定（表达式合成期使用）。
func (c *Container) fieldBinds(req *Request, structType reflect.Type) ([]FieldBind, error) {
	var binds []FieldBind
	for _, fi := range c.injectableFields(req, structType) {
		dep := &Dependency{Kind: DepField, Name: fi.Name, Type: fi.Type}
		childReq := req.Push(fi.Type, fi.Key, dep)

		ifUnresolved := IfUnresolvedThrow
		if fi.Optional {
			ifUnresolved = IfUnresolvedReturnNil
		}
		f, err := c.getOrAddFactory(childReq, ifUnresolved)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		expr, err := f.GetExpression(childReq, c)
		if err != nil {
			return nil, err
		}
		binds = append(binds, FieldBind{Index: fi.Index, Expr: expr})
	}
	return binds, nil
}

// ResolvePropertiesAndFields 对容器外构建的实例做后注入：
// 按 di 标签和字段键规则解析并写入每个可注入字段。
func (c *Container) ResolvePropertiesAndFields(instance any) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("di: ResolvePropertiesAndFields wants a non-nil struct pointer, got %T", instance)
	}
	elem := v.Elem()
	req := newRequest(c, v.Type(), nil)

	for _, fi := range c.injectableFields(req, elem.Type()) {
		ifUnresolved := IfUnresolvedThrow
		if fi.Optional {
			ifUnresolved = IfUnresolvedReturnNil
		}
		dep, err := c.ResolveKeyed(fi.Type, fi.Key, ifUnresolved)
		if err != nil {
			return fmt.Errorf("di: field %s: %w", fi.Name, err)
		}
		if dep == nil {
			continue
		}
		elem.Field(fi.Index).Set(reflect.ValueOf(dep))
	}
	return nil
}

// Inject 通过指针注入实例到目标变量。
// 用法示例：
//
//	var svc *UserService
//	c.Inject(&svc)
func (c *Container) Inject(target any, key ...any) error {
	targetVal := reflect.ValueOf(target)
	if targetVal.Kind() != reflect.Pointer || targetVal.IsNil() {
		return fmt.Errorf("di: Inject target must be a non-nil pointer, got %T", target)
	}

	elemVal := targetVal.Elem()
	var k any
	if len(key) > 0 {
		k = key[0]
	}

	instance, err := c.ResolveKeyed(elemVal.Type(), k)
	if err != nil {
		return err
	}
	if instance != nil {
		elemVal.Set(reflect.ValueOf(instance))
	}
	return nil
}

// MustInject 注入失败时 panic。
func (c *Container) MustInject(target any, key ...any) {
	if err := c.Inject(target, key...); err != nil {
		panic(err)
	}
}
