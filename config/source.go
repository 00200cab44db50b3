package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source 配置源：一次性加载为嵌套键值
type Source interface {
	Name() string
	Load() (map[string]any, error)
}

// YAMLFileSource YAML 文件配置源
type YAMLFileSource struct {
	Path     string
	Optional bool
}

func (s *YAMLFileSource) Name() string { return "yaml:" + s.Path }

func (s *YAMLFileSource) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return normalizeKeys(values), nil
}

// EnvSource 环境变量配置源。
// 变量名去掉前缀后按下划线分段映射为小写的点号路径：
// APP_DATABASE_DSN -> database.dsn
type EnvSource struct {
	Prefix string
}

func (s *EnvSource) Name() string { return "env:" + s.Prefix }

func (s *EnvSource) Load() (map[string]any, error) {
	values := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if s.Prefix != "" {
			if !strings.HasPrefix(k, s.Prefix+"_") {
				continue
			}
			k = strings.TrimPrefix(k, s.Prefix+"_")
		}
		path := strings.Split(strings.ToLower(k), "_")
		setNested(values, path, v)
	}
	return values, nil
}

// MapSource 内存键值配置源，键可以用点号表达层级
type MapSource struct {
	Values map[string]any
}

func (s *MapSource) Name() string { return "map" }

func (s *MapSource) Load() (map[string]any, error) {
	values := make(map[string]any)
	for k, v := range s.Values {
		setNested(values, strings.Split(k, "."), v)
	}
	return values, nil
}

func setNested(m map[string]any, path []string, v any) {
	for i, p := range path {
		if i == len(path)-1 {
			m[p] = v
			return
		}
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
}

// normalizeKeys 把 yaml 解出的 map[any]any 统一为 map[string]any
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return normalizeKeys(vv)
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = normalizeValue(val)
		}
		return out
	case []any:
		for i := range vv {
			vv[i] = normalizeValue(vv[i])
		}
		return vv
	default:
		return v
	}
}
