package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Configuration 只读配置视图
type Configuration interface {
	// Get 获取配置值，不存在时返回空串
	Get(key string) string
	// GetWithDefault 获取配置值，不存在时返回默认值
	GetWithDefault(key, defaultValue string) string
	// GetInt 获取整数配置值
	GetInt(key string) (int, error)
	// GetBool 获取布尔配置值
	GetBool(key string) (bool, error)
	// GetSection 获取配置节
	GetSection(key string) Configuration
	// Bind 把配置节绑定到结构体
	Bind(key string, target any) error
	// GetAll 获取全部扁平化配置
	GetAll() map[string]any
}

// configuration 合并后的配置快照
type configuration struct {
	prefix string
	flat   map[string]any
	nested map[string]any
	mu     sync.RWMutex
}

func (c *configuration) lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.flat[c.fullKey(key)]
	return v, ok
}

func (c *configuration) fullKey(key string) string {
	if c.prefix == "" {
		return key
	}
	if key == "" {
		return c.prefix
	}
	return c.prefix + "." + key
}

func (c *configuration) Get(key string) string {
	v, ok := c.lookup(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return defaultValue
}

func (c *configuration) GetInt(key string) (int, error) {
	v := c.Get(key)
	if v == "" {
		return 0, fmt.Errorf("config: key %q not found", c.fullKey(key))
	}
	return strconv.Atoi(v)
}

func (c *configuration) GetBool(key string) (bool, error) {
	v := c.Get(key)
	if v == "" {
		return false, fmt.Errorf("config: key %q not found", c.fullKey(key))
	}
	return strconv.ParseBool(v)
}

func (c *configuration) GetSection(key string) Configuration {
	return &configuration{
		prefix: c.fullKey(key),
		flat:   c.flat,
		nested: c.nested,
	}
}

func (c *configuration) Bind(key string, target any) error {
	c.mu.RLock()
	node := navigate(c.nested, c.fullKey(key))
	c.mu.RUnlock()
	if node == nil {
		return fmt.Errorf("config: section %q not found", c.fullKey(key))
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("config: marshal section %q: %w", key, err)
	}
	return yaml.Unmarshal(data, target)
}

func (c *configuration) GetAll() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.flat))
	p := c.prefix
	for k, v := range c.flat {
		if p == "" {
			out[k] = v
		} else if strings.HasPrefix(k, p+".") {
			out[strings.TrimPrefix(k, p+".")] = v
		}
	}
	return out
}

func navigate(m map[string]any, key string) any {
	if key == "" {
		return m
	}
	parts := strings.Split(key, ".")
	var node any = m
	for _, p := range parts {
		mm, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = mm[p]
		if !ok {
			return nil
		}
	}
	return node
}

// ConfigurationBuilder 配置构建器：按添加顺序合并各配置源，后加的覆盖先加的
type ConfigurationBuilder struct {
	sources []Source
	mu      sync.Mutex
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{}
}

// AddSource 添加配置源
func (b *ConfigurationBuilder) AddSource(source Source) *ConfigurationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddYAMLFile 添加 YAML 文件源
func (b *ConfigurationBuilder) AddYAMLFile(path string, optional bool) *ConfigurationBuilder {
	return b.AddSource(&YAMLFileSource{Path: path, Optional: optional})
}

// AddEnvironment 添加环境变量源（按前缀过滤）
func (b *ConfigurationBuilder) AddEnvironment(prefix string) *ConfigurationBuilder {
	return b.AddSource(&EnvSource{Prefix: prefix})
}

// AddMap 添加内存键值源
func (b *ConfigurationBuilder) AddMap(values map[string]any) *ConfigurationBuilder {
	return b.AddSource(&MapSource{Values: values})
}

// GetSources 返回已添加的配置源
func (b *ConfigurationBuilder) GetSources() []Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Source(nil), b.sources...)
}

// Build 加载全部源并构建配置快照
func (b *ConfigurationBuilder) Build() (Configuration, error) {
	b.mu.Lock()
	sources := append([]Source(nil), b.sources...)
	b.mu.Unlock()

	nested := make(map[string]any)
	for _, s := range sources {
		values, err := s.Load()
		if err != nil {
			return nil, fmt.Errorf("config: source %s: %w", s.Name(), err)
		}
		mergeMaps(nested, values)
	}

	flat := make(map[string]any)
	flatten("", nested, flat)
	return &configuration{flat: flat, nested: nested}, nil
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeMaps(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if mm, ok := v.(map[string]any); ok {
			flatten(key, mm, out)
			continue
		}
		out[key] = v
	}
}
