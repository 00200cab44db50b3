package redis

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClientOptions 单个 Redis 客户端的配置
type RedisClientOptions struct {
	Name     string
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name: name,
		Addr: "localhost:6379",
	}
}

// Validate 验证配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis addr is required for client '%s'", o.Name)
	}
	return nil
}

// RedisClientFactory 按名称持有 Redis 客户端
type RedisClientFactory struct {
	clients map[string]*redis.Client
	mu      sync.RWMutex
}

// NewRedisClientFactory 创建客户端工厂
func NewRedisClientFactory() *RedisClientFactory {
	return &RedisClientFactory{clients: make(map[string]*redis.Client)}
}

// Register 按配置创建并登记客户端。连接是惰性的，首次命令时建立。
func (f *RedisClientFactory) Register(opts RedisClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("redis client '%s' already registered", opts.Name)
	}
	f.clients[opts.Name] = redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	return nil
}

// Get 按名称获取客户端
func (f *RedisClientFactory) Get(name string) (*redis.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("redis client '%s' not found", name)
	}
	return client, nil
}

// Each 遍历所有客户端
func (f *RedisClientFactory) Each(fn func(name string, client *redis.Client)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for name, client := range f.clients {
		fn(name, client)
	}
}

// Close 关闭所有客户端
func (f *RedisClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for name, client := range f.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close redis client '%s': %w", name, err)
		}
	}
	f.clients = make(map[string]*redis.Client)
	return firstErr
}
