package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/mgo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoOptions MongoDB 客户端配置选项
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 5,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required for '%s'", o.Name)
	}
	return nil
}

func (o *MongoOptions) clientOptions() *options.ClientOptions {
	clientOpts := options.Client()
	if o.Username != "" || o.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username: o.Username,
			Password: o.Password,
		})
	}
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(o.MinPoolSize)
	}
	if o.Timeout > 0 {
		clientOpts.SetConnectTimeout(o.Timeout)
	}
	return clientOpts
}

// MongoFactory MongoDB 客户端工厂
type MongoFactory struct {
	clients map[string]*mgo.Client
	mu      sync.RWMutex
}

// NewMongoFactory 创建客户端工厂
func NewMongoFactory() *MongoFactory {
	return &MongoFactory{clients: make(map[string]*mgo.Client)}
}

// Register 按配置创建并登记客户端
func (f *MongoFactory) Register(opts MongoOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("mongo client '%s' already registered", opts.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	client, err := mgo.NewClient(ctx, opts.Uri, opts.clientOptions())
	if err != nil {
		return fmt.Errorf("failed to create mongo client '%s': %w", opts.Name, err)
	}
	f.clients[opts.Name] = client
	return nil
}

// Get 按名称获取客户端
func (f *MongoFactory) Get(name string) (*mgo.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("mongo client '%s' not found", name)
	}
	return client, nil
}

// Each 遍历所有客户端
func (f *MongoFactory) Each(fn func(name string, client *mgo.Client)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for name, client := range f.clients {
		fn(name, client)
	}
}

// Close 关闭所有客户端
func (f *MongoFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	for name, client := range f.clients {
		if err := client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close mongo client '%s': %w", name, err)
		}
	}
	f.clients = make(map[string]*mgo.Client)
	return firstErr
}
