package etcd

import (
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdOptions etcd 客户端配置
type EtcdOptions struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions() *EtcdOptions {
	return &EtcdOptions{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *EtcdOptions) Validate() error {
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	return nil
}

// NewClient 按配置创建客户端。连接是惰性的，首次调用时建立。
func NewClient(opts EtcdOptions) (*clientv3.Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
	})
}
