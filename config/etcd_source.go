package config

import (
	"context"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// EtcdSource 从 etcd 前缀加载配置。
// 每个键去掉前缀后以 "/" 分段映射为点号路径；值按 YAML 解析，
// 解析失败时按原始字符串保存。
type EtcdSource struct {
	Endpoints []string
	Prefix    string
	Timeout   time.Duration

	// Client 可选的预建客户端（测试注入用）；为空时按 Endpoints 创建
	Client *clientv3.Client
}

func (s *EtcdSource) Name() string { return "etcd:" + s.Prefix }

func (s *EtcdSource) Load() (map[string]any, error) {
	cli := s.Client
	if cli == nil {
		timeout := s.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		var err error
		cli, err = clientv3.New(clientv3.Config{
			Endpoints:   s.Endpoints,
			DialTimeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		defer cli.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout())
	defer cancel()

	resp, err := cli.Get(ctx, s.Prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	values := make(map[string]any)
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(string(kv.Key), s.Prefix)
		key = strings.Trim(key, "/")
		if key == "" {
			continue
		}
		var parsed any
		if err := yaml.Unmarshal(kv.Value, &parsed); err != nil {
			parsed = string(kv.Value)
		}
		setNested(values, strings.Split(key, "/"), normalizeValue(parsed))
	}
	return values, nil
}

func (s *EtcdSource) dialTimeout() time.Duration {
	if s.Timeout == 0 {
		return 5 * time.Second
	}
	return s.Timeout
}
