package etcd_test

import (
	"testing"

	"github.com/gocrud/ioc/configure/etcd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test 配置校验
func TestEtcdOptionsValidate(t *testing.T) {
	opts := etcd.NewDefaultOptions()
	assert.NoError(t, opts.Validate())

	opts.Endpoints = nil
	assert.Error(t, opts.Validate())
}

// Test 客户端创建（惰性连接，无需真实服务端）
func TestEtcdNewClient(t *testing.T) {
	client, err := etcd.NewClient(*etcd.NewDefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NoError(t, client.Close())

	_, err = etcd.NewClient(etcd.EtcdOptions{})
	require.Error(t, err)
}
