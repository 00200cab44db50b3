package mongodb_test

import (
	"os"
	"testing"
	"time"

	"github.com/gocrud/ioc/configure/mongodb"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/mgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test 配置校验
func TestMongoOptionsValidate(t *testing.T) {
	opts := mongodb.NewDefaultOptions("", "mongodb://localhost:27017")
	assert.Error(t, opts.Validate())

	opts = mongodb.NewDefaultOptions("default", "")
	assert.Error(t, opts.Validate())

	opts = mongodb.NewDefaultOptions("default", "mongodb://localhost:27017")
	assert.NoError(t, opts.Validate())
}

// Test 构建器拒绝非法配置
func TestMongoBuilderErrors(t *testing.T) {
	builder := mongodb.NewBuilder()
	builder.Add("", "mongodb://localhost:27017", nil)

	_, err := builder.Build(logging.NewLogger())
	require.Error(t, err)
}

// Test 真实连接（需要本地 MongoDB）
func TestMongoConfiguration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test")
	}

	builder := core.NewApplicationBuilder()
	builder.Configure(mongodb.Configure(func(b *mongodb.Builder) {
		b.Add("default", "mongodb://localhost:27017", func(o *mongodb.MongoOptions) {
			o.Timeout = 2 * time.Second
		})
	}))

	app := builder.Build()
	defer app.Close()

	client, err := di.Resolve[*mgo.Client](app.Services())
	require.NoError(t, err)
	require.NotNil(t, client)

	named, err := di.ResolveNamed[*mgo.Client](app.Services(), "default")
	require.NoError(t, err)
	assert.Same(t, client, named)
}
