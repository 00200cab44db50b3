package web_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/configure/web"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RequestContext 请求作用域内的服务：同一请求内共享，跨请求独立
type RequestContext struct {
	ID int
}

var requestContextN int

func NewRequestContext() *RequestContext {
	requestContextN++
	return &RequestContext{ID: requestContextN}
}

func TestWebConfigurationAndRequestScope(t *testing.T) {
	requestContextN = 0

	builder := core.NewApplicationBuilder()

	builder.Configure(func(ctx *core.BuildContext) {
		di.Register[*RequestContext](ctx.Container(), di.WithCtor(NewRequestContext), di.WithScoped())
	})
	builder.Configure(web.Configure(func(b *web.Builder) {
		b.UseMode(gin.TestMode)
		b.AddRoutes(func(engine *gin.Engine, _ *di.Container) {
			engine.GET("/id", func(c *gin.Context) {
				scope := web.RequestScope(c)
				require.NotNil(t, scope)

				// 同一请求内两次解析返回同一实例
				rc1, err := di.Resolve[*RequestContext](scope)
				require.NoError(t, err)
				rc2, _ := di.Resolve[*RequestContext](scope)
				require.Same(t, rc1, rc2)

				c.String(http.StatusOK, fmt.Sprintf("%d", rc1.ID))
			})
		})
	}))

	app := builder.Build()
	defer app.Close()

	engine, err := di.Resolve[*gin.Engine](app.Services())
	require.NoError(t, err)

	get := func() string {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	first := get()
	second := get()
	assert.NotEqual(t, first, second, "scoped service must differ across requests")
	assert.Equal(t, 2, requestContextN, "one construction per request")
}

func TestWebServiceRegistered(t *testing.T) {
	builder := core.NewApplicationBuilder()
	builder.Configure(web.Configure(func(b *web.Builder) {
		b.UseMode(gin.TestMode).Listen("127.0.0.1:0")
	}))

	app := builder.Build()
	defer app.Close()

	svc, err := di.Resolve[*web.WebService](app.Services())
	require.NoError(t, err)
	require.NotNil(t, svc)
}
