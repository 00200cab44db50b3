package ioc

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// NewApplicationBuilder 创建应用程序构建器
// 这是构建完整应用的入口点
func NewApplicationBuilder() *core.ApplicationBuilder {
	return core.NewApplicationBuilder()
}

// NewContainer 创建独立容器（不经应用构建器直接使用 IoC 核心）
func NewContainer(setup ...func(*di.Container)) *di.Container {
	return di.NewContainer(setup...)
}
