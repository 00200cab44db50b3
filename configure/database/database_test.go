package database_test

import (
	"testing"

	"github.com/gocrud/ioc/configure/database"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type Record struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestDatabaseConfiguration(t *testing.T) {
	builder := core.NewApplicationBuilder()

	builder.Configure(database.Configure(func(b *database.Builder) {
		b.AddConnection("default", "file::memory:?cache=shared", nil)
	}))

	app := builder.Build()
	defer app.Close()

	db, err := di.Resolve[*gorm.DB](app.Services())
	require.NoError(t, err)
	require.NotNil(t, db)

	// 真实读写：迁移、插入、查询
	require.NoError(t, db.AutoMigrate(&Record{}))
	require.NoError(t, db.Create(&Record{Name: "first"}).Error)

	var got Record
	require.NoError(t, db.First(&got, "name = ?", "first").Error)
	require.Equal(t, "first", got.Name)

	// 命名解析返回同一连接
	named, err := di.ResolveNamed[*gorm.DB](app.Services(), "default")
	require.NoError(t, err)
	require.Same(t, db, named)
}

func TestDatabaseBuilderErrors(t *testing.T) {
	logger := logging.NewLogger()

	missing := database.NewBuilder()
	missing.AddConnection("broken", "", nil)
	_, err := missing.Build(logger)
	require.Error(t, err)

	badDriver := database.NewBuilder()
	badDriver.AddConnection("pg", "dsn", func(o *database.DatabaseOptions) {
		o.Driver = "postgres"
	})
	_, err = badDriver.Build(logger)
	require.Error(t, err)
}
