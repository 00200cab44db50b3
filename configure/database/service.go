package database

import (
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseOptions 单个数据库连接的配置
type DatabaseOptions struct {
	Name         string
	Driver       string // 目前支持 sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     logger.LogLevel
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *DatabaseOptions {
	return &DatabaseOptions{
		Name:     name,
		Driver:   "sqlite",
		LogLevel: logger.Warn,
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database connection name is required")
	}
	if o.DSN == "" {
		return fmt.Errorf("database dsn is required for '%s'", o.Name)
	}
	if o.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver '%s' for '%s'", o.Driver, o.Name)
	}
	return nil
}

// DatabaseFactory 按名称持有 gorm 连接
type DatabaseFactory struct {
	dbs map[string]*gorm.DB
	mu  sync.RWMutex
}

// NewDatabaseFactory 创建连接工厂
func NewDatabaseFactory() *DatabaseFactory {
	return &DatabaseFactory{dbs: make(map[string]*gorm.DB)}
}

// Register 打开连接并登记
func (f *DatabaseFactory) Register(opts DatabaseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.dbs[opts.Name]; exists {
		return fmt.Errorf("database connection '%s' already registered", opts.Name)
	}

	db, err := gorm.Open(sqlite.Open(opts.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	if opts.MaxOpenConns > 0 || opts.MaxIdleConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql.DB for '%s': %w", opts.Name, err)
		}
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}

	f.dbs[opts.Name] = db
	return nil
}

// Get 按名称获取连接
func (f *DatabaseFactory) Get(name string) (*gorm.DB, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	db, ok := f.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database connection '%s' not found", name)
	}
	return db, nil
}

// Each 遍历所有连接
func (f *DatabaseFactory) Each(fn func(name string, db *gorm.DB)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for name, db := range f.dbs {
		fn(name, db)
	}
}

// Close 关闭所有连接
func (f *DatabaseFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for name, db := range f.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database '%s': %w", name, err)
		}
	}
	f.dbs = make(map[string]*gorm.DB)
	return firstErr
}
