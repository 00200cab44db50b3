package logging

import (
	"io"
	"os"
	"sync"
)

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	minimumLevel LogLevel
	formatter    Formatter
	output       io.Writer
	mu           sync.Mutex
}

// NewLoggingBuilder 创建日志构建器
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{
		minimumLevel: LogLevelInfo,
		formatter:    NewTextFormatter(),
		output:       os.Stdout,
	}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	return b
}

// UseFormatter 设置格式化器
func (b *LoggingBuilder) UseFormatter(f Formatter) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.formatter = f
	return b
}

// UseJSON 使用 JSON 行格式
func (b *LoggingBuilder) UseJSON() *LoggingBuilder {
	return b.UseFormatter(NewJSONFormatter())
}

// SetOutput 设置输出目标
func (b *LoggingBuilder) SetOutput(w io.Writer) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.output = w
	return b
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &loggerFactory{
		minLevel: b.minimumLevel,
		format:   b.formatter,
		out:      b.output,
		writeMu:  &sync.Mutex{},
	}
}

type loggerFactory struct {
	minLevel LogLevel
	format   Formatter
	out      io.Writer
	writeMu  *sync.Mutex
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	return &logger{
		category: category,
		minLevel: f.minLevel,
		out:      f.out,
		format:   f.format,
		mu:       f.writeMu,
		exit:     os.Exit,
	}
}
