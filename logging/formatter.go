package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry 一条待格式化的日志记录
type Entry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

// Formatter 日志格式化器
type Formatter interface {
	Format(e Entry) string
}

// TextFormatter 文本格式：时间 级别 [类别] 消息 key=value ...
type TextFormatter struct {
	TimestampFormat  string
	IncludeTimestamp bool
}

// NewTextFormatter 创建默认文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat:  "2006-01-02 15:04:05",
		IncludeTimestamp: true,
	}
}

func (f *TextFormatter) Format(e Entry) string {
	var b strings.Builder
	if f.IncludeTimestamp {
		b.WriteString(e.Time.Format(f.TimestampFormat))
		b.WriteByte(' ')
	}
	b.WriteString(e.Level.String())
	if e.Category != "" {
		b.WriteString(" [")
		b.WriteString(e.Category)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, field := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", field.Key, field.Value)
	}
	return b.String()
}

// JSONFormatter JSON 行格式
type JSONFormatter struct {
	TimestampFormat string
}

// NewJSONFormatter 创建 JSON 格式化器
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: time.RFC3339}
}

func (f *JSONFormatter) Format(e Entry) string {
	m := map[string]any{
		"time":  e.Time.Format(f.TimestampFormat),
		"level": e.Level.String(),
		"msg":   e.Message,
	}
	if e.Category != "" {
		m["category"] = e.Category
	}
	for _, field := range e.Fields {
		m[field.Key] = field.Value
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"msg":%q}`, e.Level.String(), e.Message)
	}
	return string(data)
}
