package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options: 日志配置。
type Options struct {
	// Level: debug|info|warn|error，默认 info。
	Level string `koanf:"level"`
	// Dir: 轮转日志目录；为空写 stderr。
	Dir string `koanf:"dir"`
	// MaxBytes: 单文件上限，<=0 为 10MiB。
	MaxBytes int64 `koanf:"max_bytes"`
}

// Logger 为结构化日志器：每个事件一行 JSON，字段 comp/stage/code/dur_ms/count/file_id/kv。
// 所有方法对 nil 接收者安全。
type Logger struct {
	zl   zerolog.Logger
	sink *RotatingFile
}

// NewLogger 按配置创建日志器，corrID 写入每条事件。
func NewLogger(corrID string, opts Options) *Logger {
	var w io.Writer = os.Stderr
	var sink *RotatingFile
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		sink = NewRotatingFile(dir, opts.MaxBytes)
		w = fallbackWriter{primary: sink, fallback: os.Stderr}
	}
	l := NewLoggerTo(w, corrID, opts.Level)
	l.sink = sink
	return l
}

// NewLoggerTo 写到任意 io.Writer（测试与 stderr 模式）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	zl := zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("corr_id", corrID).
		Logger()
	return &Logger{zl: zl}
}

// ParseLevel 未知值按 info 处理。
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Close 关闭文件 sink（若有）。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func withKV(ev *zerolog.Event, fileID string, kv map[string]string) *zerolog.Event {
	if fileID != "" {
		ev = ev.Str("file_id", fileID)
	}
	if len(kv) > 0 {
		d := zerolog.Dict()
		for k, v := range kv {
			d = d.Str(k, v)
		}
		ev = ev.Dict("kv", d)
	}
	return ev
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	withKV(l.zl.Info().Str("comp", comp).Str("stage", "start"), fileID, kv).Msg(msg)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp string, code Code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWithKV 记录带 file_id 与键值的 error。
func (l *Logger) ErrorWithKV(comp string, code Code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	ev := l.zl.Error().Str("comp", comp).Str("stage", "error").Str("code", string(code))
	if durSince != nil {
		ev = ev.Int64("dur_ms", time.Since(*durSince).Milliseconds())
	}
	withKV(ev, fileID, kv).Msg(msg)
}

// Warn 记录可恢复的异常（坏行、单项失败等）。
func (l *Logger) Warn(comp, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	withKV(l.zl.Warn().Str("comp", comp), fileID, kv).Msg(msg)
}

// Debug 逐项事件，仅 level=debug 时输出。
func (l *Logger) Debug(comp, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	withKV(l.zl.Debug().Str("comp", comp), fileID, kv).Msg(msg)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	if l == nil {
		return
	}
	l.zl.Info().Str("comp", comp).Str("stage", "finish").
		Int64("dur_ms", time.Since(start).Milliseconds()).
		Int64("count", count).
		Msg(msg)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Since 返回起点，供 Error 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// Finish 记录 finish；count 为本阶段处理条数。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录附带汇总键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	ev := t.l.zl.Info().Str("comp", t.comp).Str("stage", "finish").Int64("dur_ms", dur).Int64("count", count)
	withKV(ev, t.fileID, kv).Msg(msg)
	ObserveDuration(t.comp, "finish", dur)
}

// fallbackWriter: 文件写失败时退回 stderr，日志不丢。
type fallbackWriter struct {
	primary  io.Writer
	fallback io.Writer
}

func (w fallbackWriter) Write(p []byte) (int, error) {
	if n, err := w.primary.Write(p); err == nil {
		return n, nil
	}
	return w.fallback.Write(p)
}
