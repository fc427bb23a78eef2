package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ProgressEvery: 非 TTY 下每处理这么多项打印一行进度。
const ProgressEvery = 20

// Terminal: 终端进度提示（非日志），写到 stderr。
// TTY 下单行 \r 覆盖（100ms 节流）；非 TTY 下关键节点与每 ProgressEvery 项分行打印。
// 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	runStart time.Time
	stages   int

	stage   string
	total   int
	done    int
	failed  int
	curName string

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供各阶段旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				t.isTTY = fi.Mode()&os.ModeCharDevice != 0
			}
		}
	}
	return t
}

// RunStart 记录运行起点与阶段数。
func (t *Terminal) RunStart(stages []string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.runStart = time.Now()
	t.stages = len(stages)
	t.println(fmt.Sprintf("[run] 阶段 %s", strings.Join(stages, " → ")))
}

// StageStart 标记当前阶段与计划项数（total<0 表示未知）。
func (t *Terminal) StageStart(stage string, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.stage = stage
	t.total = total
	t.done = 0
	t.failed = 0
	t.curName = ""
	if total >= 0 {
		t.println(fmt.Sprintf("[%s] 开始 | 共 %d 项", stage, total))
	} else {
		t.println(fmt.Sprintf("[%s] 开始", stage))
	}
}

// Progress 汇报逐项进度。
func (t *Terminal) Progress(done, failed int, name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.done = done
	t.failed = failed
	t.curName = shortenBase(name, 40)
	if !t.isTTY {
		if done > 0 && done%ProgressEvery == 0 {
			t.println(t.progressLine())
		}
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond && done != t.total {
		return
	}
	t.lastFlush = now
	t.printInline(t.progressLine())
}

func (t *Terminal) progressLine() string {
	total := "?"
	if t.total >= 0 {
		total = fmt.Sprint(t.total)
	}
	return fmt.Sprintf("[%s] 进度 %d/%s | 失败 %d | %s | 用时 %s",
		t.stage, t.done, total, t.failed, safe(t.curName), formatSince(t.runStart))
}

// StageFinish 结束当前阶段（立即刷新并换行）。
func (t *Terminal) StageFinish(ok bool, dur time.Duration, summary string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	status := "done"
	if !ok {
		status = "fail"
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[%s] %s | %s | 用时 %s", status, t.stage, safe(summary), formatDur(dur)))
}

// RunFinish 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 阶段 %d | 总用时 %s", tag, t.stages, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	// 新行比旧行短时用空格覆盖残留
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := strings.TrimSpace(s)
	if base == "" {
		return ""
	}
	base = filepath.Base(base)
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string {
	if t0.IsZero() {
		return "0ms"
	}
	return formatDur(time.Since(t0))
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
