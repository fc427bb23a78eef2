// Package rewrite 批量替换清单中图片路径的前缀（例如 images/ → /data/train/images/）。
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/pkg/contract"
)

// MaxUnresolved: 报告中列出的未解析路径上限。
const MaxUnresolved = 10

// Options: 前缀改写参数。
type Options struct {
	Input string `koanf:"input"`
	// Output: 为空时原地覆盖 Input。
	Output    string `koanf:"output"`
	OldPrefix string `koanf:"old_prefix"`
	NewPrefix string `koanf:"new_prefix"`
	// Validate: 检查改写后的路径（相对 BaseDir）是否存在，只报告不阻断。
	Validate bool   `koanf:"validate"`
	BaseDir  string `koanf:"base_dir"`
}

// Report: 改写结果。
type Report struct {
	Output       string   `json:"output" yaml:"output"`
	Records      int      `json:"records" yaml:"records"`
	DecodeErrors int      `json:"decode_errors" yaml:"decode_errors"`
	Paths        int      `json:"paths" yaml:"paths"`
	Rewritten    int      `json:"rewritten" yaml:"rewritten"`
	Validated    bool     `json:"validated" yaml:"validated"`
	Unresolved   int      `json:"unresolved" yaml:"unresolved"`
	Preview      []string `json:"unresolved_preview,omitempty" yaml:"unresolved_preview,omitempty"`
}

// String 返回单行摘要。
func (r Report) String() string {
	s := fmt.Sprintf("rewrite: records=%d paths=%d rewritten=%d decode=%d -> %s", r.Records, r.Paths, r.Rewritten, r.DecodeErrors, r.Output)
	if r.Validated {
		s += fmt.Sprintf(" unresolved=%d", r.Unresolved)
		if len(r.Preview) > 0 {
			s += " e.g. " + strings.Join(r.Preview, ", ")
		}
	}
	return s
}

// Prefix 只替换开头的 old 前缀；不以 old 开头的路径原样返回。
func Prefix(p, old, repl string) (string, bool) {
	if old == "" || !strings.HasPrefix(p, old) {
		return p, false
	}
	return repl + p[len(old):], true
}

// Records 返回改写后的副本与改写计数，不修改 in。
func Records(in []contract.Record, old, repl string) ([]contract.Record, int) {
	out := make([]contract.Record, len(in))
	n := 0
	for i, r := range in {
		c := r.Clone()
		for j, p := range c.Images {
			if np, ok := Prefix(p, old, repl); ok {
				c.Images[j] = np
				n++
			}
		}
		out[i] = c
	}
	return out, n
}

// Rewriter 读清单、改写、原子写出。
type Rewriter struct {
	store  *manifest.Store
	logger *diag.Logger
}

// New 创建改写器。logger 可为 nil。
func New(store *manifest.Store, logger *diag.Logger) *Rewriter {
	return &Rewriter{store: store, logger: logger}
}

// Rewrite 执行改写。无法解码的行被丢弃并计数，输出始终为合法 NDJSON。
func (rw *Rewriter) Rewrite(ctx context.Context, opts Options) (Report, error) {
	out := opts.Output
	if strings.TrimSpace(out) == "" {
		out = opts.Input
	}
	rep := Report{Output: out}
	if strings.TrimSpace(opts.Input) == "" {
		return rep, fmt.Errorf("%w: rewrite requires input manifest", contract.ErrConfig)
	}
	if opts.OldPrefix == "" {
		return rep, fmt.Errorf("%w: rewrite old_prefix must not be empty", contract.ErrConfig)
	}
	tm := rw.logger.StartWithKV("rewrite", "rewrite", opts.Input, map[string]string{"old": opts.OldPrefix, "new": opts.NewPrefix})
	lines, st, err := rw.store.Load(ctx, opts.Input)
	if err != nil {
		rw.fail(tm, err)
		return rep, err
	}
	rep.DecodeErrors = st.Malformed
	recs, n := Records(manifest.Records(lines), opts.OldPrefix, opts.NewPrefix)
	rep.Records = len(recs)
	rep.Rewritten = n
	for _, r := range recs {
		rep.Paths += len(r.Images)
	}
	if opts.Validate {
		rep.Validated = true
		rep.Unresolved, rep.Preview = validate(recs, opts.BaseDir)
		if rep.Unresolved > 0 {
			rw.logger.Warn("rewrite", "unresolved paths after rewrite", opts.Input, map[string]string{"count": fmt.Sprint(rep.Unresolved)})
		}
	}
	if err := rw.store.Save(ctx, out, recs); err != nil {
		rw.fail(tm, err)
		return rep, err
	}
	tm.Finish("rewrite", int64(rep.Records))
	return rep, nil
}

// validate 返回不存在的路径数与前 MaxUnresolved 个示例。绝对路径直接检查。
func validate(recs []contract.Record, base string) (int, []string) {
	if base == "" {
		base = "."
	}
	var (
		n       int
		preview []string
	)
	for _, r := range recs {
		for _, p := range r.Images {
			fp := filepath.FromSlash(p)
			if !filepath.IsAbs(fp) {
				fp = filepath.Join(base, fp)
			}
			if _, err := os.Stat(fp); err != nil && errors.Is(err, fs.ErrNotExist) {
				n++
				if len(preview) < MaxUnresolved {
					preview = append(preview, p)
				}
			}
		}
	}
	return n, preview
}

func (rw *Rewriter) fail(tm *diag.Timer, err error) {
	code := diag.Classify(err)
	rw.logger.Error("rewrite", code, "rewrite failed: "+err.Error(), tm.Since())
	diag.IncOp("rewrite", "error", "error")
	diag.IncError("rewrite", code)
}
