// Package reconcile 将清单与图片目录交叉核对，剔除引用了缺失图片的记录。
package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/pkg/contract"
	"formulaprep/plugins/index/imagedir"
)

// Mode: 核对策略。
type Mode string

const (
	// ModeAuto: 计算并把保留记录写回清单（破坏性覆盖）。
	ModeAuto Mode = "auto"
	// ModeInteractive: 只计算报告，不写任何文件。
	ModeInteractive Mode = "interactive"
	// ModeSkip: 不做任何计算。
	ModeSkip Mode = "skip"
)

// ParseMode 大小写不敏感；空串为 auto。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeInteractive:
		return ModeInteractive, nil
	case ModeSkip:
		return ModeSkip, nil
	}
	return "", fmt.Errorf("%w: unknown reconcile mode %q", contract.ErrConfig, s)
}

// MaxPreview: 报告中缺失引用示例的上限。
const MaxPreview = 10

// Status: 阶段结果。
type Status string

const (
	StatusApplied    Status = "applied"
	StatusReportOnly Status = "report_only"
	StatusSkipped    Status = "skipped"
)

// Options: 一次核对的输入。
type Options struct {
	Manifest string `koanf:"manifest"`
	Images   string `koanf:"images"`
	// BadIDs: 可选的人工标记编号列表文件。
	BadIDs string `koanf:"bad_ids"`
	Mode   Mode   `koanf:"mode"`
	// Preview: 缺失引用示例条数，钳制到 [1, MaxPreview]，0 为 MaxPreview。
	Preview int `koanf:"preview"`
}

// Report: 核对报告。Total = Kept + Removed；
// Removed = DecodeErrors + EmptyImages + MissingRecords + BadRecords。
type Report struct {
	Status   Status `json:"status" yaml:"status"`
	Mode     Mode   `json:"mode" yaml:"mode"`
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	Indexed int `json:"indexed" yaml:"indexed"`
	Total   int `json:"total" yaml:"total"`
	Kept    int `json:"kept" yaml:"kept"`
	Removed int `json:"removed" yaml:"removed"`

	DecodeErrors   int `json:"decode_errors" yaml:"decode_errors"`
	Repaired       int `json:"repaired,omitempty" yaml:"repaired,omitempty"`
	EmptyImages    int `json:"empty_images" yaml:"empty_images"`
	MissingRecords int `json:"missing_records" yaml:"missing_records"`
	BadRecords     int `json:"bad_records" yaml:"bad_records"`
	// MissingRefs: 缺失图片引用总数（可能多于 Preview）。
	MissingRefs int      `json:"missing_refs" yaml:"missing_refs"`
	Preview     []string `json:"missing_preview,omitempty" yaml:"missing_preview,omitempty"`
	InvalidBad  int      `json:"bad_id_invalid_lines,omitempty" yaml:"bad_id_invalid_lines,omitempty"`

	Written bool `json:"written" yaml:"written"`
}

// String 返回单行可读摘要。
func (r Report) String() string {
	if r.Status == StatusSkipped {
		return "reconcile: skipped"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "reconcile[%s]: total=%d kept=%d removed=%d (decode=%d empty=%d missing=%d bad=%d) indexed=%d",
		r.Mode, r.Total, r.Kept, r.Removed, r.DecodeErrors, r.EmptyImages, r.MissingRecords, r.BadRecords, r.Indexed)
	if r.Written {
		b.WriteString(" written")
	}
	if len(r.Preview) > 0 {
		fmt.Fprintf(&b, " missing_refs=%d e.g. %s", r.MissingRefs, strings.Join(r.Preview, ", "))
	}
	return b.String()
}

// Reconciler 组合目录索引与清单存储。
type Reconciler struct {
	index  *imagedir.Index
	store  *manifest.Store
	logger *diag.Logger
}

// New 创建核对器。logger 可为 nil。
func New(index *imagedir.Index, store *manifest.Store, logger *diag.Logger) *Reconciler {
	return &Reconciler{index: index, store: store, logger: logger}
}

// Reconcile 执行核对，返回保留的记录与报告。
// 配置错误（目录/清单缺失、bad-ID 列表缺失）在任何写入之前返回；
// auto 模式下写回失败返回包装 ErrWrite 的错误，报告仍为已计算的内容。
func (r *Reconciler) Reconcile(ctx context.Context, opts Options) ([]contract.Record, Report, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	rep := Report{Mode: mode, Manifest: opts.Manifest}
	switch mode {
	case ModeSkip:
		rep.Status = StatusSkipped
		return nil, rep, nil
	case ModeAuto, ModeInteractive:
	default:
		return nil, rep, fmt.Errorf("%w: unknown reconcile mode %q", contract.ErrConfig, mode)
	}
	if strings.TrimSpace(opts.Manifest) == "" || strings.TrimSpace(opts.Images) == "" {
		return nil, rep, fmt.Errorf("%w: reconcile requires manifest and images", contract.ErrConfig)
	}

	tm := r.logger.StartWithKV("reconcile", "reconcile", opts.Manifest, map[string]string{"mode": string(mode), "images": opts.Images})
	entriesIdx, err := r.index.Scan(ctx, opts.Images)
	if err != nil {
		r.fail(tm, err, "index failed")
		return nil, rep, err
	}
	set := imagedir.NewSet(entriesIdx)
	rep.Indexed = set.Len()

	var bad *BadIDs
	if strings.TrimSpace(opts.BadIDs) != "" {
		bad, err = LoadBadIDs(opts.BadIDs, r.index.Pattern())
		if err != nil {
			r.fail(tm, err, "bad-id list failed")
			return nil, rep, err
		}
		rep.InvalidBad = bad.Invalid
	}

	lines, st, err := r.store.Load(ctx, opts.Manifest)
	if err != nil {
		r.fail(tm, err, "load failed")
		return nil, rep, err
	}
	rep.Repaired = st.Repaired

	kept := Classify(lines, r.index.Pattern(), set, bad, clampPreview(opts.Preview), &rep)
	for _, e := range lines {
		if !e.OK() {
			r.logger.Warn("reconcile", "malformed line dropped", opts.Manifest, map[string]string{"line": strconv.Itoa(e.Line)})
		}
	}

	if mode == ModeInteractive {
		rep.Status = StatusReportOnly
		tm.FinishKV("reconcile", int64(rep.Total), summaryKV(rep))
		return kept, rep, nil
	}
	if err := r.store.Save(ctx, opts.Manifest, kept); err != nil {
		r.fail(tm, err, "save failed")
		return kept, rep, err
	}
	rep.Written = true
	rep.Status = StatusApplied
	tm.FinishKV("reconcile", int64(rep.Total), summaryKV(rep))
	return kept, rep, nil
}

// Classify 对已读取的清单行分类，填充 rep 的计数与预览，返回保留的记录。
// 记录被保留当且仅当：解码成功、images 非空、每条路径提取的编号都在 set 中且不在 bad 中。
func Classify(lines []manifest.Entry, p *imagedir.Pattern, set *imagedir.Set, bad *BadIDs, preview int, rep *Report) []contract.Record {
	kept := make([]contract.Record, 0, len(lines))
	for _, e := range lines {
		rep.Total++
		if !e.OK() {
			rep.DecodeErrors++
			continue
		}
		if len(e.Record.Images) == 0 {
			rep.EmptyImages++
			continue
		}
		missing, flagged := false, false
		for _, ref := range e.Record.Images {
			id := p.Extract(ref)
			if id == "" || !set.Has(id) {
				missing = true
				rep.MissingRefs++
				if len(rep.Preview) < preview {
					rep.Preview = append(rep.Preview, ref)
				}
				continue
			}
			if bad.Has(id) {
				flagged = true
			}
		}
		switch {
		case missing:
			rep.MissingRecords++
		case flagged:
			rep.BadRecords++
		default:
			kept = append(kept, e.Record)
		}
	}
	rep.Kept = len(kept)
	rep.Removed = rep.Total - rep.Kept
	return kept
}

func clampPreview(n int) int {
	if n <= 0 || n > MaxPreview {
		return MaxPreview
	}
	return n
}

func summaryKV(rep Report) map[string]string {
	return map[string]string{
		"status":  string(rep.Status),
		"kept":    strconv.Itoa(rep.Kept),
		"removed": strconv.Itoa(rep.Removed),
		"decode":  strconv.Itoa(rep.DecodeErrors),
		"missing": strconv.Itoa(rep.MissingRecords),
	}
}

func (r *Reconciler) fail(tm *diag.Timer, err error, msg string) {
	code := diag.Classify(err)
	r.logger.Error("reconcile", code, msg+": "+err.Error(), tm.Since())
	diag.IncOp("reconcile", "error", "error")
	diag.IncError("reconcile", code)
}
